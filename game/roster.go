package game

import "time"

// Roster rules. "Active" means not voyeur and connected; active players are
// the ones a round waits on. "Grace-eligible" widens that to players whose
// disconnect is still inside GRACE_PERIOD, so a dropped connection doesn't
// void an already-submitted answer or vote.

func (s *gameState) isActive(p *playerState) bool {
	return !p.voyeur && p.presence.connected
}

func (s *gameState) isGraceEligible(p *playerState, now time.Time) bool {
	if p.voyeur {
		return false
	}
	if p.presence.connected {
		return true
	}
	return now.Sub(p.presence.disconnectedAt) <= GRACE_PERIOD
}

// activeIDs returns active player ids in join order.
func (s *gameState) activeIDs() []string {
	var ids []string
	for _, id := range s.order {
		if p := s.players[id]; p != nil && s.isActive(p) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *gameState) activeCount() int {
	return len(s.activeIDs())
}

func (s *gameState) graceEligibleSet(now time.Time) map[string]bool {
	eligible := make(map[string]bool, len(s.players))
	for id, p := range s.players {
		if s.isGraceEligible(p, now) {
			eligible[id] = true
		}
	}
	return eligible
}

func (s *gameState) addPlayer(p *playerState) {
	s.players[p.id] = p
	s.order = append(s.order, p.id)
}

// claimHost gives host to id when the seat is vacant in practice: no host,
// or the current host is gone, disconnected, or a voyeur.
func (s *gameState) claimHost(id string) {
	host := s.players[s.hostID]
	if host == nil || !host.presence.connected || host.voyeur {
		s.hostID = id
	}
}

// transferHostFrom moves host away from id to the first remaining connected
// active player, in join order. With nobody eligible the seat goes empty
// (paused) rather than to a voyeur.
func (s *gameState) transferHostFrom(id string) {
	if s.hostID != id {
		return
	}
	s.hostID = ""
	for _, candidate := range s.order {
		if candidate == id {
			continue
		}
		if p := s.players[candidate]; p != nil && s.isActive(p) {
			s.hostID = candidate
			return
		}
	}
}

// purgeRoundData erases every trace of id from the round in flight: their
// answer, their vote, votes cast for them, and their answer-order slot.
func (s *gameState) purgeRoundData(id string) {
	delete(s.answers, id)
	delete(s.votes, id)
	for voter, votee := range s.votes {
		if votee == id {
			delete(s.votes, voter)
		}
	}
	for i, aid := range s.answerOrder {
		if aid == id {
			s.answerOrder = append(s.answerOrder[:i], s.answerOrder[i+1:]...)
			break
		}
	}
}

func (s *gameState) removePlayer(id string) {
	s.purgeRoundData(id)
	delete(s.players, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.transferHostFrom(id)
}

// cleanupAbandoned hard-deletes every player whose disconnect outlived the
// grace window. Idempotent; runs on every inbound message, on connect, and
// on the lobby tick so cleanup never depends on traffic arriving.
func (r *room) cleanupAbandoned(now time.Time) {
	var expired []string
	for _, id := range r.state.order {
		p := r.state.players[id]
		if p == nil || p.presence.connected {
			continue
		}
		if now.Sub(p.presence.disconnectedAt) > GRACE_PERIOD {
			expired = append(expired, id)
		}
	}

	if len(expired) == 0 {
		return
	}

	for _, id := range expired {
		r.log.Debug().Str("player", id).Msg("removing abandoned player")
		r.state.removePlayer(id)
		r.chat.dropBucket(id)
	}

	if r.state.phase == PHASE_VOTING {
		r.maybeEndVoting()
	}
}
