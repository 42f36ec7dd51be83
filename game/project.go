package game

import "encoding/json"

// Outbound wire shapes. One projector builds the phase- and
// recipient-specific view of the state; nothing else decides what leaves
// the room.

type playerView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Score       int    `json:"score"`
	WinStreak   int    `json:"winStreak"`
	IsVoyeur    bool   `json:"isVoyeur"`
	Connected   bool   `json:"connected"`
	HasAnswered bool   `json:"hasAnswered,omitempty"`
	HasVoted    bool   `json:"hasVoted,omitempty"`
}

type answerView struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	// Voting only, per recipient: marks the recipient's own answer.
	Mine bool `json:"mine,omitempty"`
	// Reveal only: identity and counted votes.
	PlayerID string `json:"playerId,omitempty"`
	Votes    int    `json:"votes,omitempty"`
}

type stateView struct {
	Phase           string       `json:"phase"`
	Round           int          `json:"round"`
	RoundLimit      int          `json:"roundLimit"`
	Theme           string       `json:"theme,omitempty"`
	HostID          string       `json:"hostId,omitempty"`
	Prompt          string       `json:"prompt,omitempty"`
	PromptSource    string       `json:"promptSource,omitempty"`
	IsPromptLoading bool         `json:"isPromptLoading,omitempty"`
	IsGenerating    bool         `json:"isGenerating,omitempty"`
	Players         []playerView `json:"players"`
	Answers         []answerView `json:"answers,omitempty"`
	YouID           string       `json:"you,omitempty"`
}

type chatView struct {
	ID         string `json:"id"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
	Type       string `json:"type"`
}

type adminView struct {
	ExactQuestion  string `json:"exactQuestion"`
	PromptGuidance string `json:"promptGuidance"`
}

type serverMessage struct {
	Type     string     `json:"type"`
	RoomID   string     `json:"roomId,omitempty"`
	State    *stateView `json:"state,omitempty"`
	Message  *chatView  `json:"message,omitempty"`
	Messages []chatView `json:"messages,omitempty"`
	Admin    *adminView `json:"admin,omitempty"`
}

// projectState derives what recipientID may see right now. Pure: no
// side effects, no clock, everything comes from the aggregate.
//
// Answers are anonymous during voting (index order only, own answer
// flagged, no counts) and revealed with ids and counted votes afterward.
// Other phases carry no answers at all. Admin overrides never appear here.
func projectState(s *gameState, recipientID string) stateView {
	view := stateView{
		Phase:           s.phase.String(),
		Round:           s.round,
		RoundLimit:      s.roundLimit,
		Theme:           s.theme,
		HostID:          s.hostID,
		IsPromptLoading: s.promptLoading,
		IsGenerating:    s.generating,
		YouID:           recipientID,
	}

	if s.phase == PHASE_WRITING || s.phase == PHASE_VOTING || s.phase == PHASE_REVEAL {
		view.Prompt = s.currentPrompt
		view.PromptSource = string(s.promptSource)
	}

	for _, id := range s.order {
		p := s.players[id]
		if p == nil {
			continue
		}
		pv := playerView{
			ID:        p.id,
			Name:      p.name,
			Score:     p.score,
			WinStreak: p.winStreak,
			IsVoyeur:  p.voyeur,
			Connected: p.presence.connected,
		}
		if s.phase == PHASE_WRITING {
			_, pv.HasAnswered = s.answers[id]
		}
		if s.phase == PHASE_VOTING {
			_, pv.HasVoted = s.votes[id]
		}
		view.Players = append(view.Players, pv)
	}

	switch s.phase {
	case PHASE_VOTING:
		for i, id := range s.answerOrder {
			view.Answers = append(view.Answers, answerView{
				Index: i,
				Text:  s.answers[id],
				Mine:  id == recipientID,
			})
		}
	case PHASE_REVEAL:
		for i, id := range s.answerOrder {
			view.Answers = append(view.Answers, answerView{
				Index:    i,
				Text:     s.answers[id],
				PlayerID: id,
				Votes:    s.revealTally[id],
			})
		}
	}

	return view
}

func projectChat(m chatEntry) chatView {
	kind := "chat"
	if m.system {
		kind = "system"
	}
	return chatView{
		ID:         m.id,
		PlayerID:   m.playerID,
		PlayerName: m.playerName,
		Text:       m.text,
		Timestamp:  m.sentAt.UnixMilli(),
		Type:       kind,
	}
}

// --- senders (room actor only) ---

func (r *room) send(c client, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal outbound message")
		return
	}
	c.Send(data)
}

func (r *room) sendConnected(c client) {
	r.send(c, serverMessage{Type: "connected", RoomID: r.id})
}

// broadcastState sends each connection its own projection. The views only
// differ during voting, but projecting per recipient keeps the send path
// uniform.
func (r *room) broadcastState() {
	for c, cs := range r.sessions {
		view := projectState(&r.state, cs.playerID)
		r.send(c, serverMessage{Type: "state", State: &view})
	}
}

func (r *room) sendState(c client, recipientID string) {
	view := projectState(&r.state, recipientID)
	r.send(c, serverMessage{Type: "state", State: &view})
}

func (r *room) broadcastChatMessage(m chatEntry) {
	view := projectChat(m)
	for c := range r.sessions {
		r.send(c, serverMessage{Type: "chat_message", Message: &view})
	}
}

func (r *room) sendChatHistory(c client) {
	views := make([]chatView, 0, len(r.chat.messages))
	for _, m := range r.chat.messages {
		views = append(views, projectChat(m))
	}
	r.send(c, serverMessage{Type: "chat_history", Messages: views})
}

// sendAdminState goes only to a connection that just proved admin status.
func (r *room) sendAdminState(c client) {
	r.send(c, serverMessage{Type: "admin-state", Admin: &adminView{
		ExactQuestion:  r.state.exactQuestion,
		PromptGuidance: r.state.promptGuidance,
	}})
}
