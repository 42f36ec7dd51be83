package game

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type joinPayload struct {
	Name     string `json:"name"`
	AdminKey string `json:"adminKey"`
}

type startPayload struct {
	Theme      string `json:"theme"`
	RoundLimit *int   `json:"roundLimit"` // null = endless
}

type answerPayload struct {
	Answer string `json:"answer"`
}

type votePayload struct {
	VotedFor *int `json:"votedFor"` // index into the anonymous answer order
}

type chatPayload struct {
	Text string `json:"text"`
}

type adminOverridePayload struct {
	ExactQuestion  *string `json:"exactQuestion"`
	PromptGuidance *string `json:"promptGuidance"`
}

// dispatch routes one inbound frame. Unknown types are ignored and parse
// failures are logged and dropped; nothing a client sends can take the room
// down or surface a protocol error.
func (r *room) dispatch(env clientEnvelope) {
	cs := r.sessions[env.from]
	if cs == nil {
		return
	}

	r.cleanupAbandoned(r.clock())

	switch env.msgType {
	case "join":
		var p joinPayload
		if r.parse(env.payload, &p) {
			r.handleJoin(env.from, cs, p)
		}
	case "start":
		var p startPayload
		if r.parse(env.payload, &p) {
			r.handleStart(cs, p)
		}
	case "answer":
		var p answerPayload
		if r.parse(env.payload, &p) {
			r.handleAnswer(cs, p.Answer)
		}
	case "vote":
		var p votePayload
		if r.parse(env.payload, &p) {
			r.handleVote(cs, p.VotedFor)
		}
	case "end-writing":
		if r.isHost(cs) && r.state.phase == PHASE_WRITING {
			r.endWriting()
		}
	case "end-voting":
		if r.isHost(cs) && r.state.phase == PHASE_VOTING {
			r.endVoting()
		}
	case "next-round":
		if r.isHost(cs) && r.state.phase == PHASE_REVEAL {
			r.startRound()
		}
	case "restart":
		if r.isHost(cs) && r.state.phase == PHASE_FINAL {
			r.handleRestart()
		}
	case "toggle-voyeur":
		r.handleToggleVoyeur(cs)
	case "chat":
		var p chatPayload
		if r.parse(env.payload, &p) {
			r.handleChat(cs, p.Text)
		}
	case "admin-set-override":
		var p adminOverridePayload
		if r.parse(env.payload, &p) {
			r.handleAdminOverride(env.from, cs, p)
		}
	default:
		r.log.Debug().Str("type", env.msgType).Msg("ignoring unknown message type")
	}
}

func (r *room) parse(data []byte, out any) bool {
	if err := json.Unmarshal(data, out); err != nil {
		r.log.Debug().Err(err).Msg("dropping malformed payload")
		return false
	}
	return true
}

func (r *room) isHost(cs *clientState) bool {
	return cs.playerID != "" && cs.playerID == r.state.hostID
}

func (r *room) playerFor(cs *clientState) *playerState {
	if cs.playerID == "" {
		return nil
	}
	return r.state.players[cs.playerID]
}

// --- connection lifecycle ---

func (r *room) handleAttach(c client) {
	r.cleanupAbandoned(r.clock())
	r.sessions[c] = &clientState{}

	r.sendConnected(c)
	if r.cfg.chatEnabled {
		r.sendChatHistory(c)
	}
	r.sendState(c, "")
}

func (r *room) handleDetach(c client) {
	cs := r.sessions[c]
	delete(r.sessions, c)
	if cs == nil || cs.playerID == "" {
		return
	}
	p := r.state.players[cs.playerID]
	if p == nil || !p.presence.connected {
		return
	}

	p.presence = disconnectedSince(r.clock())
	r.state.transferHostFrom(p.id)
	r.log.Info().Str("player", p.name).Msg("player disconnected")

	// A disconnect can be the thing that unblocks a stalled vote.
	if r.state.phase == PHASE_VOTING && r.maybeEndVoting() {
		return
	}
	r.broadcastState()
}

// How long a freshly-created room is safe from the empty-room reaper, so a
// client that just triggered creation has time to finish connecting.
const EMPTY_ROOM_LINGER = time.Minute

func (r *room) handleTick(now time.Time) {
	r.cleanupAbandoned(now)
	if len(r.sessions) == 0 && len(r.state.players) == 0 && now.Sub(r.createdAt) > EMPTY_ROOM_LINGER {
		r.parentLobby.RemoveRoom(r.id)
	}
}

// --- join / reconnect ---

func (r *room) handleJoin(c client, cs *clientState, payload joinPayload) {
	if cs.playerID != "" {
		return
	}

	name := sanitizeText(payload.Name, MAX_NAME_LEN)
	if name == "" {
		name = "player"
	}
	admin := checkAdminKey(payload.AdminKey, r.cfg.adminSecret)

	p := r.reconnectablePlayer(name)
	if p != nil {
		p.presence = connectedPresence()
		p.admin = admin // re-validated on every reconnect
		r.systemChat(p.name + " reconnected")
		r.log.Info().Str("player", p.name).Msg("player reconnected")
	} else {
		p = &playerState{
			id:       uuid.NewString(),
			name:     r.dedupeName(name),
			admin:    admin,
			presence: connectedPresence(),
		}
		r.state.addPlayer(p)
		r.systemChat(p.name + " joined the room")
		r.log.Info().Str("player", p.name).Msg("player joined")
	}

	cs.playerID = p.id
	cs.admin = admin
	r.state.claimHost(p.id)

	if admin {
		r.sendAdminState(c)
	}
	r.broadcastState()
}

// reconnectablePlayer matches a join name against a disconnected player
// still inside the grace window. cleanupAbandoned ran already, so any
// disconnected player still present is grace-eligible.
func (r *room) reconnectablePlayer(name string) *playerState {
	for _, id := range r.state.order {
		p := r.state.players[id]
		if p != nil && !p.presence.connected && strings.EqualFold(p.name, name) {
			return p
		}
	}
	return nil
}

// dedupeName keeps display names unique among connected players.
func (r *room) dedupeName(name string) string {
	taken := func(n string) bool {
		for _, p := range r.state.players {
			if p.presence.connected && strings.EqualFold(p.name, n) {
				return true
			}
		}
		return false
	}
	if !taken(name) {
		return name
	}
	for i := 2; ; i++ {
		suffix := strconv.Itoa(i)
		// The name cap counts runes, so truncate by runes.
		base := []rune(name)
		if len(base)+len(suffix) > MAX_NAME_LEN {
			base = base[:MAX_NAME_LEN-len(suffix)]
		}
		if candidate := string(base) + suffix; !taken(candidate) {
			return candidate
		}
	}
}

// --- game flow ---

func (r *room) handleStart(cs *clientState, payload startPayload) {
	if !r.isHost(cs) || r.state.phase != PHASE_LOBBY {
		return
	}
	if r.state.activeCount() < MIN_ACTIVE_PLAYERS || r.state.generating {
		return
	}

	limit := 0
	if payload.RoundLimit != nil {
		limit = *payload.RoundLimit
	}
	if !validRoundLimits[limit] {
		limit = 0
	}

	r.state.theme = sanitizeText(payload.Theme, MAX_THEME_LEN)
	r.state.roundLimit = limit
	r.state.roundHistory = nil
	r.state.generationID++
	r.state.phase = PHASE_PROMPT

	r.log.Info().Str("theme", r.state.theme).Int("roundLimit", limit).Msg("game starting")
	r.beginPromptFetch()
	r.broadcastState()
}

// startRound begins the next round: consume an admin override or the
// pre-fetched prompt, or enter writing in loading state, or fall back.
func (r *room) startRound() {
	r.cleanupAbandoned(r.clock())
	s := &r.state

	if s.roundLimit > 0 && s.round >= s.roundLimit {
		s.phase = PHASE_FINAL
		r.broadcastState()
		return
	}

	s.answers = make(map[string]string)
	s.votes = make(map[string]string)
	s.answerOrder = nil
	s.revealTally = nil
	s.round++

	switch {
	case s.exactQuestion != "":
		s.currentPrompt = s.exactQuestion
		s.promptSource = SOURCE_ADMIN
		s.exactQuestion = ""
		// The override supersedes whatever generation may be in flight.
		s.generationID++
		s.generating = false
		s.nextPrompt = ""
		s.promptLoading = false
	case s.nextPrompt != "":
		s.currentPrompt = s.nextPrompt
		s.promptSource = s.nextPromptSource
		s.nextPrompt = ""
		s.promptLoading = false
	case s.generating:
		s.currentPrompt = ""
		s.promptLoading = true
	default:
		s.currentPrompt = r.fallbackPrompt()
		s.promptSource = SOURCE_FALLBACK
	}

	s.phase = PHASE_WRITING
	r.broadcastState()
}

func (r *room) handleAnswer(cs *clientState, text string) {
	p := r.playerFor(cs)
	if p == nil || !r.state.isActive(p) {
		return
	}
	if r.state.phase != PHASE_WRITING || r.state.promptLoading {
		return
	}
	if _, answered := r.state.answers[p.id]; answered {
		return
	}
	text = sanitizeText(text, MAX_ANSWER_LEN)
	if text == "" {
		return
	}

	r.state.answers[p.id] = text
	if !r.maybeEndWriting() {
		r.broadcastState()
	}
}

func (r *room) maybeEndWriting() bool {
	if r.state.phase != PHASE_WRITING {
		return false
	}
	active := r.state.activeIDs()
	if len(active) < MIN_ACTIVE_PLAYERS {
		return false
	}
	for _, id := range active {
		if _, ok := r.state.answers[id]; !ok {
			return false
		}
	}
	r.endWriting()
	return true
}

// endWriting locks in the anonymous answer order and opens voting, unless
// nobody submitted or nobody is left with a valid (non-self) option, in
// which case the round is finalized without a vote to avoid a stall.
func (r *room) endWriting() {
	now := r.clock()
	eligible := r.state.graceEligibleSet(now)

	var answerers []string
	for _, id := range r.state.order {
		if _, ok := r.state.answers[id]; ok && eligible[id] {
			answerers = append(answerers, id)
		}
	}
	r.rng.Shuffle(len(answerers), func(i, j int) {
		answerers[i], answerers[j] = answerers[j], answerers[i]
	})
	r.state.answerOrder = answerers

	if len(answerers) == 0 || !r.someoneCanVote() {
		r.log.Info().Msg("no votable answers, finalizing round without voting")
		r.finalizeRoundWithoutVoting()
		return
	}

	r.state.phase = PHASE_VOTING
	r.preGenerateNextPrompt()
	r.broadcastState()
}

func (r *room) someoneCanVote() bool {
	for _, id := range r.state.activeIDs() {
		for _, target := range r.state.answerOrder {
			if target != id {
				return true
			}
		}
	}
	return false
}

func (r *room) handleVote(cs *clientState, votedFor *int) {
	p := r.playerFor(cs)
	if p == nil || !r.state.isActive(p) || r.state.phase != PHASE_VOTING {
		return
	}
	if _, voted := r.state.votes[p.id]; voted {
		return
	}
	if votedFor == nil || *votedFor < 0 || *votedFor >= len(r.state.answerOrder) {
		return
	}
	target := r.state.answerOrder[*votedFor]
	if target == p.id {
		return
	}

	r.state.votes[p.id] = target
	if !r.maybeEndVoting() {
		r.broadcastState()
	}
}

// maybeEndVoting ends the phase once every active player with a votable
// (non-self) option has voted. When nobody has a votable option left, the
// condition holds vacuously, which is exactly the stall resolution.
func (r *room) maybeEndVoting() bool {
	if r.state.phase != PHASE_VOTING {
		return false
	}
	for _, id := range r.state.activeIDs() {
		if !r.hasVotableOption(id) {
			continue
		}
		if _, voted := r.state.votes[id]; !voted {
			return false
		}
	}
	r.endVoting()
	return true
}

func (r *room) hasVotableOption(playerID string) bool {
	for _, target := range r.state.answerOrder {
		if target != playerID {
			return true
		}
	}
	return false
}

func (r *room) endVoting() {
	now := r.clock()
	eligible := r.state.graceEligibleSet(now)
	res := resolveRound(r.state.votes, eligible, r.state.answers, r.state.activeCount())

	for id, delta := range res.deltas {
		if p := r.state.players[id]; p != nil {
			p.score += delta
		}
	}
	for id, p := range r.state.players {
		if res.winners[id] {
			p.winStreak++
		} else {
			p.winStreak = 0
		}
	}

	r.state.revealTally = res.tally
	r.appendRoundHistory(roundRecord{prompt: r.state.currentPrompt, topAnswers: res.topAnswers})
	r.state.phase = PHASE_REVEAL
	r.preGenerateNextPrompt()
	r.broadcastState()
}

// finalizeRoundWithoutVoting resolves a round nobody could vote on: no
// points, every active streak resets, and the prompt still enters history
// so the repetition guard sees it.
func (r *room) finalizeRoundWithoutVoting() {
	for _, id := range r.state.activeIDs() {
		r.state.players[id].winStreak = 0
	}
	r.state.revealTally = make(map[string]int)
	r.appendRoundHistory(roundRecord{prompt: r.state.currentPrompt})
	r.state.phase = PHASE_REVEAL
	r.preGenerateNextPrompt()
	r.broadcastState()
}

func (r *room) appendRoundHistory(rec roundRecord) {
	r.state.roundHistory = append(r.state.roundHistory, rec)
	if len(r.state.roundHistory) > ROUND_HISTORY_LEN {
		r.state.roundHistory = r.state.roundHistory[len(r.state.roundHistory)-ROUND_HISTORY_LEN:]
	}
}

func (r *room) handleRestart() {
	s := &r.state
	s.round = 0
	for _, p := range s.players {
		p.score = 0
		p.winStreak = 0
	}
	s.roundHistory = nil
	s.answers = make(map[string]string)
	s.votes = make(map[string]string)
	s.answerOrder = nil
	s.revealTally = nil
	s.currentPrompt = ""
	s.promptSource = ""
	s.nextPrompt = ""
	s.nextPromptSource = ""
	s.generating = false
	s.promptLoading = false
	s.generationID++
	s.phase = PHASE_LOBBY

	r.log.Info().Msg("game restarted")
	r.broadcastState()
}

// --- roster toggles ---

func (r *room) handleToggleVoyeur(cs *clientState) {
	p := r.playerFor(cs)
	if p == nil {
		return
	}

	if !p.voyeur {
		// Mid-game, refuse to let the last active player bow out.
		if r.state.phase != PHASE_LOBBY && r.state.phase != PHASE_FINAL {
			active := r.state.activeIDs()
			if len(active) == 1 && active[0] == p.id {
				return
			}
		}

		p.voyeur = true
		r.state.purgeRoundData(p.id)

		if r.state.hostID == p.id {
			r.state.transferHostFrom(p.id)
			if r.state.hostID == "" {
				// No active replacement; the voyeur keeps the seat.
				r.state.hostID = p.id
			}
		}

		switch r.state.phase {
		case PHASE_WRITING:
			if r.maybeEndWriting() {
				return
			}
		case PHASE_VOTING:
			if r.maybeEndVoting() {
				return
			}
		}
	} else {
		p.voyeur = false
		r.state.claimHost(p.id)
	}

	r.broadcastState()
}

// --- chat ---

func (r *room) handleChat(cs *clientState, text string) {
	if !r.cfg.chatEnabled {
		return
	}
	p := r.playerFor(cs)
	if p == nil {
		return
	}

	now := r.clock()
	if !r.chat.allow(p.id, now) {
		return
	}
	text = sanitizeText(text, MAX_CHAT_LEN)
	if text == "" {
		return
	}

	msg := chatEntry{
		id:         uuid.NewString(),
		playerID:   p.id,
		playerName: p.name,
		text:       text,
		sentAt:     now,
	}
	r.chat.append(msg)
	r.broadcastChatMessage(msg)
}

func (r *room) systemChat(text string) {
	if !r.cfg.chatEnabled {
		return
	}
	msg := chatEntry{
		id:     uuid.NewString(),
		text:   text,
		sentAt: r.clock(),
		system: true,
	}
	r.chat.append(msg)
	r.broadcastChatMessage(msg)
}

// --- admin ---

func (r *room) handleAdminOverride(c client, cs *clientState, payload adminOverridePayload) {
	if !cs.admin {
		return
	}
	if payload.ExactQuestion != nil {
		r.state.exactQuestion = sanitizeText(*payload.ExactQuestion, MAX_EXACT_QUESTION_LEN)
	}
	if payload.PromptGuidance != nil {
		r.state.promptGuidance = sanitizeText(*payload.PromptGuidance, MAX_GUIDANCE_LEN)
	}
	r.sendAdminState(c)
}
