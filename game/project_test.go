package game

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func projectorState(t *testing.T) *gameState {
	t.Helper()
	s := newGameState()
	s.addPlayer(&playerState{id: "ana", name: "Ana", score: 300, winStreak: 1, presence: connectedPresence()})
	s.addPlayer(&playerState{id: "bob", name: "Bob", presence: connectedPresence()})
	s.addPlayer(&playerState{id: "v", name: "Vera", voyeur: true, presence: connectedPresence()})
	s.hostID = "ana"
	s.round = 2
	s.theme = "office party"
	s.currentPrompt = "What is Ana hiding?"
	s.promptSource = SOURCE_AI
	s.answers = map[string]string{"ana": "a pigeon", "bob": "tax fraud"}
	s.answerOrder = []string{"bob", "ana"}
	return &s
}

func TestProjectStateVotingIsAnonymous(t *testing.T) {
	s := projectorState(t)
	s.phase = PHASE_VOTING
	s.votes = map[string]string{"ana": "bob"}

	view := projectState(s, "ana")

	want := []answerView{
		{Index: 0, Text: "tax fraud"},
		{Index: 1, Text: "a pigeon", Mine: true},
	}
	if diff := cmp.Diff(want, view.Answers); diff != "" {
		t.Errorf("voting answers mismatch (-want +got):\n%s", diff)
	}

	// Identity and vote counts never leak mid-vote; progress flags do.
	assert.Equal(t, "voting", view.Phase)
	assert.Equal(t, "ana", view.YouID)
	assert.True(t, view.Players[0].HasVoted)
	assert.False(t, view.Players[1].HasVoted)

	// Another recipient sees the same order with a different Mine flag.
	other := projectState(s, "bob")
	assert.True(t, other.Answers[0].Mine)
	assert.False(t, other.Answers[1].Mine)
}

func TestProjectStateRevealShowsIdentityAndVotes(t *testing.T) {
	s := projectorState(t)
	s.phase = PHASE_REVEAL
	s.revealTally = map[string]int{"bob": 2}

	view := projectState(s, "ana")

	want := []answerView{
		{Index: 0, Text: "tax fraud", PlayerID: "bob", Votes: 2},
		{Index: 1, Text: "a pigeon", PlayerID: "ana"},
	}
	if diff := cmp.Diff(want, view.Answers); diff != "" {
		t.Errorf("reveal answers mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectStatePromptOnlyDuringPlayPhases(t *testing.T) {
	s := projectorState(t)

	for _, phase := range []RoomPhase{PHASE_LOBBY, PHASE_PROMPT, PHASE_FINAL} {
		s.phase = phase
		view := projectState(s, "ana")
		assert.Empty(t, view.Prompt, "phase %s", phase)
		assert.Empty(t, view.Answers, "phase %s", phase)
	}

	s.phase = PHASE_WRITING
	view := projectState(s, "ana")
	assert.Equal(t, "What is Ana hiding?", view.Prompt)
	assert.Equal(t, "ai", view.PromptSource)
	assert.True(t, view.Players[0].HasAnswered)
	// During writing nobody sees any answer text, not even their own.
	assert.Empty(t, view.Answers)
}

func TestProjectStatePlayersFollowJoinOrder(t *testing.T) {
	s := projectorState(t)
	s.phase = PHASE_LOBBY
	s.players["bob"].presence = disconnectedSince(s.players["bob"].presence.disconnectedAt)

	view := projectState(s, "")

	want := []playerView{
		{ID: "ana", Name: "Ana", Score: 300, WinStreak: 1, Connected: true},
		{ID: "bob", Name: "Bob"},
		{ID: "v", Name: "Vera", IsVoyeur: true, Connected: true},
	}
	if diff := cmp.Diff(want, view.Players); diff != "" {
		t.Errorf("players mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectChat(t *testing.T) {
	m := chatEntry{id: "m1", playerID: "ana", playerName: "Ana", text: "hello"}
	got := projectChat(m)
	assert.Equal(t, "chat", got.Type)
	assert.Equal(t, "Ana", got.PlayerName)

	sys := chatEntry{id: "m2", text: "Ana joined the room", system: true}
	assert.Equal(t, "system", projectChat(sys).Type)
}

// Admin overrides must never ride along on the regular state view.
func TestProjectStateExcludesAdminOverrides(t *testing.T) {
	s := projectorState(t)
	s.phase = PHASE_VOTING
	s.exactQuestion = "secret override"
	s.promptGuidance = "secret guidance"

	view := projectState(s, "ana")
	assert.NotContains(t, view.Prompt, "secret")
	assert.Equal(t, "What is Ana hiding?", view.Prompt)
}
