package game

const POINTS_PER_VOTE = 100
const ROUND_WIN_BONUS = 200

type roundResult struct {
	deltas     map[string]int
	winners    map[string]bool // every player at maxVotes, ties included
	tally      map[string]int  // counted votes per votee
	counted    int             // total votes that passed eligibility
	topAnswers []string        // answers worth remembering in round history
}

// resolveRound turns the recorded votes into score deltas. Pure: it reads
// nothing but its arguments and mutates nothing.
//
// Only votes where both voter and votee are grace-eligible count. Every
// counted vote is worth POINTS_PER_VOTE to the votee; whoever sits at the
// max (when the max is positive) also takes the flat win bonus, and a tie
// means everybody tied takes it. topAnswers keeps the answers that drew at
// least max(2, ceil(activeCount/2)) votes.
func resolveRound(votes map[string]string, eligible map[string]bool, answers map[string]string, activeCount int) roundResult {
	res := roundResult{
		deltas:  make(map[string]int),
		winners: make(map[string]bool),
		tally:   make(map[string]int),
	}

	for voter, votee := range votes {
		if !eligible[voter] || !eligible[votee] {
			continue
		}
		res.tally[votee]++
		res.counted++
	}

	maxVotes := 0
	for _, n := range res.tally {
		if n > maxVotes {
			maxVotes = n
		}
	}

	for votee, n := range res.tally {
		res.deltas[votee] = n * POINTS_PER_VOTE
		if maxVotes > 0 && n == maxVotes {
			res.deltas[votee] += ROUND_WIN_BONUS
			res.winners[votee] = true
		}
	}

	threshold := (activeCount + 1) / 2
	if threshold < 2 {
		threshold = 2
	}
	for votee, n := range res.tally {
		if n >= threshold {
			if answer, ok := answers[votee]; ok && answer != "" {
				res.topAnswers = append(res.topAnswers, answer)
			}
		}
	}

	return res
}
