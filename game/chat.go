package game

import "time"

const CHAT_RATE_LIMIT = 3 // messages per rolling window
const CHAT_RATE_WINDOW = time.Second * 5
const CHAT_SOFT_CAP = 200  // trim to CHAT_SOFT_KEEP, but only once a summary exists
const CHAT_SOFT_KEEP = 100 //
const CHAT_HARD_CAP = 500  // trim to CHAT_HARD_KEEP unconditionally, summary is lost
const CHAT_HARD_KEEP = 250 //
const SUMMARY_MIN_NEW_MESSAGES = 5

// chatLog owns the room's chat buffer, the per-player rate buckets, and the
// summarization bookkeeping. It is part of the room aggregate: only the room
// actor touches it.
type chatLog struct {
	messages []chatEntry

	// summary is the cached thematic digest fed into prompt generation.
	// lastSummarized is the id of the newest message covered by it.
	summary        string
	lastSummarized string
	summarizeGen   uint64 // bumped by hard prunes to invalidate in-flight summaries
	summarizing    bool   // single summarization in flight per room

	buckets map[string][]time.Time
}

func newChatLog() chatLog {
	return chatLog{buckets: make(map[string][]time.Time)}
}

// allow applies the per-player sliding window. Over-limit messages are
// dropped silently, so a false return carries no error to surface.
func (c *chatLog) allow(playerID string, now time.Time) bool {
	cutoff := now.Add(-CHAT_RATE_WINDOW)
	kept := c.buckets[playerID][:0]
	for _, t := range c.buckets[playerID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= CHAT_RATE_LIMIT {
		c.buckets[playerID] = kept
		return false
	}
	c.buckets[playerID] = append(kept, now)
	return true
}

func (c *chatLog) dropBucket(playerID string) {
	delete(c.buckets, playerID)
}

// append stores a message and applies the two prune caps. The soft cap only
// fires once a summary exists, so early context is never discarded before it
// has been summarized. The hard cap fires regardless and invalidates the
// summary, because the summarization watermark may now point at a pruned
// message.
func (c *chatLog) append(msg chatEntry) {
	c.messages = append(c.messages, msg)

	if len(c.messages) > CHAT_HARD_CAP {
		c.messages = trimTail(c.messages, CHAT_HARD_KEEP)
		c.summary = ""
		c.lastSummarized = ""
		c.summarizeGen++
		return
	}

	if len(c.messages) > CHAT_SOFT_CAP && c.summary != "" {
		c.messages = trimTail(c.messages, CHAT_SOFT_KEEP)
	}
}

func trimTail(msgs []chatEntry, keep int) []chatEntry {
	trimmed := make([]chatEntry, keep)
	copy(trimmed, msgs[len(msgs)-keep:])
	return trimmed
}

// pendingSinceWatermark counts chat-type messages newer than the summarized
// watermark. System messages never count toward the summarization threshold.
func (c *chatLog) pendingSinceWatermark() int {
	count := 0
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].id == c.lastSummarized {
			break
		}
		if !c.messages[i].system {
			count++
		}
	}
	return count
}

// newestID returns the watermark candidate: the id of the latest message.
func (c *chatLog) newestID() string {
	if len(c.messages) == 0 {
		return ""
	}
	return c.messages[len(c.messages)-1].id
}

// recentChatLines renders up to max chat-type messages as "name: text"
// lines for the summarization request. Text here was sanitized on entry.
func (c *chatLog) recentChatLines(max int) []string {
	var lines []string
	for i := len(c.messages) - 1; i >= 0 && len(lines) < max; i-- {
		m := c.messages[i]
		if m.system {
			continue
		}
		lines = append(lines, m.playerName+": "+m.text)
	}
	// restore chronological order
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines
}
