package archive

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Turn is a user-led segment of a transcript: a user message plus the
// assistant/tool/system entries that follow it until the next user message.
type Turn struct {
	TurnIndex  int `json:"turn_index"`
	StartEntry int `json:"start_entry"`
	EndEntry   int `json:"end_entry"` // inclusive

	StartTime *float64 `json:"start_time,omitempty"`

	UserText      string `json:"user_text,omitempty"`
	AssistantText string `json:"assistant_text,omitempty"`
}

// Chunk is a contiguous run of turns from one transcript.
type Chunk struct {
	ConversationID string   `json:"conversation_id"`
	Title          string   `json:"title,omitempty"`
	ThreadStart    *float64 `json:"thread_start_time,omitempty"`
	ChunkNumber    int      `json:"chunk_number"`
	TurnStart      int      `json:"turn_start"`
	TurnEnd        int      `json:"turn_end"` // exclusive
	Entries        []Entry  `json:"entries"`
}

// BuildTurns groups transcript entries into user-led turns. A transcript without any
// user message is a single turn.
func BuildTurns(t Transcript) []Turn {
	entries := t.Entries
	if len(entries) == 0 {
		return nil
	}

	userIdxs := make([]int, 0, 64)
	for i := range entries {
		if entries[i].Role == RoleUser {
			userIdxs = append(userIdxs, i)
		}
	}
	if len(userIdxs) == 0 {
		return []Turn{turnFromRange(0, 0, len(entries)-1, entries)}
	}

	turns := make([]Turn, 0, len(userIdxs)+1)
	// Entries before the first user message (system prompts) form their own turn.
	if userIdxs[0] > 0 {
		turns = append(turns, turnFromRange(0, 0, userIdxs[0]-1, entries))
	}
	for ti, start := range userIdxs {
		end := len(entries) - 1
		if ti+1 < len(userIdxs) {
			end = userIdxs[ti+1] - 1
		}
		turns = append(turns, turnFromRange(len(turns), start, end, entries))
	}
	return turns
}

func turnFromRange(turnIndex, start, end int, entries []Entry) Turn {
	var startTime *float64
	if start >= 0 && start < len(entries) {
		startTime = entries[start].CreateTime
	}

	var userParts, otherParts []string
	for i := start; i <= end && i < len(entries); i++ {
		s := strings.TrimSpace(entries[i].Text)
		if s == "" {
			continue
		}
		if entries[i].Role == RoleUser {
			userParts = append(userParts, s)
		} else {
			otherParts = append(otherParts, s)
		}
	}

	return Turn{
		TurnIndex:     turnIndex,
		StartEntry:    start,
		EndEntry:      end,
		StartTime:     startTime,
		UserText:      strings.Join(userParts, "\n"),
		AssistantText: strings.Join(otherParts, "\n"),
	}
}

// ChunkTranscript splits a transcript into chunks of targetTurns turns each.
// A non-positive target yields a single chunk.
func ChunkTranscript(t Transcript, targetTurns int) ([]Chunk, error) {
	turns := BuildTurns(t)
	if len(turns) == 0 {
		return nil, nil
	}
	chunks, err := ApplyTurnBreakpoints(t, turns, fallbackBreakpoints(len(turns), targetTurns))
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].ChunkNumber = i + 1
		chunks[i].ThreadStart = threadStartTime(t)
	}
	return chunks, nil
}

func threadStartTime(t Transcript) *float64 {
	if t.CreateTime != nil {
		return t.CreateTime
	}
	if len(t.Entries) > 0 && t.Entries[0].CreateTime != nil {
		return t.Entries[0].CreateTime
	}
	return nil
}

// ApplyTurnBreakpoints converts turn breakpoints into chunks. Breakpoints are turn
// indices where a new chunk starts; out-of-range and duplicate values are ignored.
func ApplyTurnBreakpoints(t Transcript, turns []Turn, breakpoints []int) ([]Chunk, error) {
	totalTurns := len(turns)
	if totalTurns == 0 {
		return nil, errors.New("ApplyTurnBreakpoints: no turns")
	}

	bps := normalizeBreakpoints(breakpoints, totalTurns)
	boundaries := make([]int, 0, len(bps)+2)
	boundaries = append(boundaries, 0)
	boundaries = append(boundaries, bps...)
	boundaries = append(boundaries, totalTurns)

	var chunks []Chunk
	for i := 0; i+1 < len(boundaries); i++ {
		ts, te := boundaries[i], boundaries[i+1]
		if ts >= te {
			continue
		}
		ms := turns[ts].StartEntry
		me := turns[te-1].EndEntry
		if ms < 0 || me < ms || me >= len(t.Entries) {
			return nil, errors.Errorf("ApplyTurnBreakpoints: invalid entry range for turns [%d,%d): %d..%d", ts, te, ms, me)
		}
		chunks = append(chunks, Chunk{
			ConversationID: t.ConversationID,
			Title:          t.Title,
			TurnStart:      ts,
			TurnEnd:        te,
			Entries:        append([]Entry(nil), t.Entries[ms:me+1]...),
		})
	}
	if len(chunks) == 0 {
		return nil, errors.New("ApplyTurnBreakpoints: produced no chunks")
	}
	return chunks, nil
}

func normalizeBreakpoints(breakpoints []int, totalTurns int) []int {
	if totalTurns <= 1 || len(breakpoints) == 0 {
		return nil
	}
	bps := append([]int(nil), breakpoints...)
	sort.Ints(bps)

	out := bps[:0]
	prev := -1
	for _, b := range bps {
		if b <= 0 || b >= totalTurns || b == prev {
			continue
		}
		out = append(out, b)
		prev = b
	}
	return out
}

func fallbackBreakpoints(totalTurns int, targetTurns int) []int {
	if targetTurns <= 0 || totalTurns <= targetTurns {
		return nil
	}
	var bps []int
	for i := targetTurns; i < totalTurns; i += targetTurns {
		bps = append(bps, i)
	}
	return bps
}
