package archive

import (
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// SetOptions controls how a batch of records is turned into a ConversationSet.
type SetOptions struct {
	Build BuildOptions

	// Workers bounds parallel construction (defaults to GOMAXPROCS).
	Workers int

	// Logger receives per-conversation warnings and failures (defaults to log.Logger).
	Logger *zerolog.Logger
}

// ConversationSet is an ordered collection of conversations with unique ids.
type ConversationSet struct {
	conversations []*Conversation
	byID          map[string]*Conversation
	failures      []Failure
}

// DateRange is an inclusive time range. A zero bound is unbounded.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Unbounded reports whether neither bound is set.
func (r DateRange) Unbounded() bool { return r.From.IsZero() && r.To.IsZero() }

// Contains reports whether t lies within the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Intersect returns the range covered by both r and other.
func (r DateRange) Intersect(other DateRange) DateRange {
	out := r
	if out.From.IsZero() || (!other.From.IsZero() && other.From.After(out.From)) {
		out.From = other.From
	}
	if out.To.IsZero() || (!other.To.IsZero() && other.To.Before(out.To)) {
		out.To = other.To
	}
	return out
}

// overlaps reports whether the inclusive span [start, end] shares a point with r.
func (r DateRange) overlaps(start, end time.Time) bool {
	if !r.To.IsZero() && start.After(r.To) {
		return false
	}
	if !r.From.IsZero() && end.Before(r.From) {
		return false
	}
	return true
}

type buildResult struct {
	conv *Conversation
	err  error
}

// FromRecords builds one Conversation per record. A record that fails to build is
// reported in Failures and the rest of the batch proceeds. Conversations keep the
// input order no matter how construction was scheduled.
func FromRecords(records []Record, opts SetOptions) *ConversationSet {
	return buildSet(records, nil, nil, opts)
}

// FromBatch builds a set from a decoded export. Failure indices refer to positions in
// the export array, and decode failures are reported alongside build failures.
func FromBatch(batch Batch, opts SetOptions) *ConversationSet {
	return buildSet(batch.Records, batch.Positions, batch.Failures, opts)
}

func buildSet(records []Record, positions []int, prior []Failure, opts SetOptions) *ConversationSet {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]buildResult, len(records))
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range records {
		i := i
		g.Go(func() error {
			conv, err := NewConversation(records[i], opts.Build)
			results[i] = buildResult{conv: conv, err: err}
			return nil
		})
	}
	_ = g.Wait()

	set := &ConversationSet{
		conversations: make([]*Conversation, 0, len(records)),
		byID:          make(map[string]*Conversation, len(records)),
		failures:      append([]Failure(nil), prior...),
	}
	for i, res := range results {
		pos := i
		if positions != nil {
			pos = positions[i]
		}
		id := records[i].Identity()
		if res.err == nil {
			if _, dup := set.byID[res.conv.ID()]; dup {
				res.err = &TreeError{Kind: ErrDuplicateConversation, ConversationID: id}
			}
		}
		if res.err != nil {
			set.failures = append(set.failures, Failure{Index: pos, ConversationID: id, Title: records[i].Title, Err: res.err})
			continue
		}
		for _, w := range res.conv.Warnings() {
			logger.Warn().
				Str("conversation_id", res.conv.ID()).
				Err(w).
				Msg("conversation warning")
		}
		set.add(res.conv)
	}

	sort.SliceStable(set.failures, func(i, j int) bool { return set.failures[i].Index < set.failures[j].Index })
	for _, f := range set.failures {
		logger.Warn().
			Int("index", f.Index).
			Str("conversation_id", f.ConversationID).
			Str("title", f.Title).
			Err(f.Err).
			Msg("skipping conversation")
	}
	return set
}

// NewConversationSet wraps already-built conversations. Later duplicates of an id are
// dropped.
func NewConversationSet(conversations ...*Conversation) *ConversationSet {
	set := &ConversationSet{
		conversations: make([]*Conversation, 0, len(conversations)),
		byID:          make(map[string]*Conversation, len(conversations)),
	}
	for _, c := range conversations {
		if c == nil {
			continue
		}
		if _, dup := set.byID[c.ID()]; dup {
			continue
		}
		set.add(c)
	}
	return set
}

func (s *ConversationSet) add(c *Conversation) {
	s.conversations = append(s.conversations, c)
	s.byID[c.ID()] = c
}

// All returns the conversations in input order.
func (s *ConversationSet) All() []*Conversation {
	return append([]*Conversation(nil), s.conversations...)
}

func (s *ConversationSet) Len() int { return len(s.conversations) }

// Failures returns the records that could not be built, in input order.
func (s *ConversationSet) Failures() []Failure {
	return append([]Failure(nil), s.failures...)
}

// FindByID returns the conversation with the given id.
func (s *ConversationSet) FindByID(id string) (*Conversation, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// FindByTitle returns conversations whose title contains needle, ignoring case.
func (s *ConversationSet) FindByTitle(needle string) []*Conversation {
	needle = strings.ToLower(strings.TrimSpace(needle))
	var out []*Conversation
	for _, c := range s.conversations {
		if strings.Contains(strings.ToLower(c.Title()), needle) {
			out = append(out, c)
		}
	}
	return out
}

// FilterByDate returns a new set with the conversations active within r: those whose
// span from CreatedAt to UpdatedAt touches the range, which includes every
// conversation created or updated inside it. Conversations without any timestamp are
// kept only when the range is unbounded. Failures are not carried over.
func (s *ConversationSet) FilterByDate(r DateRange) *ConversationSet {
	out := &ConversationSet{
		byID: make(map[string]*Conversation),
	}
	for _, c := range s.conversations {
		start, end := c.CreatedAt(), c.UpdatedAt()
		if start.IsZero() {
			start = end
		}
		if start.IsZero() {
			if r.Unbounded() {
				out.add(c)
			}
			continue
		}
		if end.Before(start) {
			start, end = end, start
		}
		if r.overlaps(start, end) {
			out.add(c)
		}
	}
	return out
}
