package archive

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// BuildOptions tunes how a Conversation is resolved from its record.
type BuildOptions struct {
	// FallbackToLatestLeaf picks the newest message-bearing leaf as the tip when the
	// record has no current_node. When false, a missing current_node is ErrDanglingTip.
	FallbackToLatestLeaf bool
}

// Conversation owns one exported conversation: an arena of nodes keyed by id and the
// resolved path from the root to the current node.
type Conversation struct {
	id          string
	title       string
	createTime  *float64
	updateTime  *float64
	currentNode string

	nodes    map[string]*Node
	path     []string
	messages []*Message
	model    string
	warnings []error
}

// NewConversation validates the mapping and resolves the authoritative branch.
// Structural problems are returned as *TreeError with kind ErrInvalidTree,
// ErrDanglingTip or ErrCyclicTree.
func NewConversation(rec Record, opts BuildOptions) (*Conversation, error) {
	c := &Conversation{
		id:          rec.Identity(),
		title:       rec.Title,
		createTime:  rec.CreateTime,
		updateTime:  rec.UpdateTime,
		currentNode: rec.CurrentNode,
		nodes:       make(map[string]*Node, len(rec.Mapping)),
	}

	keys := make([]string, 0, len(rec.Mapping))
	for k := range rec.Mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		nr := rec.Mapping[key]
		if nr.ID != "" && nr.ID != key {
			return nil, treeError(ErrInvalidTree, c.id, key, "mapping key does not match node id %q", nr.ID)
		}
		c.nodes[key] = NewNode(key, nr)
	}
	if err := c.validateLinks(keys); err != nil {
		return nil, err
	}

	tip := c.currentNode
	if tip == "" && opts.FallbackToLatestLeaf {
		tip = latestLeaf(c.nodes, keys)
	}
	if tip == "" {
		return nil, treeError(ErrDanglingTip, c.id, "", "current_node is empty")
	}
	if _, ok := c.nodes[tip]; !ok {
		return nil, treeError(ErrDanglingTip, c.id, tip, "not present in mapping")
	}
	c.currentNode = tip

	path, err := walkAncestry(c.id, c.nodes, tip)
	if err != nil {
		return nil, err
	}
	c.path = path
	c.resolveMessages()
	return c, nil
}

func (c *Conversation) validateLinks(keys []string) error {
	for _, key := range keys {
		n := c.nodes[key]
		if p, ok := n.ParentID(); ok {
			if _, exists := c.nodes[p]; !exists {
				return treeError(ErrInvalidTree, c.id, key, "parent %q not present in mapping", p)
			}
		}
		for _, child := range n.children {
			cn, ok := c.nodes[child]
			if !ok {
				return treeError(ErrInvalidTree, c.id, key, "child %q not present in mapping", child)
			}
			if p, _ := cn.ParentID(); p != key {
				return treeError(ErrInvalidTree, c.id, key, "child %q names parent %q", child, p)
			}
		}
	}
	return nil
}

// walkAncestry follows parent ids from tip to the root and returns the ids in
// root-to-tip order.
func walkAncestry(conversationID string, nodes map[string]*Node, tip string) ([]string, error) {
	visited := make(map[string]struct{}, len(nodes))
	var reversed []string

	cur := tip
	for {
		n, ok := nodes[cur]
		if !ok {
			return nil, treeError(ErrInvalidTree, conversationID, cur, "ancestor not present in mapping")
		}
		if _, seen := visited[cur]; seen {
			return nil, treeError(ErrCyclicTree, conversationID, cur, "revisited while walking from %q", tip)
		}
		visited[cur] = struct{}{}
		reversed = append(reversed, cur)

		p, ok := n.ParentID()
		if !ok {
			break
		}
		cur = p
	}

	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	return reversed, nil
}

func latestLeaf(nodes map[string]*Node, keys []string) string {
	var (
		bestID   string
		bestTime float64
		hasBest  bool
	)
	for _, id := range keys {
		n := nodes[id]
		if !n.IsLeaf() || !n.HasMessage() {
			continue
		}
		ct := 0.0
		if t := n.message.CreateTime(); t != nil {
			ct = *t
		}
		if !hasBest || ct > bestTime {
			bestID = id
			bestTime = ct
			hasBest = true
		}
	}
	return bestID
}

func (c *Conversation) resolveMessages() {
	for _, id := range c.path {
		n := c.nodes[id]
		if !n.HasMessage() {
			continue
		}
		m := n.message
		c.messages = append(c.messages, m)
		if slug := m.ModelSlug(); slug != "" {
			c.model = slug
		}
		if _, err := m.AuthorRole(); err != nil {
			c.warnings = append(c.warnings, errors.Wrapf(err, "node %q", id))
		}
		if _, err := m.ContentType(); err != nil {
			c.warnings = append(c.warnings, errors.Wrapf(err, "node %q", id))
		}
	}
}

// Linearize returns the message-bearing nodes on the authoritative branch in
// root-to-tip order. Superseded sibling branches are not included.
func (c *Conversation) Linearize() []*Message {
	if len(c.messages) == 0 {
		return nil
	}
	return append([]*Message(nil), c.messages...)
}

// Path returns every node id from the root to the current node, structural nodes
// included.
func (c *Conversation) Path() []string {
	if len(c.path) == 0 {
		return nil
	}
	return append([]string(nil), c.path...)
}

func (c *Conversation) ID() string { return c.id }

func (c *Conversation) Title() string { return c.title }

func (c *Conversation) CurrentNode() string { return c.currentNode }

// Model is the model slug of the last message on the branch that names one.
func (c *Conversation) Model() string { return c.model }

func (c *Conversation) CreateTime() *float64 { return c.createTime }

func (c *Conversation) UpdateTime() *float64 { return c.updateTime }

func (c *Conversation) CreatedAt() time.Time { return UnixTime(c.createTime) }

// UpdatedAt falls back to CreatedAt when the export has no update time.
func (c *Conversation) UpdatedAt() time.Time {
	if t := UnixTime(c.updateTime); !t.IsZero() {
		return t
	}
	return c.CreatedAt()
}

// Node looks up a node of the mapping by id.
func (c *Conversation) Node(id string) (*Node, bool) {
	n, ok := c.nodes[id]
	return n, ok
}

// Len is the number of nodes in the mapping.
func (c *Conversation) Len() int { return len(c.nodes) }

// Branches counts nodes with more than one child, i.e. places where an edit or
// regeneration forked the conversation.
func (c *Conversation) Branches() int {
	n := 0
	for _, node := range c.nodes {
		if len(node.children) > 1 {
			n++
		}
	}
	return n
}

// ContentTypesUsed returns the sorted distinct content types across all
// message-bearing nodes of the mapping.
func (c *Conversation) ContentTypesUsed() []string {
	seen := make(map[string]struct{})
	for _, n := range c.nodes {
		if !n.HasMessage() {
			continue
		}
		ct, err := n.message.ContentType()
		if err != nil || ct == "" {
			continue
		}
		seen[ct] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for ct := range seen {
		out = append(out, ct)
	}
	sort.Strings(out)
	return out
}

// Warnings lists per-message defects (ErrMalformedAuthor, ErrMissingContent) found
// on the authoritative branch.
func (c *Conversation) Warnings() []error {
	if len(c.warnings) == 0 {
		return nil
	}
	return append([]error(nil), c.warnings...)
}
