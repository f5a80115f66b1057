package archive

// Node is one vertex of a conversation tree. Parent and children are ids resolved
// through the owning Conversation, never pointers.
type Node struct {
	id       string
	message  *Message
	parent   string
	hasPar   bool
	children []string
}

// NewNode builds an immutable node from its mapping entry.
// An empty parent string is treated the same as a null parent.
func NewNode(id string, rec NodeRecord) *Node {
	n := &Node{
		id:       id,
		children: append([]string(nil), rec.Children...),
	}
	if rec.Parent != nil && *rec.Parent != "" {
		n.parent = *rec.Parent
		n.hasPar = true
	}
	if rec.Message != nil {
		n.message = NewMessage(*rec.Message)
	}
	return n
}

func (n *Node) ID() string { return n.id }

func (n *Node) HasMessage() bool { return n.message != nil }

// Message returns the node payload, or ErrMissingPayload for structural nodes.
func (n *Node) Message() (*Message, error) {
	if n.message == nil {
		return nil, ErrMissingPayload
	}
	return n.message, nil
}

// ParentID returns the parent id and whether the node has one.
func (n *Node) ParentID() (string, bool) {
	return n.parent, n.hasPar
}

// ChildIDs returns a copy of the ordered child ids.
func (n *Node) ChildIDs() []string {
	if len(n.children) == 0 {
		return nil
	}
	return append([]string(nil), n.children...)
}

func (n *Node) IsRoot() bool { return !n.hasPar }

func (n *Node) IsLeaf() bool { return len(n.children) == 0 }
