package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingPayload is returned when a structural node is asked for its message.
	ErrMissingPayload = errors.New("node has no message")
	// ErrMalformedAuthor is returned when a message has no author role.
	ErrMalformedAuthor = errors.New("message author is malformed")
	// ErrMissingContent is returned when a message has no content object.
	ErrMissingContent = errors.New("message content is missing")

	ErrInvalidTree           = errors.New("invalid conversation tree")
	ErrDanglingTip           = errors.New("current node does not resolve")
	ErrCyclicTree            = errors.New("cycle in conversation tree")
	ErrDuplicateConversation = errors.New("duplicate conversation id")
)

// TreeError reports structural corruption of one conversation's mapping.
type TreeError struct {
	Kind           error
	ConversationID string
	NodeID         string
	Reason         string
}

func (e *TreeError) Error() string {
	if e == nil {
		return ErrInvalidTree.Error()
	}
	kind := e.Kind
	if kind == nil {
		kind = ErrInvalidTree
	}
	msg := kind.Error()
	if e.ConversationID != "" {
		msg = fmt.Sprintf("%s (conversation %q)", msg, e.ConversationID)
	}
	if e.NodeID != "" {
		msg = fmt.Sprintf("%s at node %q", msg, e.NodeID)
	}
	if e.Reason != "" {
		msg = msg + ": " + e.Reason
	}
	return msg
}

func (e *TreeError) Is(target error) bool {
	if e == nil || e.Kind == nil {
		return target == ErrInvalidTree
	}
	return target == e.Kind
}

func treeError(kind error, conversationID, nodeID, format string, args ...any) *TreeError {
	return &TreeError{
		Kind:           kind,
		ConversationID: conversationID,
		NodeID:         nodeID,
		Reason:         fmt.Sprintf(format, args...),
	}
}

// Failure records a batch entry that could not be turned into a Conversation.
type Failure struct {
	Index          int
	ConversationID string
	Title          string
	Err            error
}

func (f Failure) Error() string {
	return fmt.Sprintf("record %d (id=%q title=%q): %v", f.Index, f.ConversationID, f.Title, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }
