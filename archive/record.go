package archive

import (
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
)

// Record is one decoded conversation from an export.
// Fields missing from older exports decode to their zero value or nil.
type Record struct {
	ID             string                `json:"id,omitempty"`
	ConversationID string                `json:"conversation_id,omitempty"`
	Title          string                `json:"title"`
	CreateTime     *float64              `json:"create_time,omitempty"`
	UpdateTime     *float64              `json:"update_time,omitempty"`
	Mapping        map[string]NodeRecord `json:"mapping"`
	CurrentNode    string                `json:"current_node,omitempty"`
}

// NodeRecord is one entry of a conversation mapping.
type NodeRecord struct {
	ID       string         `json:"id"`
	Message  *MessageRecord `json:"message"`
	Parent   *string        `json:"parent"`
	Children []string       `json:"children"`
}

// MessageRecord is the raw payload of a node.
type MessageRecord struct {
	ID         string          `json:"id"`
	Author     *AuthorRecord   `json:"author"`
	CreateTime *float64        `json:"create_time"`
	UpdateTime *float64        `json:"update_time"`
	Content    json.RawMessage `json:"content"`
	Status     string          `json:"status"`
	EndTurn    *bool           `json:"end_turn"`
	Weight     *float64        `json:"weight"`
	Metadata   map[string]any  `json:"metadata"`
	Recipient  string          `json:"recipient"`
}

// AuthorRecord identifies who produced a message.
type AuthorRecord struct {
	Role     *string        `json:"role"`
	Name     *string        `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

var recordNamespace = uuid.MustParse("6f1c8a52-3d4b-4f0e-9a57-2b0c1d7e8f90")

// Identity returns the conversation id carried by the record. Records without one get
// a name-based UUID derived from their title, create time and current node, so the
// same export always yields the same id.
func (r Record) Identity() string {
	if r.ConversationID != "" {
		return r.ConversationID
	}
	if r.ID != "" {
		return r.ID
	}
	ct := ""
	if r.CreateTime != nil {
		ct = strconv.FormatFloat(*r.CreateTime, 'f', -1, 64)
	}
	name := r.Title + "\x00" + ct + "\x00" + r.CurrentNode
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}
