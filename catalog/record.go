package catalog

import (
	"strings"
	"time"

	"github.com/theimaginaryfoundation/chat-archive/archive"
)

// Record is one catalog row describing a conversation.
type Record struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
	Model          string    `json:"model,omitempty"`
	Messages       int       `json:"messages"`
	Nodes          int       `json:"nodes"`
	Branches       int       `json:"branches"`
	ContentTypes   []string  `json:"content_types,omitempty"`
}

// BuildRecord creates a stable catalog row for a conversation.
func BuildRecord(c *archive.Conversation) Record {
	return Record{
		ConversationID: c.ID(),
		Title:          strings.TrimSpace(c.Title()),
		CreatedAt:      c.CreatedAt(),
		UpdatedAt:      c.UpdatedAt(),
		Model:          c.Model(),
		Messages:       len(c.Linearize()),
		Nodes:          c.Len(),
		Branches:       c.Branches(),
		ContentTypes:   dedupeStrings(c.ContentTypesUsed()),
	}
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
