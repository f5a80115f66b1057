package archive

import (
	"strings"
	"time"
)

// Transcript is the linearized, attributed view of a conversation handed to renderers.
type Transcript struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title,omitempty"`
	CreateTime     *float64  `json:"create_time,omitempty"`
	UpdateTime     *float64  `json:"update_time,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
	Model          string    `json:"model,omitempty"`
	ContentTypes   []string  `json:"content_types,omitempty"`
	Entries        []Entry   `json:"entries"`
}

// Entry is one rendered message of a transcript.
type Entry struct {
	NodeID      string   `json:"node_id"`
	Role        string   `json:"role"`
	AuthorName  string   `json:"author_name,omitempty"`
	Header      string   `json:"header,omitempty"`
	Text        string   `json:"text,omitempty"`
	ContentType string   `json:"content_type,omitempty"`
	ModelSlug   string   `json:"model_slug,omitempty"`
	CreateTime  *float64 `json:"create_time,omitempty"`
	UpdateTime  *float64 `json:"update_time,omitempty"`
	Recipient   string   `json:"recipient,omitempty"`
	Hidden      bool     `json:"hidden,omitempty"`
}

// Transcript renders the authoritative branch with the given author headers.
// Messages without a role keep an empty Role and Header.
func (c *Conversation) Transcript(cfg HeaderConfig) Transcript {
	t := Transcript{
		ConversationID: c.id,
		Title:          c.title,
		CreateTime:     c.createTime,
		UpdateTime:     c.updateTime,
		CreatedAt:      c.CreatedAt(),
		UpdatedAt:      c.UpdatedAt(),
		Model:          c.model,
		ContentTypes:   c.ContentTypesUsed(),
		Entries:        make([]Entry, 0, len(c.messages)),
	}
	for _, id := range c.path {
		n := c.nodes[id]
		if !n.HasMessage() {
			continue
		}
		m := n.message
		role, _ := m.AuthorRole()
		ct, _ := m.ContentType()
		t.Entries = append(t.Entries, Entry{
			NodeID:      id,
			Role:        role,
			AuthorName:  m.AuthorName(),
			Header:      m.AuthorHeader(cfg),
			Text:        m.ContentText(),
			ContentType: ct,
			ModelSlug:   m.ModelSlug(),
			CreateTime:  m.CreateTime(),
			UpdateTime:  m.UpdateTime(),
			Recipient:   m.Recipient(),
			Hidden:      m.IsHidden(),
		})
	}
	return t
}

// Visible reports whether an entry has anything to render. Empty system scaffolding
// and tool calls without a recognized content shape are common in exports.
func (e Entry) Visible() bool {
	return strings.TrimSpace(e.Text) != ""
}
