package archive

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// DefaultHeaders are the author headers used when HeaderConfig has no override.
var DefaultHeaders = map[string]string{
	RoleUser:      "# User",
	RoleAssistant: "# Assistant",
	RoleSystem:    "### System",
	RoleTool:      "### Tool output",
}

// HeaderConfig maps an author role to the header rendered above its messages.
// A role present in the map overrides the default, even with an empty value.
type HeaderConfig map[string]string

// Message is the immutable payload of a Node.
type Message struct {
	rec     MessageRecord
	content []byte
}

// NewMessage wraps a raw message record. It never fails: absent fields stay unset.
func NewMessage(rec MessageRecord) *Message {
	m := &Message{rec: rec}
	c := bytes.TrimSpace(rec.Content)
	if len(c) > 0 && !bytes.Equal(c, []byte("null")) {
		m.content = c
	}
	return m
}

func (m *Message) ID() string { return m.rec.ID }

// AuthorRole returns the author's role, or ErrMalformedAuthor when the author or its
// role is absent.
func (m *Message) AuthorRole() (string, error) {
	if m.rec.Author == nil || m.rec.Author.Role == nil {
		return "", ErrMalformedAuthor
	}
	return *m.rec.Author.Role, nil
}

// AuthorName returns the optional author name (tool messages carry e.g. "browser").
func (m *Message) AuthorName() string {
	if m.rec.Author == nil || m.rec.Author.Name == nil {
		return ""
	}
	return strings.TrimSpace(*m.rec.Author.Name)
}

// AuthorHeader maps the role to its display header. Unknown or missing roles render
// nothing.
func (m *Message) AuthorHeader(cfg HeaderConfig) string {
	role, err := m.AuthorRole()
	if err != nil {
		return ""
	}
	def, ok := DefaultHeaders[role]
	if !ok {
		return ""
	}
	if h, ok := cfg[role]; ok {
		return h
	}
	return def
}

// ContentText renders the message content as text.
//
// Content with a "parts" shape yields its first part; content with a "text" shape
// (code) yields a fenced block. Anything else yields "".
func (m *Message) ContentText() string {
	if m.content == nil {
		return ""
	}
	if parts := gjson.GetBytes(m.content, "parts"); parts.Exists() {
		first := parts.Get("0")
		switch {
		case !first.Exists(), first.Type == gjson.Null:
			return ""
		case first.Type == gjson.String:
			return first.String()
		default:
			return first.Raw
		}
	}
	if text := gjson.GetBytes(m.content, "text"); text.Exists() {
		return "```" + m.codeLanguage() + "\n" + text.String() + "\n```"
	}
	return ""
}

func (m *Message) codeLanguage() string {
	lang := strings.TrimSpace(gjson.GetBytes(m.content, "language").String())
	if lang == "" || lang == "unknown" {
		return "python"
	}
	return lang
}

// ContentType returns content.content_type, or ErrMissingContent when the message has
// no content at all.
func (m *Message) ContentType() (string, error) {
	if m.content == nil {
		return "", ErrMissingContent
	}
	return strings.TrimSpace(gjson.GetBytes(m.content, "content_type").String()), nil
}

// ModelSlug returns metadata.model_slug, or "".
func (m *Message) ModelSlug() string {
	s, _ := m.rec.Metadata["model_slug"].(string)
	return s
}

// IsHidden reports whether the export marks the message as hidden from the UI.
func (m *Message) IsHidden() bool {
	b, _ := m.rec.Metadata["is_visually_hidden_from_conversation"].(bool)
	return b
}

func (m *Message) CreateTime() *float64 { return m.rec.CreateTime }

func (m *Message) UpdateTime() *float64 { return m.rec.UpdateTime }

func (m *Message) Status() string { return m.rec.Status }

func (m *Message) EndTurn() *bool { return m.rec.EndTurn }

func (m *Message) Weight() *float64 { return m.rec.Weight }

func (m *Message) Recipient() string { return m.rec.Recipient }

// Metadata returns the raw metadata map. Callers must not mutate it.
func (m *Message) Metadata() map[string]any { return m.rec.Metadata }
