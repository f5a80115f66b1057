package archive

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		want    string
	}{
		{name: "parts", content: `{"content_type":"text","parts":["hello"]}`, want: "hello"},
		{name: "first part only", content: `{"content_type":"text","parts":["a","b"]}`, want: "a"},
		{name: "null part", content: `{"content_type":"text","parts":[null]}`, want: ""},
		{name: "empty parts", content: `{"content_type":"text","parts":[]}`, want: ""},
		{name: "non-string part", content: `{"content_type":"multimodal_text","parts":[{"asset_pointer":"file-1"}]}`, want: `{"asset_pointer":"file-1"}`},
		{name: "code", content: `{"content_type":"code","language":"unknown","text":"print(1)"}`, want: "```python\nprint(1)\n```"},
		{name: "code with language", content: `{"content_type":"code","language":"go","text":"x := 1"}`, want: "```go\nx := 1\n```"},
		{name: "neither", content: `{"content_type":"tether_quote","url":"https://example.com"}`, want: ""},
		{name: "null", content: `null`, want: ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewMessage(MessageRecord{Content: json.RawMessage(tc.content)})
			assert.Equal(t, tc.want, m.ContentText())
		})
	}
}

func TestContentTextFencesPrint(t *testing.T) {
	t.Parallel()

	m := NewMessage(MessageRecord{Content: json.RawMessage(`{"content_type":"code","text":"print(1)"}`)})
	got := m.ContentText()
	assert.Contains(t, got, "print(1)")
	assert.Regexp(t, "^```", got)
	assert.Regexp(t, "```$", got)
}

func TestAuthorHeader(t *testing.T) {
	t.Parallel()

	assistant := NewMessage(MessageRecord{Author: &AuthorRecord{Role: strp(RoleAssistant)}})
	assert.Equal(t, "# Assistant", assistant.AuthorHeader(nil))
	assert.Equal(t, "## Bot", assistant.AuthorHeader(HeaderConfig{RoleAssistant: "## Bot"}))
	assert.Equal(t, "", assistant.AuthorHeader(HeaderConfig{RoleAssistant: ""}))
	assert.Equal(t, "# Assistant", assistant.AuthorHeader(HeaderConfig{RoleUser: "## Me"}))

	tool := NewMessage(MessageRecord{Author: &AuthorRecord{Role: strp(RoleTool), Name: strp(" browser ")}})
	assert.Equal(t, "### Tool output", tool.AuthorHeader(nil))
	assert.Equal(t, "browser", tool.AuthorName())

	unknown := NewMessage(MessageRecord{Author: &AuthorRecord{Role: strp("critic")}})
	assert.Equal(t, "", unknown.AuthorHeader(nil))
	assert.Equal(t, "", unknown.AuthorHeader(HeaderConfig{"critic": "# Critic"}))

	noAuthor := NewMessage(MessageRecord{})
	assert.Equal(t, "", noAuthor.AuthorHeader(nil))
}

func TestMessageErrors(t *testing.T) {
	t.Parallel()

	m := NewMessage(MessageRecord{Author: &AuthorRecord{}})
	_, err := m.AuthorRole()
	require.ErrorIs(t, err, ErrMalformedAuthor)

	_, err = m.ContentType()
	require.ErrorIs(t, err, ErrMissingContent)

	ok := NewMessage(MessageRecord{
		Author:   &AuthorRecord{Role: strp(RoleUser)},
		Content:  json.RawMessage(`{"content_type":"text","parts":["x"]}`),
		Metadata: map[string]any{"model_slug": "gpt-4o", "is_visually_hidden_from_conversation": true},
	})
	role, err := ok.AuthorRole()
	require.NoError(t, err)
	assert.Equal(t, RoleUser, role)
	ct, err := ok.ContentType()
	require.NoError(t, err)
	assert.Equal(t, "text", ct)
	assert.Equal(t, "gpt-4o", ok.ModelSlug())
	assert.True(t, ok.IsHidden())
}

func TestNode(t *testing.T) {
	t.Parallel()

	root := NewNode("r", rootNode("r", "a", "b"))
	assert.True(t, root.IsRoot())
	assert.False(t, root.IsLeaf())
	assert.False(t, root.HasMessage())
	_, err := root.Message()
	require.ErrorIs(t, err, ErrMissingPayload)

	kids := root.ChildIDs()
	assert.Equal(t, []string{"a", "b"}, kids)
	kids[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, root.ChildIDs())

	leaf := NewNode("a", msgNode("a", "r", RoleUser, "hi"))
	assert.True(t, leaf.IsLeaf())
	p, ok := leaf.ParentID()
	assert.True(t, ok)
	assert.Equal(t, "r", p)
	m, err := leaf.Message()
	require.NoError(t, err)
	assert.Equal(t, "hi", m.ContentText())

	emptyParent := NewNode("x", NodeRecord{ID: "x", Parent: strp("")})
	assert.True(t, emptyParent.IsRoot())
}

func TestUnixTime(t *testing.T) {
	t.Parallel()

	assert.True(t, UnixTime(nil).IsZero())
	assert.True(t, UnixTime(f64(0)).IsZero())
	assert.Equal(t, "2023-11-14T22:13:20Z", ISO8601(f64(1700000000)))
	assert.Equal(t, int64(500_000_000), int64(UnixTime(f64(1700000000.5)).Nanosecond()))
	assert.Equal(t, "", ISO8601(nil))

	// Past the range of int64 nanoseconds since 1970.
	far := UnixTime(f64(32503680000.25))
	assert.Equal(t, 3000, far.Year())
	assert.Equal(t, 250_000_000, far.Nanosecond())
	assert.Equal(t, "3000-01-01T00:00:00Z", ISO8601(f64(32503680000)))
}
