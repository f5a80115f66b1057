package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/theimaginaryfoundation/chat-archive/archive"
)

func TestMarkdownBody(t *testing.T) {
	t.Parallel()

	tr := archive.Transcript{
		ConversationID: "c1",
		Title:          "Hello",
		Entries: []archive.Entry{
			{Role: archive.RoleSystem, Header: "### System", Text: "  "},
			{Role: archive.RoleUser, Header: "# User", Text: "hi\n"},
			{Role: "critic", Header: "", Text: "no header here"},
			{Role: archive.RoleAssistant, Header: "# Assistant", Text: "```python\nprint(1)\n```"},
		},
	}

	got, err := Markdown(tr, Options{})
	require.NoError(t, err)
	assert.Equal(t, "# User\n\nhi\n\nno header here\n\n# Assistant\n\n```python\nprint(1)\n```\n", got)

	withEmpty, err := Markdown(tr, Options{IncludeEmpty: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(withEmpty, "### System\n\n"))

	titled, err := Markdown(tr, Options{Title: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(titled, "**Hello**\n\n# User\n\n"))

	untitled, err := Markdown(archive.Transcript{}, Options{Title: true})
	require.NoError(t, err)
	assert.Equal(t, "**Untitled**\n", untitled)
}

func TestMarkdownFrontMatter(t *testing.T) {
	t.Parallel()

	set := testSet(t, chat("c1", "Front: matter", 1735689600, "hello", "hi"))
	c, ok := set.FindByID("c1")
	require.True(t, ok)

	got, err := Markdown(c.Transcript(nil), Options{FrontMatter: true})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(got, "---\n"))

	parts := strings.SplitN(got, "---\n", 3)
	require.Len(t, parts, 3)
	var fm FrontMatter
	require.NoError(t, yaml.Unmarshal([]byte(parts[1]), &fm))
	assert.Equal(t, "Front: matter", fm.Title)
	assert.Equal(t, "c1", fm.ConversationID)
	assert.Equal(t, "2025-01-01T00:00:00Z", fm.Created)
	assert.Equal(t, "gpt-4o", fm.Model)
	assert.Equal(t, []string{"text"}, fm.ContentTypes)
	assert.Equal(t, 2, fm.Messages)
	assert.True(t, strings.HasPrefix(parts[2], "\n# User\n\nhello"))
}

func TestWriteAll(t *testing.T) {
	t.Parallel()

	set := testSet(t,
		chat("c1", "Same", 0, "one", "1"),
		chat("c2", "Same", 0, "two", "2"),
		chat("c3", "", 0, "three", "3"),
	)
	dir := t.TempDir()

	written, err := WriteAll(set, dir, WriteOptions{Headers: archive.HeaderConfig{archive.RoleUser: "## Q"}})
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "Same.md"),
		filepath.Join(dir, "Same-2.md"),
		filepath.Join(dir, "c3.md"),
	}, written)

	b, err := os.ReadFile(written[1])
	require.NoError(t, err)
	assert.Equal(t, "## Q\n\ntwo\n\n# Assistant\n\n2\n", string(b))

	_, err = WriteAll(set, dir, WriteOptions{})
	require.Error(t, err)
	_, err = WriteAll(set, dir, WriteOptions{Overwrite: true})
	require.NoError(t, err)
}
