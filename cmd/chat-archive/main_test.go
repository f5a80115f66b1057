package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theimaginaryfoundation/chat-archive/archive"
)

const exportJSON = `[
  {
    "id": "conv-1",
    "title": "First chat",
    "create_time": 1700000000,
    "update_time": 1700000100,
    "current_node": "b",
    "mapping": {
      "root": {"id": "root", "message": null, "parent": null, "children": ["a"]},
      "a": {"id": "a", "message": {"id": "a", "author": {"role": "user"}, "content": {"content_type": "text", "parts": ["hello"]}}, "parent": "root", "children": ["b"]},
      "b": {"id": "b", "message": {"id": "b", "author": {"role": "assistant"}, "content": {"content_type": "text", "parts": ["hi there"]}, "metadata": {"model_slug": "gpt-4"}}, "parent": "a", "children": []}
    }
  },
  {
    "id": "conv-2",
    "title": "Broken",
    "current_node": "missing",
    "mapping": {
      "x": {"id": "x", "message": null, "parent": null, "children": []}
    }
  }
]`

func writeExport(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "conversations.json")
	require.NoError(t, os.WriteFile(p, []byte(exportJSON), 0o644))
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, defaultConfig().Validate())

	cfg := defaultConfig()
	cfg.OutputDir = ""
	require.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Workers = -1
	require.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.MaxShardBytes = 0
	require.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Headers = archive.HeaderConfig{"robot": "# Robot"}
	require.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Headers = archive.HeaderConfig{"user": "## Me"}
	require.NoError(t, cfg.Validate())
}

func TestSelectStages(t *testing.T) {
	t.Parallel()

	got, err := selectStages("", "")
	require.NoError(t, err)
	assert.Equal(t, allStages, got)

	got, err = selectStages("", "pack")
	require.NoError(t, err)
	assert.Equal(t, []string{"pack", "catalog"}, got)

	got, err = selectStages("render", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"render"}, got)

	_, err = selectStages("render", "pack")
	var ue usageError
	require.True(t, errors.As(err, &ue))

	_, err = selectStages("", "summarize")
	require.Error(t, err)
	_, err = selectStages("summarize", "")
	require.Error(t, err)
}

func TestParseRange(t *testing.T) {
	t.Parallel()

	r, err := parseRange("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), r.From)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 999_999_999, time.UTC), r.To)
	assert.True(t, r.Contains(time.Date(2024, 1, 31, 23, 59, 59, 500_000_000, time.UTC)))
	assert.False(t, r.Contains(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	r, err = parseRange("", "2024-02-01T10:00:00Z")
	require.NoError(t, err)
	assert.True(t, r.From.IsZero())
	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), r.To)

	_, err = parseRange("2024-02-01", "2024-01-01")
	require.Error(t, err)
	_, err = parseRange("yesterday", "")
	require.Error(t, err)
}

func TestSplitCommand(t *testing.T) {
	in := writeExport(t)
	outDir := t.TempDir()

	out, err := execute(t, "split", "--input", in, "--output-dir", outDir, "--turns-per-chunk", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "threads_written=1")
	assert.Contains(t, out, "chunks_written=1")

	b, err := os.ReadFile(filepath.Join(outDir, "threads", "conv-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"text":"hello"`)
	assert.Contains(t, string(b), `"header":"# Assistant"`)
	assert.NoFileExists(t, filepath.Join(outDir, "threads", "conv-2.json"))

	// Second run refuses to clobber without --overwrite.
	_, err = execute(t, "split", "--input", in, "--output-dir", outDir)
	require.Error(t, err)
	_, err = execute(t, "split", "--input", in, "--output-dir", outDir, "--overwrite")
	require.NoError(t, err)
}

func TestExportCommand(t *testing.T) {
	in := writeExport(t)
	outDir := t.TempDir()

	out, err := execute(t, "export", "--input", in, "--output-dir", outDir, "--from-stage", "render")
	require.NoError(t, err)
	assert.Contains(t, out, "markdown_written=1")
	assert.Contains(t, out, "shards_written=1")
	assert.Contains(t, out, "catalogued=1 total=1")

	assert.NoDirExists(t, filepath.Join(outDir, "threads"))
	assert.FileExists(t, filepath.Join(outDir, "markdown", "First_chat.md"))
	assert.FileExists(t, filepath.Join(outDir, "shards", "conversations_0001.md"))
	assert.FileExists(t, filepath.Join(outDir, "shards", "index.jsonl"))
	assert.FileExists(t, filepath.Join(outDir, "catalog.db"))
}

func TestListCommand(t *testing.T) {
	in := writeExport(t)

	out, err := execute(t, "list", "--input", in, "--output-dir", t.TempDir(), "--title", "first")
	require.NoError(t, err)
	assert.Contains(t, out, "conv-1")
	assert.Contains(t, out, "First chat")

	out, err = execute(t, "list", "--input", in, "--output-dir", t.TempDir(), "--since", "2030-01-01")
	require.NoError(t, err)
	assert.NotContains(t, out, "conv-1")

	out, err = execute(t, "list", "--input", in, "--output-dir", t.TempDir(), "--failures")
	require.NoError(t, err)
	assert.Contains(t, out, "conv-2")
	assert.Contains(t, out, "does not resolve")
}

func TestShowCommand(t *testing.T) {
	in := writeExport(t)

	out, err := execute(t, "show", "conv-1", "--input", in, "--output-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "**First chat**")
	assert.Contains(t, out, "# User\n\nhello")
	assert.Contains(t, out, "# Assistant\n\nhi there")

	_, err = execute(t, "show", "nope", "--input", in, "--output-dir", t.TempDir())
	require.Error(t, err)
}

func TestSchemaCommand(t *testing.T) {
	out, err := execute(t, "schema", "transcript")
	require.NoError(t, err)
	assert.Contains(t, out, "conversation_id")

	_, err = execute(t, "schema", "bogus")
	var ue usageError
	require.True(t, errors.As(err, &ue))
}
