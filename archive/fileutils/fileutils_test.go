package fileutils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dst := filepath.Join(dir, "out", "dst.json")

	n, err := WriteJSONFileAtomic(dst, map[string]string{"a": "b"}, false)
	require.NoError(t, err)
	assert.Positive(t, n)

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"b\"}\n", string(b))

	var m map[string]string
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "b", m["a"])

	ents, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, ents, 1, "temp file left behind")
}

func TestEnsureWritable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "x.json")

	require.NoError(t, EnsureWritable(p, false))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	require.Error(t, EnsureWritable(p, false))
	require.NoError(t, EnsureWritable(p, true))
}

func TestSanitizeFilenameComponent(t *testing.T) {
	t.Parallel()

	got := SanitizeFilenameComponent("  ../weird id: 123  ")
	require.NotEmpty(t, got)
	assert.NotEqual(t, byte('.'), got[0])
	assert.Equal(t, "weird_id__123", got)
	assert.Equal(t, "", SanitizeFilenameComponent("   "))
}

func TestUniqueName(t *testing.T) {
	t.Parallel()

	seen := map[string]int{}
	assert.Equal(t, "dup", UniqueName(seen, "dup"))
	assert.Equal(t, "dup-2", UniqueName(seen, "dup"))
	assert.Equal(t, "dup-3", UniqueName(seen, "dup"))
	assert.Equal(t, "other", UniqueName(seen, "other"))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hello", Truncate("  hello  ", 10))
	assert.Equal(t, "hel…", Truncate("hello", 3))
	// "é" is two bytes; cutting at 2 must not split it.
	assert.Equal(t, "a…", Truncate("aéb", 2))
	assert.Equal(t, "hello", Truncate("hello", 0))
}
