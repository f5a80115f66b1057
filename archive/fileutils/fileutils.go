package fileutils

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureWritable fails when path already exists and overwrite is false.
func EnsureWritable(path string, overwrite bool) error {
	if overwrite {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("output file already exists: %s", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "stat output file")
	}
	return nil
}

func SanitizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// Truncate shortens s to at most max bytes without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

// SanitizeFilenameComponent turns an id or title into a safe file name stem.
func SanitizeFilenameComponent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := b.String()
	out = strings.Trim(out, "._-")
	out = strings.TrimPrefix(out, "..")
	out = strings.TrimPrefix(out, ".")
	out = strings.TrimSpace(out)
	return out
}

// UniqueName returns base, or base-N when base was already handed out.
func UniqueName(seen map[string]int, base string) string {
	n := seen[base]
	seen[base] = n + 1
	if n == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(n+1)
}

func WriteJSONFileAtomic(path string, v any, pretty bool) (int64, error) {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return 0, errors.Wrap(err, "marshal json")
	}
	n, err := WriteFileAtomicSameDir(path, b, 0o644)
	if err != nil {
		return n, errors.Wrap(err, "write json")
	}
	return n, nil
}

// WriteFileAtomicSameDir writes data plus a trailing newline to a temp file next to
// path and renames it into place.
func WriteFileAtomicSameDir(path string, data []byte, mode fs.FileMode) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, ".tmp_write_*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return 0, err
	}

	n, err := tmp.Write(data)
	if err != nil {
		_ = tmp.Close()
		return int64(n), err
	}
	if _, err := tmp.Write([]byte("\n")); err != nil {
		_ = tmp.Close()
		return int64(n), err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return int64(n), err
	}
	if err := tmp.Close(); err != nil {
		return int64(n), err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return int64(n), err
	}
	return int64(n), nil
}
