package render

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/theimaginaryfoundation/chat-archive/archive"
	"github.com/theimaginaryfoundation/chat-archive/archive/fileutils"
)

// Options controls markdown rendering of a transcript.
type Options struct {
	// FrontMatter prepends a YAML block with the conversation metadata.
	FrontMatter bool

	// Title adds a bold title line above the first message.
	Title bool

	// IncludeEmpty keeps entries whose text renders empty.
	IncludeEmpty bool
}

// FrontMatter is the YAML header written above each rendered conversation.
type FrontMatter struct {
	Title          string   `yaml:"title"`
	ConversationID string   `yaml:"conversation_id"`
	Created        string   `yaml:"created,omitempty"`
	Updated        string   `yaml:"updated,omitempty"`
	Model          string   `yaml:"model,omitempty"`
	ContentTypes   []string `yaml:"content_types,omitempty,flow"`
	Messages       int      `yaml:"messages"`
}

type templateData struct {
	FrontMatter string
	Title       string
	ShowTitle   bool
	Entries     []archive.Entry
}

const conversationTemplate = `
{{- if .FrontMatter -}}
---
{{ .FrontMatter }}---

{{ end -}}
{{- if .ShowTitle }}**{{ .Title | default "Untitled" }}**

{{ end -}}
{{- range .Entries -}}
{{- if .Header }}{{ .Header }}

{{ end -}}
{{ .Text | trim }}

{{ end -}}
`

var conversationTmpl = template.Must(template.New("conversation").Funcs(sprig.TxtFuncMap()).Parse(conversationTemplate))

// Markdown renders a transcript as markdown: optional front matter, then each entry
// as its author header followed by its text.
func Markdown(t archive.Transcript, opts Options) (string, error) {
	data := templateData{
		Title:     strings.TrimSpace(t.Title),
		ShowTitle: opts.Title,
	}
	for _, e := range t.Entries {
		if !opts.IncludeEmpty && !e.Visible() {
			continue
		}
		data.Entries = append(data.Entries, e)
	}

	if opts.FrontMatter {
		fm := FrontMatter{
			Title:          t.Title,
			ConversationID: t.ConversationID,
			Created:        formatTime(t.CreatedAt),
			Updated:        formatTime(t.UpdatedAt),
			Model:          t.Model,
			ContentTypes:   t.ContentTypes,
			Messages:       len(data.Entries),
		}
		b, err := yaml.Marshal(fm)
		if err != nil {
			return "", errors.Wrap(err, "marshal front matter")
		}
		data.FrontMatter = string(b)
	}

	var buf bytes.Buffer
	if err := conversationTmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "execute conversation template")
	}
	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteOptions controls WriteAll.
type WriteOptions struct {
	Options
	Headers   archive.HeaderConfig
	Overwrite bool
}

// WriteAll renders every conversation of the set into outDir, one markdown file per
// conversation named after its title (falling back to its id).
func WriteAll(set *archive.ConversationSet, outDir string, opts WriteOptions) ([]string, error) {
	if set == nil {
		return nil, errors.New("WriteAll: set is nil")
	}
	if outDir == "" {
		return nil, errors.New("WriteAll: outDir is empty")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "WriteAll: mkdir outDir")
	}

	seen := make(map[string]int)
	var written []string
	for _, c := range set.All() {
		md, err := Markdown(c.Transcript(opts.Headers), opts.Options)
		if err != nil {
			return written, errors.Wrapf(err, "WriteAll: render %q", c.ID())
		}

		base := fileutils.SanitizeFilenameComponent(c.Title())
		if base == "" {
			base = fileutils.SanitizeFilenameComponent(c.ID())
		}
		if base == "" {
			base = "conversation"
		}
		outPath := filepath.Join(outDir, fileutils.UniqueName(seen, base)+".md")
		if err := fileutils.EnsureWritable(outPath, opts.Overwrite); err != nil {
			return written, errors.Wrap(err, "WriteAll")
		}
		if _, err := fileutils.WriteFileAtomicSameDir(outPath, []byte(strings.TrimRight(md, "\n")), 0o644); err != nil {
			return written, errors.Wrapf(err, "WriteAll: write %s", outPath)
		}
		written = append(written, outPath)
	}
	return written, nil
}
