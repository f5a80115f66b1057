package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/theimaginaryfoundation/chat-archive/archive"
	"github.com/theimaginaryfoundation/chat-archive/archive/fileutils"
)

const defaultShardBytes = 100 * 1024

// ShardOptions controls how markdown shards are created.
type ShardOptions struct {
	OutDir    string
	MaxBytes  int // default ~100KB
	Overwrite bool
	Headers   archive.HeaderConfig
}

// ShardIndexRecord maps one conversation to a markdown shard file and anchor.
type ShardIndexRecord struct {
	ConversationID string   `json:"conversation_id"`
	CreateTime     *float64 `json:"create_time,omitempty"`
	CreatedISO     string   `json:"create_time_iso8601,omitempty"`
	Title          string   `json:"title,omitempty"`
	Model          string   `json:"model,omitempty"`
	Messages       int      `json:"messages"`

	ShardFile string `json:"shard_file"`
	Anchor    string `json:"anchor"`

	// Preview is the first user message, shortened, for quick scanning.
	Preview string `json:"preview,omitempty"`
}

// WriteShards packs rendered conversations sequentially into markdown shard files of
// roughly MaxBytes (UTF-8 bytes) each, oldest conversation first. A single
// conversation larger than MaxBytes gets a shard of its own.
func WriteShards(set *archive.ConversationSet, opts ShardOptions) ([]ShardIndexRecord, error) {
	if set == nil {
		return nil, errors.New("WriteShards: set is nil")
	}
	if opts.OutDir == "" {
		return nil, errors.New("WriteShards: OutDir is empty")
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultShardBytes
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "WriteShards: mkdir OutDir")
	}

	// Stable ordering: create time (if present), then conversation id.
	convs := set.All()
	sort.SliceStable(convs, func(i, j int) bool {
		ti, tj := convs[i].CreatedAt(), convs[j].CreatedAt()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return convs[i].ID() < convs[j].ID()
	})

	var (
		shardNum     = 1
		curr         strings.Builder
		currFilename = ""
		index        []ShardIndexRecord
	)

	flush := func() error {
		if curr.Len() == 0 {
			return nil
		}
		outPath := filepath.Join(opts.OutDir, currFilename)
		if err := fileutils.EnsureWritable(outPath, opts.Overwrite); err != nil {
			return errors.Wrap(err, "WriteShards")
		}
		if _, err := fileutils.WriteFileAtomicSameDir(outPath, []byte(curr.String()), 0o644); err != nil {
			return errors.Wrap(err, "WriteShards: write shard")
		}
		shardNum++
		curr.Reset()
		currFilename = ""
		return nil
	}

	for _, c := range convs {
		t := c.Transcript(opts.Headers)
		section, anchor, err := renderSection(t)
		if err != nil {
			return nil, err
		}

		if curr.Len() > 0 && curr.Len()+len(section) > opts.MaxBytes {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		if curr.Len() == 0 {
			currFilename = shardName(shardNum)
			fmt.Fprintf(&curr, "# Conversations %04d\n\n", shardNum)
		}
		curr.WriteString(section)

		index = append(index, ShardIndexRecord{
			ConversationID: t.ConversationID,
			CreateTime:     t.CreateTime,
			CreatedISO:     archive.ISO8601(t.CreateTime),
			Title:          t.Title,
			Model:          t.Model,
			Messages:       len(t.Entries),
			ShardFile:      currFilename,
			Anchor:         anchor,
			Preview:        fileutils.Truncate(fileutils.SanitizeNewlines(firstUserText(t)), 200),
		})
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return index, nil
}

func shardName(n int) string {
	return fmt.Sprintf("conversations_%04d.md", n)
}

func renderSection(t archive.Transcript) (section string, anchor string, err error) {
	anchor = "conversation-" + sanitizeAnchor(t.ConversationID)
	title := escapeMarkdownInline(t.Title)
	if title == "" {
		title = t.ConversationID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<a id=\"%s\"></a>\n", anchor)
	fmt.Fprintf(&b, "## %s\n\n", title)
	fmt.Fprintf(&b, "- conversation_id: `%s`\n", t.ConversationID)
	if iso := archive.ISO8601(t.CreateTime); iso != "" {
		fmt.Fprintf(&b, "- create_time: `%s`\n", iso)
	}
	if t.Model != "" {
		fmt.Fprintf(&b, "- model: `%s`\n", t.Model)
	}
	b.WriteString("\n")

	body, err := Markdown(t, Options{})
	if err != nil {
		return "", "", errors.Wrapf(err, "render %q", t.ConversationID)
	}
	b.WriteString(body)
	b.WriteString("\n---\n\n")
	return b.String(), anchor, nil
}

func firstUserText(t archive.Transcript) string {
	for _, e := range t.Entries {
		if e.Role == archive.RoleUser && strings.TrimSpace(e.Text) != "" {
			return e.Text
		}
	}
	return ""
}

func sanitizeAnchor(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "conversation"
	}
	var out strings.Builder
	out.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			out.WriteRune(r)
		} else {
			out.WriteByte('-')
		}
	}
	return strings.Trim(out.String(), "-")
}

func escapeMarkdownInline(s string) string {
	// Titles must not open code fences or headers.
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}

// WriteShardIndex writes index records as JSONL.
func WriteShardIndex(path string, records []ShardIndexRecord, overwrite bool) error {
	if path == "" {
		return errors.New("WriteShardIndex: path is empty")
	}
	if err := fileutils.EnsureWritable(path, overwrite); err != nil {
		return errors.Wrap(err, "WriteShardIndex")
	}

	var b strings.Builder
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return err
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	_, err := fileutils.WriteFileAtomicSameDir(path, []byte(strings.TrimRight(b.String(), "\n")), 0o644)
	return err
}
