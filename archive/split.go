package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/theimaginaryfoundation/chat-archive/archive/fileutils"
)

// SplitOptions controls how SplitConversations writes per-conversation files.
type SplitOptions struct {
	// Headers are the author headers baked into each transcript entry.
	Headers HeaderConfig

	// OverwriteExisting controls whether existing output files should be overwritten.
	// If false and a file already exists, SplitConversations returns an error.
	OverwriteExisting bool

	// Pretty controls whether each output JSON file is indented for readability.
	Pretty bool

	// TurnsPerChunk, when positive, additionally writes chunk files of that many
	// user-led turns into OutputDir/chunks.
	TurnsPerChunk int
}

// SplitResult contains basic stats from a split run.
type SplitResult struct {
	ThreadsWritten int
	ChunksWritten  int
	BytesWritten   int64
}

// SplitConversations writes one linearized transcript JSON file per conversation into
// outputDir, named after the conversation id. Colliding names get a -N suffix.
func SplitConversations(ctx context.Context, set *ConversationSet, outputDir string, opts SplitOptions) (SplitResult, error) {
	if ctx == nil {
		return SplitResult{}, errors.New("SplitConversations: ctx is nil")
	}
	if set == nil {
		return SplitResult{}, errors.New("SplitConversations: set is nil")
	}
	if outputDir == "" {
		return SplitResult{}, errors.New("SplitConversations: outputDir is empty")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return SplitResult{}, errors.Wrap(err, "SplitConversations: mkdir outputDir")
	}

	seen := make(map[string]int)
	var res SplitResult
	for _, c := range set.All() {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		base := fileutils.SanitizeFilenameComponent(c.ID())
		if base == "" {
			base = "thread"
		}
		base = fileutils.UniqueName(seen, base)

		t := c.Transcript(opts.Headers)
		outPath := filepath.Join(outputDir, base+".json")
		if err := fileutils.EnsureWritable(outPath, opts.OverwriteExisting); err != nil {
			return res, errors.Wrap(err, "SplitConversations")
		}
		n, err := fileutils.WriteJSONFileAtomic(outPath, t, opts.Pretty)
		if err != nil {
			return res, errors.Wrapf(err, "SplitConversations: write output (id=%q)", c.ID())
		}
		res.ThreadsWritten++
		res.BytesWritten += n

		if opts.TurnsPerChunk <= 0 {
			continue
		}
		chunks, err := ChunkTranscript(t, opts.TurnsPerChunk)
		if err != nil {
			return res, errors.Wrapf(err, "SplitConversations: chunk (id=%q)", c.ID())
		}
		for _, ch := range chunks {
			chunkPath := filepath.Join(outputDir, "chunks", fmt.Sprintf("%s_%d.json", base, ch.ChunkNumber))
			if err := fileutils.EnsureWritable(chunkPath, opts.OverwriteExisting); err != nil {
				return res, errors.Wrap(err, "SplitConversations")
			}
			n, err := fileutils.WriteJSONFileAtomic(chunkPath, ch, opts.Pretty)
			if err != nil {
				return res, errors.Wrapf(err, "SplitConversations: write chunk (id=%q)", c.ID())
			}
			res.ChunksWritten++
			res.BytesWritten += n
		}
	}
	return res, nil
}
