package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/theimaginaryfoundation/chat-archive/archive"
	"github.com/theimaginaryfoundation/chat-archive/catalog"
	"github.com/theimaginaryfoundation/chat-archive/render"
)

var allStages = []string{"split", "render", "pack", "catalog"}

type stageFunc func(ctx context.Context, cfg Config, set *archive.ConversationSet, out io.Writer) error

var stageFuncs = map[string]stageFunc{
	"split":   runSplit,
	"render":  runRender,
	"pack":    runPack,
	"catalog": runCatalog,
}

func threadsDir(cfg Config) string  { return filepath.Join(cfg.OutputDir, "threads") }
func markdownDir(cfg Config) string { return filepath.Join(cfg.OutputDir, "markdown") }
func shardsDir(cfg Config) string   { return filepath.Join(cfg.OutputDir, "shards") }

func runSplit(ctx context.Context, cfg Config, set *archive.ConversationSet, out io.Writer) error {
	res, err := archive.SplitConversations(ctx, set, threadsDir(cfg), archive.SplitOptions{
		Headers:           cfg.Headers,
		OverwriteExisting: cfg.Overwrite,
		Pretty:            cfg.Pretty,
		TurnsPerChunk:     cfg.TurnsPerChunk,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "threads_written=%d chunks_written=%d bytes_written=%d out_dir=%s\n",
		res.ThreadsWritten, res.ChunksWritten, res.BytesWritten, threadsDir(cfg))
	return nil
}

func runRender(ctx context.Context, cfg Config, set *archive.ConversationSet, out io.Writer) error {
	written, err := render.WriteAll(set, markdownDir(cfg), render.WriteOptions{
		Options:   render.Options{FrontMatter: true},
		Headers:   cfg.Headers,
		Overwrite: cfg.Overwrite,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "markdown_written=%d out_dir=%s\n", len(written), markdownDir(cfg))
	return nil
}

func runPack(ctx context.Context, cfg Config, set *archive.ConversationSet, out io.Writer) error {
	index, err := render.WriteShards(set, render.ShardOptions{
		OutDir:    shardsDir(cfg),
		MaxBytes:  cfg.MaxShardBytes,
		Overwrite: cfg.Overwrite,
		Headers:   cfg.Headers,
	})
	if err != nil {
		return err
	}
	indexPath := filepath.Join(shardsDir(cfg), "index.jsonl")
	if err := render.WriteShardIndex(indexPath, index, cfg.Overwrite); err != nil {
		return err
	}
	shards := map[string]struct{}{}
	for _, r := range index {
		shards[r.ShardFile] = struct{}{}
	}
	fmt.Fprintf(out, "shards_written=%d conversations=%d index=%s\n", len(shards), len(index), indexPath)
	return nil
}

func runCatalog(ctx context.Context, cfg Config, set *archive.ConversationSet, out io.Writer) error {
	store, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("closing catalog")
		}
	}()

	n, err := store.UpsertSet(ctx, set)
	if err != nil {
		return err
	}
	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "catalogued=%d total=%d db=%s\n", n, total, cfg.CatalogPath)
	return nil
}

// selectStages resolves --only-stage / --from-stage against the known stage order.
func selectStages(only, from string) ([]string, error) {
	if only != "" && from != "" {
		return nil, usageError{errors.New("use only one of --only-stage or --from-stage")}
	}
	if only != "" {
		if _, ok := stageFuncs[only]; !ok {
			return nil, usageError{errors.Errorf("unknown stage %q", only)}
		}
		return []string{only}, nil
	}
	if from != "" {
		stages := stagesFrom(allStages, from)
		if len(stages) == 0 {
			return nil, usageError{errors.Errorf("unknown stage %q", from)}
		}
		return stages, nil
	}
	return append([]string(nil), allStages...), nil
}

func stagesFrom(all []string, from string) []string {
	for i, s := range all {
		if s == from {
			return append([]string(nil), all[i:]...)
		}
	}
	return nil
}
