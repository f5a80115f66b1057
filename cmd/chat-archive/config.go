package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/theimaginaryfoundation/chat-archive/archive"
)

// Config is the effective configuration shared by every subcommand.
type Config struct {
	InputPath            string
	ArrayField           string
	Workers              int
	FallbackToLatestLeaf bool
	Headers              archive.HeaderConfig

	OutputDir     string
	Pretty        bool
	Overwrite     bool
	TurnsPerChunk int
	MaxShardBytes int
	CatalogPath   string
}

func (c Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("missing --output-dir")
	}
	if c.Workers < 0 {
		return errors.New("workers must be >= 0")
	}
	if c.TurnsPerChunk < 0 {
		return errors.New("turns-per-chunk must be >= 0")
	}
	if c.MaxShardBytes <= 0 {
		return errors.New("max-shard-bytes must be > 0")
	}
	for role := range c.Headers {
		if _, ok := archive.DefaultHeaders[role]; !ok {
			return fmt.Errorf("author_headers: unknown role %q", role)
		}
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		OutputDir:     "chat-archive-out",
		TurnsPerChunk: 0,
		MaxShardBytes: 100 * 1024,
	}
}

func setDefaults(v *viper.Viper) {
	d := defaultConfig()
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("turns_per_chunk", d.TurnsPerChunk)
	v.SetDefault("max_shard_bytes", d.MaxShardBytes)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// configFromViper reads the effective configuration after flags, environment and the
// config file have been merged.
func configFromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		InputPath:            v.GetString("input"),
		ArrayField:           v.GetString("array_field"),
		Workers:              v.GetInt("workers"),
		FallbackToLatestLeaf: v.GetBool("fallback_to_latest_leaf"),
		OutputDir:            v.GetString("output_dir"),
		Pretty:               v.GetBool("pretty"),
		Overwrite:            v.GetBool("overwrite"),
		TurnsPerChunk:        v.GetInt("turns_per_chunk"),
		MaxShardBytes:        v.GetInt("max_shard_bytes"),
		CatalogPath:          v.GetString("catalog_path"),
	}
	if headers := v.GetStringMapString("author_headers"); len(headers) > 0 {
		cfg.Headers = archive.HeaderConfig(headers)
	}
	if cfg.CatalogPath == "" && cfg.OutputDir != "" {
		cfg.CatalogPath = filepath.Join(cfg.OutputDir, "catalog.db")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, usageError{err}
	}
	return cfg, nil
}

// resolveInput returns the configured input, or the newest export zip in ~/Downloads.
func resolveInput(cfg Config) (string, error) {
	if cfg.InputPath != "" {
		return filepath.Clean(cfg.InputPath), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", usageError{errors.New("missing --input and no home directory to search")}
	}
	p, err := archive.LatestZip(filepath.Join(home, "Downloads"))
	if err != nil {
		return "", usageError{fmt.Errorf("missing --input: %w", err)}
	}
	return p, nil
}

// loadSet decodes the configured export and builds its conversation set.
func loadSet(ctx context.Context, cfg Config) (*archive.ConversationSet, error) {
	input, err := resolveInput(cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logger := log.With().Str("input", input).Logger()
	logger.Info().Msg("loading export")

	set, err := archive.Load(ctx, input,
		archive.DecodeOptions{ArrayField: cfg.ArrayField},
		archive.SetOptions{
			Build:   archive.BuildOptions{FallbackToLatestLeaf: cfg.FallbackToLatestLeaf},
			Workers: cfg.Workers,
			Logger:  &logger,
		})
	if err != nil {
		return nil, err
	}
	logger.Info().
		Int("conversations", set.Len()).
		Int("failures", len(set.Failures())).
		Dur("elapsed", time.Since(start)).
		Msg("export loaded")
	return set, nil
}

// parseDate accepts YYYY-MM-DD or RFC3339. A date-only upper bound covers the whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC3339)", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t.UTC(), nil
}

func parseRange(since, until string) (archive.DateRange, error) {
	from, err := parseDate(since, false)
	if err != nil {
		return archive.DateRange{}, usageError{err}
	}
	to, err := parseDate(until, true)
	if err != nil {
		return archive.DateRange{}, usageError{err}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return archive.DateRange{}, usageError{errors.New("--until is before --since")}
	}
	return archive.DateRange{From: from, To: to}, nil
}
