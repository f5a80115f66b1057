package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/theimaginaryfoundation/chat-archive/archive"
	"github.com/theimaginaryfoundation/chat-archive/render"
)

func addWriteFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("pretty", false, "Pretty-print JSON output")
	cmd.Flags().Bool("overwrite", false, "Overwrite existing output files")
}

// newStageCmd wires a single export stage as its own subcommand.
func newStageCmd(v *viper.Viper, name, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromViper(v)
			if err != nil {
				return err
			}
			set, err := loadSet(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return stageFuncs[name](cmd.Context(), cfg, set, cmd.OutOrStdout())
		},
	}
	addWriteFlags(cmd)
	return cmd
}

func newSplitCmd(v *viper.Viper) *cobra.Command {
	cmd := newStageCmd(v, "split", "Write one linearized transcript JSON per conversation")
	cmd.Flags().Int("turns-per-chunk", 0, "Also write turn chunks of this many turns (0 disables)")
	return cmd
}

func newRenderCmd(v *viper.Viper) *cobra.Command {
	return newStageCmd(v, "render", "Render each conversation as a markdown file")
}

func newPackCmd(v *viper.Viper) *cobra.Command {
	cmd := newStageCmd(v, "pack", "Pack rendered conversations into size-bounded markdown shards")
	cmd.Flags().Int("max-shard-bytes", 100*1024, "Approximate maximum bytes per shard")
	return cmd
}

func newCatalogCmd(v *viper.Viper) *cobra.Command {
	cmd := newStageCmd(v, "catalog", "Upsert conversation metadata into a SQLite catalog")
	cmd.Flags().String("catalog-path", "", "SQLite catalog path (default <output-dir>/catalog.db)")
	return cmd
}

func newExportCmd(v *viper.Viper) *cobra.Command {
	var onlyStage, fromStage string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run the export stages (" + strings.Join(allStages, ", ") + ") over one decoded export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := selectStages(onlyStage, fromStage)
			if err != nil {
				return err
			}
			cfg, err := configFromViper(v)
			if err != nil {
				return err
			}
			set, err := loadSet(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			for _, stage := range stages {
				log.Info().Str("stage", stage).Msg("running stage")
				if err := stageFuncs[stage](cmd.Context(), cfg, set, cmd.OutOrStdout()); err != nil {
					return errors.Wrapf(err, "stage %s", stage)
				}
			}
			return nil
		},
	}
	addWriteFlags(cmd)
	cmd.Flags().StringVar(&onlyStage, "only-stage", "", "Run only this stage")
	cmd.Flags().StringVar(&fromStage, "from-stage", "", "Run this stage and every stage after it")
	cmd.Flags().Int("turns-per-chunk", 0, "Also write turn chunks of this many turns (0 disables)")
	cmd.Flags().Int("max-shard-bytes", 100*1024, "Approximate maximum bytes per shard")
	cmd.Flags().String("catalog-path", "", "SQLite catalog path (default <output-dir>/catalog.db)")
	return cmd
}

func newListCmd(v *viper.Viper) *cobra.Command {
	var since, until, title string
	var failures bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, optionally filtered by title and date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRange(since, until)
			if err != nil {
				return err
			}
			cfg, err := configFromViper(v)
			if err != nil {
				return err
			}
			set, err := loadSet(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if failures {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "INDEX\tID\tTITLE\tERROR")
				for _, f := range set.Failures() {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%v\n", f.Index, f.ConversationID, f.Title, f.Err)
				}
				return tw.Flush()
			}

			convs := set.FilterByDate(r).All()
			if title != "" {
				convs = archive.NewConversationSet(convs...).FindByTitle(title)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUPDATED\tMESSAGES\tTITLE")
			for _, c := range convs {
				updated := ""
				if t := c.UpdatedAt(); !t.IsZero() {
					updated = t.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID(), updated, len(c.Linearize()), c.Title())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Only conversations active on or after this date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&until, "until", "", "Only conversations active on or before this date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&title, "title", "", "Only conversations whose title contains this text")
	cmd.Flags().BoolVar(&failures, "failures", false, "List records that could not be reconstructed instead")
	return cmd
}

func newShowCmd(v *viper.Viper) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "show <id-or-title>",
		Short: "Print one conversation as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromViper(v)
			if err != nil {
				return err
			}
			set, err := loadSet(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			c, ok := set.FindByID(args[0])
			if !ok {
				matches := set.FindByTitle(args[0])
				switch len(matches) {
				case 0:
					return errors.Errorf("no conversation matches %q", args[0])
				case 1:
					c = matches[0]
				default:
					return errors.Errorf("%d conversations match %q; use an id", len(matches), args[0])
				}
			}

			md, err := render.Markdown(c.Transcript(cfg.Headers), render.Options{Title: true})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !plain && isTerminal(out) {
				r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
				if err != nil {
					return errors.Wrap(err, "create markdown renderer")
				}
				styled, err := r.Render(md)
				if err != nil {
					return errors.Wrap(err, "render markdown")
				}
				md = styled
			}
			_, err = fmt.Fprint(out, md)
			return err
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Print raw markdown even on a terminal")
	return cmd
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "schema <" + strings.Join(archive.SchemaNames(), "|") + ">",
		Short:     "Print the JSON schema of an input or output document",
		Args:      cobra.ExactArgs(1),
		ValidArgs: archive.SchemaNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := archive.SchemaJSON(args[0])
			if err != nil {
				return usageError{err}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}

func newSaveConfigCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "save-config [path]",
		Short: "Write the effective configuration to a YAML file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := configFromViper(v); err != nil {
				return err
			}
			path := "chat-archive.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := v.WriteConfigAs(path); err != nil {
				return errors.Wrapf(err, "write config %s", path)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
			return nil
		},
	}
}
