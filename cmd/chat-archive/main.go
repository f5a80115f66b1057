package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		var ue usageError
		if errors.As(err, &ue) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// usageError marks configuration mistakes; they exit with status 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "chat-archive",
		Short:         "Reconstruct and export conversation history from a ChatGPT data export",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(v, cmd.Flags()); err != nil {
				return usageError{err}
			}
			return initLogger(&logConfig{
				Level:      v.GetString("log_level"),
				LogFile:    v.GetString("log_file"),
				LogFormat:  v.GetString("log_format"),
				WithCaller: v.GetBool("with_caller"),
			})
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Path to config file (default ./chat-archive.yaml or ~/.chat-archive/chat-archive.yaml)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error, fatal)")
	pf.String("log-format", "text", "Log format (json, text)")
	pf.String("log-file", "", "Also log to this file (rotated)")
	pf.Bool("with-caller", false, "Log caller")
	pf.String("input", "", "Path to conversations.json or an export .zip (default: newest zip in ~/Downloads)")
	pf.String("array-field", "", "If top-level JSON is an object, name of field containing the conversations array")
	pf.Int("workers", 0, "Parallel workers for building conversations (0 = GOMAXPROCS)")
	pf.Bool("fallback-to-latest-leaf", false, "Use the newest leaf when a conversation has no current_node")
	pf.String("output-dir", "", "Base output directory")

	root.AddCommand(
		newSplitCmd(v),
		newRenderCmd(v),
		newPackCmd(v),
		newCatalogCmd(v),
		newExportCmd(v),
		newListCmd(v),
		newShowCmd(v),
		newSchemaCmd(),
		newSaveConfigCmd(v),
	)
	return root
}

// initConfig reads the config file (if any), environment variables and the flags of
// the executing command into v. Flag names map to keys with '-' replaced by '_'.
func initConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	setDefaults(v)

	v.SetEnvPrefix("chat_archive")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return bindErr
	}

	if configPath := v.GetString("config"); configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("chat-archive")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.chat-archive")
		if xdg, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(xdg + "/chat-archive")
		}
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return err
	}
	return nil
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initLogger(config *logConfig) error {
	var logWriter io.Writer
	if config.LogFormat == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	log.Logger = zerolog.New(logWriter).With().Timestamp().Logger()
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}

	switch config.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	default:
		return usageError{fmt.Errorf("unknown log level %q", config.Level)}
	}
	return nil
}
