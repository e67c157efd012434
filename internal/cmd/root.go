package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ritiek/smsdb-import/internal/config"
	"github.com/ritiek/smsdb-import/internal/importer"
	"github.com/ritiek/smsdb-import/internal/notify"
	"github.com/ritiek/smsdb-import/internal/smsdb"
)

const appName = "smsdb-import"

// natsConnectTimeout bounds the wait for the optional event bus.
const natsConnectTimeout = 5 * time.Second

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)

	var (
		configFile string
		askKey     bool
	)

	root := &cobra.Command{
		Use:   appName + " [input-path store-path]",
		Short: "Import a tab-separated text message export into an iPhone sms.db",
		Long: `smsdb-import reads an export of text messages, one per line as
unix-timestamp<TAB>address<TAB>s|r<TAB>text, groups them into conversations
and appends them to an existing iPhone sms.db backup.

Both the legacy (msg_group) and the chat (chat/handle) layouts are supported.
The store's triggers are suspended for the import and restored afterwards.

Without arguments the input and store paths come from the configuration
(defaults: input.txt and sms.db).`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 arg(s), received %d", len(args))
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return readConfig(v, configFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if len(args) == 2 {
				v.Set(config.KeyInput, args[0])
				v.Set(config.KeyStore, args[1])
			}
			return run(cmd, v, askKey)
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/"+appName+"/config.*)")

	f := root.Flags()
	f.BoolVar(&askKey, "ask-key", false, "Prompt for the SQLCipher key of an encrypted store")
	f.String("generation", "auto", `Store layout: "auto", "legacy" or "chat"`)
	f.String("policy", "partition", `Grouping policy: "partition" or "window"`)
	f.Duration("window", 0, "Largest gap inside one conversation for the window policy (0: unlimited)")
	f.String("service", smsdb.DefaultService, "Service recorded on chat-layout rows")
	f.Duration("busy-timeout", 30*time.Second, "How long to wait for a locked store")
	f.Bool("continue-on-error", false, "Keep importing after a conversation fails")
	f.Bool("dry-run", false, "Parse and group the input without touching the store")
	f.String("log-level", "info", `Log level: "debug", "info", "warn" or "error"`)
	f.String("log-format", "text", `Log format: "text" or "json"`)
	f.String("nats-url", "", "Publish a completion event to this NATS server")
	f.String("nats-subject", notify.SubjectImportCompleted, "Subject for the completion event")

	for key, flag := range map[string]string{
		config.KeyGeneration:      "generation",
		config.KeyPolicy:          "policy",
		config.KeyWindow:          "window",
		config.KeyService:         "service",
		config.KeyBusyTimeout:     "busy-timeout",
		config.KeyContinueOnError: "continue-on-error",
		config.KeyDryRun:          "dry-run",
		config.KeyLogLevel:        "log-level",
		config.KeyLogFormat:       "log-format",
		config.KeyNatsURL:         "nats-url",
		config.KeyNatsSubject:     "nats-subject",
	} {
		cobra.CheckErr(v.BindPFlag(key, f.Lookup(flag)))
	}

	root.AddCommand(newVersionCmd())
	return root
}

func configDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, appName)
}

// readConfig loads an explicit config file, or the default one when it
// exists. Nothing is created on disk.
func readConfig(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", file, err)
		}
		return nil
	}

	if dir := configDir(); dir != "" {
		v.AddConfigPath(dir)
	}
	v.SetConfigName("config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

func run(cmd *cobra.Command, v *viper.Viper, askKey bool) error {
	cfg := config.Load(v)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := setupLogging(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

	if askKey {
		key, err := readKey(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		cfg.StoreKey = key
	}

	ctx := cmd.Context()

	var publisher notify.Publisher
	if cfg.NatsURL != "" && !cfg.DryRun {
		connectCtx, cancel := context.WithTimeout(ctx, natsConnectTimeout)
		client, err := notify.NewClient(connectCtx, cfg.NatsURL, cfg.NatsToken, logger)
		cancel()
		if err != nil {
			logger.Warn("running without completion events", "error", err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("NATS connected", "url", cfg.NatsURL)
		}
	}

	logger.Info("import starting",
		"input", cfg.InputPath,
		"store", cfg.StorePath,
		"generation", cfg.Generation,
		"policy", cfg.Policy,
		"dry_run", cfg.DryRun,
	)

	sum, err := importer.NewRunner(cfg, publisher, logger).Run(ctx)
	if sum != nil {
		printSummary(cmd.OutOrStdout(), cfg, sum)
	}
	if err != nil {
		if errors.Is(err, smsdb.ErrTriggerRestore) {
			logger.Error("store triggers could not be restored; restore the store from a backup", "store", cfg.StorePath)
		}
		return err
	}
	return nil
}

func setupLogging(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func printSummary(w io.Writer, cfg config.Config, sum *importer.Summary) {
	fmt.Fprintf(w, "\n=== Import Summary ===\n")
	fmt.Fprintf(w, "Run: %s\n", sum.RunID)
	fmt.Fprintf(w, "Input: %s\n", cfg.InputPath)
	fmt.Fprintf(w, "Messages read: %d\n", sum.Messages)
	fmt.Fprintf(w, "Conversations: %d (%s policy)\n", sum.Groups, sum.Policy)
	if sum.DryRun {
		fmt.Fprintf(w, "Would import: %d sent, %d received\n", sum.Outgoing, sum.Incoming)
		fmt.Fprintf(w, "Mode: DRY RUN (store not opened)\n")
		return
	}
	fmt.Fprintf(w, "Store: %s (%s layout)\n", cfg.StorePath, sum.Generation)
	fmt.Fprintf(w, "Imported: %d sent, %d received\n", sum.Outgoing, sum.Incoming)
	fmt.Fprintf(w, "Saved: %d\n", sum.SavedGroups)
	fmt.Fprintf(w, "Failed: %d\n", sum.FailedGroups)
	fmt.Fprintf(w, "Triggers suspended: %d\n", sum.TriggersSuspended)
	fmt.Fprintf(w, "Duration: %s\n", sum.Duration.Round(time.Millisecond))
}
