package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/chatnotify/internal/config"
	"github.com/jmylchreest/chatnotify/internal/store"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global configuration and state
var (
	cfg        *config.Config
	globalOpts struct {
		verbose     bool
		historyFile string
		configPath  string
		endpoint    string
	}
	logger *slog.Logger

	// historyStore is opened on first use by commands that need it.
	historyStore *store.Store
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "chatnotify",
	Short: "Control the chat notification agent",
	Long: `chatnotify talks to a running chatnotifyd and inspects its state.

It can request or change the notification permission, ask the agent to
show notifications, deliver push payloads, queue chat messages for
resending, and browse the notification history.

Running chatnotify without a subcommand launches the history TUI.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()

		var err error
		cfg, err = config.LoadConfig(globalOpts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := config.EnsureDataDir(); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if historyStore != nil {
			return historyStore.Close()
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.historyFile, "history-file", "",
		"Path to history file (default: ~/.local/share/chatnotify/history.jsonl)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/chatnotify/chatnotifyd.toml)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.endpoint, "endpoint", "",
		"Base URL of the agent's HTTP endpoint (default: from server.listen)")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	// Log to stderr so stdout is clean for output
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

// historyPath returns the history file in use.
func historyPath() (string, error) {
	if globalOpts.historyFile != "" {
		return config.ExpandPath(globalOpts.historyFile), nil
	}
	return config.HistoryPath()
}

// getStore opens and hydrates the history store.
func getStore() (*store.Store, error) {
	if historyStore != nil {
		return historyStore, nil
	}

	path, err := historyPath()
	if err != nil {
		return nil, err
	}
	persistence, err := store.NewJSONLPersistence(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize persistence: %w", err)
	}

	historyStore = store.NewStore(persistence)
	if err := historyStore.Hydrate(); err != nil {
		logger.Warn("failed to hydrate store from disk", "error", err)
	}
	return historyStore, nil
}

// stateFile returns the shared state file.
func stateFile() (*store.StateFile, error) {
	path, err := config.StatePath()
	if err != nil {
		return nil, err
	}
	return store.NewStateFile(path), nil
}
