package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/avhall/taskdeck/internal/app"
	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/backend/local"
	"github.com/avhall/taskdeck/internal/backend/remote"
	"github.com/avhall/taskdeck/internal/capture/email"
	"github.com/avhall/taskdeck/internal/config"
	"github.com/avhall/taskdeck/internal/credential"
	"github.com/avhall/taskdeck/internal/model"
	"github.com/avhall/taskdeck/internal/prefs"
	"github.com/avhall/taskdeck/internal/state"
	appsync "github.com/avhall/taskdeck/internal/sync"
)

// version is set at build time via -ldflags.
var version = "dev"

func rootCmd() *cobra.Command {
	var configPath string
	var dbPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "taskdeck",
		Short: "A terminal todo app with projects, sections, and sync",
		Long: `taskdeck is a keyboard-driven todo manager for the terminal.

Tasks live in inbox, today, and upcoming buckets, can be grouped into
projects and sections, and sync either to a local SQLite database or a
hosted backend with realtime updates.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, dbPath, debug)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/taskdeck/config.yaml)")
	cmd.Flags().StringVar(&dbPath, "db", "", "override the local database path")
	cmd.Flags().BoolVar(&debug, "debug", false, "write debug output to taskdeck.log")

	cmd.AddCommand(versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the taskdeck version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("taskdeck %s\n", version)
		},
	}
}

func run(configPath, dbPath string, debug bool) error {
	if debug {
		f, err := tea.LogToFile("taskdeck.log", "taskdeck")
		if err != nil {
			return fmt.Errorf("opening debug log: %w", err)
		}
		defer f.Close()
	}

	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if dbPath != "" {
		cfg.Backend.DBPath = dbPath
	}

	client, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	store := state.New()
	syncer := appsync.New(store, client)

	prefsPath := prefs.DefaultPath()
	p := prefs.Load(prefsPath)
	store.SetView(p.CurrentView)

	root := app.New(store, syncer, p, prefsPath, captureFunc(cfg, store, client))

	if cfg.EmailCapture.Enabled && cfg.EmailCapture.PollIntervalSec > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go runCaptureLoop(ctx, cfg, store, client)
	}

	program := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}

func openBackend(cfg *config.AppConfig) (backend.Client, error) {
	switch cfg.Backend.Mode {
	case config.ModeRemote:
		return remote.New(cfg.Backend.BaseURL, cfg.Backend.APIKey), nil
	default:
		b, err := local.New(cfg.Backend.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening local database: %w", err)
		}
		return b, nil
	}
}

// runCaptureLoop waits for a session, then polls the mailbox on the
// configured interval. Capture errors are swallowed; a flaky mail
// server must not disturb the UI.
func runCaptureLoop(ctx context.Context, cfg *config.AppConfig, store *state.Store, client backend.Client) {
	interval := time.Duration(cfg.EmailCapture.PollIntervalSec) * time.Second

	var user *model.User
	for user == nil {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
			user = store.User()
		}
	}

	password, err := credential.Get(credential.KeyEmailPassword)
	if err != nil {
		return
	}

	ec := cfg.EmailCapture
	mailbox := email.NewClient(ec.Server, ec.Port, ec.Username, password, ec.Mailbox)
	email.NewCapturer(mailbox, client, user.ID).Loop(ctx, interval, nil)
}

// captureFunc builds the email capture hook for the ":capture" command.
// Returns nil when capture is disabled; the IMAP password is read from
// the keyring at call time so enabling capture never prompts at startup.
func captureFunc(cfg *config.AppConfig, store *state.Store, client backend.Client) app.CaptureFunc {
	if !cfg.EmailCapture.Enabled {
		return nil
	}
	ec := cfg.EmailCapture
	return func(ctx context.Context) (int, error) {
		user := store.User()
		if user == nil {
			return 0, errors.New("sign in before capturing email")
		}
		password, err := credential.Get(credential.KeyEmailPassword)
		if err != nil {
			return 0, fmt.Errorf("email password not found in keyring (store it under %q): %w", credential.KeyEmailPassword, err)
		}
		mailbox := email.NewClient(ec.Server, ec.Port, ec.Username, password, ec.Mailbox)
		return email.NewCapturer(mailbox, client, user.ID).RunOnce(ctx)
	}
}
