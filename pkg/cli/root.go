// Package cli wires the tw-reminders commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/twreminders/pkg/auth"
	"github.com/harrisonrobin/twreminders/pkg/config"
	"github.com/harrisonrobin/twreminders/pkg/google"
	"github.com/harrisonrobin/twreminders/pkg/locations"
	"github.com/harrisonrobin/twreminders/pkg/reminders"
	"github.com/harrisonrobin/twreminders/pkg/state"
	"github.com/harrisonrobin/twreminders/pkg/taskwarrior"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// Exit codes.
const (
	exitSuccess     = 0
	exitFailure     = 1
	exitConfigError = 2
)

// hookAnnotation marks commands that must hand the task back to
// Taskwarrior even when the configuration cannot be loaded.
const hookAnnotation = "hook"

// app holds the flag values and collaborators shared by all commands.
type app struct {
	configFile string
	dataDir    string
	verbose    bool

	cfg    *config.Config
	cfgErr error
	log    *slog.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	newAgent func(ctx context.Context, cfg *config.Config, log *slog.Logger) (reminders.Agent, error)
	newTasks func(cfg *config.Config) taskwarrior.Store
}

func newApp() *app {
	return &app{
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		newAgent: defaultAgent,
		newTasks: defaultTasks,
	}
}

func defaultAgent(ctx context.Context, cfg *config.Config, log *slog.Logger) (reminders.Agent, error) {
	switch cfg.Remote {
	case config.RemoteGoogle:
		files := auth.Files{Credentials: cfg.Google.Credentials, Token: cfg.Google.Token}
		c, err := google.NewClient(ctx, files, cfg.Agent.Timeout, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return reminders.NewCommandAgent(cfg.Agent.Path, cfg.Agent.Timeout), nil
	}
}

func defaultTasks(cfg *config.Config) taskwarrior.Store {
	return taskwarrior.NewClient(
		taskwarrior.WithBinary(cfg.Task.Binary),
		taskwarrior.WithDataDir(cfg.Task.Data),
	)
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tw-reminders",
		Short:         "Two-way sync between Taskwarrior and a reminder service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/tw-reminders/config.yaml)")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (overrides data_dir)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.newSyncCmd(),
		a.newHookCmd(),
		a.newStatusCmd(),
		a.newAuthCmd(),
		a.newConfigCmd(),
		a.newVersionCmd(),
	)
	return root
}

// setup loads the configuration and installs the logger. Hook commands
// record a configuration error instead of failing so the task still goes
// back to Taskwarrior.
func (a *app) setup(cmd *cobra.Command) error {
	level := slog.LevelInfo
	cfg, err := config.Load(a.configFile)
	if err == nil {
		if a.dataDir != "" {
			cfg.DataDir = a.dataDir
		}
		level = cfg.LogLevel()
	}
	if a.verbose {
		level = slog.LevelDebug
	}
	a.log = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.log)

	if err != nil {
		if _, isHook := cmd.Annotations[hookAnnotation]; isHook {
			a.cfgErr = err
			return nil
		}
		return err
	}
	a.cfg = cfg
	a.log.Debug("configuration loaded", "file", cfg.File, "data_dir", cfg.DataDir, "remote", cfg.Remote)
	return nil
}

func (a *app) openState() (state.Store, error) {
	return state.Open(a.cfg.State.Backend, a.cfg.DataDir)
}

// isConfigError reports whether err comes from a configuration file the
// operator has to fix.
func isConfigError(err error) bool {
	return errors.Is(err, config.ErrInvalidConfig) ||
		errors.Is(err, state.ErrMalformedState) ||
		errors.Is(err, locations.ErrMalformedDirectory)
}

func (a *app) execute(ctx context.Context, args []string) int {
	root := a.newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(a.stderr, "tw-reminders:", err)
		if isConfigError(err) {
			return exitConfigError
		}
		return exitFailure
	}
	return exitSuccess
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return newApp().execute(context.Background(), os.Args[1:])
}
