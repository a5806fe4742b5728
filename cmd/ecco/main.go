// ecco executes a shell command, captures its combined output into a log
// file and opens a separate live viewer that closes itself when the command
// finishes. The invoking terminal stays free of interleaved output; the
// process exit code mirrors the executed command's exit code.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecco-sh/ecco/internal/config"
	"github.com/ecco-sh/ecco/internal/launch"
	"github.com/ecco-sh/ecco/internal/viewer"
)

type rootOptions struct {
	configPath string
	jsonLogs   bool
}

func (r *rootOptions) logger() *slog.Logger {
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if r.jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	return slog.New(handler)
}

func (r *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(r.configPath)
}

func main() {
	opts := &rootOptions{}
	exitCode := 0

	rootCmd := &cobra.Command{
		Use:           "ecco",
		Short:         "Execute a command with durable log capture and a live, self-closing viewer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultConfig := os.Getenv("ECCO_CONFIG")
	if defaultConfig == "" {
		defaultConfig = config.DefaultConfigPath()
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "path to ecco config file (default $HOME/.ecco/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonLogs, "log-json", false, "emit diagnostics as JSON")

	rootCmd.AddCommand(newRunCmd(opts, &exitCode))
	rootCmd.AddCommand(newViewCmd(opts))
	rootCmd.AddCommand(newDoctorCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ecco:", err)
		os.Exit(launch.ExitConfigError)
	}
	os.Exit(exitCode)
}

type runFlags struct {
	logFile  string
	logDir   string
	shell    string
	usePTY   bool
	viewer   string
	terminal string
	poll     time.Duration
	linger   time.Duration
	compress bool
}

func newRunCmd(root *rootOptions, exitCode *int) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [flags] -- <command...>",
		Short: "Run a command, capturing output to a log with a live viewer",
		Long: `Run executes the command through a shell, appends its interleaved
stdout+stderr to a log file and spawns an independent viewer process that
tails the log and closes itself once the command completes. The ecco exit
code equals the command's exit code; 1 is reserved for configuration errors.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			merged, err := mergeRunOptions(flags, cfg, strings.Join(args, " "))
			if err != nil {
				return err
			}
			merged.Logger = root.logger()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			code, err := launch.Run(ctx, merged)
			if err != nil {
				return err
			}
			*exitCode = code
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "write the log to this exact file")
	cmd.Flags().StringVar(&flags.logDir, "log-dir", "", "write an auto-named log into this directory")
	cmd.Flags().StringVar(&flags.shell, "shell", "", "shell to interpret the command (default $SHELL)")
	cmd.Flags().BoolVar(&flags.usePTY, "pty", false, "run the command under a pseudo-terminal")
	cmd.Flags().StringVar(&flags.viewer, "viewer", "", "viewer spawn mode: auto|tmux|terminal|none")
	cmd.Flags().StringVar(&flags.terminal, "terminal", "", "terminal emulator for --viewer terminal")
	cmd.Flags().DurationVar(&flags.poll, "poll", 0, "viewer tail poll interval (default 100ms)")
	cmd.Flags().DurationVar(&flags.linger, "linger", 0, "viewer auto-close countdown (default 5s)")
	cmd.Flags().BoolVar(&flags.compress, "compress", false, "archive the finished log to <log>.zst")
	return cmd
}

// mergeRunOptions layers flags over the config file over built-in defaults.
func mergeRunOptions(flags *runFlags, cfg *config.Config, command string) (launch.Options, error) {
	opts := launch.Options{
		Command:  command,
		LogFile:  flags.logFile,
		LogDir:   flags.logDir,
		Shell:    flags.shell,
		UsePTY:   flags.usePTY,
		Terminal: flags.terminal,
		Poll:     flags.poll,
		Linger:   flags.linger,
		Compress: flags.compress,
	}
	if cfg != nil {
		if opts.LogDir == "" && opts.LogFile == "" {
			opts.LogDir = cfg.LogDir
		}
		if opts.Shell == "" {
			opts.Shell = cfg.Shell
		}
		if opts.Terminal == "" {
			opts.Terminal = cfg.Terminal
		}
		if opts.Poll == 0 {
			opts.Poll = cfg.PollInterval()
		}
		if !opts.Compress {
			opts.Compress = cfg.Compress
		}
	}
	if opts.Linger == 0 {
		opts.Linger = cfg.Linger()
	}
	mode := flags.viewer
	if mode == "" {
		mode = cfg.ViewerMode()
	}
	if !config.ValidViewerMode(mode) {
		return launch.Options{}, fmt.Errorf("invalid --viewer %q (use auto|tmux|terminal|none)", mode)
	}
	opts.ViewerMode = mode
	return opts, nil
}

func newViewCmd(root *rootOptions) *cobra.Command {
	var (
		follow bool
		skip   int
		plain  bool
		poll   time.Duration
		linger time.Duration
		grace  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "view [flags] <log-path>",
		Short: "Tail a job log, closing automatically when the job completes",
		Long: `View renders a job log. With --follow it keeps reading until the
completion marker appears, then closes itself after a short countdown. A
.zst path is decompressed and printed instead of tailed. View only needs
read access to the log; it never touches the running command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if poll == 0 {
				poll = cfg.PollInterval()
			}
			if linger == 0 {
				linger = cfg.Linger()
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = viewer.Run(ctx, viewer.Options{
				LogPath: args[0],
				Follow:  follow,
				Skip:    skip,
				Poll:    poll,
				Linger:  linger,
				Grace:   grace,
				Plain:   plain,
				Logger:  root.logger(),
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "keep reading until the completion marker")
	cmd.Flags().IntVar(&skip, "skip", 0, "skip this many leading lines")
	cmd.Flags().BoolVar(&plain, "plain", false, "stream lines instead of the TUI")
	cmd.Flags().DurationVar(&poll, "poll", 0, "tail poll interval (default 100ms)")
	cmd.Flags().DurationVar(&linger, "linger", 0, "auto-close countdown (default 5s)")
	cmd.Flags().DurationVar(&grace, "grace", 0, "how long to wait for the log to appear (default 10s)")
	return cmd
}
