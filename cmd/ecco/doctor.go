package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ecco-sh/ecco/internal/config"
	"github.com/ecco-sh/ecco/internal/runner"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Print local diagnostic information for troubleshooting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exe, _ := os.Executable()
			exe = strings.TrimSpace(exe)
			look, _ := exec.LookPath("ecco")
			look = strings.TrimSpace(look)

			fmt.Fprintf(os.Stdout, "ecco_executable=%s\n", exe)
			if look != "" {
				fmt.Fprintf(os.Stdout, "ecco_on_path=%s\n", look)
			}
			if exe != "" && look != "" {
				absExe, _ := filepath.EvalSymlinks(exe)
				absLook, _ := filepath.EvalSymlinks(look)
				if absExe != "" && absLook != "" && absExe != absLook {
					fmt.Fprintln(os.Stdout, "warning=you_are_not_running_the_same_ecco_as_on_PATH (adjust PATH or call the intended binary explicitly)")
				}
			}

			shell := runner.DefaultShell()
			fmt.Fprintf(os.Stdout, "shell=%s\n", shell)
			fmt.Fprintf(os.Stdout, "shell_found=%t\n", toolOnPath(shell))
			fmt.Fprintf(os.Stdout, "tmux_found=%t\n", toolOnPath("tmux"))
			fmt.Fprintf(os.Stdout, "inside_tmux=%t\n", os.Getenv("TMUX") != "")
			if term := os.Getenv("TERMINAL"); term != "" {
				fmt.Fprintf(os.Stdout, "TERMINAL=%s found=%t\n", term, toolOnPath(term))
			}
			fmt.Fprintf(os.Stdout, "x_terminal_emulator_found=%t\n", toolOnPath("x-terminal-emulator"))

			fmt.Fprintf(os.Stdout, "config_path=%s\n", root.configPath)
			cfg, err := config.Load(root.configPath)
			if err != nil {
				fmt.Fprintf(os.Stdout, "config_error=%s\n", err.Error())
				return nil
			}
			if cfg == nil {
				fmt.Fprintln(os.Stdout, "config_present=false")
				return nil
			}
			fmt.Fprintln(os.Stdout, "config_present=true")
			fmt.Fprintf(os.Stdout, "config_log_dir=%s\n", cfg.LogDir)
			fmt.Fprintf(os.Stdout, "config_shell=%s\n", cfg.Shell)
			fmt.Fprintf(os.Stdout, "config_viewer=%s\n", cfg.ViewerMode())
			fmt.Fprintf(os.Stdout, "config_poll_ms=%d\n", cfg.PollMs)
			fmt.Fprintf(os.Stdout, "config_linger=%s\n", cfg.Linger())
			fmt.Fprintf(os.Stdout, "config_compress=%t\n", cfg.Compress)
			return nil
		},
	}
	return cmd
}

func toolOnPath(name string) bool {
	if name == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
