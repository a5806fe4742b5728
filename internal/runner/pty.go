package runner

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// startPTY launches cmd with all three standard streams on the slave side of
// a fresh pseudo-terminal and returns the master side for draining.
func startPTY(cmd *exec.Cmd) (*os.File, error) {
	ptyFile, ttyFile, err := pty.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = ttyFile.Close() }()

	_ = pty.Setsize(ptyFile, &pty.Winsize{Cols: 120, Rows: 30})

	cmd.Stdin = ttyFile
	cmd.Stdout = ttyFile
	cmd.Stderr = ttyFile
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true

	if err := cmd.Start(); err != nil {
		_ = ptyFile.Close()
		return nil, err
	}
	return ptyFile, nil
}

// isPTYClosed reports whether a read error is the EIO a pty master returns
// after the child hangs up.
func isPTYClosed(err error) bool {
	return errors.Is(err, syscall.EIO)
}
