package pty

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// Default window size for script PTYs. Scripts that care can resize via
// their own escape sequences; 80x24 matches a plain terminal.
const (
	defaultCols = 80
	defaultRows = 24
)

// Start spawns the given shell source as a child of shell, attached to a
// fresh pseudo-terminal. stdin, stdout, and stderr all sit on the slave
// side, which merges the output streams and makes interactive prompts
// render the way they would in a real terminal.
//
// The returned file is the PTY master; the caller owns it and must close
// it when the execution ends. The command has already been started.
func Start(shell, script string) (*os.File, *exec.Cmd, error) {
	cmd := exec.Command(shell, "-c", script)
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
	)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: defaultCols,
		Rows: defaultRows,
	})
	if err != nil {
		return nil, nil, err
	}

	return ptmx, cmd, nil
}
