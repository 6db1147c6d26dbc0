package main

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasm-boot/errors"
)

var errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))

type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// reportedError marks an error that was already logged.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error {
	return e.error
}

func reported(err error) bool {
	var r reportedError
	return stderrors.As(err, &r)
}

// exitCode maps a command error to a process exit status. A guest WASI exit
// keeps its code unless it happened during initialization. Codes are cut to the
// low byte the OS reports; a nonzero code whose low byte is zero becomes 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.IsInitFailure(err) {
		return 1
	}
	var exitErr *sys.ExitError
	if stderrors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case sys.ExitCodeContextCanceled:
			return 130
		case sys.ExitCodeDeadlineExceeded:
			return 124
		}
		code := exitErr.ExitCode()
		if code != 0 && code&0xff == 0 {
			return 1
		}
		return int(code & 0xff)
	}
	return 1
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("error:"), err)
}
