package buildsys

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/shell"
)

// Tool is an external program invoked by task actions.
type Tool struct {
	Path string
	Dir  string
	Env  []string
}

// LookupTool searches PATH for the named executable
func LookupTool(name string) (Tool, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return Tool{}, eris.Wrapf(err, "could not find %s in PATH", name)
	}

	return Tool{Path: path}, nil
}

// InDir returns a copy of the tool that runs in the given working directory
func (t Tool) InDir(dir string) Tool {
	t.Dir = dir
	return t
}

// WithEnv returns a copy of the tool with additional KEY=value environment entries
func (t Tool) WithEnv(env ...string) Tool {
	t.Env = append(append([]string{}, t.Env...), env...)
	return t
}

// Run executes the tool and waits for it to exit. Output is forwarded to the context's
// logger. A non-zero exit status is reported as *ProcessError. If ctx ends while the tool
// runs, the returned error wraps ctx.Err().
func (t Tool) Run(ctx context.Context, args ...string) error {
	if t.Path == "" {
		return eris.New("tool path is empty")
	}

	cmdline := commandLine(t.Path, args)
	logger := log(ctx)
	logger.Info().Bool("command", true).Msg(cmdline)

	cmd := exec.CommandContext(ctx, t.Path, args...)
	cmd.Dir = t.Dir
	if len(t.Env) > 0 {
		cmd.Env = append(os.Environ(), t.Env...)
	}

	output := newOutputCapture(logger)
	cmd.Stdout = output
	cmd.Stderr = output

	err := cmd.Run()
	output.Flush()
	if err != nil {
		// a killed process would otherwise look like a regular failure
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s was interrupted: %w", cmdline, ctxErr)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ProcessError{
				Command:  cmdline,
				ExitCode: exitErr.ExitCode(),
				Output:   output.Tail(),
			}
		}

		return eris.Wrapf(err, "failed to run %s", cmdline)
	}

	return nil
}

// RunArgs splits the argument string the way a POSIX shell would and runs the tool with the result.
func (t Tool) RunArgs(ctx context.Context, arguments string) error {
	args, err := shell.Fields(arguments, os.Getenv)
	if err != nil {
		return eris.Wrapf(err, "failed to parse arguments %s", arguments)
	}

	return t.Run(ctx, args...)
}

func commandLine(path string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, filepath.Base(path))
	for _, arg := range args {
		if arg == "" || strings.ContainsAny(arg, " \t\"'$") {
			arg = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
		}
		parts = append(parts, arg)
	}

	return strings.Join(parts, " ")
}
