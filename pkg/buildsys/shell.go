package buildsys

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

var (
	helperLock   sync.RWMutex
	helperBinary string
)

// SetHelperBinary configures the executable that provides the cross-platform mv, rm, mkdir
// and cp implementations (through its "tool" subcommand). Shell scripts call the system
// commands while this is empty.
func SetHelperBinary(path string) {
	helperLock.Lock()
	defer helperLock.Unlock()

	helperBinary = path
}

func getHelperBinary() string {
	helperLock.RLock()
	defer helperLock.RUnlock()

	return helperBinary
}

var defaultExecHandler = interp.DefaultExecHandler(2)

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "mv", "rm", "mkdir", "cp":
			// always use our own implementation for these so they behave the same everywhere
			if helper := getHelperBinary(); helper != "" {
				args = append([]string{helper, "tool"}, args...)
			}
		}
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func shellEnv(env map[string]string) expand.Environ {
	envVars := os.Environ()

	// sorted to keep the environment stable between runs
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		envVars = append(envVars, fmt.Sprintf("%s=%s", name, env[name]))
	}

	return expand.ListEnviron(envVars...)
}

// ShellAction returns an action that runs script with the builtin POSIX shell
func ShellAction(script, dir string, env map[string]string) Action {
	return func(ctx context.Context) error {
		return RunShell(ctx, dir, env, script)
	}
}

// RunShell parses the scripts and executes them statement by statement with "set -e"
// semantics. All scripts share one shell, so cd, variables and options carry over from
// one script to the next. Every statement is logged before it runs.
func RunShell(ctx context.Context, dir string, env map[string]string, scripts ...string) error {
	stmts, err := parseScripts(scripts...)
	if err != nil {
		return err
	}

	return runStmts(ctx, stmts, dir, env)
}

func parseScripts(scripts ...string) ([]*syntax.Stmt, error) {
	parser := syntax.NewParser()
	stmts := make([]*syntax.Stmt, 0, len(scripts))

	for idx, script := range scripts {
		file, err := parser.Parse(strings.NewReader(script), fmt.Sprintf("script #%d", idx))
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse command %s", script)
		}
		stmts = append(stmts, file.Stmts...)
	}

	return stmts, nil
}

func runStmts(ctx context.Context, stmts []*syntax.Stmt, dir string, env map[string]string) error {
	logger := log(ctx)
	output := newOutputCapture(logger)

	if dir == "" {
		dir = "."
	}

	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(shellEnv(env)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, output, output),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize runner")
	}

	printer := syntax.NewPrinter(syntax.Minify(true))
	buffer := strings.Builder{}

	for _, stmt := range stmts {
		buffer.Reset()
		err = printer.Print(&buffer, stmt)
		if err != nil {
			return eris.Wrap(err, "failed to print command")
		}

		line := buffer.String()
		logger.Info().Bool("command", true).Msg(line)

		err = runner.Run(ctx, stmt)
		output.Flush()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%s was interrupted: %w", line, ctxErr)
			}

			if status, ok := interp.IsExitStatus(err); ok {
				return &ProcessError{
					Command:  line,
					ExitCode: int(status),
					Output:   output.Tail(),
				}
			}

			return eris.Wrapf(err, "failed to run %s", line)
		}

		if runner.Exited() {
			return nil
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
