package buildsys

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/syntax"
)

// ScriptFile is the name of the optional task script in the project root
const ScriptFile = "tasks.star"

type parserCtx struct {
	ctx          context.Context
	options      map[string]ScriptOption
	optionValues map[string]string
	envOverrides map[string]string
	yamlCache    map[string]interface{}
	filepath     string
	projectRoot  string
	tasks        []*Task
	taskEnvs     []map[string]string
	initPhase    bool
}

func getCtx(thread *starlark.Thread) *parserCtx {
	return thread.Local("parserCtx").(*parserCtx)
}

// iterableToTaskNames accepts task names as well as task values returned by task()
func iterableToTaskNames(input *starlark.List, field string) ([]string, error) {
	if input == nil {
		return nil, nil
	}

	result := make([]string, 0, input.Len())
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		switch value := item.(type) {
		case starlark.String:
			result = append(result, value.GoString())
		case *Task:
			result = append(result, value.Name)
		default:
			return nil, eris.Errorf("expected all items in %s to be strings or tasks but found %s", field, item.Type())
		}
	}
	return result, nil
}

// quoteWord turns a single argument into a shell word that survives parsing unchanged
func quoteWord(value string) *syntax.Word {
	var part syntax.WordPart
	if value == "" || strings.ContainsAny(value, " \t$'\"*?[]&|;<>()\\") {
		if strings.Contains(value, "'") {
			part = &syntax.DblQuoted{Parts: []syntax.WordPart{&syntax.Lit{Value: escapeDouble(value)}}}
		} else {
			part = &syntax.SglQuoted{Value: value}
		}
	} else {
		part = &syntax.Lit{Value: value}
	}

	return &syntax.Word{Parts: []syntax.WordPart{part}}
}

func escapeDouble(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`, "`", "\\`")
	return replacer.Replace(value)
}

// argvToScript converts a list of command parts into a shell command. Leading KEY=value
// parts become variable assignments.
func argvToScript(parts []starlark.Value, parser *syntax.Parser, base string) (string, error) {
	cmd := new(syntax.CallExpr)

	pos := 0
	for ; pos < len(parts); pos++ {
		value, ok := parts[pos].(starlark.String)
		if !ok {
			break
		}

		eq := strings.Index(value.GoString(), "=")
		if eq < 1 || !syntax.ValidName(value.GoString()[:eq]) {
			break
		}

		result, err := parser.Parse(strings.NewReader(value.GoString()), "env vars")
		if err != nil {
			return "", eris.Wrapf(err, "failed to parse command vars %s", value.GoString())
		}

		if len(result.Stmts) != 1 {
			return "", eris.Errorf("malformed env var %s", value.GoString())
		}

		call, ok := result.Stmts[0].Cmd.(*syntax.CallExpr)
		if !ok || len(call.Assigns) == 0 || len(call.Args) > 0 {
			return "", eris.Errorf("malformed env var %s", value.GoString())
		}

		cmd.Assigns = append(cmd.Assigns, call.Assigns...)
	}

	for _, arg := range parts[pos:] {
		var encoded string

		switch value := arg.(type) {
		case starlark.String:
			encoded = value.GoString()
		case StarlarkPath:
			encoded = string(value)

			// absolute paths cause issues on Windows
			if filepath.IsAbs(encoded) {
				if rel, err := filepath.Rel(base, encoded); err == nil {
					encoded = rel
				}
			}

			encoded = filepath.ToSlash(encoded)
		default:
			return "", eris.Errorf("found argument of type %s but only strings and paths are supported: %s", arg.Type(), arg.String())
		}

		cmd.Args = append(cmd.Args, quoteWord(encoded))
	}

	if len(cmd.Args) == 0 {
		return "", eris.New("command has no arguments")
	}

	buffer := strings.Builder{}
	err := syntax.NewPrinter(syntax.Minify(true)).Print(&buffer, cmd)
	if err != nil {
		return "", err
	}

	return buffer.String(), nil
}

func scriptLog(thread *starlark.Thread, warning bool, msg string) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos
	text := fmt.Sprintf("%s:%d:%d: %s", simplifyPath(ctx, ctx.filepath), pos.Line, pos.Col, msg)

	if warning {
		log(ctx.ctx).Warn().Msg(text)
	} else {
		log(ctx.ctx).Info().Msg(text)
	}
}

func task(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var deps, before, after, cmds *starlark.List
	var env *starlark.Dict
	var base string

	task := new(Task)
	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name?", &task.Name, "desc?", &task.Desc,
		"deps?", &deps, "before?", &before, "after?", &after, "base?", &base, "env?", &env,
		"cmds?", &cmds, "hidden?", &task.Hidden)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if ctx.initPhase {
		return nil, eris.New("tasks can only be declared inside configure()")
	}

	if task.Name == "" {
		task.Hidden = true
		task.Name = "auto#" + nanoid.New()
	}

	if task.Name == "configure" {
		return nil, eris.New(`the task name "configure" is reserved, please use a different name`)
	}

	if base == "" {
		base = "."
	}
	base = normalizePath(ctx, base)

	if task.Deps, err = iterableToTaskNames(deps, "deps"); err != nil {
		return nil, err
	}
	if task.Before, err = iterableToTaskNames(before, "before"); err != nil {
		return nil, err
	}
	if task.After, err = iterableToTaskNames(after, "after"); err != nil {
		return nil, err
	}

	taskEnv := map[string]string{}
	if env != nil {
		for _, item := range env.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, eris.Errorf("found key type %s in env map but only strings are supported", item[0].Type())
			}

			value, ok := item[1].(starlark.String)
			if !ok {
				return nil, eris.Errorf("found value of type %s for key %s but only strings are supported", item[1].Type(), key.GoString())
			}

			taskEnv[key.GoString()] = value.GoString()
		}
	}

	stmts := []*syntax.Stmt{}
	if cmds != nil {
		parser := syntax.NewParser()
		iter := cmds.Iterate()
		defer iter.Done()

		var item starlark.Value
		for idx := 0; iter.Next(&item); idx++ {
			var script string

			switch value := item.(type) {
			case starlark.String:
				script = value.GoString()
			case starlark.Tuple:
				script, err = argvToScript(value, parser, base)
			case *starlark.List:
				parts := make([]starlark.Value, value.Len())
				for i := range parts {
					parts[i] = value.Index(i)
				}
				script, err = argvToScript(parts, parser, base)
			default:
				return nil, eris.Errorf("%s: unexpected type %s in cmds. Only strings, tuples and lists are valid", fn.Name(), item.Type())
			}

			if err != nil {
				return nil, eris.Wrapf(err, "failed to process command #%d", idx)
			}

			// parse now to report syntax errors while loading instead of in the middle of a run
			file, err := parser.Parse(strings.NewReader(script), fmt.Sprintf("%s:%d", task.Name, idx))
			if err != nil {
				return nil, eris.Wrapf(err, "failed to parse command #%d of task %s", idx, task.Name)
			}

			stmts = append(stmts, file.Stmts...)
		}
	}

	// all cmds of a task run in one shell
	task.Action = func(ctx context.Context) error {
		return runStmts(ctx, stmts, base, taskEnv)
	}

	ctx.tasks = append(ctx.tasks, task)
	ctx.taskEnvs = append(ctx.taskEnvs, taskEnv)
	return task, nil
}

// LoadScript executes a Starlark task script and registers the tasks declared by its
// configure() function with b. It returns the options declared by the script.
//
// options holds values for the script's option() calls; missing values use the declared defaults.
func LoadScript(ctx context.Context, b *Builder, filename, projectRoot string, options map[string]string) (map[string]ScriptOption, error) {
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}

	filename, err = filepath.Abs(filename)
	if err != nil {
		return nil, err
	}

	builtins := starlark.StringDict{
		"OS":           starlark.String(runtime.GOOS),
		"ARCH":         starlark.String(runtime.GOARCH),
		"info":         starlark.NewBuiltin("info", starInfo),
		"warn":         starlark.NewBuiltin("warn", starWarn),
		"error":        starlark.NewBuiltin("error", starError),
		"resolve_path": starlark.NewBuiltin("resolve_path", resolvePath),
		"option":       starlark.NewBuiltin("option", option),
		"getenv":       starlark.NewBuiltin("getenv", getenv),
		"setenv":       starlark.NewBuiltin("setenv", setenv),
		"prepend_path": starlark.NewBuiltin("prepend_path", prependPath),
		"read_yaml":    starlark.NewBuiltin("read_yaml", readYaml),
		"isdir":        starlark.NewBuiltin("isdir", starIsdir),
		"isfile":       starlark.NewBuiltin("isfile", starIsfile),
		"task":         starlark.NewBuiltin("task", task),
	}

	thread := &starlark.Thread{
		Name: "main",
		Print: func(thread *starlark.Thread, msg string) {
			log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}

	if options == nil {
		options = map[string]string{}
	}

	threadCtx := parserCtx{
		ctx:          ctx,
		filepath:     filename,
		projectRoot:  projectRoot,
		options:      make(map[string]ScriptOption),
		optionValues: options,
		envOverrides: make(map[string]string),
		yamlCache:    make(map[string]interface{}),
		initPhase:    true,
	}
	thread.SetLocal("parserCtx", &threadCtx)

	script, err := os.ReadFile(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", filename)
	}

	scriptName := simplifyPath(&threadCtx, filename)
	globals, err := starlark.ExecFile(thread, scriptName, script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.Errorf("failed to execute %s:\n%s", scriptName, evalError.Backtrace())
		}
		return nil, eris.Wrapf(err, "failed to execute %s", scriptName)
	}

	configure, ok := globals["configure"]
	if !ok {
		return nil, eris.Errorf("%s did not declare a configure function", scriptName)
	}

	configureFunc, ok := configure.(starlark.Callable)
	if !ok {
		return nil, eris.Errorf("%s did declare a configure value but it's not a function", scriptName)
	}

	threadCtx.initPhase = false
	_, err = starlark.Call(thread, configureFunc, nil, nil)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.New(evalError.Backtrace())
		}
		return nil, eris.Wrapf(err, "failed configure call in %s", scriptName)
	}

	// reject duplicates up front so that a broken script doesn't register half of its tasks
	declared := make(map[string]bool, len(threadCtx.tasks))
	for _, task := range threadCtx.tasks {
		if declared[task.Name] || b.Has(task.Name) {
			return nil, &DuplicateTaskError{Name: task.Name}
		}
		declared[task.Name] = true
	}

	for idx, task := range threadCtx.tasks {
		taskEnv := threadCtx.taskEnvs[idx]
		for name, value := range threadCtx.envOverrides {
			if _, present := taskEnv[name]; !present {
				taskEnv[name] = value
			}
		}

		if err := b.Register(*task); err != nil {
			return nil, err
		}
	}

	return threadCtx.options, nil
}
