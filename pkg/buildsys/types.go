package buildsys

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
)

// Action is the work performed by a task.
type Action func(ctx context.Context) error

// Task describes a registered unit of work.
//
// Deps must complete successfully before the task runs and are pulled into every run that
// includes the task. Before and After only order the task relative to other tasks that are
// part of the same run.
type Task struct {
	Name   string
	Desc   string
	Action Action
	Deps   []string
	Before []string
	After  []string
	Hidden bool
}

// TaskState tracks a task's progress within a single run.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskSucceeded
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	}

	return fmt.Sprintf("TaskState(%d)", int(s))
}

// Terminal reports whether the state can't change anymore in the current run.
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// ScriptOption is an option declared by a task script through option()
type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}

// Implement starlark.Value for *Task so that task() results can be passed to deps, before and after.

func (t *Task) String() string {
	return fmt.Sprintf("<Task %s: %s>", t.Name, t.Desc)
}

func (t *Task) Type() string {
	return "task"
}

// Freeze is a no-op; tasks are copied on registration.
func (t *Task) Freeze() {}

func (t *Task) Truth() starlark.Bool {
	return starlark.True
}

func (t *Task) Hash() (uint32, error) {
	return starlark.String(t.Name).Hash()
}

// StarlarkPath is the value returned by resolve_path()
type StarlarkPath string

func (p StarlarkPath) String() string {
	return starlark.String(p).String()
}

func (p StarlarkPath) Type() string {
	return "path"
}

func (p StarlarkPath) Freeze() {}

func (p StarlarkPath) Truth() starlark.Bool {
	return p != ""
}

func (p StarlarkPath) Hash() (uint32, error) {
	return starlark.String(p).Hash()
}

func (p StarlarkPath) CompareSameType(op starsyntax.Token, y_ starlark.Value, depth int) (bool, error) {
	y := y_.(StarlarkPath)

	switch op {
	case starsyntax.EQL:
		return p == y, nil
	case starsyntax.NEQ:
		return p != y, nil
	case starsyntax.LT:
		return p < y, nil
	case starsyntax.LE:
		return p <= y, nil
	case starsyntax.GT:
		return p > y, nil
	case starsyntax.GE:
		return p >= y, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}

func (p StarlarkPath) Len() int {
	return len(p)
}

func (p StarlarkPath) Index(i int) starlark.Value {
	return starlark.String(p[i])
}
