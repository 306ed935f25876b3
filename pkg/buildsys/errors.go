package buildsys

import (
	"fmt"
	"strings"
)

// DuplicateTaskError is returned by Register if a task with the same name already exists.
type DuplicateTaskError struct {
	Name string
}

var _ error = (*DuplicateTaskError)(nil)

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task %s is already registered", e.Name)
}

// UnknownTaskError indicates that a target or a task reference points to a task that
// was never registered. ReferencedBy is empty if the name was requested as a target.
type UnknownTaskError struct {
	Name         string
	ReferencedBy string
}

var _ error = (*UnknownTaskError)(nil)

func (e *UnknownTaskError) Error() string {
	if e.ReferencedBy == "" {
		return fmt.Sprintf("task %s not found", e.Name)
	}

	return fmt.Sprintf("task %s not found (referenced by %s)", e.Name, e.ReferencedBy)
}

// CycleError lists the tasks forming a cycle in the order they reference each other.
type CycleError struct {
	Tasks []string
}

var _ error = (*CycleError)(nil)

func (e *CycleError) Error() string {
	if len(e.Tasks) == 0 {
		return "task cycle detected"
	}

	path := append(append([]string{}, e.Tasks...), e.Tasks[0])
	return fmt.Sprintf("task cycle detected: %s", strings.Join(path, " -> "))
}

// TaskExecutionError wraps the failure of a task's action.
type TaskExecutionError struct {
	Task string
	Err  error
}

var _ error = (*TaskExecutionError)(nil)

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.Task, e.Err)
}

func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}

// ProcessError describes a failed external process.
type ProcessError struct {
	Command  string
	ExitCode int
	Output   string
}

var _ error = (*ProcessError)(nil)

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	if e.Output != "" {
		msg += ":\n" + e.Output
	}
	return msg
}
