package buildsys

import (
	"github.com/rotisserie/eris"
)

// Builder collects task registrations. Call Build once everything is registered.
type Builder struct {
	tasks map[string]*Task
	names []string
}

// NewBuilder returns an empty builder
func NewBuilder() *Builder {
	return &Builder{
		tasks: make(map[string]*Task),
	}
}

// Register adds a task. The builder is left untouched if the task is rejected.
func (b *Builder) Register(task Task) error {
	if task.Name == "" {
		return eris.New("task name must not be empty")
	}

	if _, present := b.tasks[task.Name]; present {
		return &DuplicateTaskError{Name: task.Name}
	}

	if task.Action == nil {
		return eris.Errorf("task %s has no action", task.Name)
	}

	task.Deps = copyNames(task.Deps)
	task.Before = copyNames(task.Before)
	task.After = copyNames(task.After)

	b.tasks[task.Name] = &task
	b.names = append(b.names, task.Name)
	return nil
}

// Has reports whether a task with the given name is registered
func (b *Builder) Has(name string) bool {
	_, ok := b.tasks[name]
	return ok
}

// Build returns an immutable graph of the tasks registered so far.
func (b *Builder) Build() *Graph {
	g := &Graph{
		tasks: make(map[string]*Task, len(b.tasks)),
		index: make(map[string]int, len(b.tasks)),
		names: make([]string, len(b.names)),
	}

	copy(g.names, b.names)
	for idx, name := range g.names {
		task := *b.tasks[name]
		g.tasks[name] = &task
		g.index[name] = idx
	}

	return g
}

// Graph is a validated-on-use set of tasks. It is never modified after Build.
type Graph struct {
	tasks map[string]*Task
	index map[string]int
	names []string
}

// Task returns a copy of the named task
func (g *Graph) Task(name string) (Task, bool) {
	task, ok := g.tasks[name]
	if !ok {
		return Task{}, false
	}

	result := *task
	result.Deps = copyNames(task.Deps)
	result.Before = copyNames(task.Before)
	result.After = copyNames(task.After)
	return result, true
}

// Names returns all task names in registration order.
func (g *Graph) Names() []string {
	return copyNames(g.names)
}

// Len returns the number of registered tasks
func (g *Graph) Len() int {
	return len(g.names)
}

func copyNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}

	result := make([]string, len(names))
	copy(result, names)
	return result
}
