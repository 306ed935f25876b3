package buildsys

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Record describes a single run.
type Record struct {
	Targets   []string
	Plan      []string
	States    map[string]TaskState
	Completed []string
	Failed    string
	Error     string
	Started   time.Time
	Finished  time.Time
}

// Succeeded reports whether every planned task completed
func (r *Record) Succeeded() bool {
	return r.Error == "" && len(r.Completed) == len(r.Plan)
}

func (r *Record) transition(task string, to TaskState) error {
	from := r.States[task]
	if from.Terminal() {
		return eris.Errorf("task %s is already %s", task, from)
	}

	switch {
	case from == TaskPending && to == TaskRunning:
	case from == TaskRunning && to.Terminal():
	default:
		return eris.Errorf("invalid transition for task %s: %s -> %s", task, from, to)
	}

	r.States[task] = to
	return nil
}

// Run executes the target and all of its dependencies.
func (g *Graph) Run(ctx context.Context, target string) (*Record, error) {
	return g.RunTargets(ctx, target)
}

// RunTargets executes the given targets and their dependencies in a single run. Each task
// runs at most once. The run stops at the first failing task; tasks that already completed
// are left as they are.
//
// Configuration errors (unknown tasks, cycles) are reported before any action runs and
// return a nil record.
func (g *Graph) RunTargets(ctx context.Context, targets ...string) (*Record, error) {
	plan, err := g.Plan(targets...)
	if err != nil {
		return nil, err
	}

	record := &Record{
		Targets: copyNames(targets),
		Plan:    plan,
		States:  make(map[string]TaskState, len(plan)),
		Started: time.Now(),
	}
	for _, name := range plan {
		record.States[name] = TaskPending
	}

	hooks := getHooks(ctx)
	if hooks.OnPlan != nil {
		hooks.OnPlan(copyNames(plan))
	}

	log(ctx).Debug().Strs("plan", plan).Msg("resolved execution order")

	fail := func(name string, err error) (*Record, error) {
		record.Error = err.Error()
		record.Finished = time.Now()
		return record, &TaskExecutionError{Task: name, Err: err}
	}

	for _, name := range plan {
		if err := ctx.Err(); err != nil {
			return fail(name, err)
		}

		task := g.tasks[name]
		if err := record.transition(name, TaskRunning); err != nil {
			return fail(name, err)
		}

		if hooks.OnStart != nil {
			hooks.OnStart(name)
		}

		logger := log(ctx).With().Str("task", name).Logger()
		logger.Info().Msg("Running")
		start := time.Now()

		err := task.Action(WithLogger(ctx, &logger))

		if hooks.OnFinish != nil {
			hooks.OnFinish(name, err)
		}

		if err != nil {
			record.Failed = name
			if tErr := record.transition(name, TaskFailed); tErr != nil {
				return fail(name, tErr)
			}
			logger.Debug().Dur("duration", time.Since(start)).Msg("Failed")
			return fail(name, err)
		}

		if err := record.transition(name, TaskSucceeded); err != nil {
			return fail(name, err)
		}
		record.Completed = append(record.Completed, name)
		logger.Debug().Dur("duration", time.Since(start)).Msg("Done")
	}

	record.Finished = time.Now()
	return record, nil
}
