package buildsys

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func TestRunExecutesClosureOnce(t *testing.T) {
	rec := &recorder{}
	g := buildGraph(t, rec)

	record, err := g.RunTargets(context.Background(), "Compile", "PreparePack")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"CleanPkg", "Print", "Prepare", "Restore", "Compile", "PreparePack"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("expected %v, got %v", want, rec.calls)
	}

	if !reflect.DeepEqual(record.Completed, want) {
		t.Errorf("expected completed %v, got %v", want, record.Completed)
	}

	for _, name := range want {
		if record.States[name] != TaskSucceeded {
			t.Errorf("expected %s to be succeeded, got %s", name, record.States[name])
		}
	}

	if !record.Succeeded() {
		t.Error("expected the record to report success")
	}
	if record.Finished.Before(record.Started) {
		t.Error("finish time is before start time")
	}
}

func TestRunDependenciesFirst(t *testing.T) {
	rec := &recorder{}
	g := buildGraph(t, rec)

	if _, err := g.Run(context.Background(), "Compile"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos := make(map[string]int)
	for idx, name := range rec.calls {
		pos[name] = idx
	}

	for _, name := range rec.calls {
		task, _ := g.Task(name)
		for _, dep := range task.Deps {
			if pos[dep] >= pos[name] {
				t.Errorf("%s ran before its dependency %s", name, dep)
			}
		}
	}
}

func TestRunStopsOnFailure(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")

	b := NewBuilder()
	mustRegister(t, b, Task{Name: "Print", Action: rec.action("Print")})
	mustRegister(t, b, Task{Name: "Restore", Deps: []string{"Print"}, Action: func(context.Context) error {
		rec.calls = append(rec.calls, "Restore")
		return boom
	}})
	mustRegister(t, b, Task{Name: "Lint", Action: rec.action("Lint")})
	mustRegister(t, b, Task{Name: "Compile", Deps: []string{"Restore", "Lint"}, Action: rec.action("Compile")})
	g := b.Build()

	record, err := g.Run(context.Background(), "Compile")

	var execErr *TaskExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected TaskExecutionError, got %v", err)
	}
	if execErr.Task != "Restore" {
		t.Errorf("expected Restore to fail, got %s", execErr.Task)
	}
	if !errors.Is(err, boom) {
		t.Error("expected the error to wrap the action failure")
	}

	if !reflect.DeepEqual(rec.calls, []string{"Print", "Restore"}) {
		t.Errorf("unexpected calls: %v", rec.calls)
	}

	if record == nil {
		t.Fatal("expected a record for a failed run")
	}
	if record.Failed != "Restore" || record.Error == "" {
		t.Errorf("unexpected record: %+v", record)
	}

	expected := map[string]TaskState{
		"Print":   TaskSucceeded,
		"Restore": TaskFailed,
		"Lint":    TaskPending,
		"Compile": TaskPending,
	}
	if !reflect.DeepEqual(record.States, expected) {
		t.Errorf("expected states %v, got %v", expected, record.States)
	}
	if record.Succeeded() {
		t.Error("failed run reported success")
	}
}

func TestRunCanceledContext(t *testing.T) {
	rec := &recorder{}
	g := buildGraph(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Run(ctx, "Compile")
	var execErr *TaskExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected TaskExecutionError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(rec.calls) > 0 {
		t.Errorf("actions ran with a canceled context: %v", rec.calls)
	}
}

func TestRunRepeatable(t *testing.T) {
	g := buildGraph(t, &recorder{})

	var orders [][]string
	for i := 0; i < 3; i++ {
		record, err := g.Run(context.Background(), "Compile")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		orders = append(orders, record.Completed)
	}

	for _, order := range orders[1:] {
		if !reflect.DeepEqual(order, orders[0]) {
			t.Errorf("order changed between runs: %v vs %v", orders[0], order)
		}
	}
}

func TestRunHooks(t *testing.T) {
	g := buildGraph(t, &recorder{})

	var plan, started, finished []string
	ctx := WithHooks(context.Background(), Hooks{
		OnPlan:  func(p []string) { plan = p },
		OnStart: func(task string) { started = append(started, task) },
		OnFinish: func(task string, err error) {
			if err != nil {
				t.Errorf("unexpected failure of %s: %v", task, err)
			}
			finished = append(finished, task)
		},
	})

	if _, err := g.Run(ctx, "Restore"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"Print", "Restore"}
	for name, got := range map[string][]string{"plan": plan, "started": started, "finished": finished} {
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: expected %v, got %v", name, want, got)
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rec := &recorder{}
	g := buildGraph(t, rec)
	record, err := g.Run(context.Background(), "Compile")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	file := filepath.Join(t.TempDir(), "nested", "last-run.gob")
	if err := WriteRecord(file, record); err != nil {
		t.Fatalf("failed to write record: %v", err)
	}

	loaded, err := ReadRecord(file)
	if err != nil {
		t.Fatalf("failed to read record: %v", err)
	}

	if !reflect.DeepEqual(loaded.Completed, record.Completed) || !reflect.DeepEqual(loaded.States, record.States) {
		t.Errorf("record changed: %+v vs %+v", loaded, record)
	}
	if !loaded.Started.Equal(record.Started) {
		t.Errorf("start time changed: %v vs %v", loaded.Started, record.Started)
	}
}
