package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ngld/dlibbuild/pkg/buildsys"
)

var ansiCodes = regexp.MustCompile("\x1b\\[[0-9;]*m")

const testScript = `
greeting = option("greeting", "hi", "text written by Hello")

def configure():
    task(
        name = "Hello",
        desc = "Writes a greeting",
        deps = ["Print"],
        cmds = ["echo " + greeting + " > hello.txt"],
    )
    task(name = "Broken", cmds = ["exit 3"])
    task(cmds = ["true"])
`

func setupProject(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, buildsys.ScriptFile), []byte(testScript), 0644); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&rootOptions{})
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	t.Logf("stderr:\n%s", stderr.String())
	return stdout.String(), err
}

func TestSplitArgs(t *testing.T) {
	targets, options := splitArgs([]string{"Clean", "greeting=hello", "Compile", "empty="})

	if !reflect.DeepEqual(targets, []string{"Clean", "Compile"}) {
		t.Errorf("unexpected targets %v", targets)
	}
	if !reflect.DeepEqual(options, map[string]string{"greeting": "hello", "empty": ""}) {
		t.Errorf("unexpected options %v", options)
	}
}

func TestDryRunTargets(t *testing.T) {
	root := setupProject(t)

	out, err := execute(t, "--root", root, "--dry", "Clean", "Print")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(ansiCodes.ReplaceAllString(out, "")), "\n")
	if !strings.HasPrefix(lines[0], "==> Plan for Clean, Print") {
		t.Fatalf("expected a plan header, got\n%s", out)
	}
	if want := []string{"  -> Clean", "  -> Print"}; !reflect.DeepEqual(lines[1:], want) {
		t.Errorf("expected %q, got %q", want, lines[1:])
	}
}

func TestDryRun(t *testing.T) {
	root := setupProject(t)

	out, err := execute(t, "--root", root, "--dry")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(ansiCodes.ReplaceAllString(out, "")), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "==> Plan for Compile") {
		t.Fatalf("expected a plan header, got\n%s", out)
	}

	want := []string{"  -> Print", "  -> Prepare", "  -> Restore", "  -> Compile"}
	if !reflect.DeepEqual(lines[1:], want) {
		t.Errorf("expected %q, got %q", want, lines[1:])
	}

	if _, err := os.Stat(filepath.Join(root, "output")); err == nil {
		t.Error("dry run created the output directory")
	}
}

func TestList(t *testing.T) {
	root := setupProject(t)

	out, err := execute(t, "--root", root, "--list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, expected := range []string{"Hello:", "Writes a greeting", "Compile:", "(default)", "Archive:", `greeting="hi"`} {
		if !strings.Contains(out, expected) {
			t.Errorf("expected %q in the listing:\n%s", expected, out)
		}
	}
	if strings.Contains(out, "auto#") {
		t.Errorf("hidden tasks were listed:\n%s", out)
	}
}

func TestRunScriptTask(t *testing.T) {
	root := setupProject(t)

	if _, err := execute(t, "--root", root, "Hello", "greeting=hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(root, "hello.txt"))
	if err != nil {
		t.Fatalf("task didn't run: %v", err)
	}
	if strings.TrimSpace(string(content)) != "hello" {
		t.Errorf("expected the option value, got %q", content)
	}

	record, err := buildsys.ReadRecord(filepath.Join(root, recordFile))
	if err != nil {
		t.Fatalf("failed to read record: %v", err)
	}
	if !reflect.DeepEqual(record.Completed, []string{"Print", "Hello"}) {
		t.Errorf("unexpected completed tasks %v", record.Completed)
	}

	out, err := execute(t, "last-run", "--root", root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "succeeded") || !strings.Contains(out, "Hello") {
		t.Errorf("unexpected last-run output:\n%s", out)
	}
}

func TestRunFailure(t *testing.T) {
	root := setupProject(t)

	_, err := execute(t, "--root", root, "Broken")
	var execErr *buildsys.TaskExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected TaskExecutionError, got %v", err)
	}
	if execErr.Task != "Broken" {
		t.Errorf("expected Broken to fail, got %s", execErr.Task)
	}

	var procErr *buildsys.ProcessError
	if !errors.As(err, &procErr) || procErr.ExitCode != 3 {
		t.Errorf("expected exit status 3, got %v", err)
	}

	out, err := execute(t, "last-run", "--root", root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Broken failed") {
		t.Errorf("unexpected last-run output:\n%s", out)
	}
}

func TestExitCode(t *testing.T) {
	root := setupProject(t)

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&rootOptions{})
	cmd.SetOut(&stdout)
	if code := run(cmd, []string{"--root", root, "Broken"}, &stderr); code == 0 {
		t.Error("expected a non-zero exit code for a failing target")
	}

	msg := ansiCodes.ReplaceAllString(stderr.String(), "")
	for _, expected := range []string{"task Broken failed", "exit 3 exited with status 3"} {
		if !strings.Contains(msg, expected) {
			t.Errorf("expected %q on stderr:\n%s", expected, msg)
		}
	}

	stderr.Reset()
	cmd = newRootCmd(&rootOptions{})
	cmd.SetOut(&stdout)
	if code := run(cmd, []string{"--root", root, "Hello"}, &stderr); code != 0 {
		t.Errorf("expected exit code 0, got %d:\n%s", code, stderr.String())
	}
}

func TestRunErrors(t *testing.T) {
	root := setupProject(t)

	if _, err := execute(t, "--root", root, "Hello", "colour=red"); err == nil || !strings.Contains(err.Error(), "unknown option") {
		t.Errorf("expected an unknown option error, got %v", err)
	}

	_, err := execute(t, "--root", root, "Missing")
	var unknown *buildsys.UnknownTaskError
	if !errors.As(err, &unknown) {
		t.Errorf("expected UnknownTaskError, got %v", err)
	}

	if _, err := execute(t, "--root", root, "-c", "Profile", "Print"); err == nil {
		t.Error("expected an error for an invalid configuration")
	}

	if _, err := execute(t, "last-run", "--root", t.TempDir()); err == nil {
		t.Error("expected an error without a recorded run")
	}
}

func TestToolCommands(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")

	if _, err := execute(t, "tool", "mkdir", "-p", nested); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	src := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(src, []byte("content"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := execute(t, "tool", "cp", src, nested); err != nil {
		t.Fatalf("cp failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(nested, "file.txt")); err != nil {
		t.Errorf("cp didn't copy into the directory: %v", err)
	}

	moved := filepath.Join(dir, "moved.txt")
	if _, err := execute(t, "tool", "mv", src, moved); err != nil {
		t.Fatalf("mv failed: %v", err)
	}
	if _, err := os.Stat(moved); err != nil {
		t.Errorf("mv didn't rename the file: %v", err)
	}

	if _, err := execute(t, "tool", "rm", filepath.Join(dir, "a")); err == nil {
		t.Error("expected rm to refuse deleting a directory without -r")
	}
	if _, err := execute(t, "tool", "rm", "-r", "-f", filepath.Join(dir, "a"), filepath.Join(dir, "missing")); err != nil {
		t.Fatalf("rm failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a")); err == nil {
		t.Error("rm didn't delete the directory")
	}
}

func TestConsoleWriter(t *testing.T) {
	var out bytes.Buffer
	logger := zerolog.New(NewConsoleWriter(&out, "/project"))

	logger.Info().Str("task", "Compile").Msg("Building /project/src/DlibDotNet")
	logger.Info().Bool("command", true).Msg("dotnet restore")
	logger.Error().Err(errors.New("boom")).Msg("Task failed")

	text := out.String()
	for _, expected := range []string{"Compile: Building src/DlibDotNet", "dotnet restore", "Error: Task failed", "boom"} {
		if !strings.Contains(text, expected) {
			t.Errorf("expected %q in output:\n%s", expected, text)
		}
	}
}
