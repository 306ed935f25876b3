package buildsys

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testContext(t *testing.T) (context.Context, *bytes.Buffer) {
	t.Helper()

	buffer := &bytes.Buffer{}
	logger := zerolog.New(buffer)
	return WithLogger(context.Background(), &logger), buffer
}

func lookupShell(t *testing.T) Tool {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is not available")
	}

	tool, err := LookupTool("sh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tool
}

func TestToolRun(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ctx, logs := testContext(t)
		tool := lookupShell(t)

		if err := tool.Run(ctx, "-c", "echo hello from sh"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(logs.String(), "hello from sh") {
			t.Errorf("expected output to be logged, got %s", logs.String())
		}
	})

	t.Run("exit status", func(t *testing.T) {
		ctx, _ := testContext(t)
		tool := lookupShell(t)

		err := tool.Run(ctx, "-c", "echo partial output; exit 4")
		var procErr *ProcessError
		if !errors.As(err, &procErr) {
			t.Fatalf("expected ProcessError, got %v", err)
		}
		if procErr.ExitCode != 4 {
			t.Errorf("expected exit code 4, got %d", procErr.ExitCode)
		}
		if !strings.Contains(procErr.Output, "partial output") {
			t.Errorf("expected captured output, got %q", procErr.Output)
		}
	})

	t.Run("working directory and env", func(t *testing.T) {
		ctx, _ := testContext(t)
		dir := t.TempDir()
		tool := lookupShell(t).InDir(dir).WithEnv("DLIB_TEST_VALUE=42")

		if err := tool.RunArgs(ctx, `-c 'echo $DLIB_TEST_VALUE > value.txt'`); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		content, err := os.ReadFile(filepath.Join(dir, "value.txt"))
		if err != nil {
			t.Fatalf("failed to read output: %v", err)
		}
		if strings.TrimSpace(string(content)) != "42" {
			t.Errorf("expected 42, got %q", content)
		}
	})

	t.Run("missing tool", func(t *testing.T) {
		if _, err := LookupTool("definitely-not-a-real-tool-name"); err == nil {
			t.Error("expected an error for a missing tool")
		}
	})
}

func TestRunShell(t *testing.T) {
	t.Run("runs statements in dir", func(t *testing.T) {
		ctx, logs := testContext(t)
		dir := t.TempDir()

		err := RunShell(ctx, dir, map[string]string{"DLIB_SHELL_VAR": "two"}, "echo one > a.txt\necho $DLIB_SHELL_VAR > b.txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for file, want := range map[string]string{"a.txt": "one", "b.txt": "two"} {
			content, err := os.ReadFile(filepath.Join(dir, file))
			if err != nil {
				t.Fatalf("failed to read %s: %v", file, err)
			}
			if strings.TrimSpace(string(content)) != want {
				t.Errorf("%s: expected %q, got %q", file, want, content)
			}
		}

		if !strings.Contains(logs.String(), `"command":true`) {
			t.Errorf("expected commands to be logged, got %s", logs.String())
		}
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		ctx, _ := testContext(t)
		dir := t.TempDir()

		err := ShellAction("echo before\nfalse\necho after > after.txt", dir, nil)(ctx)
		var procErr *ProcessError
		if !errors.As(err, &procErr) {
			t.Fatalf("expected ProcessError, got %v", err)
		}
		if procErr.ExitCode == 0 {
			t.Error("expected a non-zero exit code")
		}
		if !strings.Contains(procErr.Output, "before") {
			t.Errorf("expected captured output, got %q", procErr.Output)
		}

		if _, err := os.Stat(filepath.Join(dir, "after.txt")); !os.IsNotExist(err) {
			t.Error("the statement after the failure was executed")
		}
	})

	t.Run("exit code is kept", func(t *testing.T) {
		ctx, _ := testContext(t)

		err := RunShell(ctx, t.TempDir(), nil, "exit 7")
		var procErr *ProcessError
		if !errors.As(err, &procErr) || procErr.ExitCode != 7 {
			t.Errorf("expected exit code 7, got %v", err)
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		ctx, _ := testContext(t)
		if err := RunShell(ctx, t.TempDir(), nil, "if then fi ("); err == nil {
			t.Error("expected a parse error")
		}
	})

	t.Run("scripts share one shell", func(t *testing.T) {
		ctx, _ := testContext(t)
		dir := t.TempDir()
		if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}

		err := RunShell(ctx, dir, nil, "cd sub", "DLIB_LOCAL=kept", "echo $DLIB_LOCAL > marker.txt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		content, err := os.ReadFile(filepath.Join(dir, "sub", "marker.txt"))
		if err != nil {
			t.Fatalf("expected the marker in the sub directory: %v", err)
		}
		if strings.TrimSpace(string(content)) != "kept" {
			t.Errorf("expected the variable to carry over, got %q", content)
		}
		if _, err := os.Stat(filepath.Join(dir, "marker.txt")); err == nil {
			t.Error("cd did not carry over to the next script")
		}
	})
}

func TestToolRunCanceled(t *testing.T) {
	tool := lookupShell(t)
	ctx, _ := testContext(t)
	ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	err := tool.Run(ctx, "-c", "sleep 5")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the deadline to be reported, got %v", err)
	}

	var procErr *ProcessError
	if errors.As(err, &procErr) {
		t.Errorf("cancellation was reported as a process failure: %v", procErr)
	}
}

func TestResolvePatterns(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"src/a/obj", "src/b/c/bin", "src/build/obj", "src/d"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}

	matches, err := ResolvePatterns(root, "src/**/obj", "src/**/bin", "missing/*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := make([]string, len(matches))
	for idx, match := range matches {
		rel, err := filepath.Rel(root, match)
		if err != nil {
			t.Fatalf("unexpected match %s: %v", match, err)
		}
		got[idx] = filepath.ToSlash(rel)
	}
	sort.Strings(got)

	want := []string{"src/a/obj", "src/b/c/bin", "src/build/obj"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestOutputCapture(t *testing.T) {
	buffer := &bytes.Buffer{}
	logger := zerolog.New(buffer)
	capture := newOutputCapture(&logger)

	capture.Write([]byte("first li"))
	capture.Write([]byte("ne\r\nsecond"))
	capture.Flush()

	lines := strings.Split(strings.TrimSpace(buffer.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buffer.String())
	}
	if !strings.Contains(lines[0], `"first line"`) || !strings.Contains(lines[1], `"second"`) {
		t.Errorf("unexpected log output: %s", buffer.String())
	}

	big := bytes.Repeat([]byte("x"), maxCapturedOutput+10)
	capture.Write(big)
	if len(capture.Tail()) != maxCapturedOutput {
		t.Errorf("expected the tail to be capped at %d bytes, got %d", maxCapturedOutput, len(capture.Tail()))
	}
}
