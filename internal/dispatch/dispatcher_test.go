package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/normanking/kubegate/internal/command"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	return NewDispatcher(NewRegistry())
}

func TestExecuteShellCommand(t *testing.T) {
	d := newTestDispatcher(t)

	parsed := command.Classify("echo hello world")
	res := d.Execute(context.Background(), parsed, Options{})

	if !res.Success {
		t.Fatalf("expected success, got error: %s", res.Error)
	}
	if res.ReturnCode != 0 {
		t.Errorf("expected return code 0, got %d", res.ReturnCode)
	}
	if !strings.Contains(res.Output, "hello world") {
		t.Errorf("unexpected output: %q", res.Output)
	}
	if res.Kind != command.KindShellRaw {
		t.Errorf("expected shell_command kind, got %s", res.Kind)
	}
}

func TestExecutePipeline(t *testing.T) {
	d := newTestDispatcher(t)

	parsed := command.Classify("echo -e 'one\ntwo\nthree' | wc -l")
	res := d.Execute(context.Background(), parsed, Options{})

	if !res.Success {
		t.Fatalf("pipeline failed: %s", res.Error)
	}
	if !strings.Contains(res.Output, "3") {
		t.Errorf("unexpected output: %q", res.Output)
	}
}

func TestExecuteNonZeroExitSynthesizesError(t *testing.T) {
	d := newTestDispatcher(t)

	// "false" exits 1 with no stderr; the error must still be readable.
	res := d.Execute(context.Background(), command.Classify("false"), Options{})

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ReturnCode != 1 {
		t.Errorf("expected return code 1, got %d", res.ReturnCode)
	}
	if !strings.Contains(res.Error, "exited with code 1") {
		t.Errorf("expected synthesized error, got %q", res.Error)
	}
}

func TestExecuteStderrPreserved(t *testing.T) {
	d := newTestDispatcher(t)

	res := d.Execute(context.Background(), command.Classify("echo oops >&2; exit 3"), Options{})

	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "oops") {
		t.Errorf("stderr not preserved: %q", res.Error)
	}
	if res.ReturnCode != 3 {
		t.Errorf("expected return code 3, got %d", res.ReturnCode)
	}
}

func TestExecuteTimeout(t *testing.T) {
	d := newTestDispatcher(t)

	start := time.Now()
	res := d.Execute(context.Background(), command.Classify("sleep 30"), Options{Timeout: 500 * time.Millisecond})
	elapsed := time.Since(start)

	if !res.TimedOut {
		t.Fatal("expected timedOut flag")
	}
	if res.Success {
		t.Error("timed out command must not be success")
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Errorf("expected timeout error, got %q", res.Error)
	}
	if elapsed > 10*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestExecuteContextCancellation(t *testing.T) {
	d := newTestDispatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	res := d.Execute(ctx, command.Classify("sleep 30"), Options{Timeout: time.Minute})

	if !res.Cancelled {
		t.Fatal("expected cancelled flag")
	}
	if res.TimedOut {
		t.Error("cancellation must not be reported as timeout")
	}
}

func TestExecuteRegistryCancellation(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg)

	taskID := "cancel-me"
	go func() {
		// Wait for the task to register, then terminate it.
		for i := 0; i < 50; i++ {
			if len(reg.ListRunning()) > 0 {
				reg.Terminate(taskID)
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
	}()

	res := d.Execute(context.Background(), command.Classify("sleep 30"), Options{Timeout: time.Minute, TaskID: taskID})

	if !res.Cancelled {
		t.Fatalf("expected cancelled flag, got: %+v", res)
	}
}

func TestRegistryCleanedUpAfterExecute(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg)

	d.Execute(context.Background(), command.Classify("echo done"), Options{TaskID: "t1"})

	if running := reg.ListRunning(); len(running) != 0 {
		t.Errorf("registry should be empty, has %v", running)
	}
	if reg.Cancelled("t1") {
		t.Error("finished task must not report cancelled")
	}
}

func TestOutputTruncation(t *testing.T) {
	d := NewDispatcher(NewRegistry(), WithOutputLimit(100))

	res := d.Execute(context.Background(), command.Classify("yes | head -n 1000"), Options{})

	if !res.Success {
		t.Fatalf("command failed: %s", res.Error)
	}
	if len(res.Output) > 200 {
		t.Errorf("output not truncated: %d bytes", len(res.Output))
	}
	if !strings.Contains(res.Output, "[output truncated]") {
		t.Error("expected truncation marker")
	}
}

func TestHeredocTempFileCleanup(t *testing.T) {
	d := newTestDispatcher(t)

	raw := "cat -f - <<EOF\nkind: ConfigMap\nEOF"
	parsed := command.Classify(raw)
	if parsed.Kind != command.KindHeredoc {
		t.Fatalf("expected heredoc, got %s", parsed.Kind)
	}

	before := countManifestTempFiles(t)
	d.Execute(context.Background(), parsed, Options{})
	after := countManifestTempFiles(t)

	if after > before {
		t.Errorf("heredoc temp file leaked: %d -> %d", before, after)
	}
}

func countManifestTempFiles(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "kubegate-manifest-*.yaml"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return len(matches)
}

func TestRewriteStdinArgs(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want []string
	}{
		{
			"separate dash",
			[]string{"kubectl", "apply", "-f", "-"},
			[]string{"kubectl", "apply", "-f", "/tmp/x.yaml"},
		},
		{
			"equals form",
			[]string{"kubectl", "apply", "--filename=-"},
			[]string{"kubectl", "apply", "--filename=/tmp/x.yaml"},
		},
		{
			"no stdin flag gets one appended",
			[]string{"kubectl", "apply"},
			[]string{"kubectl", "apply", "-f", "/tmp/x.yaml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rewriteStdinArgs(tt.argv, "/tmp/x.yaml")
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("arg %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExitCodeHelper(t *testing.T) {
	if code := exitCode(nil); code != 0 {
		t.Errorf("nil error should be code 0, got %d", code)
	}
}
