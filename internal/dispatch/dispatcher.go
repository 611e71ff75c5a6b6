// Package dispatch turns an already-authorized parsed command into at
// most one operating-system process and reports what happened. Policy
// decisions and retry logic live elsewhere; this package only spawns,
// watches, and reaps.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/normanking/kubegate/internal/command"
	"github.com/normanking/kubegate/internal/logging"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultOutputLimit = 64 * 1024
)

// Dispatcher executes parsed commands. One Dispatcher is safe for
// concurrent use; per-call state lives on the stack.
type Dispatcher struct {
	registry    *Registry
	log         *logging.Logger
	timeout     time.Duration
	outputLimit int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the default wall-clock limit used when a call does
// not carry its own.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithOutputLimit caps how many bytes of combined output a Result
// retains.
func WithOutputLimit(n int) Option {
	return func(disp *Dispatcher) {
		if n > 0 {
			disp.outputLimit = n
		}
	}
}

func NewDispatcher(registry *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		log:         logging.Global().WithComponent("dispatch"),
		timeout:     defaultTimeout,
		outputLimit: defaultOutputLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Options carries per-call execution parameters. Zero values fall back
// to the dispatcher defaults; an empty TaskID gets a generated one.
type Options struct {
	Timeout time.Duration
	TaskID  string
}

// Execute runs the parsed command and blocks until it finishes, is
// cancelled, or exceeds its deadline. The returned Result is always
// non-nil.
func (d *Dispatcher) Execute(ctx context.Context, parsed *command.ParsedCommand, opts Options) *Result {
	taskID := opts.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}

	result := &Result{Command: parsed.Raw, Kind: parsed.Kind}
	started := time.Now()
	defer func() { result.Duration = time.Since(started) }()

	cmd, cleanup, err := d.buildCommand(parsed)
	if err != nil {
		result.Error = err.Error()
		result.ReturnCode = -1
		return result
	}
	if cleanup != nil {
		defer cleanup()
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)

	d.log.Info("executing task %s: %s", taskID, parsed.Raw)
	if err := cmd.Start(); err != nil {
		result.Error = fmt.Sprintf("failed to start command: %v", err)
		result.ReturnCode = -1
		return result
	}

	pid := cmd.Process.Pid
	d.registry.Register(taskID, pid, parsed.Raw)
	defer d.registry.Unregister(taskID)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	deadline := started.Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var waitErr error
watch:
	for {
		select {
		case waitErr = <-done:
			// A Terminate call may have raced the exit; the flag still
			// decides how the result reads.
			if d.registry.Cancelled(taskID) {
				result.Cancelled = true
			}
			break watch
		case <-ctx.Done():
			result.Cancelled = true
			terminateGroup(pid, killGrace)
			waitErr = <-done
			break watch
		case <-ticker.C:
			if d.registry.Cancelled(taskID) {
				result.Cancelled = true
				// Terminate already signalled the group; just reap.
				waitErr = <-done
				break watch
			}
			if time.Now().After(deadline) {
				result.TimedOut = true
				d.log.Warn("task %s exceeded %s timeout", taskID, timeout)
				terminateGroup(pid, killGrace)
				waitErr = <-done
				break watch
			}
		}
	}

	result.ReturnCode = exitCode(waitErr)
	result.Output = d.truncate(stdout.String())
	result.Error = d.truncate(stderr.String())

	switch {
	case result.TimedOut:
		result.Error = fmt.Sprintf("command timed out after %s", timeout)
	case result.Cancelled:
		result.Error = "command was cancelled"
	case result.ReturnCode != 0 && result.Error == "":
		result.Error = fmt.Sprintf("command exited with code %d", result.ReturnCode)
	}
	result.Success = result.ReturnCode == 0 && !result.TimedOut && !result.Cancelled

	d.log.Debug("task %s finished: code=%d success=%v", taskID, result.ReturnCode, result.Success)
	return result
}

// buildCommand picks the spawn strategy. Simple invocations and
// heredocs run argv-direct; every compound shape needs a shell
// interpreter.
func (d *Dispatcher) buildCommand(parsed *command.ParsedCommand) (*exec.Cmd, func(), error) {
	switch parsed.Kind {
	case command.KindSimple:
		argv := parsed.Segments
		if len(argv) == 0 {
			argv = command.SplitTokens(parsed.Normalized)
		}
		if len(argv) == 0 {
			return nil, nil, fmt.Errorf("empty command")
		}
		return exec.Command(argv[0], argv[1:]...), nil, nil

	case command.KindHeredoc:
		return d.buildHeredoc(parsed)

	case command.KindPipeline, command.KindLogical, command.KindSubstitution, command.KindShellRaw:
		shell := parsed.Raw
		if strings.TrimSpace(shell) == "" {
			shell = parsed.Normalized
		}
		return exec.Command("bash", "-c", shell), nil, nil

	default:
		return nil, nil, fmt.Errorf("kind %q is not executable", parsed.Kind)
	}
}

// buildHeredoc materializes the payload as a transient file and
// rewrites the stdin placeholder to point at it. The cleanup removes
// the file on every exit path.
func (d *Dispatcher) buildHeredoc(parsed *command.ParsedCommand) (*exec.Cmd, func(), error) {
	tmp, err := os.CreateTemp("", "kubegate-manifest-*.yaml")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stage heredoc payload: %w", err)
	}
	if _, err := tmp.WriteString(parsed.YAMLPayload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, nil, fmt.Errorf("failed to stage heredoc payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, nil, fmt.Errorf("failed to stage heredoc payload: %w", err)
	}

	argv := rewriteStdinArgs(command.SplitTokens(parsed.Normalized), tmp.Name())
	cleanup := func() { os.Remove(tmp.Name()) }
	return exec.Command(argv[0], argv[1:]...), cleanup, nil
}

// rewriteStdinArgs replaces the "-f -" stdin reference with the staged
// file path, appending one when the command never named stdin.
func rewriteStdinArgs(argv []string, path string) []string {
	rewritten := false
	out := make([]string, 0, len(argv)+2)
	for i := 0; i < len(argv); i++ {
		tok := argv[i]
		switch tok {
		case "-f", "--filename":
			out = append(out, tok)
			if i+1 < len(argv) && argv[i+1] == "-" {
				out = append(out, path)
				rewritten = true
				i++
				continue
			}
		case "-f-", "-f=-":
			out = append(out, "-f", path)
			rewritten = true
		case "--filename=-":
			out = append(out, "--filename="+path)
			rewritten = true
		default:
			out = append(out, tok)
		}
	}
	if !rewritten {
		out = append(out, "-f", path)
	}
	return out
}

func (d *Dispatcher) truncate(s string) string {
	if len(s) <= d.outputLimit {
		return s
	}
	return s[:d.outputLimit] + "\n... [output truncated]"
}

// exitCode extracts the process exit status from cmd.Wait's error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
