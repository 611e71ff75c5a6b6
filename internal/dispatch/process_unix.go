//go:build !windows

package dispatch

import (
	"os/exec"
	"syscall"
	"time"
)

const (
	// pollInterval paces both the execution watch loop and the
	// termination wait.
	pollInterval = 100 * time.Millisecond
	// killGrace is how long a process group gets between SIGTERM and
	// SIGKILL.
	killGrace = 3 * time.Second
)

// setProcessGroup puts the child in its own process group so a signal
// reaches the whole pipeline, not just the shell.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup escalates SIGTERM to SIGKILL against the process
// group rooted at pid. It returns once the group leader is gone or the
// SIGKILL has been sent.
func terminateGroup(pid int, grace time.Duration) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return
		}
		time.Sleep(pollInterval)
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

// processAlive probes pid with the null signal.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
