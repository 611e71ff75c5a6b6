package dispatch

import (
	"sort"
	"sync"
	"time"

	"github.com/normanking/kubegate/internal/logging"
)

// TaskInfo is the read-only view of a running task.
type TaskInfo struct {
	ID      string
	PID     int
	Command string
	Started time.Time
}

type taskEntry struct {
	info      TaskInfo
	cancelled bool
}

// Registry tracks every in-flight execution so it can be cancelled
// from outside its own call stack. All state sits behind one mutex;
// nothing here blocks while holding it.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*taskEntry
	log   *logging.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*taskEntry),
		log:   logging.Global().WithComponent("registry"),
	}
}

// Register records a started process under its task id. The dispatcher
// pairs every Register with a deferred Unregister, so entries cannot
// outlive their attempt.
func (r *Registry) Register(taskID string, pid int, cmdline string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[taskID] = &taskEntry{
		info: TaskInfo{ID: taskID, PID: pid, Command: cmdline, Started: time.Now()},
	}
	r.log.Debug("registered task %s (pid %d)", taskID, pid)
}

// Unregister drops the entry. Unknown ids are a no-op.
func (r *Registry) Unregister(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskID)
}

// Cancelled reports whether Terminate was called for this task.
func (r *Registry) Cancelled(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.tasks[taskID]
	return ok && entry.cancelled
}

// Terminate marks the task cancelled and signals its process group,
// SIGTERM first and SIGKILL after the grace period. Returns false for
// unknown ids. The signal escalation runs off the lock.
func (r *Registry) Terminate(taskID string) bool {
	r.mu.Lock()
	entry, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	alreadyCancelled := entry.cancelled
	entry.cancelled = true
	pid := entry.info.PID
	r.mu.Unlock()

	if alreadyCancelled {
		return true
	}
	r.log.Info("terminating task %s (pid %d)", taskID, pid)
	go terminateGroup(pid, killGrace)
	return true
}

// TerminateAll cancels every running task and returns how many were
// signalled.
func (r *Registry) TerminateAll() int {
	r.mu.Lock()
	ids := make([]string, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	count := 0
	for _, id := range ids {
		if r.Terminate(id) {
			count++
		}
	}
	return count
}

// ListRunning returns a stable snapshot of in-flight tasks, oldest
// first.
func (r *Registry) ListRunning() []TaskInfo {
	r.mu.Lock()
	infos := make([]TaskInfo, 0, len(r.tasks))
	for _, entry := range r.tasks {
		infos = append(infos, entry.info)
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Started.Before(infos[j].Started) })
	return infos
}
