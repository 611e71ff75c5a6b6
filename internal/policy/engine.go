package policy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/normanking/kubegate/internal/logging"
)

// Engine owns the mutable security policy. All mutations serialize
// through one RWMutex; critical sections copy maps and nothing else,
// so snapshot reads never block on long operations.
type Engine struct {
	mu sync.RWMutex

	adminMode    bool
	shellEnabled bool

	dangerous      map[string]bool
	safe           map[string]bool
	safeResources  map[string]map[string]bool
	safeShell      map[string]bool
	dangerousShell map[string]bool

	log *logging.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithShellEnabled seeds the shell-command support toggle.
func WithShellEnabled(enabled bool) Option {
	return func(e *Engine) { e.shellEnabled = enabled }
}

// WithAdminMode seeds the admin-mode override.
func WithAdminMode(enabled bool) Option {
	return func(e *Engine) { e.adminMode = enabled }
}

// WithSafeShellCommands replaces the safe shell-command allow list.
func WithSafeShellCommands(cmds []string) Option {
	return func(e *Engine) { e.safeShell = toSet(cmds) }
}

// WithDangerousCommands replaces the dangerous kubectl verb list.
func WithDangerousCommands(verbs []string) Option {
	return func(e *Engine) { e.dangerous = toSet(verbs) }
}

// NewEngine creates a policy engine with the stock policy applied,
// then any options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		shellEnabled:   true,
		dangerous:      toSet(defaultDangerous()),
		safe:           toSet(defaultSafe()),
		safeResources:  make(map[string]map[string]bool),
		safeShell:      toSet(defaultSafeShell()),
		dangerousShell: toSet(defaultDangerousShell()),
		log:            logging.Global().WithComponent("policy"),
	}
	for verb, resources := range defaultSafeResources() {
		e.safeResources[verb] = toSet(resources)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetAdminMode toggles the admin-mode override. While enabled, every
// command is allowed regardless of any other rule.
func (e *Engine) SetAdminMode(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adminMode = enabled
	if enabled {
		e.log.Warn("admin mode ENABLED: all policy checks bypassed")
	} else {
		e.log.Info("admin mode disabled")
	}
}

// AdminMode reports whether the admin-mode override is active.
func (e *Engine) AdminMode() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.adminMode
}

// SetShellEnabled toggles support for generic shell commands.
func (e *Engine) SetShellEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shellEnabled = enabled
}

// AddDangerousCommand adds a custom verb to the dangerous list.
func (e *Engine) AddDangerousCommand(verb string) {
	verb = strings.ToLower(strings.TrimSpace(verb))
	if verb == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dangerous[verb] = true
}

// RemoveDangerousCommand removes a verb from the dangerous list.
// Removing an unknown verb is a no-op.
func (e *Engine) RemoveDangerousCommand(verb string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.dangerous, strings.ToLower(strings.TrimSpace(verb)))
}

// AddSafeShellCommand adds a command to the shell allow list.
func (e *Engine) AddSafeShellCommand(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.safeShell[name] = true
}

// AddSafeResource allow-lists a resource type for one of the
// resource-scoped verbs (create/apply/scale).
func (e *Engine) AddSafeResource(verb, resource string) error {
	verb = strings.ToLower(strings.TrimSpace(verb))
	resource = strings.ToLower(strings.TrimSpace(resource))
	if verb != VerbCreate && verb != VerbApply && verb != VerbScale {
		return fmt.Errorf("verb %q does not carry a resource allow list", verb)
	}
	if resource == "" {
		return fmt.Errorf("resource type cannot be empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.safeResources[verb] == nil {
		e.safeResources[verb] = make(map[string]bool)
	}
	e.safeResources[verb][resource] = true
	return nil
}

// RemoveSafeResource removes a resource type from a verb's allow list.
func (e *Engine) RemoveSafeResource(verb, resource string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.safeResources[strings.ToLower(verb)], strings.ToLower(resource))
}

// Snapshot returns an immutable copy of the effective policy.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := &Snapshot{
		AdminMode:      e.adminMode,
		ShellEnabled:   e.shellEnabled,
		Dangerous:      copySet(e.dangerous),
		Safe:           copySet(e.safe),
		SafeResources:  make(map[string]map[string]bool, len(e.safeResources)),
		SafeShell:      copySet(e.safeShell),
		DangerousShell: copySet(e.dangerousShell),
	}
	for verb, resources := range e.safeResources {
		snap.SafeResources[verb] = copySet(resources)
	}
	return snap
}

func copySet(src map[string]bool) map[string]bool {
	dst := make(map[string]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
