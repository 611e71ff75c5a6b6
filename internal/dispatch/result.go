package dispatch

import (
	"time"

	"github.com/normanking/kubegate/internal/command"
)

// Result captures everything one execution attempt produced. Exactly
// one attempt maps to exactly one Result; the dispatcher never retries
// on its own.
type Result struct {
	Success    bool          `json:"success"`
	Output     string        `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
	ReturnCode int           `json:"return_code"`
	Command    string        `json:"command"`
	Kind       command.Kind  `json:"kind"`
	TimedOut   bool          `json:"timed_out,omitempty"`
	Cancelled  bool          `json:"cancelled,omitempty"`
	Duration   time.Duration `json:"duration"`
}
