// Package advisor decides whether a failed command attempt is worth
// retrying and, when it is, what to run instead. Implementations never
// execute anything; they only produce advice for the gateway to vet.
package advisor

import "context"

// AttemptRecord is one prior attempt in a retry session.
type AttemptRecord struct {
	Command    string `json:"command"`
	Error      string `json:"error"`
	ReturnCode int    `json:"return_code"`
}

// FailureContext is everything an advisor gets to see about a failure.
type FailureContext struct {
	// Intent is the caller's original request, before any rewriting.
	Intent string
	// Command is the exact command that just failed.
	Command string
	// ErrorText is the stderr (or synthesized error) of the failure.
	ErrorText string
	// Attempt counts from 1.
	Attempt int
	// History holds every earlier attempt, oldest first.
	History []AttemptRecord
}

// Analysis is an advisor's verdict on one failure.
type Analysis struct {
	CanRetry     bool   `json:"can_retry"`
	RetryCommand string `json:"retry_command,omitempty"`
	Reason       string `json:"reason"`
}

// Advisor analyzes a failure. A nil-error return with CanRetry=false
// means "give up"; an error return means the advisor itself failed and
// the caller treats that as give-up too.
type Advisor interface {
	Analyze(ctx context.Context, fc FailureContext) (*Analysis, error)
}
