// Package gateway owns the attempt loop: classify, policy-check,
// dispatch, and, on failure, consult the advisor for a bounded number
// of rewrites. Every retry is explicit and re-enters policy as a fresh
// command.
package gateway

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/normanking/kubegate/internal/advisor"
	"github.com/normanking/kubegate/internal/command"
	"github.com/normanking/kubegate/internal/dispatch"
	"github.com/normanking/kubegate/internal/logging"
	"github.com/normanking/kubegate/internal/policy"
)

// DefaultMaxRetries bounds rewrites, not attempts: n retries means
// n+1 total attempts.
const DefaultMaxRetries = 2

// Status classifies how a logical operation ended.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusGoalAchieved Status = "goal_achieved"
	StatusPolicyDenied Status = "policy_denied"
	StatusParseUnknown Status = "parse_unknown"
	StatusTimedOut     Status = "timed_out"
	StatusCancelled    Status = "cancelled"
	StatusFailed       Status = "failed"
)

// Request is one logical operation entering the gateway.
type Request struct {
	// Intent is the natural-language goal, when known. Falls back to
	// the command itself for advisor context.
	Intent  string
	Command string
	Timeout time.Duration
	TaskID  string
}

// Attempt records one pass through classify/policy/dispatch.
type Attempt struct {
	Number   int
	Command  string
	Kind     command.Kind
	Decision policy.Decision
	Result   *dispatch.Result
}

// Outcome is the terminal state of a logical operation. Attempts holds
// the full history, in order.
type Outcome struct {
	Status   Status
	Reason   string
	Attempts []Attempt
}

// Final returns the last executed result, or nil when nothing ran.
func (o *Outcome) Final() *dispatch.Result {
	for i := len(o.Attempts) - 1; i >= 0; i-- {
		if o.Attempts[i].Result != nil {
			return o.Attempts[i].Result
		}
	}
	return nil
}

// Executor runs one authorized command. *dispatch.Dispatcher is the
// production implementation.
type Executor interface {
	Execute(ctx context.Context, parsed *command.ParsedCommand, opts dispatch.Options) *dispatch.Result
}

// Recorder persists attempt history. Implementations must not block
// the attempt loop on failure; errors are logged and dropped.
type Recorder interface {
	RecordAttempt(ctx context.Context, taskID string, attempt Attempt, status Status) error
}

// Gateway wires the classifier, policy engine, dispatcher and advisor
// into one attempt loop.
type Gateway struct {
	policy     *policy.Engine
	executor   Executor
	advisor    advisor.Advisor
	recorder   Recorder
	maxRetries int
	log        *logging.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithMaxRetries overrides the rewrite budget. Negative values are
// clamped to zero.
func WithMaxRetries(n int) GatewayOption {
	return func(g *Gateway) {
		if n < 0 {
			n = 0
		}
		g.maxRetries = n
	}
}

// WithRecorder attaches an attempt ledger.
func WithRecorder(r Recorder) GatewayOption {
	return func(g *Gateway) { g.recorder = r }
}

func New(pol *policy.Engine, exec Executor, adv advisor.Advisor, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		policy:     pol,
		executor:   exec,
		advisor:    adv,
		maxRetries: DefaultMaxRetries,
		log:        logging.Global().WithComponent("gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run drives one logical operation to a terminal outcome. It never
// panics across this boundary; advisor and recorder failures degrade
// to give-up and a log line respectively.
func (g *Gateway) Run(ctx context.Context, req Request) *Outcome {
	intent := req.Intent
	if intent == "" {
		intent = req.Command
	}

	outcome := &Outcome{}
	current := req.Command
	originalVerb := kubectlVerbOf(command.Classify(req.Command))
	var history []advisor.AttemptRecord

	maxAttempts := g.maxRetries + 1
	for attemptNo := 1; attemptNo <= maxAttempts; attemptNo++ {
		parsed := command.Classify(current)
		attempt := Attempt{Number: attemptNo, Command: current, Kind: parsed.Kind}

		if parsed.Kind == command.KindUnknown {
			attempt.Decision = policy.Decision{Reason: "unrecognized command syntax"}
			outcome.Attempts = append(outcome.Attempts, attempt)
			g.finish(ctx, req.TaskID, outcome, StatusParseUnknown, "command could not be classified")
			return outcome
		}

		attempt.Decision = g.policy.Evaluate(parsed)
		if !attempt.Decision.Allowed {
			outcome.Attempts = append(outcome.Attempts, attempt)
			if attemptNo == 1 {
				g.finish(ctx, req.TaskID, outcome, StatusPolicyDenied, attempt.Decision.Reason)
			} else {
				g.finish(ctx, req.TaskID, outcome, StatusFailed,
					fmt.Sprintf("advisor suggestion denied by policy: %s", attempt.Decision.Reason))
			}
			return outcome
		}

		attempt.Result = g.executor.Execute(ctx, parsed, dispatch.Options{Timeout: req.Timeout, TaskID: req.TaskID})
		outcome.Attempts = append(outcome.Attempts, attempt)
		res := attempt.Result

		switch {
		case res.Success:
			g.finish(ctx, req.TaskID, outcome, StatusSuccess, "command succeeded")
			return outcome
		case res.TimedOut:
			g.finish(ctx, req.TaskID, outcome, StatusTimedOut, res.Error)
			return outcome
		case res.Cancelled:
			g.finish(ctx, req.TaskID, outcome, StatusCancelled, res.Error)
			return outcome
		}

		if isDestructiveVerb(originalVerb) && notFoundRe.MatchString(res.Error) {
			g.finish(ctx, req.TaskID, outcome, StatusGoalAchieved,
				fmt.Sprintf("%s target already absent: %s", originalVerb, strings.TrimSpace(res.Error)))
			return outcome
		}

		if attemptNo == maxAttempts {
			g.finish(ctx, req.TaskID, outcome, StatusFailed,
				fmt.Sprintf("retry budget exhausted after %d attempt(s): %s", attemptNo, res.Error))
			return outcome
		}

		next, reason, ok := g.consultAdvisor(ctx, intent, attempt, history, originalVerb)
		if !ok {
			g.finish(ctx, req.TaskID, outcome, StatusFailed, reason)
			return outcome
		}

		history = append(history, advisor.AttemptRecord{
			Command:    current,
			Error:      res.Error,
			ReturnCode: res.ReturnCode,
		})
		g.log.Info("attempt %d failed, retrying with: %s", attemptNo, next)
		current = next
	}

	// Unreachable: every loop path above returns.
	return outcome
}

// consultAdvisor asks for a rewrite and vets it against the
// destructive-verb guard. The returned reason explains a false ok.
func (g *Gateway) consultAdvisor(ctx context.Context, intent string, attempt Attempt, history []advisor.AttemptRecord, originalVerb string) (string, string, bool) {
	if g.advisor == nil {
		return "", fmt.Sprintf("no advisor configured: %s", attempt.Result.Error), false
	}

	analysis, err := g.advisor.Analyze(ctx, advisor.FailureContext{
		Intent:    intent,
		Command:   attempt.Command,
		ErrorText: attempt.Result.Error,
		Attempt:   attempt.Number,
		History:   history,
	})
	if err != nil {
		g.log.Warn("advisor failed: %v", err)
		return "", fmt.Sprintf("advisor unavailable: %v", err), false
	}
	if !analysis.CanRetry {
		return "", fmt.Sprintf("advisor declined retry: %s", analysis.Reason), false
	}

	next := strings.TrimSpace(analysis.RetryCommand)
	if next == "" {
		return "", "advisor suggested retry without a command", false
	}

	if isDestructiveVerb(originalVerb) {
		nextVerb := kubectlVerbOf(command.Classify(next))
		if nextVerb != "" && !isDestructiveVerb(nextVerb) && readOnlyVerbs[nextVerb] {
			return "", fmt.Sprintf("rejected rewrite of destructive %q to read-only %q", originalVerb, nextVerb), false
		}
	}
	return next, "", true
}

func (g *Gateway) finish(ctx context.Context, taskID string, outcome *Outcome, status Status, reason string) {
	outcome.Status = status
	outcome.Reason = reason
	g.log.Info("operation finished: status=%s attempts=%d", status, len(outcome.Attempts))
	if g.recorder == nil {
		return
	}

	// Attempt rows must survive request cancellation.
	recordCtx, cancel := logging.DetachContextWithTimeout(ctx, 5*time.Second)
	defer cancel()

	// One row per attempt. Only the terminal attempt carries the
	// operation's status; everything before it failed and was retried.
	for i, att := range outcome.Attempts {
		attStatus := StatusFailed
		if i == len(outcome.Attempts)-1 {
			attStatus = status
		}
		if err := g.recorder.RecordAttempt(recordCtx, taskID, att, attStatus); err != nil {
			g.log.Warn("failed to record attempt %d: %v", att.Number, err)
		}
	}
}

// notFoundRe matches the API server's absence errors; a stray mention
// of "not found" inside other prose still counts only on word
// boundaries.
var notFoundRe = regexp.MustCompile(`(?i)\bnot\s?found\b`)

var destructiveVerbs = map[string]bool{
	"delete":   true,
	"patch":    true,
	"replace":  true,
	"drain":    true,
	"taint":    true,
	"cordon":   true,
	"uncordon": true,
}

var readOnlyVerbs = map[string]bool{
	"get":           true,
	"describe":      true,
	"logs":          true,
	"top":           true,
	"explain":       true,
	"version":       true,
	"cluster-info":  true,
	"api-resources": true,
	"api-versions":  true,
}

func isDestructiveVerb(verb string) bool {
	return destructiveVerbs[verb]
}

// kubectlVerbOf pulls the sub-command out of a simple or heredoc
// invocation; compound shapes report no single verb.
func kubectlVerbOf(parsed *command.ParsedCommand) string {
	if parsed.Kind != command.KindSimple && parsed.Kind != command.KindHeredoc {
		return ""
	}
	tokens := command.SplitTokens(parsed.Normalized)
	if len(tokens) > 0 && tokens[0] == "kubectl" {
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return ""
	}
	return strings.ToLower(tokens[0])
}
