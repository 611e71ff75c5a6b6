package advisor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/normanking/kubegate/internal/logging"
)

var (
	transientRe   = regexp.MustCompile(`(?i)connection refused|connection reset|i/o timeout|tls handshake timeout|temporarily unavailable|etcdserver: request timed out`)
	unknownFlagRe = regexp.MustCompile(`(?i)unknown (?:shorthand )?flag: ['"]?(-{1,2}[A-Za-z][\w-]*)`)
	badTypeRe     = regexp.MustCompile(`the server doesn't have a resource type "([^"]+)"`)
	forbiddenRe   = regexp.MustCompile(`(?i)\(forbidden\)|forbidden: `)
)

// RuleAdvisor applies a fixed table of kubectl failure patterns. It is
// deterministic and needs no network, which makes it the default when
// no model endpoint is configured.
type RuleAdvisor struct {
	log *logging.Logger
}

func NewRuleAdvisor() *RuleAdvisor {
	return &RuleAdvisor{log: logging.Global().WithComponent("advisor")}
}

func (a *RuleAdvisor) Analyze(_ context.Context, fc FailureContext) (*Analysis, error) {
	// A command that already failed the same way twice is not going to
	// start working.
	for _, prior := range fc.History {
		if prior.Command == fc.Command && prior.Error == fc.ErrorText {
			return &Analysis{CanRetry: false, Reason: "identical failure already seen this session"}, nil
		}
	}

	if forbiddenRe.MatchString(fc.ErrorText) {
		return &Analysis{CanRetry: false, Reason: "request was denied by cluster RBAC"}, nil
	}

	if transientRe.MatchString(fc.ErrorText) {
		a.log.Debug("transient API error, retrying unchanged: %s", fc.Command)
		return &Analysis{
			CanRetry:     true,
			RetryCommand: fc.Command,
			Reason:       "transient API server error, same command is worth one more try",
		}, nil
	}

	if m := unknownFlagRe.FindStringSubmatch(fc.ErrorText); m != nil {
		if fixed, ok := dropFlag(fc.Command, m[1]); ok {
			return &Analysis{
				CanRetry:     true,
				RetryCommand: fixed,
				Reason:       fmt.Sprintf("removed unsupported flag %s", m[1]),
			}, nil
		}
	}

	if m := badTypeRe.FindStringSubmatch(fc.ErrorText); m != nil {
		if fixed, ok := togglePlural(fc.Command, m[1]); ok {
			return &Analysis{
				CanRetry:     true,
				RetryCommand: fixed,
				Reason:       fmt.Sprintf("resource type %q is not served, trying the alternate spelling", m[1]),
			}, nil
		}
	}

	return &Analysis{CanRetry: false, Reason: "no rule matches this failure"}, nil
}

// dropFlag removes the named flag and, for long flags given as
// "--flag value", its value token.
func dropFlag(cmdline, flag string) (string, bool) {
	tokens := strings.Fields(cmdline)
	out := make([]string, 0, len(tokens))
	dropped := false
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok == flag || strings.HasPrefix(tok, flag+"=") {
			dropped = true
			if tok == flag && i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") {
				i++
			}
			continue
		}
		out = append(out, tok)
	}
	if !dropped {
		return "", false
	}
	return strings.Join(out, " "), true
}

// togglePlural swaps a resource token between singular and plural
// spelling.
func togglePlural(cmdline, resource string) (string, bool) {
	var alternate string
	if strings.HasSuffix(resource, "s") {
		alternate = strings.TrimSuffix(resource, "s")
	} else {
		alternate = resource + "s"
	}

	tokens := strings.Fields(cmdline)
	for i, tok := range tokens {
		if tok == resource {
			tokens[i] = alternate
			return strings.Join(tokens, " "), true
		}
	}
	return "", false
}
