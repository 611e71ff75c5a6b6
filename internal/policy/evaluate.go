package policy

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/normanking/kubegate/internal/command"
)

// Evaluate computes a fresh verdict for one parsed command. The policy
// is snapshotted once at entry; recursion over segments and
// substitutions runs against that snapshot without touching the lock.
func (e *Engine) Evaluate(parsed *command.ParsedCommand) Decision {
	return e.Snapshot().Evaluate(parsed)
}

// Evaluate applies the per-kind evaluation rule. Every kind maps to
// exactly one rule; there is no fallthrough between shapes.
func (s *Snapshot) Evaluate(parsed *command.ParsedCommand) Decision {
	if s.AdminMode {
		return allow("admin mode enabled: all commands permitted")
	}

	switch parsed.Kind {
	case command.KindSimple:
		return s.evalSimple(parsed)
	case command.KindHeredoc:
		return s.evalHeredoc(parsed)
	case command.KindPipeline, command.KindLogical:
		return s.evalSegments(parsed)
	case command.KindSubstitution:
		return s.evalSubstitution(parsed)
	case command.KindShellRaw:
		return s.evalShellRaw(parsed)
	case command.KindRedirection:
		return deny("output/input redirection is not permitted")
	case command.KindUnknown:
		return deny("unrecognized command syntax")
	default:
		return deny(fmt.Sprintf("no evaluation rule for kind %q", parsed.Kind))
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SIMPLE KUBECTL
// ═══════════════════════════════════════════════════════════════════════════════

func (s *Snapshot) evalSimple(parsed *command.ParsedCommand) Decision {
	tokens := parsed.Segments
	if len(tokens) == 0 {
		tokens = command.SplitTokens(parsed.Normalized)
	}
	if len(tokens) > 0 && tokens[0] == "kubectl" {
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return deny("kubectl invocation carries no sub-command")
	}

	// The dangerous list wins over everything else, wherever the verb
	// appears in the command.
	for _, tok := range tokens {
		if s.Dangerous[strings.ToLower(tok)] {
			return deny(fmt.Sprintf("dangerous command %q is blocked by policy", strings.ToLower(tok)))
		}
	}

	verb := strings.ToLower(tokens[0])
	if s.Safe[verb] {
		return allow(fmt.Sprintf("read-only kubectl verb %q", verb))
	}

	switch verb {
	case VerbCreate:
		return s.evalResourceVerb(VerbCreate, tokens)
	case VerbScale:
		return s.evalResourceVerb(VerbScale, tokens)
	case VerbApply:
		return s.evalApply(parsed, tokens)
	}

	// Verbs that are neither safe-listed, dangerous, nor
	// resource-scoped are permitted, matching the stock gateway.
	return allow(fmt.Sprintf("kubectl verb %q permitted by default policy", verb))
}

// evalResourceVerb checks the resource type argument of create/scale
// against that verb's allow list. Scale targets may use the
// "deployment/name" form; the name suffix is ignored.
func (s *Snapshot) evalResourceVerb(verb string, tokens []string) Decision {
	if len(tokens) < 2 {
		return deny(fmt.Sprintf("kubectl %s requires a resource type", verb))
	}
	resource := strings.ToLower(tokens[1])
	if verb == VerbScale {
		resource = strings.SplitN(resource, "/", 2)[0]
	}
	resource = canonicalResource(resource)
	if !s.SafeResources[verb][resource] {
		return deny(fmt.Sprintf("resource type %q is not allow-listed for %s", resource, verb))
	}
	return allow(fmt.Sprintf("%s of allow-listed resource %q", verb, resource))
}

// evalApply permits an apply when either the stdin YAML payload or the
// explicitly named resource types all fall inside the apply allow
// list.
func (s *Snapshot) evalApply(parsed *command.ParsedCommand, tokens []string) Decision {
	if readsFromStdin(tokens) && parsed.YAMLPayload != "" {
		return s.inspectApplyPayload(parsed.YAMLPayload)
	}

	for _, tok := range tokens[1:] {
		if strings.HasPrefix(tok, "-") {
			continue
		}
		resource, ok := resourceAliases[strings.ToLower(tok)]
		if !ok {
			continue
		}
		if !s.SafeResources[VerbApply][resource] {
			return deny(fmt.Sprintf("resource type %q is not allow-listed for apply", resource))
		}
	}
	return allow("apply within allow-listed resource types")
}

// inspectApplyPayload decodes every YAML document in the payload and
// requires each kind to be allow-listed for apply. A document without
// a kind is denied: the gateway cannot reason about what it creates.
func (s *Snapshot) inspectApplyPayload(payload string) Decision {
	dec := yaml.NewDecoder(strings.NewReader(payload))
	checked := 0
	for {
		var doc struct {
			Kind string `yaml:"kind"`
		}
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return deny(fmt.Sprintf("invalid YAML payload: %v", err))
		}
		kind := strings.ToLower(strings.TrimSpace(doc.Kind))
		if kind == "" {
			return deny("YAML document is missing a kind field")
		}
		if !s.SafeResources[VerbApply][kind] {
			return deny(fmt.Sprintf("YAML kind %q is not allow-listed for apply", doc.Kind))
		}
		checked++
	}
	if checked == 0 {
		return deny("apply payload contains no YAML documents")
	}
	return allow(fmt.Sprintf("all %d YAML document(s) are allow-listed kinds", checked))
}

// readsFromStdin reports whether the argument list points -f at stdin.
func readsFromStdin(tokens []string) bool {
	for i, tok := range tokens {
		switch tok {
		case "-f", "--filename":
			if i+1 < len(tokens) && tokens[i+1] == "-" {
				return true
			}
		case "-f-", "-f=-", "--filename=-":
			return true
		}
	}
	return false
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMPOUND SHAPES
// ═══════════════════════════════════════════════════════════════════════════════

// evalSegments allows a pipeline or logical chain iff every segment,
// independently re-classified, is allowed. The denial reason names the
// first failing segment.
func (s *Snapshot) evalSegments(parsed *command.ParsedCommand) Decision {
	if len(parsed.Segments) == 0 {
		return deny("compound command has no segments")
	}
	for _, seg := range parsed.Segments {
		if d := s.Evaluate(command.Classify(seg)); !d.Allowed {
			return deny(fmt.Sprintf("segment %q: %s", seg, d.Reason))
		}
	}
	return allow(fmt.Sprintf("all %d segment(s) permitted", len(parsed.Segments)))
}

// evalSubstitution requires every $(...) inner command to pass, then
// re-evaluates the outer command with the substitution spans removed.
// An outer that mentions kubectl is checked as a kubectl command; any
// other outer falls under the shell rules.
func (s *Snapshot) evalSubstitution(parsed *command.ParsedCommand) Decision {
	for _, inner := range parsed.Inner {
		if d := s.Evaluate(command.Classify(inner)); !d.Allowed {
			return deny(fmt.Sprintf("substituted command %q: %s", inner, d.Reason))
		}
	}
	outer := command.StripSubstitutions(parsed.Normalized)
	if outer != "" {
		if d := s.Evaluate(command.Classify(outer)); !d.Allowed {
			return deny(fmt.Sprintf("substitution context: %s", d.Reason))
		}
	}
	return allow("substitution and context permitted")
}

// evalHeredoc evaluates only the extracted kubectl command; the YAML
// payload is inspected by the apply rule when the command reads from
// stdin.
func (s *Snapshot) evalHeredoc(parsed *command.ParsedCommand) Decision {
	cmdParsed := command.Classify(parsed.Normalized)
	if cmdParsed.Kind == command.KindSimple {
		withPayload := *cmdParsed
		withPayload.YAMLPayload = parsed.YAMLPayload
		return s.evalSimple(&withPayload)
	}
	return s.Evaluate(cmdParsed)
}

// ═══════════════════════════════════════════════════════════════════════════════
// SHELL
// ═══════════════════════════════════════════════════════════════════════════════

// evalShellRaw is fail-closed: a first token on neither list is
// denied.
func (s *Snapshot) evalShellRaw(parsed *command.ParsedCommand) Decision {
	if !s.ShellEnabled {
		return deny("shell command support is disabled")
	}
	tokens := command.SplitTokens(parsed.Normalized)
	if len(tokens) == 0 {
		return deny("empty shell command")
	}
	first := strings.ToLower(tokens[0])
	if s.DangerousShell[first] {
		return deny(fmt.Sprintf("shell command %q is blocked by policy", first))
	}
	if s.SafeShell[first] {
		return allow(fmt.Sprintf("safe shell command %q", first))
	}
	return deny(fmt.Sprintf("shell command %q is not on the allow list", first))
}

// ═══════════════════════════════════════════════════════════════════════════════
// RESOURCE ALIASES
// ═══════════════════════════════════════════════════════════════════════════════

// resourceAliases maps kubectl resource spellings (plural and short
// forms) to the canonical name used by the allow lists. Tokens not in
// the table are not resource types as far as policy is concerned.
var resourceAliases = map[string]string{
	"configmap": "configmap", "configmaps": "configmap", "cm": "configmap",
	"secret": "secret", "secrets": "secret",
	"namespace": "namespace", "namespaces": "namespace", "ns": "namespace",
	"serviceaccount": "serviceaccount", "serviceaccounts": "serviceaccount", "sa": "serviceaccount",
	"deployment": "deployment", "deployments": "deployment", "deploy": "deployment",
	"service": "service", "services": "service", "svc": "service",
	"pod": "pod", "pods": "pod", "po": "pod",
	"replicaset": "replicaset", "replicasets": "replicaset", "rs": "replicaset",
	"daemonset": "daemonset", "daemonsets": "daemonset", "ds": "daemonset",
	"statefulset": "statefulset", "statefulsets": "statefulset", "sts": "statefulset",
	"job": "job", "jobs": "job",
	"cronjob": "cronjob", "cronjobs": "cronjob", "cj": "cronjob",
	"ingress": "ingress", "ingresses": "ingress", "ing": "ingress",
	"node": "node", "nodes": "node", "no": "node",
}

// canonicalResource resolves a token to its canonical resource name,
// or returns the token unchanged when it is not a known alias so the
// denial reason still names what the user typed.
func canonicalResource(tok string) string {
	if canonical, ok := resourceAliases[tok]; ok {
		return canonical
	}
	return tok
}
