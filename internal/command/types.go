// Package command classifies raw command strings into a tagged shape
// before any policy evaluation or execution happens. Classification is
// pure: same input, same output, no I/O.
package command

// Kind identifies the syntactic shape of a command.
type Kind string

const (
	KindSimple       Kind = "simple_kubectl" // plain kubectl invocation
	KindPipeline     Kind = "pipeline"       // segments joined by |
	KindSubstitution Kind = "substitution"   // contains $(...)
	KindLogical      Kind = "logical"        // segments joined by && / || / ;
	KindHeredoc      Kind = "heredoc"        // kubectl ... <<DELIM ... DELIM
	KindRedirection  Kind = "redirection"    // contains > < or 2>
	KindShellRaw     Kind = "shell_command"  // generic shell command
	KindUnknown      Kind = "unknown"        // empty or unrecognizable
)

// String returns the wire representation of a Kind.
func (k Kind) String() string {
	return string(k)
}

// ParsedCommand is the immutable result of classifying one raw string.
// Fields beyond Kind/Raw/Normalized are populated per shape: Segments
// for pipelines and logical chains, Inner for command substitutions,
// YAMLPayload/Delimiter for heredocs.
type ParsedCommand struct {
	Kind        Kind
	Raw         string
	Normalized  string
	Segments    []string
	Inner       []string
	YAMLPayload string
	Delimiter   string
}

// kubectl sub-verbs that identify a bare command ("get pods") as a
// kubectl invocation missing its prefix.
var kubectlVerbs = map[string]bool{
	"get": true, "describe": true, "create": true, "delete": true,
	"apply": true, "patch": true, "replace": true, "logs": true,
	"exec": true, "port-forward": true, "proxy": true, "cp": true,
	"auth": true, "config": true, "cluster-info": true, "top": true,
	"cordon": true, "uncordon": true, "drain": true, "taint": true,
	"label": true, "annotate": true, "scale": true, "autoscale": true,
	"rollout": true, "set": true, "wait": true, "attach": true,
	"run": true, "expose": true, "edit": true, "explain": true,
	"api-resources": true, "api-versions": true, "version": true,
}

// IsKubectlVerb reports whether tok is a recognized kubectl sub-verb.
func IsKubectlVerb(tok string) bool {
	return kubectlVerbs[tok]
}
