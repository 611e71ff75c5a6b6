package command

import (
	"regexp"
	"strings"
)

// Shape detection is priority-ordered because shapes overlap: a heredoc
// contains "<", a substitution may contain a pipe, and so on. The table
// below is the single source of truth for tie-breaking: first match
// wins, and nothing downstream re-evaluates an earlier shape.
var matchers = []struct {
	kind    Kind
	detect  func(string) bool
	extract func(string) *ParsedCommand
}{
	{KindSubstitution, detectSubstitution, extractSubstitution},
	{KindPipeline, detectPipeline, extractPipeline},
	{KindHeredoc, detectHeredoc, extractHeredoc},
	{KindLogical, detectLogical, extractLogical},
	{KindRedirection, detectRedirection, extractRedirection},
	{KindSimple, detectSimple, extractSimple},
}

// Classify maps a raw command string to its tagged shape. It is pure
// and deterministic; callers may classify the same string any number
// of times and always observe the same result.
func Classify(raw string) *ParsedCommand {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return &ParsedCommand{Kind: KindUnknown, Raw: raw}
	}

	// Prefix inference applies to the whole string, whatever its
	// shape: "get pods | grep Running" must execute as a kubectl
	// pipeline, not be handed to bash with a bare "get".
	trimmed = ensureKubectlPrefix(trimmed)

	for _, m := range matchers {
		if m.detect(trimmed) {
			parsed := m.extract(trimmed)
			parsed.Raw = raw
			return parsed
		}
	}

	// Anything non-empty that matched no structured shape is handed to
	// the shell verbatim, subject to the shell-command policy.
	return &ParsedCommand{
		Kind:       KindShellRaw,
		Raw:        raw,
		Normalized: trimmed,
		Segments:   []string{trimmed},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SUBSTITUTION
// ═══════════════════════════════════════════════════════════════════════════════

var substitutionRe = regexp.MustCompile(`\$\(([^()]+)\)`)

func detectSubstitution(s string) bool {
	return substitutionRe.MatchString(s)
}

func extractSubstitution(s string) *ParsedCommand {
	var inner []string
	for _, m := range substitutionRe.FindAllStringSubmatch(s, -1) {
		if cmd := strings.TrimSpace(m[1]); cmd != "" {
			inner = append(inner, cmd)
		}
	}
	return &ParsedCommand{
		Kind:       KindSubstitution,
		Normalized: s,
		Inner:      inner,
	}
}

// StripSubstitutions returns s with every $(...) span removed and the
// surrounding whitespace collapsed. The remainder is what the outer
// command looks like to the policy engine.
func StripSubstitutions(s string) string {
	stripped := substitutionRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(stripped), " ")
}

// ═══════════════════════════════════════════════════════════════════════════════
// PIPELINE
// ═══════════════════════════════════════════════════════════════════════════════

// detectPipeline looks for a single | that is not part of a logical ||.
func detectPipeline(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '|' {
			continue
		}
		if i+1 < len(s) && s[i+1] == '|' {
			i++ // skip the ||
			continue
		}
		if i > 0 && s[i-1] == '|' {
			continue
		}
		return true
	}
	return false
}

// splitPipeline breaks a command into pipeline stages on single pipes,
// leaving || intact inside stages. Quoted pipes are not recognized;
// the shapes the gateway accepts never need them.
func splitPipeline(s string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '|' {
			continue
		}
		if i+1 < len(s) && s[i+1] == '|' {
			i++
			continue
		}
		if i > 0 && s[i-1] == '|' {
			continue
		}
		if seg := strings.TrimSpace(s[start:i]); seg != "" {
			segments = append(segments, seg)
		}
		start = i + 1
	}
	if seg := strings.TrimSpace(s[start:]); seg != "" {
		segments = append(segments, seg)
	}
	return segments
}

func extractPipeline(s string) *ParsedCommand {
	return &ParsedCommand{
		Kind:       KindPipeline,
		Normalized: s,
		Segments:   splitPipeline(s),
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// HEREDOC
// ═══════════════════════════════════════════════════════════════════════════════

var heredocOpenRe = regexp.MustCompile(`<<-?\s*['"]?([A-Za-z_][A-Za-z0-9_]*)['"]?`)

// detectHeredoc requires both the opening marker and a closing line
// that matches the delimiter exactly. A dangling << falls through to
// the redirection matcher.
func detectHeredoc(s string) bool {
	_, _, ok := splitHeredoc(s)
	return ok
}

// splitHeredoc separates the command part from the heredoc body.
func splitHeredoc(s string) (cmdPart, body string, ok bool) {
	loc := heredocOpenRe.FindStringSubmatchIndex(s)
	if loc == nil {
		return "", "", false
	}
	delim := s[loc[2]:loc[3]]
	cmdPart = strings.TrimSpace(s[:loc[0]])

	rest := s[loc[1]:]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return "", "", false
	}
	rest = rest[nl+1:]

	var bodyLines []string
	for _, line := range strings.Split(rest, "\n") {
		if strings.TrimSpace(line) == delim {
			return cmdPart, strings.Join(bodyLines, "\n"), true
		}
		bodyLines = append(bodyLines, line)
	}
	return "", "", false // closing delimiter never seen
}

func extractHeredoc(s string) *ParsedCommand {
	cmdPart, body, _ := splitHeredoc(s)
	delim := heredocOpenRe.FindStringSubmatch(s)[1]
	return &ParsedCommand{
		Kind:        KindHeredoc,
		Normalized:  ensureKubectlPrefix(cmdPart),
		YAMLPayload: body,
		Delimiter:   delim,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOGICAL OPERATORS
// ═══════════════════════════════════════════════════════════════════════════════

var logicalSplitRe = regexp.MustCompile(`\s*(?:&&|\|\||;)\s*`)

func detectLogical(s string) bool {
	return strings.Contains(s, "&&") || strings.Contains(s, "||") || strings.Contains(s, ";")
}

func extractLogical(s string) *ParsedCommand {
	var segments []string
	for _, seg := range logicalSplitRe.Split(s, -1) {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}
	return &ParsedCommand{
		Kind:       KindLogical,
		Normalized: s,
		Segments:   segments,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// REDIRECTION
// ═══════════════════════════════════════════════════════════════════════════════

func detectRedirection(s string) bool {
	return strings.ContainsAny(s, "<>")
}

func extractRedirection(s string) *ParsedCommand {
	return &ParsedCommand{
		Kind:       KindRedirection,
		Normalized: s,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SIMPLE KUBECTL
// ═══════════════════════════════════════════════════════════════════════════════

func detectSimple(s string) bool {
	tokens := SplitTokens(s)
	if len(tokens) == 0 {
		return false
	}
	return tokens[0] == "kubectl" || IsKubectlVerb(tokens[0])
}

func extractSimple(s string) *ParsedCommand {
	normalized := ensureKubectlPrefix(s)
	return &ParsedCommand{
		Kind:       KindSimple,
		Normalized: normalized,
		Segments:   SplitTokens(normalized),
	}
}

// ensureKubectlPrefix normalizes a bare sub-verb invocation ("get
// pods") to its full form ("kubectl get pods").
func ensureKubectlPrefix(s string) string {
	s = strings.TrimSpace(s)
	tokens := SplitTokens(s)
	if len(tokens) > 0 && tokens[0] != "kubectl" && IsKubectlVerb(tokens[0]) {
		return "kubectl " + s
	}
	return s
}
