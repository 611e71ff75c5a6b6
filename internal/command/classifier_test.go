package command

import (
	"reflect"
	"testing"
)

func TestClassifyKinds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Kind
	}{
		{"simple with prefix", "kubectl get pods", KindSimple},
		{"simple without prefix", "get pods -n kube-system", KindSimple},
		{"pipeline", "kubectl get pods | grep Running", KindPipeline},
		{"logical and", "kubectl get ns && kubectl get pods", KindLogical},
		{"logical or", "kubectl get ns || echo missing", KindLogical},
		{"semicolon chain", "kubectl get ns; kubectl get pods", KindLogical},
		{"substitution", "kubectl delete pod $(kubectl get pods -o name)", KindSubstitution},
		{"redirection out", "kubectl get pods > pods.txt", KindRedirection},
		{"redirection in", "kubectl apply -f - < manifest.yaml", KindRedirection},
		{"shell raw", "grep -r pattern .", KindShellRaw},
		{"empty", "", KindUnknown},
		{"whitespace only", "   ", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.raw)
			if got.Kind != tt.want {
				t.Errorf("Classify(%q).Kind = %s, want %s", tt.raw, got.Kind, tt.want)
			}
		})
	}
}

func TestClassifyHeredoc(t *testing.T) {
	raw := "kubectl apply -f - <<EOF\napiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: demo\nEOF"
	parsed := Classify(raw)

	if parsed.Kind != KindHeredoc {
		t.Fatalf("expected heredoc, got %s", parsed.Kind)
	}
	if parsed.Normalized != "kubectl apply -f -" {
		t.Errorf("unexpected command part: %q", parsed.Normalized)
	}
	if parsed.Delimiter != "EOF" {
		t.Errorf("unexpected delimiter: %q", parsed.Delimiter)
	}
	if parsed.YAMLPayload == "" || !containsLine(parsed.YAMLPayload, "kind: ConfigMap") {
		t.Errorf("payload not captured: %q", parsed.YAMLPayload)
	}
}

func TestClassifyHeredocMissingDelimiter(t *testing.T) {
	// Without the closing line this is not a complete heredoc; the "<"
	// makes it a redirection instead.
	raw := "kubectl apply -f - <<EOF\nkind: ConfigMap"
	parsed := Classify(raw)
	if parsed.Kind != KindRedirection {
		t.Errorf("expected redirection fallback, got %s", parsed.Kind)
	}
}

// Priority pins: when shapes overlap, the earlier matcher must win.
func TestClassifyPriority(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Kind
	}{
		{"substitution beats pipeline", "kubectl get $(cat name) | grep x", KindSubstitution},
		{"pipeline beats logical", "kubectl get pods && kubectl top nodes | head", KindPipeline},
		{"logical beats redirection", "kubectl get ns && kubectl get pods > out.txt", KindLogical},
		{"double pipe is not a pipeline", "kubectl get ns || true", KindLogical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.raw)
			if got.Kind != tt.want {
				t.Errorf("Classify(%q).Kind = %s, want %s", tt.raw, got.Kind, tt.want)
			}
		})
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	inputs := []string{
		"kubectl get pods",
		"kubectl get pods | grep Running",
		"kubectl delete pod $(kubectl get pods -o name)",
		"rm -rf /",
	}
	for _, raw := range inputs {
		first := Classify(raw)
		second := Classify(raw)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Classify(%q) is not deterministic", raw)
		}
	}
}

func TestPipelineSegments(t *testing.T) {
	parsed := Classify("kubectl get pods | grep Running | wc -l")
	if parsed.Kind != KindPipeline {
		t.Fatalf("expected pipeline, got %s", parsed.Kind)
	}
	want := []string{"kubectl get pods", "grep Running", "wc -l"}
	if !reflect.DeepEqual(parsed.Segments, want) {
		t.Errorf("segments = %v, want %v", parsed.Segments, want)
	}
}

func TestLogicalSegments(t *testing.T) {
	parsed := Classify("kubectl get ns && kubectl get pods; echo done")
	if parsed.Kind != KindLogical {
		t.Fatalf("expected logical, got %s", parsed.Kind)
	}
	want := []string{"kubectl get ns", "kubectl get pods", "echo done"}
	if !reflect.DeepEqual(parsed.Segments, want) {
		t.Errorf("segments = %v, want %v", parsed.Segments, want)
	}
}

func TestSubstitutionInner(t *testing.T) {
	parsed := Classify("kubectl delete pod $(kubectl get pods -o name) -n dev")
	if parsed.Kind != KindSubstitution {
		t.Fatalf("expected substitution, got %s", parsed.Kind)
	}
	if len(parsed.Inner) != 1 || parsed.Inner[0] != "kubectl get pods -o name" {
		t.Errorf("inner = %v", parsed.Inner)
	}

	stripped := StripSubstitutions(parsed.Normalized)
	if stripped != "kubectl delete pod -n dev" {
		t.Errorf("stripped = %q", stripped)
	}
}

func TestEnsureKubectlPrefix(t *testing.T) {
	parsed := Classify("get pods -o wide")
	if parsed.Kind != KindSimple {
		t.Fatalf("expected simple, got %s", parsed.Kind)
	}
	if parsed.Normalized != "kubectl get pods -o wide" {
		t.Errorf("normalized = %q", parsed.Normalized)
	}
	if parsed.Segments[0] != "kubectl" {
		t.Errorf("segments = %v", parsed.Segments)
	}
}

func TestBareVerbPrefixOnCompoundShapes(t *testing.T) {
	parsed := Classify("get pods | grep Running")
	if parsed.Kind != KindPipeline {
		t.Fatalf("expected pipeline, got %s", parsed.Kind)
	}
	if parsed.Normalized != "kubectl get pods | grep Running" {
		t.Errorf("normalized = %q", parsed.Normalized)
	}
	if parsed.Segments[0] != "kubectl get pods" {
		t.Errorf("segments = %v", parsed.Segments)
	}

	parsed = Classify("get ns && describe pod web")
	if parsed.Kind != KindLogical {
		t.Fatalf("expected logical, got %s", parsed.Kind)
	}
	if parsed.Segments[0] != "kubectl get ns" {
		t.Errorf("segments = %v", parsed.Segments)
	}

	// Non-kubectl first tokens are left alone.
	parsed = Classify("echo hi | grep hi")
	if parsed.Normalized != "echo hi | grep hi" {
		t.Errorf("normalized = %q", parsed.Normalized)
	}
}

func TestSplitTokens(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`kubectl get pods`, []string{"kubectl", "get", "pods"}},
		{`kubectl label pod x app="my app"`, []string{"kubectl", "label", "pod", "x", `app=my app`}},
		{`echo 'single quoted'`, []string{"echo", "single quoted"}},
		{`echo "unterminated`, []string{"echo", "unterminated"}},
		{``, nil},
	}
	for _, tt := range tests {
		got := SplitTokens(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitTokens(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func containsLine(payload, line string) bool {
	for _, l := range splitLines(payload) {
		if l == line {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return append(lines, s[start:])
}
