// Package policy implements the layered allow/deny policy for the
// command gateway. One Engine exists per process; every mutation goes
// through an explicit operation under a single lock, and every read
// path works off an immutable snapshot so evaluation never holds the
// lock while recursing.
package policy

import "sort"

// Verbs with resource-scoped allow lists.
const (
	VerbCreate = "create"
	VerbApply  = "apply"
	VerbScale  = "scale"
)

// Decision is the verdict for one evaluation of one command. Decisions
// are computed fresh on every attempt and never cached across policy
// mutations.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Snapshot is an immutable copy of the effective policy. Mutating the
// engine after taking a snapshot does not affect it.
type Snapshot struct {
	AdminMode    bool
	ShellEnabled bool

	Dangerous      map[string]bool
	Safe           map[string]bool
	SafeResources  map[string]map[string]bool // verb -> resource set
	SafeShell      map[string]bool
	DangerousShell map[string]bool
}

// DangerousList returns the dangerous kubectl verbs in sorted order.
func (s *Snapshot) DangerousList() []string { return sortedKeys(s.Dangerous) }

// SafeList returns the safe kubectl verbs in sorted order.
func (s *Snapshot) SafeList() []string { return sortedKeys(s.Safe) }

// SafeResourceList returns the allow-listed resources for a verb.
func (s *Snapshot) SafeResourceList(verb string) []string {
	return sortedKeys(s.SafeResources[verb])
}

// SafeShellList returns the shell allow list in sorted order.
func (s *Snapshot) SafeShellList() []string { return sortedKeys(s.SafeShell) }

// DangerousShellList returns the blocked shell commands in sorted order.
func (s *Snapshot) DangerousShellList() []string { return sortedKeys(s.DangerousShell) }

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Defaults mirrors the stock policy of the original gateway: read-only
// kubectl verbs are safe, destructive verbs are dangerous, and the
// create/apply/scale verbs carry per-resource allow lists.
func defaultDangerous() []string {
	return []string{"delete", "drain", "cordon", "uncordon", "taint", "patch", "replace"}
}

func defaultSafe() []string {
	return []string{
		"get", "describe", "logs", "top", "explain", "version",
		"cluster-info", "config", "auth", "api-resources", "api-versions",
	}
}

func defaultSafeResources() map[string][]string {
	return map[string][]string{
		VerbCreate: {
			"configmap", "secret", "namespace", "serviceaccount", "deployment",
			"service", "pod", "replicaset", "daemonset", "statefulset", "job", "cronjob",
		},
		VerbApply: {
			"deployment", "service", "configmap", "secret", "ingress", "pod",
			"replicaset", "daemonset", "statefulset", "job", "cronjob",
		},
		VerbScale: {"deployment", "replicaset", "statefulset"},
	}
}

func defaultSafeShell() []string {
	return []string{
		"grep", "awk", "sed", "sort", "uniq", "head", "tail", "wc", "cat",
		"echo", "cut", "tr", "xargs", "tee", "jq", "base64", "column", "watch",
	}
}

func defaultDangerousShell() []string {
	return []string{
		"rm", "dd", "mkfs", "shutdown", "reboot", "halt", "poweroff",
		"sudo", "su", "chmod", "chown", "kill", "pkill", "killall",
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
