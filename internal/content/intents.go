package content

import (
	"sort"
	"strings"
)

// intentRules maps keywords found in item names and descriptions to
// intent labels. Labels end up in document metadata and the searchable
// text, where they help queries like "containment playbook" land on
// items that never spell the word out.
var intentRules = []struct {
	needle string
	label  string
}{
	{"enrich", "enrichment"},
	{"enrichment", "enrichment"},
	{"block", "blocking"},
	{"isolate", "containment"},
	{"quarantine", "containment"},
	{"remediate", "remediation"},
	{"notify", "notification"},
	{"alert", "alerting"},
	{"ticket", "ticketing"},
	{"phishing", "phishing"},
	{"malware", "malware"},
	{"ransomware", "ransomware"},
	{"hunt", "hunting"},
	{"investigate", "investigation"},
	{"triage", "triage"},
	{"detonate", "detonation"},
	{"sandbox", "detonation"},
	{"poll", "polling"},
	{"mirror", "mirroring"},
	{"xql", "xql"},
	{"query", "query"},
	{"parse", "parsing"},
	{"classify", "classification"},
	{"map", "mapping"},
}

// inferIntents returns the sorted, deduplicated intent labels whose
// keyword appears in text.
func inferIntents(text string) []string {
	lowered := strings.ToLower(text)
	seen := make(map[string]struct{})
	for _, rule := range intentRules {
		if strings.Contains(lowered, rule.needle) {
			seen[rule.label] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
