package content

import (
	"os"
	"path"
	"sort"
	"strings"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

// Extractor parses candidate files into Documents. Dispatch is purely
// by ContentType; the file body is never sniffed.
type Extractor struct {
	// IncludeDeprecated keeps items whose definition carries a
	// deprecated flag. When false such items yield zero Documents.
	IncludeDeprecated bool
}

// Extract parses one candidate into zero or more Documents.
//
// A structurally valid file missing its required fields yields zero
// Documents (the caller counts it as skipped). A file unreadable as its
// expected format fails with a parse error carrying the file's relative
// path; the caller records the failure and moves on.
func (e *Extractor) Extract(candidate CandidateFile) ([]Document, error) {
	data, err := os.ReadFile(candidate.AbsPath)
	if err != nil {
		if os.IsPermission(err) {
			return nil, pkgerr.Wrap(pkgerr.ErrCodeFilePermission, err)
		}
		return nil, pkgerr.Wrap(pkgerr.ErrCodeFileNotFound, err)
	}

	switch candidate.Type {
	case TypePlaybook:
		return e.extractPlaybook(candidate, data)
	case TypeScript:
		return e.extractScript(candidate, data)
	case TypeIntegration:
		return e.extractIntegration(candidate, data)
	case TypeClassifier:
		return e.extractClassifier(candidate, data)
	case TypeMapper:
		return e.extractMapper(candidate, data)
	case TypeParsingRule, TypeModelingRule:
		return e.extractXQLRule(candidate, data)
	}
	return nil, pkgerr.New(pkgerr.ErrCodeInternal,
		"no extractor for content type: "+string(candidate.Type), nil)
}

// searchableText joins labeled sections into the text that gets
// embedded. Sections with empty values are dropped.
func searchableText(sections ...[2]string) string {
	parts := make([]string, 0, len(sections))
	for _, section := range sections {
		if section[1] == "" {
			continue
		}
		parts = append(parts, section[0]+": "+section[1])
	}
	return strings.Join(parts, " | ")
}

// sortedTaskValues iterates playbook tasks in key order so extraction
// output is deterministic across runs.
func sortedTaskValues(tasks map[string]playbookTask) []playbookTask {
	keys := make([]string, 0, len(tasks))
	for key := range tasks {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]playbookTask, 0, len(keys))
	for _, key := range keys {
		out = append(out, tasks[key])
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// defString returns value or fallback when value is empty.
func defString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// stem returns the base filename without its extension.
func stem(relPath string) string {
	base := path.Base(relPath)
	return strings.TrimSuffix(base, path.Ext(base))
}
