package content

import (
	"regexp"
	"strings"
)

// Header clause patterns for .xif rule files. Parsing rules open with
// an [INGEST:...] clause carrying vendor/product/target_dataset tokens;
// modeling rules open with [MODEL: dataset=...]. Rule names appear as
// [RULE: name] sections.
var (
	ruleNameRe = regexp.MustCompile(`\[RULE:\s*(\w+)\]`)
	datasetRe  = regexp.MustCompile(`(?i)(?:target_)?dataset\s*=\s*"?([\w.-]+)"?`)
	vendorRe   = regexp.MustCompile(`(?i)vendor\s*=\s*"?([\w.-]+)"?`)
	productRe  = regexp.MustCompile(`(?i)product\s*=\s*"?([\w.-]+)"?`)
)

// extractXQLRule handles parsing_rule and modeling_rule candidates.
// The rule body is free-form XQL, so the whole file is the searchable
// text and only the header tokens are lifted into metadata. Raw reads
// never produce parse errors; an empty file yields zero documents.
func (e *Extractor) extractXQLRule(candidate CandidateFile, data []byte) ([]Document, error) {
	body := strings.TrimSpace(string(data))
	if body == "" {
		return nil, nil
	}

	name := stem(candidate.RelPath)
	if m := ruleNameRe.FindStringSubmatch(body); m != nil {
		name = m[1]
	}

	ruleKind := "parsing"
	if candidate.Type == TypeModelingRule {
		ruleKind = "modeling"
	}

	metadata := map[string]string{
		"rule_kind": ruleKind,
		"intents":   "xql," + ruleKind,
	}
	if m := datasetRe.FindStringSubmatch(body); m != nil {
		metadata["dataset"] = m[1]
	}
	if m := vendorRe.FindStringSubmatch(body); m != nil {
		metadata["vendor"] = m[1]
	}
	if m := productRe.FindStringSubmatch(body); m != nil {
		metadata["product"] = m[1]
	}

	doc := Document{
		ContentType:    candidate.Type,
		IdentityKey:    IdentityKey(candidate.Type, candidate.RelPath, ""),
		DisplayName:    name,
		Description:    "XQL " + ruleKind + " rule",
		PackName:       candidate.PackName,
		RelativePath:   candidate.RelPath,
		SearchableText: body,
		Metadata:       metadata,
	}
	return []Document{doc}, nil
}
