// Package content discovers and extracts indexable items from a
// security-content library laid out as Packs/<pack>/<Category>/....
//
// Discovery streams candidate files per content type; extraction parses
// each candidate into zero or more normalized Documents ready for
// chunking and embedding.
package content

import (
	"path/filepath"
	"strings"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

// ContentType identifies one of the supported library item kinds.
// The set is closed: discovery and extraction dispatch on it directly,
// never on file sniffing.
type ContentType string

const (
	TypePlaybook     ContentType = "playbook"
	TypeScript       ContentType = "script"
	TypeIntegration  ContentType = "integration"
	TypeClassifier   ContentType = "classifier"
	TypeMapper       ContentType = "mapper"
	TypeParsingRule  ContentType = "parsing_rule"
	TypeModelingRule ContentType = "modeling_rule"
)

// AllTypes returns every content type in canonical order. Discovery
// emits candidates in this order so builds over an unchanged tree are
// deterministic.
func AllTypes() []ContentType {
	return []ContentType{
		TypePlaybook,
		TypeScript,
		TypeIntegration,
		TypeClassifier,
		TypeMapper,
		TypeParsingRule,
		TypeModelingRule,
	}
}

// Valid reports whether t is a member of the closed enum.
func (t ContentType) Valid() bool {
	switch t {
	case TypePlaybook, TypeScript, TypeIntegration, TypeClassifier,
		TypeMapper, TypeParsingRule, TypeModelingRule:
		return true
	}
	return false
}

// ParseType converts a user-supplied string into a ContentType.
func ParseType(s string) (ContentType, error) {
	t := ContentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", pkgerr.New(pkgerr.ErrCodeInvalidQuery,
			"unknown content type: "+s, nil)
	}
	return t, nil
}

// category returns the directory name under a pack that holds this
// type's files.
func (t ContentType) category() string {
	switch t {
	case TypePlaybook:
		return "Playbooks"
	case TypeScript:
		return "Scripts"
	case TypeIntegration:
		return "Integrations"
	case TypeClassifier, TypeMapper:
		return "Classifiers"
	case TypeParsingRule:
		return "ParsingRules"
	case TypeModelingRule:
		return "ModelingRules"
	}
	return ""
}

// CandidateFile is one discovered file paired with the content type
// whose layout rule matched it.
type CandidateFile struct {
	Type     ContentType
	AbsPath  string
	RelPath  string // forward-slash form, relative to the library root
	PackName string
}

// Document is the normalized extraction result for one logical content
// item. One file usually yields one Document; a mapper file with
// several mapping definitions yields one per definition.
type Document struct {
	ContentType    ContentType
	IdentityKey    string
	DisplayName    string
	Description    string
	PackName       string
	RelativePath   string
	SearchableText string
	// Metadata carries type-specific facts (command names, rule
	// datasets, deprecation) used for filtering and display, never for
	// ranking.
	Metadata map[string]string
}

// IdentityKey derives the stable upsert key for a document:
// <type>:<relpath> with an optional sub-item suffix for files that
// yield multiple documents. relPath is normalized to forward slashes
// so keys are portable across platforms.
func IdentityKey(t ContentType, relPath string, subItem string) string {
	key := string(t) + ":" + filepath.ToSlash(relPath)
	if subItem != "" {
		key += ":" + subItem
	}
	return key
}
