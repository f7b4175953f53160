package content

import (
	"encoding/json"
	"sort"
	"strings"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

// maxMappedFields caps how many mapped field names land in a mapper
// document's metadata and embedding text.
const maxMappedFields = 20

type classifierDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	BrandName   string `json:"brandName"`
}

func (e *Extractor) extractClassifier(candidate CandidateFile, data []byte) ([]Document, error) {
	var def classifierDef
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, pkgerr.ParseError(candidate.RelPath, err)
	}
	if def.Name == "" && def.Description == "" {
		return nil, nil
	}

	doc := Document{
		ContentType:  TypeClassifier,
		IdentityKey:  IdentityKey(TypeClassifier, candidate.RelPath, ""),
		DisplayName:  def.Name,
		Description:  def.Description,
		PackName:     candidate.PackName,
		RelativePath: candidate.RelPath,
		SearchableText: searchableText(
			[2]string{"name", def.Name},
			[2]string{"description", def.Description},
			[2]string{"intents", "classification"},
		),
		Metadata: map[string]string{
			"id":      defString(def.ID, stem(candidate.RelPath)),
			"brand":   def.BrandName,
			"intents": "classification",
		},
	}
	return []Document{doc}, nil
}

type mapperDef struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Type        string                   `json:"type"`
	BrandName   string                   `json:"brandName"`
	Mapping     map[string]mapperMapping `json:"mapping"`
}

type mapperMapping struct {
	InternalMapping map[string]json.RawMessage `json:"internalMapping"`
}

// extractMapper produces one Document per top-level mapping definition
// when the file aggregates several, else a single Document for the file.
// Two mapping names normalizing to the same sub-item key collide, and a
// collision fails the whole file rather than silently overwriting one
// document with another.
func (e *Extractor) extractMapper(candidate CandidateFile, data []byte) ([]Document, error) {
	var def mapperDef
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, pkgerr.ParseError(candidate.RelPath, err)
	}
	if def.Name == "" && def.Description == "" && len(def.Mapping) == 0 {
		return nil, nil
	}

	direction := "outgoing"
	if strings.Contains(strings.ToLower(stem(candidate.RelPath)), "incoming") {
		direction = "incoming"
	}

	baseMetadata := func() map[string]string {
		return map[string]string{
			"id":        defString(def.ID, stem(candidate.RelPath)),
			"brand":     def.BrandName,
			"direction": direction,
			"intents":   "mapping",
		}
	}

	if len(def.Mapping) == 0 {
		doc := Document{
			ContentType:  TypeMapper,
			IdentityKey:  IdentityKey(TypeMapper, candidate.RelPath, ""),
			DisplayName:  def.Name,
			Description:  def.Description,
			PackName:     candidate.PackName,
			RelativePath: candidate.RelPath,
			SearchableText: searchableText(
				[2]string{"name", def.Name},
				[2]string{"description", def.Description},
				[2]string{"intents", "mapping"},
			),
			Metadata: baseMetadata(),
		}
		return []Document{doc}, nil
	}

	names := make([]string, 0, len(def.Mapping))
	for name := range def.Mapping {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]string, len(names))
	docs := make([]Document, 0, len(names))
	for _, mappingName := range names {
		subItem := subItemKey(mappingName)
		if prior, ok := seen[subItem]; ok {
			return nil, pkgerr.New(pkgerr.ErrCodeDuplicateKey,
				"mapping definitions collide in "+candidate.RelPath, nil).
				WithDetail("first", prior).
				WithDetail("second", mappingName)
		}
		seen[subItem] = mappingName

		fields := mappedFields(def.Mapping[mappingName])
		docs = append(docs, Document{
			ContentType:  TypeMapper,
			IdentityKey:  IdentityKey(TypeMapper, candidate.RelPath, subItem),
			DisplayName:  def.Name + ": " + mappingName,
			Description:  def.Description,
			PackName:     candidate.PackName,
			RelativePath: candidate.RelPath,
			SearchableText: searchableText(
				[2]string{"name", def.Name},
				[2]string{"mapping", mappingName},
				[2]string{"description", def.Description},
				[2]string{"fields", strings.Join(fields, ", ")},
				[2]string{"intents", "mapping"},
			),
			Metadata: withDetail(baseMetadata(), "mapping", mappingName, "fields", strings.Join(fields, ",")),
		})
	}
	return docs, nil
}

// subItemKey normalizes a mapping name into the identity-key sub-item
// segment: lowercased with whitespace collapsed to underscores.
func subItemKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

// mappedFields returns the sorted incident-field names a mapping
// touches, capped at maxMappedFields.
func mappedFields(mapping mapperMapping) []string {
	fields := make([]string, 0, len(mapping.InternalMapping))
	for field := range mapping.InternalMapping {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	if len(fields) > maxMappedFields {
		fields = fields[:maxMappedFields]
	}
	return fields
}

func withDetail(m map[string]string, pairs ...string) map[string]string {
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i]] = pairs[i+1]
	}
	return m
}
