package content

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

// Caps mirror what is worth carrying into metadata and embedding text;
// large playbooks reference hundreds of commands and only the leading
// ones matter for retrieval.
const (
	maxCommands     = 20
	maxSubplaybooks = 10
	maxListedArgs   = 10
)

type playbookDef struct {
	ID          string                  `yaml:"id"`
	Name        string                  `yaml:"name"`
	Description string                  `yaml:"description"`
	FromVersion string                  `yaml:"fromversion"`
	Deprecated  bool                    `yaml:"deprecated"`
	Tasks       map[string]playbookTask `yaml:"tasks"`
}

type playbookTask struct {
	Type string `yaml:"type"`
	Task struct {
		Script       string `yaml:"script"`
		PlaybookName string `yaml:"playbookName"`
	} `yaml:"task"`
}

func (e *Extractor) extractPlaybook(candidate CandidateFile, data []byte) ([]Document, error) {
	var def playbookDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, pkgerr.ParseError(candidate.RelPath, err)
	}
	if def.Name == "" && def.Description == "" {
		return nil, nil
	}
	if def.Deprecated && !e.IncludeDeprecated {
		return nil, nil
	}

	var commands []string
	var subplaybooks []string
	taskTypes := make(map[string]int)
	for _, task := range sortedTaskValues(def.Tasks) {
		if script := task.Task.Script; strings.Contains(script, "|||") {
			_, cmd, _ := strings.Cut(script, "|||")
			if cmd = strings.TrimSpace(cmd); cmd != "" && len(commands) < maxCommands {
				commands = append(commands, cmd)
			}
		}
		if name := task.Task.PlaybookName; name != "" && len(subplaybooks) < maxSubplaybooks {
			subplaybooks = append(subplaybooks, name)
		}
		if task.Type != "" {
			taskTypes[task.Type]++
		}
	}

	intents := inferIntents(def.Name + " " + def.Description)
	doc := Document{
		ContentType:  TypePlaybook,
		IdentityKey:  IdentityKey(TypePlaybook, candidate.RelPath, ""),
		DisplayName:  def.Name,
		Description:  def.Description,
		PackName:     candidate.PackName,
		RelativePath: candidate.RelPath,
		SearchableText: searchableText(
			[2]string{"name", def.Name},
			[2]string{"description", def.Description},
			[2]string{"intents", strings.Join(intents, ", ")},
			[2]string{"commands", strings.Join(commands, ", ")},
			[2]string{"subplaybooks", strings.Join(subplaybooks, ", ")},
			[2]string{"task_types", strings.Join(sortedKeys(taskTypes), ", ")},
		),
		Metadata: map[string]string{
			"id":          defString(def.ID, stem(candidate.RelPath)),
			"fromversion": def.FromVersion,
			"deprecated":  strconv.FormatBool(def.Deprecated),
			"intents":     strings.Join(intents, ","),
			"commands":    strings.Join(commands, ","),
		},
	}
	return []Document{doc}, nil
}

type scriptDef struct {
	CommonFields struct {
		ID string `yaml:"id"`
	} `yaml:"commonfields"`
	Name        string   `yaml:"name"`
	Comment     string   `yaml:"comment"`
	Description string   `yaml:"description"`
	FromVersion string   `yaml:"fromversion"`
	Deprecated  bool     `yaml:"deprecated"`
	Tags        []string `yaml:"tags"`
	Type        string   `yaml:"type"`
	Subtype     string   `yaml:"subtype"`
	Args        []struct {
		Name string `yaml:"name"`
	} `yaml:"args"`
}

func (e *Extractor) extractScript(candidate CandidateFile, data []byte) ([]Document, error) {
	var def scriptDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, pkgerr.ParseError(candidate.RelPath, err)
	}

	description := def.Comment
	if description == "" {
		description = def.Description
	}
	if def.Name == "" && description == "" {
		return nil, nil
	}
	if def.Deprecated && !e.IncludeDeprecated {
		return nil, nil
	}

	var args []string
	for _, arg := range def.Args {
		if arg.Name != "" && len(args) < maxListedArgs {
			args = append(args, arg.Name)
		}
	}

	intents := inferIntents(def.Name + " " + description)
	doc := Document{
		ContentType:  TypeScript,
		IdentityKey:  IdentityKey(TypeScript, candidate.RelPath, ""),
		DisplayName:  def.Name,
		Description:  description,
		PackName:     candidate.PackName,
		RelativePath: candidate.RelPath,
		SearchableText: searchableText(
			[2]string{"name", def.Name},
			[2]string{"description", description},
			[2]string{"intents", strings.Join(intents, ", ")},
			[2]string{"tags", strings.Join(def.Tags, ", ")},
			[2]string{"arguments", strings.Join(args, ", ")},
		),
		Metadata: map[string]string{
			"id":          defString(def.CommonFields.ID, defString(def.Name, stem(candidate.RelPath))),
			"fromversion": def.FromVersion,
			"deprecated":  strconv.FormatBool(def.Deprecated),
			"intents":     strings.Join(intents, ","),
			"tags":        strings.Join(def.Tags, ","),
			"script_type": strings.TrimSpace(def.Type + " " + def.Subtype),
		},
	}
	return []Document{doc}, nil
}

type integrationDef struct {
	CommonFields struct {
		ID string `yaml:"id"`
	} `yaml:"commonfields"`
	Name        string `yaml:"name"`
	Display     string `yaml:"display"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	FromVersion string `yaml:"fromversion"`
	Deprecated  bool   `yaml:"deprecated"`
	Script      struct {
		Commands []struct {
			Name        string `yaml:"name"`
			Description string `yaml:"description"`
		} `yaml:"commands"`
	} `yaml:"script"`
}

func (e *Extractor) extractIntegration(candidate CandidateFile, data []byte) ([]Document, error) {
	var def integrationDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, pkgerr.ParseError(candidate.RelPath, err)
	}

	name := def.Name
	if name == "" {
		name = def.Display
	}
	if name == "" && def.Description == "" {
		return nil, nil
	}
	if def.Deprecated && !e.IncludeDeprecated {
		return nil, nil
	}

	var commandNames []string
	var commandText []string
	for _, cmd := range def.Script.Commands {
		if cmd.Name == "" {
			continue
		}
		if len(commandNames) < maxCommands {
			commandNames = append(commandNames, cmd.Name)
		}
		if cmd.Description != "" && len(commandText) < maxCommands {
			commandText = append(commandText, cmd.Name+" ("+cmd.Description+")")
		}
	}

	intents := inferIntents(name + " " + def.Description)
	doc := Document{
		ContentType:  TypeIntegration,
		IdentityKey:  IdentityKey(TypeIntegration, candidate.RelPath, ""),
		DisplayName:  name,
		Description:  def.Description,
		PackName:     candidate.PackName,
		RelativePath: candidate.RelPath,
		SearchableText: searchableText(
			[2]string{"name", name},
			[2]string{"description", def.Description},
			[2]string{"intents", strings.Join(intents, ", ")},
			[2]string{"commands", strings.Join(commandText, ", ")},
		),
		Metadata: map[string]string{
			"id":          defString(def.CommonFields.ID, defString(name, stem(candidate.RelPath))),
			"category":    def.Category,
			"fromversion": def.FromVersion,
			"deprecated":  strconv.FormatBool(def.Deprecated),
			"intents":     strings.Join(intents, ","),
			"commands":    strings.Join(commandNames, ","),
		},
	}
	return []Document{doc}, nil
}
