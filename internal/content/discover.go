package content

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

// packsDirName is the item-grouping directory directly under the
// library root.
const packsDirName = "Packs"

// DiscoverOptions configures a discovery pass.
type DiscoverOptions struct {
	// Types restricts discovery to a subset of content types.
	// Empty means all types.
	Types []ContentType
	// IncludeDeprecated keeps packs whose name contains "deprecated".
	IncludeDeprecated bool
	// AllowSymlinks keeps symlinked directories and files. Off by
	// default; symlinked entries are skipped with a warning.
	AllowSymlinks bool
}

// Discoverer walks a library root and streams candidate files.
type Discoverer struct {
	root string
}

// NewDiscoverer creates a Discoverer for the given library root.
// The root must contain a Packs directory.
func NewDiscoverer(root string) (*Discoverer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.ErrCodeFileNotFound, err)
	}
	info, err := os.Stat(filepath.Join(abs, packsDirName))
	if err != nil || !info.IsDir() {
		return nil, pkgerr.New(pkgerr.ErrCodeFileNotFound,
			"no "+packsDirName+" directory under library root: "+abs, err)
	}
	return &Discoverer{root: abs}, nil
}

// Root returns the absolute library root.
func (d *Discoverer) Root() string {
	return d.root
}

// Discover streams candidate files over a channel. Candidates arrive
// in canonical type order and lexicographic relative-path order within
// a type, so two passes over an unchanged tree yield identical
// sequences. The channel is closed when discovery completes or ctx is
// cancelled. Unreadable entries are logged and skipped.
func (d *Discoverer) Discover(ctx context.Context, opts DiscoverOptions) (<-chan CandidateFile, error) {
	types := opts.Types
	if len(types) == 0 {
		types = AllTypes()
	}
	for _, t := range types {
		if !t.Valid() {
			return nil, pkgerr.New(pkgerr.ErrCodeInvalidQuery,
				"unknown content type: "+string(t), nil)
		}
	}

	packs, err := d.listPacks(opts)
	if err != nil {
		return nil, err
	}

	out := make(chan CandidateFile, 64)
	go func() {
		defer close(out)
		for _, t := range AllTypes() {
			if !containsType(types, t) {
				continue
			}
			candidates := d.collectType(t, packs, opts)
			sort.Slice(candidates, func(i, j int) bool {
				return candidates[i].RelPath < candidates[j].RelPath
			})
			for _, c := range candidates {
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// listPacks returns the pack directory names to visit, sorted.
func (d *Discoverer) listPacks(opts DiscoverOptions) ([]string, error) {
	packsDir := filepath.Join(d.root, packsDirName)
	entries, err := os.ReadDir(packsDir)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.ErrCodeFilePermission, err)
	}

	var packs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			if entry.Type()&fs.ModeSymlink == 0 {
				continue
			}
			// A symlinked pack directory reports as non-dir here.
			if !opts.AllowSymlinks {
				slog.Warn("skipping symlinked pack directory",
					slog.String("pack", entry.Name()))
				continue
			}
			info, statErr := os.Stat(filepath.Join(packsDir, entry.Name()))
			if statErr != nil || !info.IsDir() {
				continue
			}
		}
		name := entry.Name()
		if !opts.IncludeDeprecated && strings.Contains(strings.ToLower(name), "deprecated") {
			slog.Debug("skipping deprecated pack", slog.String("pack", name))
			continue
		}
		packs = append(packs, name)
	}
	sort.Strings(packs)
	return packs, nil
}

// collectType gathers every candidate for one content type across all
// packs.
func (d *Discoverer) collectType(t ContentType, packs []string, opts DiscoverOptions) []CandidateFile {
	var out []CandidateFile
	for _, pack := range packs {
		categoryDir := filepath.Join(d.root, packsDirName, pack, t.category())
		if _, err := os.Stat(categoryDir); err != nil {
			continue
		}
		switch t {
		case TypePlaybook:
			out = append(out, d.collectFlat(t, pack, categoryDir, matchYAML, opts)...)
		case TypeScript, TypeIntegration:
			out = append(out, d.collectRecursive(t, pack, categoryDir, matchYAML, opts)...)
		case TypeClassifier:
			out = append(out, d.collectFlat(t, pack, categoryDir, matchClassifier, opts)...)
		case TypeMapper:
			out = append(out, d.collectFlat(t, pack, categoryDir, matchMapper, opts)...)
		case TypeParsingRule, TypeModelingRule:
			out = append(out, d.collectRecursive(t, pack, categoryDir, matchXIF, opts)...)
		}
	}
	return out
}

// collectFlat gathers matching files directly inside dir.
func (d *Discoverer) collectFlat(t ContentType, pack, dir string, match func(string) bool, opts DiscoverOptions) []CandidateFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("unreadable category directory",
			slog.String("dir", dir), slog.String("error", err.Error()))
		return nil
	}

	var out []CandidateFile
	for _, entry := range entries {
		if entry.IsDir() || !match(entry.Name()) {
			continue
		}
		if entry.Type()&fs.ModeSymlink != 0 && !opts.AllowSymlinks {
			slog.Warn("skipping symlinked file",
				slog.String("path", filepath.Join(dir, entry.Name())))
			continue
		}
		out = append(out, d.candidate(t, pack, filepath.Join(dir, entry.Name())))
	}
	return out
}

// collectRecursive gathers matching files anywhere under dir.
// Symlinked directories are never followed.
func (d *Discoverer) collectRecursive(t ContentType, pack, dir string, match func(string) bool, opts DiscoverOptions) []CandidateFile {
	var out []CandidateFile
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("unreadable entry during discovery",
				slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		if entry.Type()&fs.ModeSymlink != 0 && !opts.AllowSymlinks {
			slog.Warn("skipping symlinked entry", slog.String("path", path))
			return nil
		}
		if entry.IsDir() || !match(entry.Name()) {
			return nil
		}
		out = append(out, d.candidate(t, pack, path))
		return nil
	})
	if err != nil {
		slog.Warn("discovery walk failed",
			slog.String("dir", dir), slog.String("error", err.Error()))
	}
	return out
}

func (d *Discoverer) candidate(t ContentType, pack, absPath string) CandidateFile {
	rel, err := filepath.Rel(d.root, absPath)
	if err != nil {
		rel = absPath
	}
	return CandidateFile{
		Type:     t,
		AbsPath:  absPath,
		RelPath:  filepath.ToSlash(rel),
		PackName: pack,
	}
}

func matchYAML(name string) bool {
	return strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml")
}

// matchClassifier matches classifier-*.json, excluding mapper files
// that share the Classifiers directory.
func matchClassifier(name string) bool {
	return strings.HasPrefix(name, "classifier-") &&
		strings.HasSuffix(name, ".json") &&
		!strings.Contains(strings.ToLower(name), "mapper")
}

func matchMapper(name string) bool {
	return strings.Contains(strings.ToLower(name), "mapper") &&
		strings.HasSuffix(name, ".json")
}

func matchXIF(name string) bool {
	return strings.HasSuffix(name, ".xif")
}

func containsType(types []ContentType, t ContentType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
