// Package pathguard confines filesystem access to a declared root.
//
// Every read derived from a relative path in the content library or the
// source-corpus checkout goes through a Guard before any I/O happens.
// The guard canonicalizes the candidate path, rejects anything that
// resolves outside the root, and rejects symlinked path segments unless
// explicitly allowed.
package pathguard

import (
	"os"
	"path/filepath"
	"strings"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

// Guard validates that paths stay within a single root directory.
type Guard struct {
	root          string // canonical absolute root
	allowSymlinks bool
}

// Option configures a Guard.
type Option func(*Guard)

// WithAllowSymlinks permits symlinked path segments. Default is false;
// enabling this weakens the containment guarantee and should only be
// used for trusted checkouts.
func WithAllowSymlinks() Option {
	return func(g *Guard) {
		g.allowSymlinks = true
	}
}

// New creates a Guard rooted at the given directory.
// The root must exist and be a directory.
func New(root string, opts ...Option) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.ErrCodeFileNotFound, err)
	}

	// Canonicalize the root itself so containment checks compare like
	// with like even when the root path contains symlinks (e.g. /tmp
	// on macOS).
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, pkgerr.New(pkgerr.ErrCodeFileNotFound,
			"content root does not exist: "+root, err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.ErrCodeFileNotFound, err)
	}
	if !info.IsDir() {
		return nil, pkgerr.New(pkgerr.ErrCodeFileNotFound,
			"content root is not a directory: "+root, nil)
	}

	g := &Guard{root: canonical}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Root returns the canonical root directory.
func (g *Guard) Root() string {
	return g.root
}

// Resolve validates a root-relative candidate path and returns its
// absolute form. It fails with ERR_301_PATH_TRAVERSAL when the candidate
// escapes the root and ERR_302_SYMLINK_REJECTED when any existing path
// segment is a symlink (unless symlinks are allowed).
func (g *Guard) Resolve(candidate string) (string, error) {
	if candidate == "" {
		return "", pkgerr.PathTraversal(candidate)
	}
	if filepath.IsAbs(candidate) {
		// Callers hold relative paths only; an absolute path is either a
		// bug or an attempt to step around the root.
		return "", pkgerr.PathTraversal(candidate)
	}

	joined := filepath.Clean(filepath.Join(g.root, candidate))
	if !g.contains(joined) {
		return "", pkgerr.PathTraversal(candidate)
	}

	if !g.allowSymlinks {
		if err := g.rejectSymlinkSegments(joined, candidate); err != nil {
			return "", err
		}
	}

	// Canonicalize and re-check: a symlink inside an allowed segment
	// could still point outside the root.
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if os.IsNotExist(err) {
			return "", pkgerr.New(pkgerr.ErrCodeFileNotFound,
				"no such path under root: "+candidate, err)
		}
		return "", pkgerr.Wrap(pkgerr.ErrCodeFilePermission, err)
	}
	if !g.contains(resolved) {
		return "", pkgerr.PathTraversal(candidate)
	}

	return resolved, nil
}

// ReadFile resolves the candidate path and reads its content.
// This is the only sanctioned way to read library content by
// relative path.
func (g *Guard) ReadFile(candidate string) ([]byte, error) {
	abs, err := g.Resolve(candidate)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsPermission(err) {
			return nil, pkgerr.Wrap(pkgerr.ErrCodeFilePermission, err)
		}
		return nil, pkgerr.Wrap(pkgerr.ErrCodeFileNotFound, err)
	}
	return data, nil
}

// contains reports whether path is the root or a descendant of it.
func (g *Guard) contains(path string) bool {
	if path == g.root {
		return true
	}
	return strings.HasPrefix(path, g.root+string(filepath.Separator))
}

// rejectSymlinkSegments walks each existing component between the root
// and the target, failing on the first symlink found.
func (g *Guard) rejectSymlinkSegments(joined, candidate string) error {
	rel, err := filepath.Rel(g.root, joined)
	if err != nil {
		return pkgerr.PathTraversal(candidate)
	}

	current := g.root
	for _, segment := range strings.Split(rel, string(filepath.Separator)) {
		if segment == "." || segment == "" {
			continue
		}
		current = filepath.Join(current, segment)

		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				// Nonexistent tail segments cannot be symlinks.
				return nil
			}
			return pkgerr.Wrap(pkgerr.ErrCodeFilePermission, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return pkgerr.New(pkgerr.ErrCodeSymlink,
				"symlink rejected: "+candidate, nil).
				WithDetail("segment", current)
		}
	}
	return nil
}
