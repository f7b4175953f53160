package pathguard

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

func newTestGuard(t *testing.T, opts ...Option) (*Guard, string) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Packs", "Demo", "Playbooks"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "Packs", "Demo", "Playbooks", "playbook-Demo.yml"),
		[]byte("id: Demo\n"), 0o644))

	g, err := New(root, opts...)
	require.NoError(t, err)
	return g, root
}

func TestNew_RejectsMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
	assert.Equal(t, pkgerr.ErrCodeFileNotFound, pkgerr.GetCode(err))
}

func TestNew_RejectsFileRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "root.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := New(file)
	require.Error(t, err)
}

func TestResolve_ValidRelativePath(t *testing.T) {
	g, _ := newTestGuard(t)

	abs, err := g.Resolve("Packs/Demo/Playbooks/playbook-Demo.yml")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))

	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "id: Demo\n", string(data))
}

func TestResolve_RejectsTraversal(t *testing.T) {
	g, _ := newTestGuard(t)

	cases := []string{
		"../../etc/passwd",
		"..",
		"Packs/../../outside",
		"Packs/Demo/../../../outside",
	}
	for _, candidate := range cases {
		_, err := g.Resolve(candidate)
		require.Error(t, err, "candidate %q must be rejected", candidate)
		assert.True(t, pkgerr.HasCode(err, pkgerr.ErrCodePathTraversal),
			"candidate %q: got code %s", candidate, pkgerr.GetCode(err))
	}
}

func TestResolve_RejectsAbsolutePath(t *testing.T) {
	g, root := newTestGuard(t)

	_, err := g.Resolve(filepath.Join(root, "Packs"))
	require.Error(t, err)
	assert.True(t, pkgerr.HasCode(err, pkgerr.ErrCodePathTraversal))
}

func TestResolve_RejectsEmptyPath(t *testing.T) {
	g, _ := newTestGuard(t)

	_, err := g.Resolve("")
	require.Error(t, err)
}

func TestResolve_RejectsSymlinkSegment(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}
	g, root := newTestGuard(t)

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.yml"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "Packs", "Linked")))

	_, err := g.Resolve("Packs/Linked/secret.yml")
	require.Error(t, err)
	assert.True(t, pkgerr.HasCode(err, pkgerr.ErrCodeSymlink),
		"got code %s", pkgerr.GetCode(err))
}

func TestResolve_AllowSymlinksInsideRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}
	g, root := newTestGuard(t, WithAllowSymlinks())

	target := filepath.Join(root, "Packs", "Demo", "Playbooks", "playbook-Demo.yml")
	require.NoError(t, os.Symlink(target, filepath.Join(root, "alias.yml")))

	abs, err := g.Resolve("alias.yml")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))
}

func TestResolve_AllowSymlinksStillConfined(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}
	g, root := newTestGuard(t, WithAllowSymlinks())

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.yml")
	require.NoError(t, os.WriteFile(secret, []byte("x"), 0o644))
	require.NoError(t, os.Symlink(secret, filepath.Join(root, "escape.yml")))

	// Even with symlinks allowed, the resolved target must stay under
	// the root.
	_, err := g.Resolve("escape.yml")
	require.Error(t, err)
	assert.True(t, pkgerr.HasCode(err, pkgerr.ErrCodePathTraversal))
}

func TestResolve_MissingFile(t *testing.T) {
	g, _ := newTestGuard(t)

	_, err := g.Resolve("Packs/Demo/Playbooks/missing.yml")
	require.Error(t, err)
	assert.True(t, pkgerr.HasCode(err, pkgerr.ErrCodeFileNotFound))
}

func TestReadFile(t *testing.T) {
	g, _ := newTestGuard(t)

	data, err := g.ReadFile("Packs/Demo/Playbooks/playbook-Demo.yml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "id: Demo")

	_, err = g.ReadFile("../outside.yml")
	require.Error(t, err)
}
