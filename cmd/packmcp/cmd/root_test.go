package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLibrary creates a small content library fixture.
func writeLibrary(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	write := func(rel, body string) {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	write("Packs/ThreatIntel/Playbooks/playbook-Enrich_IP.yml", `
id: enrich-ip
name: Enrich IP
description: Enrich an IP address with threat intelligence feeds
tasks:
  "0":
    type: regular
    task:
      script: VirusTotal|||ip
`)
	write("Packs/Utils/Scripts/script-ParseCSV.yml", `
commonfields:
  id: parse-csv
name: ParseCSV
comment: Parse a CSV attachment into context
`)
	return root
}

// runCLI executes the root command with the given args in a home
// sandbox so logging setup stays inside the test directory.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_IndexSearchStats(t *testing.T) {
	library := writeLibrary(t)
	dataDir := filepath.Join(t.TempDir(), "index")

	out, err := runCLI(t, "index", "--library", library, "--data-dir", dataDir, "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "Index build complete")
	assert.Contains(t, out, "playbook")

	out, err = runCLI(t, "search", "enrich an IP with threat intelligence",
		"--data-dir", dataDir, "--offline", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Enrich IP")

	out, err = runCLI(t, "stats", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "documents")
	assert.Contains(t, out, "static-hash-v1")
}

func TestCLI_SearchJSONFormat(t *testing.T) {
	library := writeLibrary(t)
	dataDir := filepath.Join(t.TempDir(), "index")

	_, err := runCLI(t, "index", "--library", library, "--data-dir", dataDir, "--offline")
	require.NoError(t, err)

	out, err := runCLI(t, "search", "parse a CSV file",
		"--data-dir", dataDir, "--offline", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"identity_key"`)
	assert.Contains(t, out, `"results"`)
}

func TestCLI_IndexRejectsMissingLibrary(t *testing.T) {
	_, err := runCLI(t, "index", "--library", filepath.Join(t.TempDir(), "nope"),
		"--data-dir", t.TempDir(), "--offline")
	require.Error(t, err)
}

func TestCLI_StatsWithoutIndex(t *testing.T) {
	_, err := runCLI(t, "stats", "--data-dir", t.TempDir())
	require.Error(t, err)
}

func TestCLI_UnknownTypeRejected(t *testing.T) {
	library := writeLibrary(t)
	_, err := runCLI(t, "index", "--library", library,
		"--data-dir", t.TempDir(), "--offline", "--type", "widget")
	require.Error(t, err)
}

func TestCLI_VersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "packmcp")
}

func TestParseTypes(t *testing.T) {
	types, err := parseTypes([]string{"playbook", "mapper"})
	require.NoError(t, err)
	assert.Len(t, types, 2)

	_, err = parseTypes([]string{"widget"})
	require.Error(t, err)
}
