package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compose-migrate/src/archive"
	"compose-migrate/src/backup"
	"compose-migrate/src/cli"
	"compose-migrate/src/composefile"
	"compose-migrate/src/dockerapi"
	"compose-migrate/src/version"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := cli.NewRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.Version+"\n", stdout)
}

func TestBackup_RejectsUnknownFormat(t *testing.T) {
	_, _, err := run(t, "backup", "--format", "7z", "--no-prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported archive format")
}

func TestBackup_MissingComposeFile(t *testing.T) {
	_, _, err := run(t, "backup", "--compose-file", filepath.Join(t.TempDir(), "nope.yml"), "--no-prompt")
	require.Error(t, err)
}

func TestBackup_NoPromptIncludesComposeDir(t *testing.T) {
	dir := t.TempDir()
	composePath := filepath.Join(dir, "docker-compose.yml")
	require.NoError(t, os.WriteFile(composePath, []byte("services:\n  web:\n    image: nginx:1.27\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("KEY=value\n"), 0o644))

	staging := filepath.Join(t.TempDir(), "staging")
	output := filepath.Join(t.TempDir(), "out.tar.gz")
	_, _, err := run(t, "backup",
		"--compose-file", composePath,
		"--config-only",
		"--no-prompt",
		"--staging-dir", staging,
		"--output", output)
	require.NoError(t, err)

	// non-interactive runs default to carrying the compose directory along
	mf, err := backup.LoadManifest(staging)
	require.NoError(t, err)
	assert.NotEmpty(t, mf.EntriesOf(backup.KindHostFiles))
	data, err := os.ReadFile(filepath.Join(staging, "files", ".env"))
	require.NoError(t, err)
	assert.Equal(t, "KEY=value\n", string(data))
}

func TestBackup_SCPNeedsAgentOrPassword(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	dir := t.TempDir()
	composePath := filepath.Join(dir, "docker-compose.yml")
	require.NoError(t, os.WriteFile(composePath, []byte("services:\n  web:\n    image: nginx:1.27\n"), 0o644))

	_, _, err := run(t, "backup",
		"--compose-file", composePath,
		"--config-only",
		"--no-prompt",
		"--staging-dir", filepath.Join(t.TempDir(), "staging"),
		"--output", filepath.Join(t.TempDir(), "out.tar.gz"),
		"--destination", "deploy@203.0.113.7:/srv/backups/x.tar.gz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth_failed")
}

func TestRestore_RequiresBackupFile(t *testing.T) {
	_, _, err := run(t, "restore")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--backup-file")
}

func TestRestore_ExtractOnly(t *testing.T) {
	// Stage a real backup against a fake runtime and archive it.
	inv, err := composefile.ParseReader(strings.NewReader(`
services:
  web:
    image: nginx:1.27
`), "demo")
	require.NoError(t, err)

	fake := dockerapi.NewFake()
	fake.AddImage("nginx:1.27")
	fake.AddContainer("demo-web-1", "nginx:1.27", "running")

	staging := filepath.Join(t.TempDir(), "staging")
	_, err = backup.Build(context.Background(), fake, inv, backup.Options{}, staging)
	require.NoError(t, err)

	archivePath := filepath.Join(t.TempDir(), "demo.tar.gz")
	require.NoError(t, archive.Create(archive.FormatTarGz, staging, archivePath))

	targetDir := filepath.Join(t.TempDir(), "out")
	stdout, _, err := run(t, "restore",
		"--backup-file", archivePath,
		"--target-dir", targetDir,
		"--extract-only")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Extract-only")

	// extraction happened, nothing else did
	_, err = os.Stat(filepath.Join(targetDir, backup.ManifestName))
	assert.NoError(t, err)
}

func TestRestore_ExtractOnlyCorruptArchive(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.tar.gz")
	require.NoError(t, os.WriteFile(bad, []byte("not an archive"), 0o644))

	_, _, err := run(t, "restore", "--backup-file", bad, "--target-dir", filepath.Join(t.TempDir(), "out"), "--extract-only")
	require.Error(t, err)
}
