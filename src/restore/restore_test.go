package restore_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compose-migrate/src/archive"
	"compose-migrate/src/backup"
	"compose-migrate/src/composefile"
	"compose-migrate/src/dockerapi"
	"compose-migrate/src/restore"
)

const composeYAML = `
services:
  web:
    image: nginx:1.27
    networks: [frontend]
  db:
    image: postgres:16
    volumes:
      - dbdata:/var/lib/postgresql/data
networks:
  frontend: {}
volumes:
  dbdata: {}
`

// stageBackup runs a real backup against a seeded fake runtime and returns
// the staging directory and manifest.
func stageBackup(t *testing.T, opts backup.Options) (string, *backup.Manifest) {
	t.Helper()
	inv, err := composefile.ParseReader(strings.NewReader(composeYAML), "demo")
	require.NoError(t, err)

	src := dockerapi.NewFake()
	src.AddImage("nginx:1.27")
	src.AddImage("postgres:16")
	src.AddContainer("demo-web-1", "nginx:1.27", "running")
	src.AddContainer("demo-db-1", "postgres:16", "running")
	src.AddVolume("dbdata", []byte("volume-tar-bytes"))

	staging := filepath.Join(t.TempDir(), "staging")
	mf, err := backup.Build(context.Background(), src, inv, opts, staging)
	require.NoError(t, err)
	return staging, mf
}

func TestExtract_RoundTrip(t *testing.T) {
	staging, want := stageBackup(t, backup.Options{})

	archivePath := filepath.Join(t.TempDir(), "demo.tar.gz")
	require.NoError(t, archive.Create(archive.FormatTarGz, staging, archivePath))

	targetDir := filepath.Join(t.TempDir(), "extracted")
	got, err := restore.Extract(archivePath, targetDir)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// extraction alone must not touch any runtime
	_, err = os.Stat(filepath.Join(targetDir, backup.ManifestName))
	assert.NoError(t, err)
}

func TestExtract_MissingManifest(t *testing.T) {
	staging := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staging, "stray.txt"), []byte("x"), 0o644))

	archivePath := filepath.Join(t.TempDir(), "bad.tar.gz")
	require.NoError(t, archive.Create(archive.FormatTarGz, staging, archivePath))

	_, err := restore.Extract(archivePath, filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)

	var xerr *restore.ExtractError
	require.True(t, errors.As(err, &xerr))
}

func TestExtract_CorruptPayload(t *testing.T) {
	staging, _ := stageBackup(t, backup.Options{})

	// Flip bytes in a staged payload after checksums were written.
	tampered := filepath.Join(staging, "volumes", "dbdata.tar")
	require.NoError(t, os.WriteFile(tampered, []byte("tampered"), 0o644))

	archivePath := filepath.Join(t.TempDir(), "demo.tar.gz")
	require.NoError(t, archive.Create(archive.FormatTarGz, staging, archivePath))

	_, err := restore.Extract(archivePath, filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)

	var xerr *restore.ExtractError
	require.True(t, errors.As(err, &xerr))
	assert.Contains(t, err.Error(), "checksum")
}

func TestExtract_UnreadableArchive(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.tar.gz")
	require.NoError(t, os.WriteFile(bad, []byte("not a gzip stream"), 0o644))

	_, err := restore.Extract(bad, filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)

	var xerr *restore.ExtractError
	require.True(t, errors.As(err, &xerr))
}

func TestRun_RecreatesEverythingInOrder(t *testing.T) {
	staging, mf := stageBackup(t, backup.Options{ComposeFile: writeCompose(t)})

	dst := dockerapi.NewFake()
	var out bytes.Buffer
	require.NoError(t, restore.Run(context.Background(), dst, staging, mf, restore.Options{}, &out))

	assert.Equal(t, []string{"frontend"}, dst.CreatedNetworks)
	assert.Equal(t, []string{"dbdata"}, dst.CreatedVolumes)
	assert.Equal(t, []string{"dbdata"}, dst.ImportedVolumes)
	assert.Equal(t, 2, dst.Loaded, "both image tars loaded")
	require.Len(t, dst.ComposeUps, 1)
	assert.Equal(t, staging, dst.ComposeUps[0].Dir)
	assert.Equal(t, []byte("volume-tar-bytes"), dst.Volumes["dbdata"])
}

func TestRun_ToleratesExistingNetwork(t *testing.T) {
	staging, mf := stageBackup(t, backup.Options{})

	dst := dockerapi.NewFake()
	dst.Networks["frontend"] = dockerapi.Network{Name: "frontend", Driver: "bridge"}

	var out bytes.Buffer
	require.NoError(t, restore.Run(context.Background(), dst, staging, mf, restore.Options{}, &out))
	assert.Empty(t, dst.CreatedNetworks, "existing network left alone")
}

func TestRun_ComposeOverrideWins(t *testing.T) {
	staging, mf := stageBackup(t, backup.Options{ComposeFile: writeCompose(t)})
	override := writeCompose(t)

	dst := dockerapi.NewFake()
	var out bytes.Buffer
	require.NoError(t, restore.Run(context.Background(), dst, staging, mf, restore.Options{ComposeFile: override}, &out))
	require.Len(t, dst.ComposeUps, 1)
	assert.Equal(t, override, dst.ComposeUps[0].File)
}

func TestRun_NoComposeFileSkipsUp(t *testing.T) {
	staging, mf := stageBackup(t, backup.Options{})

	dst := dockerapi.NewFake()
	var out bytes.Buffer
	require.NoError(t, restore.Run(context.Background(), dst, staging, mf, restore.Options{}, &out))
	assert.Empty(t, dst.ComposeUps)
}

func TestRun_RuntimeUnreachable(t *testing.T) {
	staging, mf := stageBackup(t, backup.Options{})

	dst := dockerapi.NewFake()
	dst.PingErr = errors.New("cannot connect to the docker daemon")

	err := restore.Run(context.Background(), dst, staging, mf, restore.Options{}, &bytes.Buffer{})
	require.Error(t, err)

	var rerr *restore.RestoreError
	require.True(t, errors.As(err, &rerr))
}

func TestRun_MissingStagedEntry(t *testing.T) {
	staging, mf := stageBackup(t, backup.Options{})
	require.NoError(t, os.Remove(filepath.Join(staging, "volumes", "dbdata.tar")))

	dst := dockerapi.NewFake()
	err := restore.Run(context.Background(), dst, staging, mf, restore.Options{}, &bytes.Buffer{})
	require.Error(t, err)

	var rerr *restore.RestoreError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "volumes", rerr.Step)
}

func writeCompose(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "docker-compose.yml")
	require.NoError(t, os.WriteFile(p, []byte(composeYAML), 0o644))
	return p
}
