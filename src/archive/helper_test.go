package archive_test

import (
	"archive/zip"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeZipWithEntry builds a zip containing a single entry with an
// arbitrary (possibly malicious) name.
func writeZipWithEntry(t *testing.T, path, name, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}
