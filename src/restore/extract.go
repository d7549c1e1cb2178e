// Package restore rebuilds a migrated deployment on the target host from
// an archive produced by the backup side: extract, recreate runtime
// resources, then bring the stack up.
package restore

import (
	"fmt"
	"os"
	"path/filepath"

	"compose-migrate/src/archive"
	"compose-migrate/src/backup"
)

// ExtractError reports a failure to turn an archive into a usable staging
// directory, including a missing or corrupt manifest after extraction.
type ExtractError struct {
	Archive string
	Err     error
}

func (e *ExtractError) Error() string { return fmt.Sprintf("extract %s: %v", e.Archive, e.Err) }
func (e *ExtractError) Unwrap() error { return e.Err }

// Extract unpacks the archive into targetDir, loads the manifest and
// verifies both the checksums and that every staged payload is present.
// It returns the loaded manifest; the contents live under targetDir.
func Extract(archivePath, targetDir string) (*backup.Manifest, error) {
	if err := archive.Extract(archivePath, targetDir); err != nil {
		return nil, &ExtractError{Archive: archivePath, Err: err}
	}
	mf, err := backup.LoadManifest(targetDir)
	if err != nil {
		return nil, &ExtractError{Archive: archivePath, Err: fmt.Errorf("no usable manifest: %w", err)}
	}
	if err := backup.VerifyChecksums(targetDir); err != nil {
		return nil, &ExtractError{Archive: archivePath, Err: err}
	}
	for _, e := range mf.Entries {
		if _, err := os.Stat(filepath.Join(targetDir, filepath.FromSlash(e.Path))); err != nil {
			return nil, &ExtractError{Archive: archivePath, Err: fmt.Errorf("manifest entry %s missing: %w", e.Path, err)}
		}
	}
	return mf, nil
}
