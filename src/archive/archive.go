// Package archive packs a staging directory into a single portable file
// and unpacks it again, preserving relative paths so extraction reproduces
// the staged layout exactly. Two interchangeable formats are supported:
// gzip-compressed tar and zip.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format selects the archive codec.
type Format string

const (
	FormatTarGz Format = "targz"
	FormatZip   Format = "zip"
)

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "targz", "tar.gz", "tgz", "tar":
		return FormatTarGz, nil
	case "zip":
		return FormatZip, nil
	default:
		return "", fmt.Errorf("unsupported archive format %q (want targz or zip)", s)
	}
}

// Ext returns the conventional filename extension for the format.
func (f Format) Ext() string {
	if f == FormatZip {
		return ".zip"
	}
	return ".tar.gz"
}

// DetectFormat infers the format from an archive filename.
func DetectFormat(path string) (Format, error) {
	switch {
	case strings.HasSuffix(path, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return FormatTarGz, nil
	default:
		return "", fmt.Errorf("cannot detect archive format of %q", path)
	}
}

// ArchiveError reports a failure while producing an archive. The partial
// output file has already been removed by the time the caller sees it.
type ArchiveError struct {
	Path string
	Err  error
}

func (e *ArchiveError) Error() string { return fmt.Sprintf("archive %s: %v", e.Path, e.Err) }
func (e *ArchiveError) Unwrap() error { return e.Err }

// ExtractError reports an unreadable or malformed archive.
type ExtractError struct {
	Path string
	Err  error
}

func (e *ExtractError) Error() string { return fmt.Sprintf("extract %s: %v", e.Path, e.Err) }
func (e *ExtractError) Unwrap() error { return e.Err }

// Create packs srcDir into a single archive at outPath. On any failure the
// partial output is removed so a run never leaves a truncated archive
// behind.
func Create(format Format, srcDir, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return &ArchiveError{Path: outPath, Err: err}
	}
	var err error
	switch format {
	case FormatZip:
		err = createZip(srcDir, outPath)
	case FormatTarGz:
		err = createTarGz(srcDir, outPath)
	default:
		return &ArchiveError{Path: outPath, Err: fmt.Errorf("unknown format %q", format)}
	}
	if err != nil {
		os.Remove(outPath)
		return &ArchiveError{Path: outPath, Err: err}
	}
	return nil
}

// Extract unpacks the archive at path into destDir, detecting the format
// from the filename.
func Extract(path, destDir string) error {
	format, err := DetectFormat(path)
	if err != nil {
		return &ExtractError{Path: path, Err: err}
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return &ExtractError{Path: path, Err: err}
	}
	switch format {
	case FormatZip:
		err = extractZip(path, destDir)
	default:
		err = extractTarGz(path, destDir)
	}
	if err != nil {
		return &ExtractError{Path: path, Err: err}
	}
	return nil
}

// securePath joins a archive-relative name onto destDir, rejecting entries
// that would escape it.
func securePath(destDir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("illegal entry path %q", name)
	}
	return filepath.Join(destDir, clean), nil
}
