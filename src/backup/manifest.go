package backup

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ManifestName is the manifest file written at the root of the staging
// directory and therefore at the root of every archive.
const ManifestName = "manifest.json"

// ChecksumsName lists sha256 sums of the staged payload files.
const ChecksumsName = "checksums.txt"

// Entry kinds recorded in the manifest.
const (
	KindImage     = "image"
	KindContainer = "container"
	KindVolume    = "volume"
	KindCompose   = "compose"
	KindHostFiles = "hostfiles"
)

// Entry maps one staged path to the resource it carries. Paths are
// staging-relative with forward slashes so archives extract identically
// across platforms.
type Entry struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// Service records what the restore side needs to know about one service.
type Service struct {
	Name          string `json:"name"`
	ContainerName string `json:"containerName"`
	Image         string `json:"image"`
}

// Manifest describes everything a backup staged. It is deliberately free
// of timestamps so that two backups of identical host state produce
// identical manifests.
type Manifest struct {
	Project  string    `json:"project"`
	Services []Service `json:"services,omitempty"`
	Networks []string  `json:"networks,omitempty"`
	Entries  []Entry   `json:"entries"`
}

// EntriesOf returns the entries of one kind, in manifest order.
func (m *Manifest) EntriesOf(kind string) []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Write stores the manifest at the root of dir. Callers invoke this last,
// once every staged copy has succeeded.
func (m *Manifest) Write(dir string) error {
	f, err := os.Create(filepath.Join(dir, ManifestName))
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// LoadManifest reads the manifest from the root of dir.
func LoadManifest(dir string) (*Manifest, error) {
	f, err := os.Open(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m Manifest
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ManifestName, err)
	}
	return &m, nil
}

// VerifyChecksums re-hashes every file listed in checksums.txt under dir
// and reports the first missing or altered one. Backups made with
// --config-only have an empty checksum list, which verifies trivially.
func VerifyChecksums(dir string) error {
	f, err := os.Open(filepath.Join(dir, ChecksumsName))
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		want, name, ok := strings.Cut(line, "  ")
		if !ok {
			return fmt.Errorf("malformed checksum line %q", line)
		}
		got, err := sha256File(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			return fmt.Errorf("checksum %s: %w", name, err)
		}
		if got != want {
			return fmt.Errorf("checksum mismatch for %s", name)
		}
	}
	return sc.Err()
}

// writeChecksums writes sha256 sums for the given staging-relative files.
func writeChecksums(dir string, files []string) error {
	out, err := os.Create(filepath.Join(dir, ChecksumsName))
	if err != nil {
		return err
	}
	defer out.Close()
	for _, name := range files {
		sum, err := sha256File(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "%s  %s\n", sum, name); err != nil {
			return err
		}
	}
	return nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
