// Package backup stages the resources named by a compose inventory into a
// directory tree that the archiver can pack and the restorer can replay:
// image saves, container exports, volume tars, the compose file, and any
// host files the operator wants carried along.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"compose-migrate/src/composefile"
	"compose-migrate/src/dockerapi"
)

// Options is the flat configuration snapshot for one backup run. It is
// read at start and never mutated.
type Options struct {
	SkipImages     bool
	SkipContainers bool
	SkipVolumes    bool
	// ConfigOnly is shorthand for skipping images, containers and volumes.
	ConfigOnly bool
	// PullImages refreshes every image from its registry before saving.
	// This is the only option that mutates runtime state.
	PullImages bool
	// BackupAll ignores the inventory and asks the runtime for everything
	// it has.
	BackupAll bool
	// ComposeFile, when set, is copied into the staging root.
	ComposeFile string
	// SrcBaseDir, when set, is copied recursively under files/.
	SrcBaseDir string
}

func (o Options) skipImages() bool     { return o.SkipImages || o.ConfigOnly }
func (o Options) skipContainers() bool { return o.SkipContainers || o.ConfigOnly }
func (o Options) skipVolumes() bool    { return o.SkipVolumes || o.ConfigOnly }

// PullError reports a failed image pull; per the run contract a single
// failed pull aborts the whole backup.
type PullError struct {
	Ref string
	Err error
}

func (e *PullError) Error() string { return fmt.Sprintf("pull image %s: %v", e.Ref, e.Err) }
func (e *PullError) Unwrap() error { return e.Err }

// Subdirectories of the staging tree, also used as manifest entry paths.
const (
	imagesDir     = "images"
	containersDir = "containers"
	volumesDir    = "volumes"
	filesDir      = "files"
)

// Build stages every inventoried resource not excluded by the options into
// stagingDir and writes the manifest last, so a partial failure leaves no
// manifest behind and a restore can never see half-staged artifacts.
func Build(ctx context.Context, client dockerapi.Client, inv composefile.Inventory, opts Options, stagingDir string) (*Manifest, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, err
	}

	if opts.BackupAll {
		var err error
		inv, err = inventoryFromRuntime(ctx, client)
		if err != nil {
			return nil, err
		}
	}

	mf := &Manifest{Project: inv.Project, Networks: inv.NetworkNames()}
	for _, svc := range inv.Services {
		if svc.ContainerName == "" {
			// synthetic image-only entry from a --backup-all run
			continue
		}
		mf.Services = append(mf.Services, Service{
			Name:          svc.Name,
			ContainerName: svc.ContainerName,
			Image:         svc.Image,
		})
	}

	if opts.PullImages && !opts.skipImages() {
		for _, ref := range inv.ImageRefs() {
			log.Info("pulling image", "ref", ref)
			if err := client.PullImage(ctx, ref); err != nil {
				return nil, &PullError{Ref: ref, Err: err}
			}
		}
	}

	if !opts.skipImages() {
		for _, ref := range inv.ImageRefs() {
			rel := joinRel(imagesDir, safeName(ref)+".tar")
			if err := stageStream(stagingDir, rel, func(w io.Writer) error {
				return client.SaveImage(ctx, []string{ref}, w)
			}); err != nil {
				return nil, fmt.Errorf("save image %s: %w", ref, err)
			}
			mf.Entries = append(mf.Entries, Entry{Path: rel, Kind: KindImage, Name: ref})
		}
	}

	if !opts.skipContainers() {
		existing, err := client.ListContainers(ctx)
		if err != nil {
			return nil, err
		}
		byName := map[string]struct{}{}
		for _, c := range existing {
			byName[c.Name] = struct{}{}
		}
		for _, svc := range inv.Services {
			if _, ok := byName[svc.ContainerName]; !ok {
				log.Warn("container not present, skipping export", "container", svc.ContainerName)
				continue
			}
			rel := joinRel(containersDir, safeName(svc.ContainerName)+".tar")
			if err := stageStream(stagingDir, rel, func(w io.Writer) error {
				return client.ExportContainer(ctx, svc.ContainerName, w)
			}); err != nil {
				return nil, fmt.Errorf("export container %s: %w", svc.ContainerName, err)
			}
			mf.Entries = append(mf.Entries, Entry{Path: rel, Kind: KindContainer, Name: svc.ContainerName})
		}
	}

	if !opts.skipVolumes() {
		existing, err := client.ListVolumes(ctx)
		if err != nil {
			return nil, err
		}
		byName := map[string]struct{}{}
		for _, v := range existing {
			byName[v.Name] = struct{}{}
		}
		for _, name := range inv.VolumeNames() {
			if _, ok := byName[name]; !ok {
				log.Warn("volume not present, skipping export", "volume", name)
				continue
			}
			rel := joinRel(volumesDir, safeName(name)+".tar")
			if err := stageStream(stagingDir, rel, func(w io.Writer) error {
				return client.ExportVolume(ctx, name, w)
			}); err != nil {
				return nil, fmt.Errorf("export volume %s: %w", name, err)
			}
			mf.Entries = append(mf.Entries, Entry{Path: rel, Kind: KindVolume, Name: name})
		}
	}

	if opts.ComposeFile != "" {
		if err := copyFile(opts.ComposeFile, filepath.Join(stagingDir, "docker-compose.yml")); err != nil {
			return nil, fmt.Errorf("stage compose file: %w", err)
		}
		mf.Entries = append(mf.Entries, Entry{Path: "docker-compose.yml", Kind: KindCompose, Name: filepath.Base(opts.ComposeFile)})
	}

	if opts.SrcBaseDir != "" {
		if err := copyTree(opts.SrcBaseDir, filepath.Join(stagingDir, filesDir), stagingDir); err != nil {
			return nil, fmt.Errorf("stage host files: %w", err)
		}
		mf.Entries = append(mf.Entries, Entry{Path: filesDir, Kind: KindHostFiles, Name: opts.SrcBaseDir})
	}

	// Host paths bind-mounted into services ride along under files/ so the
	// restored compose project finds them next to the compose file.
	stagedBinds := map[string]string{} // staged name -> source path
	for _, svc := range inv.Services {
		for _, src := range svc.BindSources {
			name := filepath.Base(src)
			if prev, ok := stagedBinds[name]; ok {
				if prev == src {
					// same path mounted by several services
					continue
				}
				// two different sources share a basename; flatten the full
				// path of the latecomer instead
				name = safeName(strings.TrimPrefix(filepath.ToSlash(src), "/"))
				if other, taken := stagedBinds[name]; taken && other != src {
					return nil, fmt.Errorf("stage bind source %s: staged name %s already used by %s", src, name, other)
				}
			}
			stagedBinds[name] = src
			rel := joinRel(filesDir, name)
			dst := filepath.Join(stagingDir, filepath.FromSlash(rel))
			info, err := os.Stat(src)
			if err != nil {
				return nil, fmt.Errorf("stage bind source %s: %w", src, err)
			}
			if info.IsDir() {
				err = copyTree(src, dst, stagingDir)
			} else {
				err = copyFile(src, dst)
			}
			if err != nil {
				return nil, fmt.Errorf("stage bind source %s: %w", src, err)
			}
			mf.Entries = append(mf.Entries, Entry{Path: rel, Kind: KindHostFiles, Name: src})
		}
	}

	var payload []string
	for _, e := range mf.Entries {
		if e.Kind != KindHostFiles {
			payload = append(payload, e.Path)
		}
	}
	if err := writeChecksums(stagingDir, payload); err != nil {
		return nil, err
	}

	// Manifest goes last: its presence guarantees every entry above is
	// fully staged.
	if err := mf.Write(stagingDir); err != nil {
		return nil, err
	}
	return mf, nil
}

// inventoryFromRuntime builds a pseudo-inventory from everything the
// runtime currently holds, used by --backup-all runs without a compose
// file.
func inventoryFromRuntime(ctx context.Context, client dockerapi.Client) (composefile.Inventory, error) {
	var inv composefile.Inventory

	ctrs, err := client.ListContainers(ctx)
	if err != nil {
		return inv, err
	}
	for _, c := range ctrs {
		inv.Services = append(inv.Services, composefile.Service{
			Name:          c.Name,
			Image:         c.Image,
			ContainerName: c.Name,
		})
	}

	imgs, err := client.ListImages(ctx)
	if err != nil {
		return inv, err
	}
	seen := map[string]struct{}{}
	for _, s := range inv.Services {
		seen[s.Image] = struct{}{}
	}
	for _, img := range imgs {
		if len(img.Tags) == 0 {
			continue
		}
		if _, ok := seen[img.Tags[0]]; ok {
			continue
		}
		// Untagged-by-service images still get saved; attach them to a
		// synthetic service-less entry via a dedicated list.
		inv.Services = append(inv.Services, composefile.Service{
			Name:          img.Tags[0],
			Image:         img.Tags[0],
			ContainerName: "",
		})
	}

	vols, err := client.ListVolumes(ctx)
	if err != nil {
		return inv, err
	}
	for _, v := range vols {
		inv.Volumes = append(inv.Volumes, v.Name)
	}

	nets, err := client.ListNetworks(ctx)
	if err != nil {
		return inv, err
	}
	for _, n := range nets {
		switch n.Name {
		case "bridge", "host", "none":
			// runtime builtins, never migrated
		default:
			inv.Networks = append(inv.Networks, n.Name)
		}
	}
	return inv, nil
}

// stageStream writes one staged payload file via the produce callback,
// removing the partial file if the producer fails.
func stageStream(stagingDir, rel string, produce func(io.Writer) error) error {
	dst := filepath.Join(stagingDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := produce(f); err != nil {
		f.Close()
		os.Remove(dst)
		return err
	}
	return f.Close()
}

func joinRel(parts ...string) string { return strings.Join(parts, "/") }

// safeName flattens an image reference or container name into a filename.
func safeName(ref string) string {
	r := strings.NewReplacer("/", "_", ":", "_", "@", "_")
	return r.Replace(ref)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// copyTree copies src recursively under dst, skipping the staging
// directory itself in case it nests inside src.
func copyTree(src, dst, skip string) error {
	absSkip, err := filepath.Abs(skip)
	if err != nil {
		return err
	}
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if abs == absSkip {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(p, target)
	})
}
