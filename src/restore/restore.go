package restore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"compose-migrate/src/backup"
	"compose-migrate/src/dockerapi"
)

// RestoreError reports which step of the restore sequence failed.
type RestoreError struct {
	Step string // networks|volumes|images|compose
	Err  error
}

func (e *RestoreError) Error() string { return fmt.Sprintf("restore step %s: %v", e.Step, e.Err) }
func (e *RestoreError) Unwrap() error { return e.Err }

// Options tunes a restore run.
type Options struct {
	// ComposeFile overrides the compose file staged in the backup. When
	// empty the staged one is used; when neither exists the compose step
	// is skipped with a warning.
	ComposeFile string
}

// Run recreates the backed-up deployment from the extracted staging
// directory at dir. Resources are created in dependency order: networks
// first, then volumes with their data, then images, and finally the stack
// itself. Resources that already exist on the target are left alone.
func Run(ctx context.Context, client dockerapi.Client, dir string, mf *backup.Manifest, opts Options, out io.Writer) error {
	if err := client.Ping(ctx); err != nil {
		return &RestoreError{Step: "networks", Err: fmt.Errorf("runtime unreachable: %w", err)}
	}

	for _, name := range mf.Networks {
		if err := client.CreateNetwork(ctx, name, "bridge"); err != nil {
			var conflict *dockerapi.ConflictError
			if errors.As(err, &conflict) {
				log.Debug("network already exists", "network", name)
				continue
			}
			return &RestoreError{Step: "networks", Err: err}
		}
		fmt.Fprintf(out, "created network %s\n", name)
	}

	for _, e := range mf.EntriesOf(backup.KindVolume) {
		if err := client.CreateVolume(ctx, e.Name); err != nil {
			var conflict *dockerapi.ConflictError
			if !errors.As(err, &conflict) {
				return &RestoreError{Step: "volumes", Err: err}
			}
			log.Debug("volume already exists", "volume", e.Name)
		}
		f, err := os.Open(filepath.Join(dir, filepath.FromSlash(e.Path)))
		if err != nil {
			return &RestoreError{Step: "volumes", Err: err}
		}
		err = client.ImportVolume(ctx, e.Name, f)
		f.Close()
		if err != nil {
			return &RestoreError{Step: "volumes", Err: fmt.Errorf("import volume %s: %w", e.Name, err)}
		}
		fmt.Fprintf(out, "restored volume %s\n", e.Name)
	}

	for _, e := range mf.EntriesOf(backup.KindImage) {
		f, err := os.Open(filepath.Join(dir, filepath.FromSlash(e.Path)))
		if err != nil {
			return &RestoreError{Step: "images", Err: err}
		}
		err = client.LoadImage(ctx, f)
		f.Close()
		if err != nil {
			return &RestoreError{Step: "images", Err: fmt.Errorf("load image %s: %w", e.Name, err)}
		}
		fmt.Fprintf(out, "loaded image %s\n", e.Name)
	}

	composeFile := opts.ComposeFile
	if composeFile == "" {
		if staged := mf.EntriesOf(backup.KindCompose); len(staged) > 0 {
			composeFile = filepath.Join(dir, filepath.FromSlash(staged[0].Path))
		}
	}
	if composeFile == "" {
		log.Warn("no compose file in backup and none supplied, skipping compose up")
		return nil
	}
	if err := client.ComposeUp(ctx, composeFile, dir); err != nil {
		return &RestoreError{Step: "compose", Err: err}
	}
	fmt.Fprintf(out, "started stack %s\n", mf.Project)
	return nil
}
