package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"compose-migrate/src/dockerapi"
	"compose-migrate/src/health"
	"compose-migrate/src/restore"
)

func newRestoreCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		backupFile  string
		targetDir   string
		extractOnly bool
		composePath string

		skipHealth     bool
		healthTimeout  time.Duration
		healthInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a compose deployment from a migration archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()

			if backupFile == "" {
				return fmt.Errorf("--backup-file is required")
			}
			if targetDir == "" {
				targetDir = defaultTargetDir(backupFile)
			}

			fmt.Fprintf(stdout, "[1/3] Extracting %s into %s\n", backupFile, targetDir)
			mf, err := restore.Extract(backupFile, targetDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "      %d entries for project %s\n", len(mf.Entries), mf.Project)

			if extractOnly {
				fmt.Fprintln(stdout, "Extract-only requested, stopping before any runtime changes")
				return nil
			}

			client, err := dockerapi.Connect()
			if err != nil {
				return err
			}

			fmt.Fprintln(stdout, "[2/3] Recreating networks, volumes, images and services")
			err = restore.Run(ctx, client, targetDir, mf, restore.Options{ComposeFile: composePath}, stdout)
			if err != nil {
				return err
			}

			if skipHealth {
				fmt.Fprintln(stdout, "[3/3] Health validation skipped")
				return nil
			}
			fmt.Fprintln(stdout, "[3/3] Waiting for services to become healthy")
			report, err := health.Check(ctx, client, mf.Services, health.Options{
				Interval: healthInterval,
				Timeout:  healthTimeout,
			}, stdout)
			if err != nil {
				return err
			}
			return report.Err(healthTimeout)
		},
	}

	cmd.Flags().StringVarP(&backupFile, "backup-file", "b", "", "Migration archive to restore from")
	cmd.Flags().StringVarP(&targetDir, "target-dir", "t", "", "Directory to extract into (default: derived from the archive name)")
	cmd.Flags().BoolVar(&extractOnly, "extract-only", false, "Extract and verify the archive, touch nothing else")
	cmd.Flags().StringVar(&composePath, "compose-file-path", "", "Compose file to start instead of the one in the backup")
	cmd.Flags().BoolVar(&skipHealth, "skip-health", false, "Do not wait for services to become healthy")
	cmd.Flags().DurationVar(&healthTimeout, "health-timeout", 60*time.Second, "Total window for services to come up")
	cmd.Flags().DurationVar(&healthInterval, "health-interval", 2*time.Second, "Delay between status polls")
	return cmd
}

// defaultTargetDir derives an extraction directory from the archive name,
// next to the current working directory.
func defaultTargetDir(backupFile string) string {
	base := filepath.Base(backupFile)
	for _, ext := range []string{".tar.gz", ".tgz", ".zip"} {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base + ".extracted"
}
