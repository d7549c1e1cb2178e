package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"compose-migrate/src/archive"
	"compose-migrate/src/backup"
	"compose-migrate/src/composefile"
	"compose-migrate/src/dockerapi"
	"compose-migrate/src/safety"
	"compose-migrate/src/target"
	"compose-migrate/src/transfer"
)

func newBackupCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		composeFile string
		backupAll   bool

		skipImages     bool
		skipContainers bool
		skipVolumes    bool
		configOnly     bool
		pullImages     bool

		srcBaseDir  string
		stagingDir  string
		keepStaging bool

		formatStr   string
		output      string
		destination string
		ftpUser     string
		ftpPass     string
		sshPass     string
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up a compose deployment into a single archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(cmd); err != nil {
				return err
			}
			safetyOpts := getSafetyOptions(cmd)
			ctx := cmd.Context()

			format, err := archive.ParseFormat(formatStr)
			if err != nil {
				return err
			}

			var inv composefile.Inventory
			if !backupAll {
				fmt.Fprintf(stdout, "[1/4] Reading %s\n", composeFile)
				inv, err = composefile.Parse(composeFile)
				if err != nil {
					return err
				}
			} else {
				fmt.Fprintln(stdout, "[1/4] Inventorying the whole runtime")
			}

			// Offer to carry host files along: the compose file's directory
			// for inventoried runs, the working directory for --backup-all
			// runs (which have no compose file to anchor on).
			if srcBaseDir == "" {
				if backupAll {
					include, err := safety.Confirm(safetyOpts, os.Stdin, stdout,
						"Include the current directory contents in the backup?", true)
					if err != nil {
						return err
					}
					if include {
						srcBaseDir = "."
					}
				} else {
					include, err := safety.Confirm(safetyOpts, os.Stdin, stdout,
						"Include the compose file's directory contents in the backup?", true)
					if err != nil {
						return err
					}
					if include {
						srcBaseDir = filepath.Dir(composeFile)
					}
				}
			}

			client, err := dockerapi.Connect()
			if err != nil {
				return err
			}

			cleanupStaging := false
			if stagingDir == "" {
				stagingDir, err = os.MkdirTemp("", "compose-migrate-*")
				if err != nil {
					return err
				}
				cleanupStaging = !keepStaging
			}
			defer func() {
				if cleanupStaging {
					os.RemoveAll(stagingDir)
				}
			}()

			fmt.Fprintf(stdout, "[2/4] Staging resources under %s\n", stagingDir)
			opts := backup.Options{
				SkipImages:     skipImages,
				SkipContainers: skipContainers,
				SkipVolumes:    skipVolumes,
				ConfigOnly:     configOnly,
				PullImages:     pullImages,
				BackupAll:      backupAll,
				ComposeFile:    composeFileForStaging(composeFile, backupAll),
				SrcBaseDir:     srcBaseDir,
			}
			mf, err := backup.Build(ctx, client, inv, opts, stagingDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "      staged %d entries for project %s\n", len(mf.Entries), mf.Project)

			if output == "" {
				stamp := time.Now().Format("20060102-150405")
				name := "compose-migration"
				if mf.Project != "" {
					name += "-" + mf.Project
				}
				output = name + "-" + stamp + format.Ext()
			}
			fmt.Fprintf(stdout, "[3/4] Writing archive %s\n", output)
			if err := archive.Create(format, stagingDir, output); err != nil {
				return err
			}

			if destination == "" {
				fmt.Fprintln(stdout, "[4/4] No destination given, archive left in place")
				return nil
			}
			dest, err := target.Parse(destination)
			if err != nil {
				return err
			}
			if dest.Scheme == target.SchemeSCP && sshPass == "" &&
				os.Getenv("SSH_AUTH_SOCK") == "" && !safetyOpts.NoPrompt {
				sshPass, err = safety.ReadPassword(safetyOpts, os.Stdin, stdout,
					"SSH password for "+dest.User+"@"+dest.Host)
				if err != nil {
					return err
				}
			}
			if dest.Scheme == target.SchemeFTP && dest.Password == "" && ftpPass == "" {
				user := dest.User
				if user == "" {
					user = ftpUser
				}
				if user != "" && !safetyOpts.NoPrompt {
					ftpPass, err = safety.ReadPassword(safetyOpts, os.Stdin, stdout, "FTP password for "+user)
					if err != nil {
						return err
					}
				}
			}
			fmt.Fprintf(stdout, "[4/4] Uploading to %s\n", dest.String())
			err = transfer.Upload(ctx, output, dest, transfer.Options{
				FTPUser:     ftpUser,
				FTPPassword: ftpPass,
				SSHPassword: sshPass,
				Out:         stdout,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Done")
			return nil
		},
	}

	cmd.Flags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file describing the deployment")
	cmd.Flags().BoolVar(&backupAll, "backup-all", false, "Ignore the compose file and back up everything the runtime holds")
	cmd.Flags().BoolVar(&skipImages, "skip-images", false, "Do not save images")
	cmd.Flags().BoolVar(&skipContainers, "skip-containers", false, "Do not export containers")
	cmd.Flags().BoolVar(&skipVolumes, "skip-volumes", false, "Do not export volumes")
	cmd.Flags().BoolVar(&configOnly, "config-only", false, "Stage only the compose file and host files")
	cmd.Flags().BoolVar(&pullImages, "pull-images", false, "Pull every image before saving it")
	cmd.Flags().StringVar(&srcBaseDir, "src-base-dir", "", "Host directory to carry along under files/")
	cmd.Flags().StringVar(&stagingDir, "staging-dir", "", "Staging directory (default: a temp dir, removed afterwards)")
	cmd.Flags().BoolVar(&keepStaging, "keep-staging", false, "Keep the staging directory after archiving")
	cmd.Flags().StringVar(&formatStr, "format", "targz", "Archive format (targz or zip)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive path (default: compose-migration-<project>-<timestamp>)")
	cmd.Flags().StringVarP(&destination, "destination", "d", "", "Where to deliver the archive: a path, user@host:path, or ftp:// URL")
	cmd.Flags().StringVar(&ftpUser, "ftp-user", "", "FTP username when the destination URL carries none")
	cmd.Flags().StringVar(&ftpPass, "ftp-pass", "", "FTP password when the destination URL carries none")
	cmd.Flags().StringVar(&sshPass, "ssh-pass", "", "SSH password for scp destinations (default: ssh-agent keys, prompting as a fallback)")
	return cmd
}

// composeFileForStaging returns the compose file to copy into the staging
// root. A --backup-all run has no compose file to stage.
func composeFileForStaging(composeFile string, backupAll bool) string {
	if backupAll {
		return ""
	}
	return composeFile
}
