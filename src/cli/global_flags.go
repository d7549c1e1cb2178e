package cli

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"compose-migrate/src/safety"
)

// addGlobalFlags adds persistent flags shared by every subcommand.
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("no-prompt", false, "Never prompt; questions resolve to their defaults")
	cmd.PersistentFlags().BoolP("yes", "y", false, "Assume 'yes' to prompts and run non-interactively")
}

// getSafetyOptions reads the global flags into a safety.Options struct.
func getSafetyOptions(cmd *cobra.Command) safety.Options {
	noPrompt, _ := cmd.Root().PersistentFlags().GetBool("no-prompt")
	yes, _ := cmd.Root().PersistentFlags().GetBool("yes")
	return safety.Options{NoPrompt: noPrompt, Yes: yes}
}

// setupLogging applies the --log-level flag to the process logger.
func setupLogging(cmd *cobra.Command) error {
	s, _ := cmd.Root().PersistentFlags().GetString("log-level")
	lvl, err := log.ParseLevel(s)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}
