// Command forgeport migrates a GitLab project's issue tracker content into
// a GitHub repository: milestones, issues, merge requests, comments, and
// attachments, with inline references rewritten for the destination's
// numbering.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forgeport/forgeport/internal/config"
	"github.com/forgeport/forgeport/internal/debug"
)

// Version is the release version, overridden at build time.
var Version = "0.2.0"

var (
	settingsPath string
	verboseFlag  bool
	quietFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "forgeport",
	Short: "Migrate a GitLab project's issues to GitHub",
	Long: `forgeport migrates issue tracker content from a GitLab project to a
GitHub repository.

It preserves numbering alignment between the two trackers (filling gaps
left by deleted items with closed placeholder issues), rewrites inline
references (#1, !2, %"v1.0", @user, attachment links) so they resolve at
the destination, and records original authorship in attribution lines.

Re-running against the same destination is safe: entities whose titles
already exist there are skipped, not duplicated.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the forgeport version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("forgeport %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&settingsPath, "settings", "s", "forgeport.yaml", "Path to the settings file")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")

	viper.SetEnvPrefix("FORGEPORT")
	viper.AutomaticEnv()

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(migrateCmd)
}

// loadSettings resolves the settings file, environment overrides (via the
// FORGEPORT_ viper prefix), and command-line flag overrides, in that
// precedence order: flags beat environment beats file.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	settings, err := config.Load(settingsPath)
	if err != nil {
		return nil, err
	}

	if viper.IsSet("attachments") {
		settings.Attachments = viper.GetString("attachments")
	}
	if viper.IsSet("migrated_label") {
		settings.MigratedLabel = viper.GetString("migrated_label")
	}

	if cmd.Flags().Changed("placeholders") {
		settings.Placeholders, _ = cmd.Flags().GetBool("placeholders")
	}
	if cmd.Flags().Changed("attachments") {
		settings.Attachments, _ = cmd.Flags().GetString("attachments")
	}
	if cmd.Flags().Changed("migrated-label") {
		settings.MigratedLabel, _ = cmd.Flags().GetString("migrated-label")
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// signalContext returns a context cancelled on Ctrl-C.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
