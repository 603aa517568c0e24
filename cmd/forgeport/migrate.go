package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forgeport/forgeport/internal/attachments"
	"github.com/forgeport/forgeport/internal/config"
	"github.com/forgeport/forgeport/internal/github"
	"github.com/forgeport/forgeport/internal/gitlab"
	"github.com/forgeport/forgeport/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run the migration",
	Long: `Run the full migration: build identifier maps from the source and
destination, create milestones, issues, merge requests (as issues), and
comments at the destination with rewritten bodies, then transfer
attachments if the upload mode is configured.

All maps are built before anything is written. Entities whose titles
already exist at the destination are skipped, so interrupted runs can be
resumed by running migrate again.`,
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := loadSettings(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signalContext()
		defer cancel()

		src := gitlab.NewClient(settings.GitLab.Token, settings.GitLab.URL, settings.GitLab.Project)
		dst := github.NewClient(settings.GitHub.Token, settings.GitHub.Owner, settings.GitHub.Repo)

		var store attachments.Storer
		if settings.Attachments == config.AttachmentsUpload {
			outDir, _ := cmd.Flags().GetString("attachment-dir")
			store = attachments.DirStorer(outDir, &attachments.UploadBackend{
				BaseURL: settings.Storage.BaseURL,
				Prefix:  settings.Storage.Prefix,
			})
		}

		runner := migrate.NewRunner(settings, src, dst, store)
		stats, err := runner.Run(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: migration failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Migration complete:\n")
		fmt.Printf("  Milestones:     %s\n", humanize.Comma(int64(stats.Milestones)))
		fmt.Printf("  Issues:         %s\n", humanize.Comma(int64(stats.Issues)))
		fmt.Printf("  Merge requests: %s\n", humanize.Comma(int64(stats.MergeRequests)))
		fmt.Printf("  Placeholders:   %s\n", humanize.Comma(int64(stats.Placeholders)))
		fmt.Printf("  Comments:       %s\n", humanize.Comma(int64(stats.Comments)))
		if stats.Skipped > 0 {
			fmt.Printf("  Skipped (already migrated): %s\n", humanize.Comma(int64(stats.Skipped)))
		}
		if settings.Attachments == config.AttachmentsUpload {
			fmt.Printf("  Attachments:    %d transferred (%s), %d failed\n",
				stats.Attachments.Transferred,
				humanize.Bytes(uint64(stats.Attachments.Bytes)),
				stats.Attachments.Failed)
		}
	},
}

func init() {
	migrateCmd.Flags().Bool("placeholders", true, "Fill numbering gaps with closed placeholder issues")
	migrateCmd.Flags().String("attachments", "", "Attachment mode: passthrough, upload, or off (overrides settings)")
	migrateCmd.Flags().String("migrated-label", "", "Extra label added to every created issue (overrides settings)")
	migrateCmd.Flags().String("attachment-dir", "attachments", "Local directory for uploaded attachments (upload mode)")
}
