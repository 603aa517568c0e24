package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgeport/forgeport/internal/github"
	"github.com/forgeport/forgeport/internal/gitlab"
	"github.com/forgeport/forgeport/internal/idmap"
	"github.com/forgeport/forgeport/internal/migrate"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Build the identifier maps without writing anything",
	Long: `Build the milestone, issue, and merge request identifier maps from the
source project and the destination repository, and print the resulting
numbering. Nothing is written to the destination.

Use this to check placeholder counts and rerun matching before migrating.`,
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

		project, err := src.FetchProject(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Source: %s (%s)\n", project.PathWithNamespace, project.WebURL)
		fmt.Printf("Destination: %s/%s\n\n", settings.GitHub.Owner, settings.GitHub.Repo)

		runner := migrate.NewRunner(settings, src, dst, nil)
		if err := runner.BuildMaps(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		maps := runner.Maps()
		printMap("Milestones", maps.Milestones)
		printMap("Issues", maps.Issues)
		printMap("Merge requests", maps.MergeRequests)
	},
}

func printMap(name string, m *idmap.Map) {
	fmt.Printf("%s: %d entries, %d placeholders\n", name, m.Len(), len(m.Placeholders()))
	for _, iid := range m.IIDs() {
		item, _ := m.Get(iid)
		marker := ""
		if idmap.IsPlaceholderTitle(item.Title) {
			marker = " (placeholder)"
		}
		fmt.Printf("  %6d -> %6d  %s%s\n", iid, item.Number, item.Title, marker)
	}
}

func init() {
	planCmd.Flags().Bool("placeholders", true, "Fill numbering gaps with closed placeholder issues")
}
