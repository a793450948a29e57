package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func (a *app) releasesCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "releases",
		Short: "List runtime-shell releases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, _, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}

			releases, err := a.releaseClient(cfg, nil).ListReleases(ctx)
			if err != nil {
				return err
			}
			if len(releases) == 0 {
				fmt.Fprintln(a.stdout, "No releases found")
				return nil
			}

			if limit > 0 && len(releases) > limit {
				releases = releases[:limit]
			}
			latestMarked := false
			for _, r := range releases {
				kind := "stable"
				switch {
				case r.Draft:
					kind = "draft"
				case r.Prerelease:
					kind = "prerelease"
				}

				tag := lipgloss.NewStyle().Width(16).Render(r.TagName)
				line := fmt.Sprintf("%s %-10s %3d assets  %s", tag, kind, len(r.Assets), humanize.Bytes(uint64(r.TotalSize())))
				if r.IsStable() && !latestMarked {
					latestMarked = true
					line += " " + successStyle.Render("(latest)")
				}
				fmt.Fprintln(a.stdout, line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of releases to show (0 for all)")
	return cmd
}
