package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/releasy/internal/models"
	"github.com/joescharf/releasy/internal/output"
	"github.com/joescharf/releasy/internal/store"
)

var (
	historyProject string
	historyVariant string
	historyStatus  string
	historyLimit   int
	historyPrune   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded builds",
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyRun()
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyProject, "name", "", "Filter by project name")
	historyCmd.Flags().StringVar(&historyVariant, "variant", "", "Filter by variant")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Filter by status (built, skipped, failed)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of builds to show")
	historyCmd.Flags().IntVar(&historyPrune, "prune", -1, "Keep only the newest N builds of --name")
	rootCmd.AddCommand(historyCmd)
}

func historyRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if historyPrune >= 0 {
		if historyProject == "" {
			return fmt.Errorf("--prune needs --name")
		}
		if dryRun {
			ui.DryRunMsg("Would prune builds of %s to the newest %d", historyProject, historyPrune)
			return nil
		}
		n, err := s.PruneBuilds(ctx, historyProject, historyPrune)
		if err != nil {
			return err
		}
		ui.Success("Pruned %d builds of %s", n, historyProject)
		return nil
	}

	builds, err := s.ListBuilds(ctx, store.BuildListFilter{
		Project: historyProject,
		Variant: historyVariant,
		Status:  models.BuildStatus(historyStatus),
		Limit:   historyLimit,
	})
	if err != nil {
		return err
	}
	if len(builds) == 0 {
		ui.Info("No builds recorded.")
		return nil
	}

	table := ui.Table([]string{"Project", "Version", "Variant", "Status", "Duration", "When"})
	for _, b := range builds {
		table.Append([]string{
			output.Cyan(b.Project),
			b.Version,
			b.Variant,
			output.StatusColor(string(b.Status)),
			b.Duration.Round(time.Millisecond).String(),
			timeAgo(b.StartedAt),
		})
	}
	table.Render()

	for _, b := range builds {
		if b.Status == models.BuildStatusFailed && b.Error != "" {
			ui.VerboseLog("%s %s: %s", b.ID, b.Variant, b.Error)
		}
	}
	return nil
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
