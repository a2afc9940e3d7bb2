package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/releasy/internal/output"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [task|variant...]",
	Short: "List build tasks and whether they are up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		return tasksRun(args)
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}

func tasksRun(refs []string) error {
	sess, err := openSession(project, ui)
	if err != nil {
		return err
	}
	infos, err := sess.Plan(refs...)
	if err != nil {
		return err
	}

	table := ui.Table([]string{"Task", "Variant", "Status", "Target", "Description"})
	for _, info := range infos {
		status := "up to date"
		switch {
		case info.Error != "":
			status = "failed"
		case info.Stale:
			status = "stale"
		}
		table.Append([]string{
			output.Cyan(info.Name),
			info.Variant,
			output.StatusColor(status),
			info.Target,
			info.Description,
		})
	}
	table.Render()

	for _, info := range infos {
		if info.Error != "" {
			ui.Warning("%s: %s", info.Name, info.Error)
		}
	}
	return nil
}
