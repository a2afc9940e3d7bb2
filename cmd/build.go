package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/releasy/internal/output"
	"github.com/joescharf/releasy/internal/task"
)

var buildNoHistory bool

var buildCmd = &cobra.Command{
	Use:   "build [task|variant...]",
	Short: "Build release artifacts",
	Long: `Build the artifacts declared in the project manifest.

Arguments may be task names (build:osx:app), target folders or variant
names (osx_app, win32_installer, win32_folder, win32_standalone). With no
arguments every variant is built. Up-to-date artifacts are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return buildRun(cmd.Context(), args)
	},
}

func init() {
	buildCmd.Flags().BoolVar(&buildNoHistory, "no-history", false, "Do not record this build in the history database")
	rootCmd.AddCommand(buildCmd)
}

func buildRun(ctx context.Context, refs []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := openSession(project, ui)
	if err != nil {
		return err
	}

	if dryRun {
		infos, err := sess.Plan(refs...)
		if err != nil {
			return err
		}
		for _, info := range infos {
			if info.Stale {
				ui.DryRunMsg("Would build %s -> %s", info.Name, info.Target)
			} else {
				ui.DryRunMsg("%s is up to date", info.Name)
			}
		}
		return nil
	}

	var results []task.Result
	if buildNoHistory {
		results, err = sess.Build(ctx, refs, nil)
	} else {
		st, serr := getStore()
		if serr != nil {
			ui.Warning("Build history disabled: %v", serr)
			results, err = sess.Build(ctx, refs, nil)
		} else {
			results, err = sess.Build(ctx, refs, st)
		}
	}
	if err != nil {
		return err
	}

	built, skipped := 0, 0
	for _, r := range results {
		switch r.Status {
		case task.StatusBuilt:
			built++
		case task.StatusSkipped:
			skipped++
		}
	}
	fmt.Fprintf(ui.Out, "\n%s %d built, %d up to date\n", output.Cyan(sess.Project.Name), built, skipped)
	return nil
}
