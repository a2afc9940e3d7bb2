package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/releasy/internal/doctor"
	"github.com/joescharf/releasy/internal/output"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the project and the external tools are ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doctorRun()
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorRun() error {
	checker := doctor.NewChecker(doctor.Tools{
		Extractor: viper.GetString("osx.extractor"),
		SevenZip:  viper.GetString("tools.sevenzip"),
		Tar:       viper.GetString("tools.tar"),
		Ocra:      viper.GetString("tools.ocra"),
	})
	checks := checker.Run(project)

	passed, total := 0, len(checks)
	for _, c := range checks {
		icon := output.Red("✗")
		if c.Passed {
			icon = output.Green("✓")
			passed++
		}
		fmt.Fprintf(ui.Out, "  %s %-20s %s\n", icon, c.Name, c.Detail)
	}
	fmt.Fprintf(ui.Out, "  Score: %d/%d\n", passed, total)

	if passed < total {
		return fmt.Errorf("%d of %d checks failed", total-passed, total)
	}
	return nil
}
