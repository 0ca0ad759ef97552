package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline for today's batch",
	Long: `Run all stages in order: download, extract, transform, validate,
stage, upload, trigger. The run summary is printed as JSON; a failed
stage aborts the remaining ones and exits non-zero so the scheduler
can decide on a retry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := buildPipeline()

		result, runErr := p.Run(cmd.Context())
		if err := printJSON(result); err != nil {
			return eris.Wrap(err, "print run result")
		}
		if runErr != nil {
			return eris.Wrap(runErr, "run")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
