package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Extract, transform, validate, and stage the newest downloaded archive",
	Long: `Decode the CSV inside the most recently downloaded archive, remap it
into the canonical layout, validate it, and write it to the staging
directory if the date gate passes. A file already staged for the same
date range is left untouched (written=false).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := buildPipeline()

		result, stageErr := p.StageLocal(cmd.Context())
		if err := printJSON(result); err != nil {
			return eris.Wrap(err, "print stage result")
		}
		if stageErr != nil {
			return eris.Wrap(stageErr, "stage")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stageCmd)
}
