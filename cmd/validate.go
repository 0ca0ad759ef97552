package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Dry-run schema validation of the newest downloaded archive",
	Long: `Extract and transform the newest downloaded archive, then print the
full validation report without writing anything. Exits non-zero when
violations are found, regardless of the configured validate policy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := buildPipeline()

		report, err := p.ValidateLocal(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "validate")
		}
		if err := printJSON(report); err != nil {
			return eris.Wrap(err, "print report")
		}
		if !report.Empty() {
			zap.L().Warn("validation failed", zap.Int("violations", report.Count()))
			return eris.Errorf("validate: %d violations", report.Count())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
