package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download today's vendor archive",
	Long: `Purge stale local archives, then pull today's archive from the
vendor server over the configured transport.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := buildPipeline()

		path, err := p.Download(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "download")
		}
		return printJSON(map[string]string{"archive_path": path})
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
}
