package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var uploadFile string

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload the staged file to the vendor server",
	Long: `Push the newest staged CSV (or the file given with --file) into the
remote upload directory, creating missing path segments, and verify
the transferred byte count.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := buildPipeline()

		staged := uploadFile
		if staged == "" {
			pth, err := p.FindStaged()
			if err != nil {
				return eris.Wrap(err, "upload: locate staged file")
			}
			staged = pth
		}

		if err := p.Upload(cmd.Context(), staged); err != nil {
			return eris.Wrap(err, "upload")
		}
		return printJSON(map[string]string{"uploaded": staged})
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadFile, "file", "", "staged file to upload (default: newest staged CSV)")
	rootCmd.AddCommand(uploadCmd)
}
