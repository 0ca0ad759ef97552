package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/feedsync-cli/internal/remote"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Trigger the remote import script",
	Long: `Run the remote test command and, only if it exits zero, the import
command. The command output is classified into working/warning/error
buckets and printed as JSON. Exits non-zero when the import did not
complete cleanly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		trig := buildTrigger()

		res, runErr := trig.RunImport(cmd.Context())
		out := struct {
			Result *remote.CommandResult `json:"result"`
			Log    *remote.Report        `json:"log,omitempty"`
		}{Result: res}
		if res != nil {
			out.Log = remote.Classify(res)
		}
		if err := printJSON(out); err != nil {
			return eris.Wrap(err, "print trigger result")
		}

		if runErr != nil {
			return eris.Wrap(runErr, "trigger")
		}
		if res.ExitCode != 0 {
			return eris.Errorf("trigger: remote command exited %d", res.ExitCode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(triggerCmd)
}
