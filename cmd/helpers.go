package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feedsync-cli/internal/pipeline"
	"github.com/sells-group/feedsync-cli/internal/remote"
	"github.com/sells-group/feedsync-cli/internal/staging"
	"github.com/sells-group/feedsync-cli/internal/transfer"
)

// buildPipeline wires the driver from config. Each stage command goes
// through here so the workflow engine sees one consistent contract.
func buildPipeline() *pipeline.Pipeline {
	opts := transfer.Options{
		Host:     cfg.SFTP.Host,
		Port:     cfg.SFTP.Port,
		User:     cfg.SFTP.User,
		Password: cfg.SFTP.Password,
	}

	var dl transfer.Downloader = transfer.NewSFTPClient(opts)
	if cfg.Transport == "ftp" {
		dl = transfer.NewFTPClient(opts)
	}

	writer := staging.NewWriter(staging.Options{
		Dir:          cfg.Local.StagingDir,
		Prefix:       cfg.Feed.StagingPrefix,
		LookbackDays: cfg.Staging.LookbackDays,
		DeletePolicy: cfg.Staging.DeletePolicy,
		CreateDir:    cfg.Staging.CreateDir,
	})

	return pipeline.New(cfg, dl, transfer.NewSFTPClient(opts), buildTrigger(), writer)
}

func buildTrigger() *remote.Trigger {
	return remote.NewTrigger(remote.Options{
		Host:           cfg.SFTP.Host,
		Port:           cfg.SFTP.Port,
		User:           cfg.SFTP.User,
		Password:       cfg.SFTP.Password,
		TestCommand:    cfg.Remote.TestCommand,
		ImportCommand:  cfg.Remote.ImportCommand,
		CommandTimeout: time.Duration(cfg.Remote.CommandTimeoutSecs) * time.Second,
		PasswordPrompt: promptPassword,
	})
}

// promptPassword is the local interactive fallback for a missing
// configured password. It never runs on the remote side.
func promptPassword() (string, error) {
	fmt.Fprintf(os.Stderr, "password for %s@%s: ", cfg.SFTP.User, cfg.SFTP.Host)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", eris.Wrap(err, "read password")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// printJSON writes the stage result to stdout for the workflow engine.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
