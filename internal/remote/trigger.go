// Package remote runs the vendor-side import script over SSH using
// the test-then-run protocol.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// ExitDidNotRun is the sentinel exit code for a command that never
// executed (connect failure, session failure, timeout). It is distinct
// from any genuine remote exit code.
const ExitDidNotRun = -1

// CommandResult captures one remote command invocation.
type CommandResult struct {
	Command  string `json:"command"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	// TestRun is true when the result belongs to the test command,
	// i.e. the main import never ran.
	TestRun bool `json:"test_run"`
}

// Options configures the trigger.
type Options struct {
	Host           string
	Port           int
	User           string
	Password       string
	TestCommand    string
	ImportCommand  string
	ConnectTimeout time.Duration // default 30s
	CommandTimeout time.Duration // default 5m

	// PasswordPrompt is the local fallback used only when Password is
	// empty, e.g. an interactive terminal read.
	PasswordPrompt func() (string, error)
}

// Trigger executes the remote import.
type Trigger struct {
	opts Options
}

// NewTrigger creates a Trigger with the given options.
func NewTrigger(opts Options) *Trigger {
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.CommandTimeout == 0 {
		opts.CommandTimeout = 5 * time.Minute
	}
	return &Trigger{opts: opts}
}

// RunImport executes the test command and, only if it exits zero, the
// main import command. The returned result is the last command that
// ran. Connect or session failures never panic or propagate raw: they
// come back as a result with ExitDidNotRun and the error message in
// stderr, plus a non-nil error for the caller's log. The connection is
// closed on every exit path.
func (t *Trigger) RunImport(ctx context.Context) (*CommandResult, error) {
	log := zap.L().With(zap.String("component", "remote.trigger"))

	password := t.opts.Password
	if password == "" && t.opts.PasswordPrompt != nil {
		p, err := t.opts.PasswordPrompt()
		if err != nil {
			return didNotRun(t.opts.TestCommand, err), eris.Wrap(err, "trigger: read password")
		}
		password = p
	}

	addr := net.JoinHostPort(t.opts.Host, fmt.Sprintf("%d", t.opts.Port))
	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            t.opts.User,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // vendor box has no published host key
		Timeout:         t.opts.ConnectTimeout,
	})
	if err != nil {
		return didNotRun(t.opts.TestCommand, err), eris.Wrapf(err, "trigger: connect %s", addr)
	}
	defer client.Close() //nolint:errcheck

	// Test run first. A non-zero exit aborts: the main import never runs.
	test, err := t.runCommand(ctx, client, t.opts.TestCommand)
	if err != nil {
		return test, err
	}
	test.TestRun = true
	if test.ExitCode != 0 {
		log.Warn("trigger: test command failed, aborting import",
			zap.String("command", t.opts.TestCommand),
			zap.Int("exit_code", test.ExitCode),
		)
		return test, nil
	}
	log.Info("trigger: test command passed", zap.String("command", t.opts.TestCommand))

	main, err := t.runCommand(ctx, client, t.opts.ImportCommand)
	if err != nil {
		return main, err
	}
	log.Info("trigger: import command finished",
		zap.String("command", t.opts.ImportCommand),
		zap.Int("exit_code", main.ExitCode),
	)
	return main, nil
}

// runCommand executes one command in a fresh session, bounded by the
// command timeout.
func (t *Trigger) runCommand(ctx context.Context, client *ssh.Client, cmd string) (*CommandResult, error) {
	session, err := client.NewSession()
	if err != nil {
		return didNotRun(cmd, err), eris.Wrap(err, "trigger: open session")
	}
	defer session.Close() //nolint:errcheck

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case err = <-done:
	case <-time.After(t.opts.CommandTimeout):
		session.Close() //nolint:errcheck
		timeoutErr := eris.Errorf("trigger: command timed out after %s", t.opts.CommandTimeout)
		return &CommandResult{
			Command:  cmd,
			Stderr:   timeoutErr.Error(),
			ExitCode: ExitDidNotRun,
		}, timeoutErr
	case <-ctx.Done():
		session.Close() //nolint:errcheck
		return didNotRun(cmd, ctx.Err()), eris.Wrap(ctx.Err(), "trigger: cancelled")
	}

	res := &CommandResult{
		Command: cmd,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			// Genuine non-zero remote exit: protocol worked, command failed.
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		// Session died without an exit status.
		res.ExitCode = ExitDidNotRun
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
		return res, eris.Wrapf(err, "trigger: run %q", cmd)
	}

	return res, nil
}

func didNotRun(cmd string, err error) *CommandResult {
	return &CommandResult{
		Command:  cmd,
		Stderr:   err.Error(),
		ExitCode: ExitDidNotRun,
	}
}
