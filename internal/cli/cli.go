// Package cli implements the focusctl command-line surface (spec.md §6): a
// thin argument parser over [ipc.Client], shared between the interactive
// binary and the program-arguments timer jobs install (spec.md §4.5).
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/eyebeam/focusd/internal/ipc"
)

// Exit codes (spec.md §6).
const (
	ExitSuccess                = 0
	ExitGenericFailure         = 1
	ExitNotAuthorized          = 2
	ExitNotFound               = 3
	ExitAlreadyRunningIncompat = 4
)

// Run dispatches args[0] (the subcommand) to its handler and returns the
// process exit code (spec.md §6). stderr receives human-readable error
// output.
func Run(ctx context.Context, client *ipc.Client, args []string, stderr io.Writer) (code int) {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: focusctl <start|start-scheduled|stop-test|status> ...")

		return ExitGenericFailure
	}

	switch args[0] {
	case "start":
		return runStart(ctx, client, args[1:], stderr)
	case "start-scheduled":
		return runStartScheduled(ctx, client, args[1:], stderr)
	case "stop-test":
		return runStopTest(ctx, client, stderr)
	case "status":
		return runStatus(ctx, client, stderr)
	default:
		fmt.Fprintf(stderr, "unknown subcommand %q\n", args[0])

		return ExitGenericFailure
	}
}

// tokenEnvVar holds the authorization token focusctl attaches to
// authenticated requests (spec.md §4.8), obtained ahead of time from the
// host's privileged-helper authorization service and handed to the CLI
// process by whatever invoked it (the agent, or a user already granted the
// right interactively).
const tokenEnvVar = "FOCUSD_AUTH_TOKEN"

// runStart implements `start <selfcontrol-file> <end-iso>`: it parses the
// plain-text blocklist file (spec.md §6) and calls start_block.
func runStart(ctx context.Context, client *ipc.Client, args []string, stderr io.Writer) (code int) {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "usage: focusctl start <selfcontrol-file> <end-iso>")

		return ExitGenericFailure
	}

	entries, err := readBlocklist(args[0])
	if err != nil {
		fmt.Fprintln(stderr, err)

		return ExitGenericFailure
	}

	end, err := time.Parse(time.RFC3339, args[1])
	if err != nil {
		fmt.Fprintln(stderr, "invalid end-iso:", err)

		return ExitGenericFailure
	}

	err = client.StartBlock(ctx, ipc.StartBlockRequest{
		Token:     os.Getenv(tokenEnvVar),
		Blocklist: entries,
		EndDate:   end,
	})

	return codeFor(err, stderr)
}

func runStartScheduled(ctx context.Context, client *ipc.Client, args []string, stderr io.Writer) (code int) {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "usage: focusctl start-scheduled <segment_id> <end-iso>")

		return ExitGenericFailure
	}

	end, err := time.Parse(time.RFC3339, args[1])
	if err != nil {
		fmt.Fprintln(stderr, "invalid end-iso:", err)

		return ExitGenericFailure
	}

	err = client.StartScheduledBlock(ctx, ipc.StartScheduledBlockRequest{
		ID:      args[0],
		EndDate: end,
	})

	return codeFor(err, stderr)
}

func runStopTest(ctx context.Context, client *ipc.Client, stderr io.Writer) (code int) {
	return codeFor(client.StopTestBlock(ctx), stderr)
}

func runStatus(ctx context.Context, client *ipc.Client, stderr io.Writer) (code int) {
	status, err := client.Status(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)

		return ExitGenericFailure
	}

	if !status.State.IsRunning {
		fmt.Println("idle")

		return ExitSuccess
	}

	fmt.Printf("active until %s (%d entries, allowlist=%v, test=%v)\n",
		status.State.EndDate.Format(time.RFC3339),
		len(status.State.Blocklist),
		status.State.IsAllowlist,
		status.State.IsTest,
	)

	return ExitSuccess
}

func readBlocklist(path string) (entries []bundle.Entry, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return bundle.ParseBlocklist(f)
}

// codeFor maps an ipc error to the exit code table in spec.md §6. The IPC
// layer surfaces errors as plain strings over HTTP, so this is a best-effort
// classification by substring rather than errors.Is — the richer error
// kinds of spec.md §7 live server-side and are already enforced there.
func codeFor(err error, stderr io.Writer) (code int) {
	if err == nil {
		return ExitSuccess
	}

	fmt.Fprintln(stderr, err)

	msg := err.Error()
	switch {
	case strings.Contains(msg, "authorization denied"):
		return ExitNotAuthorized
	case strings.Contains(msg, "not found"), strings.Contains(msg, "no approved schedule"):
		return ExitNotFound
	case strings.Contains(msg, "already active"):
		return ExitAlreadyRunningIncompat
	default:
		return ExitGenericFailure
	}
}
