// Command focusctl is the command-line surface of focusd (spec.md §6): a
// thin wrapper over internal/cli.Run, invoked interactively by a user or
// as the program-arguments payload of an installed timer job
// (internal/timerjob.NewJob).
package main

import (
	"context"
	"os"

	"github.com/eyebeam/focusd/internal/cli"
	"github.com/eyebeam/focusd/internal/config"
	"github.com/eyebeam/focusd/internal/ipc"
)

// confPathEnv names the environment variable focusctl reads its config path
// from, for the socket path it dials — the same file focusd-agent uses.
const confPathEnv = "FOCUSD_AGENT_CONFIG"

func main() {
	confPath := os.Getenv(confPathEnv)
	if confPath == "" {
		confPath = os.ExpandEnv("$HOME/.config/focusd/agent.yaml")
	}

	conf, err := config.LoadAgentConfig(confPath)
	if err != nil {
		os.Exit(cli.ExitGenericFailure)
	}

	client := ipc.NewClient(conf.SocketPath)

	os.Exit(cli.Run(context.Background(), client, os.Args[1:], os.Stderr))
}
