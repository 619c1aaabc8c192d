// Package config loads the small YAML configuration files the agent and
// daemon binaries each take (SPEC_FULL.md's EXPANSION under §6).  The daemon
// file sets the socket, bbolt, hosts and log paths, the controlling UID, and
// the debug-build flag; the agent file sets the store, socket, CLI and log
// paths and the reconcile-debounce and commitment-cleanup intervals.  The
// Load functions start from the Default*Config values and unmarshal the
// file over them, so fields the file omits keep their defaults.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DaemonConfig is the privileged daemon's configuration.
type DaemonConfig struct {
	// SocketPath is the Unix domain socket the IPC server listens on.
	SocketPath string `yaml:"socket_path"`

	// BoltPath is the bbolt database path for root-scoped state.
	BoltPath string `yaml:"bolt_path"`

	// ControllingUID is the UID the IPC server accepts connections from.
	ControllingUID uint32 `yaml:"controlling_uid"`

	// HostsPath is the hosts file the HostsChannel manages.
	HostsPath string `yaml:"hosts_path"`

	// LogPath is the lumberjack-rotated log file; empty means stderr.
	LogPath string `yaml:"log_path"`

	// DebugBuild gates clear_block_for_debug (spec.md §4.8).
	DebugBuild bool `yaml:"debug_build"`
}

// AgentConfig is the unprivileged agent's configuration.
type AgentConfig struct {
	// StorePath is the agent-owned YAML schedule store path.
	StorePath string `yaml:"store_path"`

	// SocketPath is the daemon's IPC socket, as seen by the agent.
	SocketPath string `yaml:"socket_path"`

	// CLIPath is the focusctl binary path used in timer job descriptors.
	CLIPath string `yaml:"cli_path"`

	// ReconcileDebounce is how long the agent waits after a DidChange
	// event before re-running the window materializer and timer-job
	// reconciler.
	ReconcileDebounce time.Duration `yaml:"reconcile_debounce"`

	// CommitmentCleanupInterval is how often the agent runs
	// store.CleanupExpired.
	CommitmentCleanupInterval time.Duration `yaml:"commitment_cleanup_interval"`

	// LogPath is the log file; empty means stderr.
	LogPath string `yaml:"log_path"`
}

// DefaultDaemonConfig returns the built-in defaults, used when no config
// file is present.
func DefaultDaemonConfig() (c DaemonConfig) {
	return DaemonConfig{
		SocketPath:     "/var/run/focusd/daemon.sock",
		BoltPath:       "/var/lib/focusd/daemon.db",
		ControllingUID: 0,
		HostsPath:      "/etc/hosts",
		DebugBuild:     false,
	}
}

// DefaultAgentConfig returns the built-in defaults, used when no config
// file is present.
func DefaultAgentConfig() (c AgentConfig) {
	return AgentConfig{
		StorePath:                 "focusd-store.yaml",
		SocketPath:                "/var/run/focusd/daemon.sock",
		CLIPath:                   "focusctl",
		ReconcileDebounce:         2 * time.Second,
		CommitmentCleanupInterval: time.Hour,
	}
}

// LoadDaemonConfig reads path and merges it over [DefaultDaemonConfig]; a
// missing file is not an error — the defaults are used as-is.
func LoadDaemonConfig(path string) (c DaemonConfig, err error) {
	c = DefaultDaemonConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	} else if err != nil {
		return c, err
	}

	if err = yaml.Unmarshal(data, &c); err != nil {
		return DaemonConfig{}, err
	}

	return c, nil
}

// LoadAgentConfig reads path and merges it over [DefaultAgentConfig]; a
// missing file is not an error — the defaults are used as-is.
func LoadAgentConfig(path string) (c AgentConfig, err error) {
	c = DefaultAgentConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	} else if err != nil {
		return c, err
	}

	if err = yaml.Unmarshal(data, &c); err != nil {
		return AgentConfig{}, err
	}

	return c, nil
}
