//go:build darwin

package timerjob

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
)

// launchdLoader is the Loader implementation backed by launchd, grounded on
// the original SCScheduleLaunchdBridge's writeLaunchdPlist/loadJobWithLabel/
// unloadJobWithLabel trio.
type launchdLoader struct {
	agentsDir string
}

// NewLoader returns the Darwin launchd-backed Loader, writing job plists
// under agentsDir (typically ~/Library/LaunchAgents).
func NewLoader(agentsDir string) (l Loader) {
	return &launchdLoader{agentsDir: agentsDir}
}

func (l *launchdLoader) plistPath(label string) (path string) {
	return filepath.Join(l.agentsDir, label+".plist")
}

// Load implements the [Loader] interface for *launchdLoader.
func (l *launchdLoader) Load(label string, plistData []byte) (err error) {
	if err = os.MkdirAll(l.agentsDir, 0o755); err != nil {
		return fmt.Errorf("creating %q: %w", l.agentsDir, err)
	}

	path := l.plistPath(label)
	if err = renameio.WriteFile(path, plistData, 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}

	out, err := exec.Command("launchctl", "load", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("launchctl load: %w: %s", err, out)
	}

	return nil
}

// Unload implements the [Loader] interface for *launchdLoader.
func (l *launchdLoader) Unload(label string) (err error) {
	path := l.plistPath(label)

	// launchctl returns non-zero for an already-unloaded job; tolerate it
	// and proceed to remove the plist, matching the original
	// uninstallJobsForBundleID's best-effort semantics.
	_, _ = exec.Command("launchctl", "unload", path).CombinedOutput()

	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return fmt.Errorf("removing %q: %w", path, rmErr)
	}

	return nil
}

// Installed implements the [Loader] interface for *launchdLoader.
func (l *launchdLoader) Installed() (labels []string, err error) {
	entries, err := os.ReadDir(l.agentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading %q: %w", l.agentsDir, err)
	}

	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".plist")
		if HasPrefix(name) {
			labels = append(labels, name)
		}
	}

	return labels, nil
}
