package channels

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/google/renameio"
)

// Hosts-file bracket markers (spec.md §4.6).
const (
	hostsBeginMarker = "# BEGIN FOCUSD BLOCK"
	hostsEndMarker   = "# END FOCUSD BLOCK"
)

// HostsChannel owns a bracketed region within /etc/hosts, redirecting
// blocked hostnames to localhost and the null route (spec.md §4.6's Hosts
// channel).  Allowlist mode has no meaningful expression through
// /etc/hosts — a hosts file can only redirect specific names, not deny
// everything else — so when isAllowlist is true Apply writes no entries and
// removes any existing focusd region; the packet-filter channel carries
// allowlist enforcement.
type HostsChannel struct {
	mu   sync.Mutex
	path string
}

// NewHostsChannel returns a HostsChannel managing the bracketed region of
// path (typically "/etc/hosts").
func NewHostsChannel(path string) (h *HostsChannel) {
	return &HostsChannel{path: path}
}

// type check
var _ Channel = (*HostsChannel)(nil)

// Name implements the [Channel] interface for *HostsChannel.
func (h *HostsChannel) Name() (name string) {
	return "hosts"
}

// Apply implements the [Channel] interface for *HostsChannel.
func (h *HostsChannel) Apply(_ context.Context, entries []bundle.Entry, isAllowlist bool) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if isAllowlist {
		return h.rewrite(nil)
	}

	lines := make([]string, 0, 2*len(entries))
	for _, e := range entries {
		if e.IsApp() || e.MaskLen >= 0 {
			continue
		}

		lines = append(lines, fmt.Sprintf("127.0.0.1  %s", e.Hostname))
		lines = append(lines, fmt.Sprintf("0.0.0.0    %s", e.Hostname))
	}

	return h.rewrite(lines)
}

// Revert implements the [Channel] interface for *HostsChannel.
func (h *HostsChannel) Revert(_ context.Context) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.rewrite(nil)
}

// rewrite replaces the bracketed region with lines (or removes it entirely
// if lines is empty), leaving the rest of the file untouched, and writes
// the result atomically via rename-over.
func (h *HostsChannel) rewrite(lines []string) (err error) {
	existing, err := os.ReadFile(h.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("channels: reading %q: %w", h.path, err)
	}

	before, _, after := splitBracketedRegion(string(existing))

	var b strings.Builder
	b.WriteString(before)

	if len(lines) > 0 {
		if before != "" && !strings.HasSuffix(before, "\n") {
			b.WriteString("\n")
		}

		b.WriteString(hostsBeginMarker + "\n")
		for _, l := range lines {
			b.WriteString(l + "\n")
		}

		b.WriteString(hostsEndMarker + "\n")
	}

	b.WriteString(after)

	if err = renameio.WriteFile(h.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("channels: writing %q: %w", h.path, err)
	}

	return nil
}

// splitBracketedRegion splits content into the text before the focusd
// bracketed region, the region's own lines (rewrite ignores them;
// parseHostsFile reads them), and the text after the region.  If no
// region is present, all of content is "before" and "after" is empty.
func splitBracketedRegion(content string) (before, region, after string) {
	beginIdx := strings.Index(content, hostsBeginMarker)
	if beginIdx < 0 {
		return content, "", ""
	}

	endIdx := strings.Index(content[beginIdx:], hostsEndMarker)
	if endIdx < 0 {
		return content, "", ""
	}

	endIdx += beginIdx + len(hostsEndMarker)

	after = content[endIdx:]
	after = strings.TrimPrefix(after, "\n")

	return content[:beginIdx], content[beginIdx:endIdx], after
}

// parseHostsFile is a debugging helper that returns every hostname
// currently redirected within the bracketed region of path.
func parseHostsFile(path string) (hosts []string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	_, region, _ := splitBracketedRegion(string(data))

	scanner := bufio.NewScanner(strings.NewReader(region))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 {
			hosts = append(hosts, fields[1])
		}
	}

	return hosts, scanner.Err()
}
