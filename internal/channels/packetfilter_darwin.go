//go:build darwin

package channels

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/eyebeam/focusd/internal/resolve"
)

// pfAnchor is the named pf(4) anchor focusd loads its rules into, mirroring
// the original macOS implementation's use of a dedicated anchor so focusd
// never touches the system's own pf.conf rules directly (see
// original_source's SCBlockPacketFilter design).
const pfAnchor = pfAnchorName

// PacketFilterChannel enforces at the IP layer via a dedicated pf anchor,
// loaded and flushed with pfctl (spec.md §4.6's Packet-filter channel).
type PacketFilterChannel struct {
	mu        sync.Mutex
	resolver  resolve.Interface
	installed bool
}

// NewPacketFilterChannel returns a PacketFilterChannel that resolves
// hostnames through resolver.
func NewPacketFilterChannel(resolver resolve.Interface) (p *PacketFilterChannel) {
	if resolver == nil {
		resolver = resolve.Empty{}
	}

	return &PacketFilterChannel{resolver: resolver}
}

// type check
var _ Channel = (*PacketFilterChannel)(nil)

// Name implements the [Channel] interface for *PacketFilterChannel.
func (p *PacketFilterChannel) Name() (name string) {
	return "packet-filter"
}

// Apply implements the [Channel] interface for *PacketFilterChannel.
func (p *PacketFilterChannel) Apply(ctx context.Context, entries []bundle.Entry, isAllowlist bool) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	targets := resolveEntries(ctx, p.resolver, entries)

	var rules strings.Builder
	for _, t := range targets {
		verb := "block drop out"
		if isAllowlist {
			verb = "pass out"
		}

		if t.Port > 0 {
			fmt.Fprintf(&rules, "%s quick proto tcp from any to %s port %d\n", verb, t.Prefix, t.Port)
			fmt.Fprintf(&rules, "%s quick proto udp from any to %s port %d\n", verb, t.Prefix, t.Port)

			continue
		}

		fmt.Fprintf(&rules, "%s quick from any to %s\n", verb, t.Prefix)
	}

	if isAllowlist {
		rules.WriteString("block drop out quick from any to any\n")
	}

	cmd := exec.CommandContext(ctx, "pfctl", "-a", pfAnchor, "-f", "-")
	cmd.Stdin = strings.NewReader(rules.String())

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err = cmd.Run(); err != nil {
		return fmt.Errorf("channels: loading pf anchor %s: %w: %s", pfAnchor, err, stderr.String())
	}

	if err = exec.CommandContext(ctx, "pfctl", "-a", pfAnchor, "-E").Run(); err != nil {
		return fmt.Errorf("channels: enabling pf anchor %s: %w", pfAnchor, err)
	}

	p.installed = true

	return nil
}

// Revert implements the [Channel] interface for *PacketFilterChannel.
func (p *PacketFilterChannel) Revert(ctx context.Context) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.installed {
		return nil
	}

	cmd := exec.CommandContext(ctx, "pfctl", "-a", pfAnchor, "-F", "all")
	if err = cmd.Run(); err != nil {
		return fmt.Errorf("channels: flushing pf anchor %s: %w", pfAnchor, err)
	}

	p.installed = false

	return nil
}
