package channels

import (
	"context"
	"net/netip"
	"strconv"

	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/eyebeam/focusd/internal/resolve"
)

// pfAnchorName is the named firewall rule set / anchor focusd owns (spec.md
// §4.6's Packet-filter channel).
const pfAnchorName = "focusd"

// resolveEntries expands website entries to concrete IP/CIDR targets:
// literal IPs and CIDRs pass through unchanged, hostnames are resolved via
// resolver (once, at apply time — see the Open Questions in spec.md §9),
// and app entries are dropped since the packet filter only sees network
// traffic.
func resolveEntries(
	ctx context.Context,
	resolver resolve.Interface,
	entries []bundle.Entry,
) (targets []pfTarget) {
	for _, e := range entries {
		if e.IsApp() {
			continue
		}

		if e.MaskLen >= 0 {
			if prefix, err := netip.ParsePrefix(e.Hostname + "/" + strconv.Itoa(e.MaskLen)); err == nil {
				targets = append(targets, pfTarget{Prefix: prefix, Port: e.Port})

				continue
			}
		}

		if addr, err := netip.ParseAddr(e.Hostname); err == nil {
			targets = append(targets, pfTarget{Prefix: netip.PrefixFrom(addr, addr.BitLen()), Port: e.Port})

			continue
		}

		for _, addr := range resolver.Resolve(ctx, e.Hostname) {
			targets = append(targets, pfTarget{Prefix: netip.PrefixFrom(addr, addr.BitLen()), Port: e.Port})
		}
	}

	return targets
}

// pfTarget is one resolved packet-filter rule target.
type pfTarget struct {
	Prefix netip.Prefix
	Port   int
}
