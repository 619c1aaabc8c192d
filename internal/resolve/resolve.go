// Package resolve provides hostname-to-IP resolution for the packet-filter
// enforcement channel (spec.md §4.6), adapted from the teacher's
// internal/whois package: the same Interface/Empty/Default/cache.Cache
// shape, but querying a DNS upstream instead of a WHOIS server.
//
// Per spec.md's Open Questions, resolution happens once per channel
// apply and is not refreshed mid-block; callers that want fresher IPs
// re-resolve on their own next apply.
package resolve

import (
	"context"
	"net/netip"
	"time"

	"github.com/AdguardTeam/dnsproxy/upstream"
	"github.com/AdguardTeam/golibs/cache"
	"github.com/AdguardTeam/golibs/log"
	"github.com/miekg/dns"
)

// Interface resolves a hostname to its current IP addresses.
type Interface interface {
	// Resolve returns the IPv4 and IPv6 addresses currently associated with
	// host, or nil if none could be resolved.
	Resolve(ctx context.Context, host string) (addrs []netip.Addr)
}

// Empty is an [Interface] implementation that resolves nothing, used where
// a resolver is required but DNS lookups are undesired (e.g. unit tests).
type Empty struct{}

// type check
var _ Interface = Empty{}

// Resolve implements the [Interface] interface for Empty.
func (Empty) Resolve(_ context.Context, _ string) (addrs []netip.Addr) {
	return nil
}

// Config is the configuration structure for Default.
type Config struct {
	// UpstreamAddr is the address of the upstream DNS server, e.g.
	// "1.1.1.1:53" or "tls://dns.quad9.net".
	UpstreamAddr string

	// Timeout bounds a single upstream exchange.
	Timeout time.Duration

	// CacheTTL is how long a successful resolution is cached.
	CacheTTL time.Duration

	// CacheSize is the maximum number of cached hostnames.  Zero means
	// unlimited.
	CacheSize uint
}

// Default is the default DNS-backed hostname resolver.
type Default struct {
	up      upstream.Upstream
	results cache.Cache
	ttl     time.Duration
}

// entry is the cached resolution result for one hostname.
type entry struct {
	addrs   []netip.Addr
	expires time.Time
}

// New returns a new Default resolver dialing conf.UpstreamAddr.  conf must
// not be nil.
func New(conf *Config) (d *Default, err error) {
	up, err := upstream.AddressToUpstream(conf.UpstreamAddr, &upstream.Options{
		Timeout: conf.Timeout,
	})
	if err != nil {
		return nil, err
	}

	return &Default{
		up: up,
		results: cache.New(cache.Config{
			EnableLRU: true,
			MaxCount:  conf.CacheSize,
		}),
		ttl: conf.CacheTTL,
	}, nil
}

// type check
var _ Interface = (*Default)(nil)

// Resolve implements the [Interface] interface for *Default.
func (d *Default) Resolve(ctx context.Context, host string) (addrs []netip.Addr) {
	if cached, ok := d.cached(host); ok {
		return cached
	}

	fqdn := dns.Fqdn(host)

	var resolved []netip.Addr
	resolved = append(resolved, d.exchange(fqdn, dns.TypeA)...)
	resolved = append(resolved, d.exchange(fqdn, dns.TypeAAAA)...)

	d.store(host, resolved)

	return resolved
}

func (d *Default) exchange(fqdn string, qtype uint16) (addrs []netip.Addr) {
	req := &dns.Msg{}
	req.SetQuestion(fqdn, qtype)
	req.RecursionDesired = true

	resp, err := d.up.Exchange(req)
	if err != nil {
		log.Debug("resolve: querying %s %s: %s", fqdn, dns.TypeToString[qtype], err)

		return nil
	}

	for _, rr := range resp.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			if addr, ok := netip.AddrFromSlice(rec.A.To4()); ok {
				addrs = append(addrs, addr)
			}
		case *dns.AAAA:
			if addr, ok := netip.AddrFromSlice(rec.AAAA.To16()); ok {
				addrs = append(addrs, addr)
			}
		}
	}

	return addrs
}

func (d *Default) cached(host string) (addrs []netip.Addr, ok bool) {
	data := d.results.Get([]byte(host))
	if len(data) == 0 {
		return nil, false
	}

	e, decErr := decodeEntry(data)
	if decErr != nil || e.expires.Before(time.Now()) {
		return nil, false
	}

	return e.addrs, true
}

func (d *Default) store(host string, addrs []netip.Addr) {
	data, err := encodeEntry(entry{addrs: addrs, expires: time.Now().Add(d.ttl)})
	if err != nil {
		return
	}

	_ = d.results.Set([]byte(host), data)
}
