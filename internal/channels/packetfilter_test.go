package channels

import (
	"context"
	"net/netip"
	"testing"

	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string][]netip.Addr

func (f fakeResolver) Resolve(_ context.Context, host string) (addrs []netip.Addr) {
	return f[host]
}

func TestResolveEntries(t *testing.T) {
	ipEntry, err := bundle.NewWebsiteEntry("203.0.113.5", 0, -1)
	require.NoError(t, err)

	cidrEntry, err := bundle.NewWebsiteEntry("203.0.113.0", 0, 24)
	require.NoError(t, err)

	hostEntry, err := bundle.NewWebsiteEntry("example.com", 443, -1)
	require.NoError(t, err)

	appEntry, err := bundle.NewAppEntry("com.example.app")
	require.NoError(t, err)

	resolver := fakeResolver{
		"example.com": {netip.MustParseAddr("198.51.100.7")},
	}

	targets := resolveEntries(context.Background(), resolver, []bundle.Entry{ipEntry, cidrEntry, hostEntry, appEntry})

	require.Len(t, targets, 3)
	assert.Equal(t, netip.MustParsePrefix("203.0.113.5/32"), targets[0].Prefix)
	assert.Equal(t, netip.MustParsePrefix("203.0.113.0/24"), targets[1].Prefix)
	assert.Equal(t, netip.MustParsePrefix("198.51.100.7/32"), targets[2].Prefix)
	assert.Equal(t, 443, targets[2].Port)
}
