package resolve

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryCodec_RoundTrip(t *testing.T) {
	want := entry{
		addrs: []netip.Addr{
			netip.MustParseAddr("93.184.216.34"),
			netip.MustParseAddr("2606:2800:220:1:248:1893:25c8:1946"),
		},
		expires: time.Unix(1735000000, 0),
	}

	data, err := encodeEntry(want)
	require.NoError(t, err)

	got, err := decodeEntry(data)
	require.NoError(t, err)

	assert.True(t, want.expires.Equal(got.expires))
	assert.Equal(t, want.addrs, got.addrs)
}

func TestEntryCodec_Empty(t *testing.T) {
	data, err := encodeEntry(entry{expires: time.Unix(0, 0)})
	require.NoError(t, err)

	got, err := decodeEntry(data)
	require.NoError(t, err)
	assert.Empty(t, got.addrs)
}
