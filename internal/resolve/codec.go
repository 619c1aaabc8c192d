package resolve

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// encodeEntry serializes e into the byte-slice format cache.Cache stores:
// an 8-byte big-endian Unix expiry timestamp followed by a
// newline-separated list of addresses.
func encodeEntry(e entry) (data []byte, err error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(e.expires.Unix()))

	strs := make([]string, len(e.addrs))
	for i, a := range e.addrs {
		strs[i] = a.String()
	}

	return append(buf, []byte(strings.Join(strs, "\n"))...), nil
}

// decodeEntry is the inverse of encodeEntry.
func decodeEntry(data []byte) (e entry, err error) {
	if len(data) < 8 {
		return entry{}, fmt.Errorf("resolve: short cache entry")
	}

	e.expires = time.Unix(int64(binary.BigEndian.Uint64(data[:8])), 0)

	rest := string(data[8:])
	if rest == "" {
		return e, nil
	}

	for _, s := range strings.Split(rest, "\n") {
		addr, pErr := netip.ParseAddr(s)
		if pErr != nil {
			continue
		}

		e.addrs = append(e.addrs, addr)
	}

	return e, nil
}
