// Package bundle implements BlockBundle and Entry, the named groups of
// blocked websites and apps spec.md §3 describes, along with the plain-text
// blocklist file format from spec.md §6.
package bundle

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/urlfilter/rules"
	"golang.org/x/net/idna"
)

// ErrInvalidEntry is returned for malformed blocklist lines or Entry
// constructor arguments (spec.md §7, ValidationError).
const ErrInvalidEntry errors.Error = "bundle: invalid entry"

// appPrefix is the blocklist-file prefix marking an app entry, spec.md §6.
const appPrefix = "app:"

// Kind distinguishes the two entry shapes spec.md §3 allows.
type Kind int

// Entry kinds.
const (
	KindWebsite Kind = iota
	KindApp
)

// String implements the [fmt.Stringer] interface for Kind.
func (k Kind) String() (s string) {
	if k == KindApp {
		return "app"
	}

	return "website"
}

// Entry is one blocked item: a website (hostname, optionally with a port and
// a CIDR mask length) or an app (a stable bundle identifier), per spec.md
// §3's Entry union.
type Entry struct {
	Hostname    string
	AppBundleID string
	Kind        Kind
	Port        int
	// MaskLen is the CIDR prefix length, or -1 if Hostname isn't a network.
	MaskLen int
}

// NewWebsiteEntry builds a website Entry, normalizing hostname to lower-case
// IDNA (spec §3's EXPANSION note).  port 0 means "any port"; maskLen -1
// means Hostname isn't a CIDR network.
func NewWebsiteEntry(hostname string, port, maskLen int) (e Entry, err error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return Entry{}, fmt.Errorf("%w: empty hostname", ErrInvalidEntry)
	}

	norm, err := normalizeHostname(hostname)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: hostname %q: %s", ErrInvalidEntry, hostname, err)
	}

	if port < 0 || port > 65535 {
		return Entry{}, fmt.Errorf("%w: port %d out of range", ErrInvalidEntry, port)
	}

	if maskLen < -1 || maskLen > 128 {
		return Entry{}, fmt.Errorf("%w: mask length %d out of range", ErrInvalidEntry, maskLen)
	}

	return Entry{Kind: KindWebsite, Hostname: norm, Port: port, MaskLen: maskLen}, nil
}

// NewAppEntry builds an app Entry for the given reverse-DNS-style bundle
// identifier.
func NewAppEntry(appBundleID string) (e Entry, err error) {
	appBundleID = strings.TrimSpace(appBundleID)
	if appBundleID == "" {
		return Entry{}, fmt.Errorf("%w: empty app bundle id", ErrInvalidEntry)
	}

	return Entry{Kind: KindApp, AppBundleID: appBundleID, MaskLen: -1}, nil
}

// normalizeHostname lower-cases and IDNA-normalizes host, leaving literal
// IPs and CIDR text (and wildcard patterns like "*.example.com") untouched
// apart from case-folding, since idna.Lookup rejects both.
func normalizeHostname(host string) (norm string, err error) {
	lower := strings.ToLower(host)
	if strings.ContainsAny(lower, "*/") || looksLikeIP(lower) {
		return lower, nil
	}

	norm, err = idna.Lookup.ToASCII(lower)
	if err != nil {
		// Not every valid blocklist hostname is a strict IDNA label (e.g.
		// bare single-label hosts); fall back to the lower-cased form
		// rather than rejecting it.
		return lower, nil //nolint:nilerr
	}

	return norm, nil
}

func looksLikeIP(s string) (ok bool) {
	return strings.Count(s, ".") >= 3 || strings.Contains(s, ":")
}

// IsApp reports whether e is an App entry.
func (e Entry) IsApp() (ok bool) {
	return e.Kind == KindApp
}

// Key returns the value blocklist entries dedup and sort on: kind then text
// (spec.md §6).
func (e Entry) Key() (kind Kind, text string) {
	return e.Kind, e.String()
}

// String renders e in the plain-text blocklist format (spec.md §6).
func (e Entry) String() (s string) {
	if e.Kind == KindApp {
		return appPrefix + e.AppBundleID
	}

	host := e.Hostname
	if e.MaskLen >= 0 {
		host = fmt.Sprintf("%s/%d", host, e.MaskLen)
	}

	if e.Port != 0 {
		host = fmt.Sprintf("%s:%d", host, e.Port)
	}

	return host
}

// ValidateRule reports whether e's hostname parses as a urlfilter network
// rule, catching malformed wildcard patterns before they reach the
// enforcement channels.  It is a no-op (always nil) for app entries.
func (e Entry) ValidateRule() (err error) {
	if e.Kind == KindApp {
		return nil
	}

	text := "||" + e.Hostname + "^"
	_, err = rules.NewNetworkRule(text, 0)
	if err != nil {
		return fmt.Errorf("%w: %q: %s", ErrInvalidEntry, e.Hostname, err)
	}

	return nil
}

// ParseEntry parses one blocklist-file line (spec.md §6): a bare hostname,
// "hostname:port", "IP", "IP/mask", or "app:<bundle-identifier>".
func ParseEntry(line string) (e Entry, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Entry{}, fmt.Errorf("%w: blank or comment line", ErrInvalidEntry)
	}

	if rest, ok := strings.CutPrefix(line, appPrefix); ok {
		return NewAppEntry(rest)
	}

	host, maskLen := splitMask(line)
	host, port, err := splitPort(host)
	if err != nil {
		return Entry{}, err
	}

	return NewWebsiteEntry(host, port, maskLen)
}

func splitMask(s string) (host string, maskLen int) {
	before, after, found := strings.Cut(s, "/")
	if !found {
		return s, -1
	}

	n, err := strconv.Atoi(after)
	if err != nil {
		return s, -1
	}

	return before, n
}

func splitPort(s string) (host string, port int, err error) {
	// Don't split IPv6 literals or bare IPv6 on ':' as host:port.
	if strings.Count(s, ":") != 1 {
		return s, 0, nil
	}

	before, after, _ := strings.Cut(s, ":")
	p, convErr := strconv.Atoi(after)
	if convErr != nil {
		return "", 0, fmt.Errorf("%w: bad port in %q", ErrInvalidEntry, s)
	}

	return before, p, nil
}

// ParseBlocklist reads a plain-text blocklist file (spec.md §6): one entry
// per line, blank and "#"-prefixed lines ignored, duplicates deduplicated
// after normalization.
func ParseBlocklist(r io.Reader) (entries []Entry, err error) {
	scanner := bufio.NewScanner(r)
	seen := map[string]bool{}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		e, pErr := ParseEntry(line)
		if pErr != nil {
			return nil, fmt.Errorf("line %q: %w", line, pErr)
		}

		k := e.String()
		if seen[k] {
			continue
		}

		seen[k] = true
		entries = append(entries, e)
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading blocklist: %w", err)
	}

	SortEntries(entries)

	return entries, nil
}

// WriteBlocklist writes entries to w in the plain-text blocklist format,
// sorted and deduplicated (spec.md §6).
func WriteBlocklist(w io.Writer, entries []Entry) (err error) {
	sorted := DedupEntries(entries)

	bw := bufio.NewWriter(w)
	for _, e := range sorted {
		if _, err = fmt.Fprintln(bw, e.String()); err != nil {
			return fmt.Errorf("writing blocklist: %w", err)
		}
	}

	return bw.Flush()
}

// SortEntries sorts entries by kind then text, in place (spec.md §6).
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		ki, ti := entries[i].Key()
		kj, tj := entries[j].Key()
		if ki != kj {
			return ki < kj
		}

		return ti < tj
	})
}

// DedupEntries returns entries deduplicated by their normalized text, sorted
// by kind then text.  It does not mutate entries.
func DedupEntries(entries []Entry) (deduped []Entry) {
	seen := map[string]bool{}
	for _, e := range entries {
		k := e.String()
		if seen[k] {
			continue
		}

		seen[k] = true
		deduped = append(deduped, e)
	}

	SortEntries(deduped)

	return deduped
}
