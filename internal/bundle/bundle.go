package bundle

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/uuid"
)

// ErrInvalidBundle is returned when a Bundle fails validation (spec.md §3,
// §7's ValidationError).
const ErrInvalidBundle errors.Error = "bundle: invalid bundle"

// Preset colors, matching the palette in SCBlockBundle.h's swatch list; the
// spec leaves color choice to the UI layer, so focusd only fixes the named
// set new bundles can be created with.
const (
	ColorRed    = "red"
	ColorOrange = "orange"
	ColorYellow = "yellow"
	ColorGreen  = "green"
	ColorBlue   = "blue"
	ColorPurple = "purple"
	ColorGray   = "gray"
)

// Bundle is a named, colored, ordered group of blocked websites and apps
// (spec.md §3's BlockBundle).
type Bundle struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	Color        string  `yaml:"color"`
	Entries      []Entry `yaml:"entries"`
	DisplayOrder int     `yaml:"display_order"`
	Enabled      bool    `yaml:"enabled"`
}

// New returns a new, enabled Bundle with a freshly generated ID.
func New(name, color string, displayOrder int) (b *Bundle) {
	return &Bundle{
		ID:           uuid.NewString(),
		Name:         name,
		Color:        color,
		DisplayOrder: displayOrder,
		Enabled:      true,
	}
}

// Validate checks b against spec.md §3's bundle validity rules: non-empty
// name, at least one entry, and each entry individually valid.
func (b *Bundle) Validate() (err error) {
	if b.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidBundle)
	}

	if b.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidBundle)
	}

	if len(b.Entries) == 0 {
		return fmt.Errorf("%w: bundle %q has no entries", ErrInvalidBundle, b.Name)
	}

	for _, e := range b.Entries {
		if vErr := e.ValidateRule(); vErr != nil {
			return fmt.Errorf("%w: bundle %q: %w", ErrInvalidBundle, b.Name, vErr)
		}
	}

	return nil
}

// AddEntry appends e to b's entry list if it isn't already present,
// re-sorting the list (spec.md §6).
func (b *Bundle) AddEntry(e Entry) {
	for _, existing := range b.Entries {
		if existing.String() == e.String() {
			return
		}
	}

	b.Entries = append(b.Entries, e)
	SortEntries(b.Entries)
}

// RemoveEntry removes any entry equal to e from b's entry list.
func (b *Bundle) RemoveEntry(e Entry) {
	kept := b.Entries[:0]
	for _, existing := range b.Entries {
		if existing.String() != e.String() {
			kept = append(kept, existing)
		}
	}

	b.Entries = kept
}

// WebsiteEntries returns the subset of b's entries that are websites.
func (b *Bundle) WebsiteEntries() (entries []Entry) {
	for _, e := range b.Entries {
		if !e.IsApp() {
			entries = append(entries, e)
		}
	}

	return entries
}

// AppEntries returns the subset of b's entries that are apps.
func (b *Bundle) AppEntries() (entries []Entry) {
	for _, e := range b.Entries {
		if e.IsApp() {
			entries = append(entries, e)
		}
	}

	return entries
}

// presetSpec describes one built-in starter bundle a fresh install offers,
// adapted from SCBlockBundle.h's factory presets (spec.md §3 EXPANSION:
// preset bundles).
type presetSpec struct {
	name    string
	color   string
	hosts   []string
	appIDs  []string
	order   int
}

// Presets returns the built-in starter bundles a fresh focusd install seeds
// its bundle store with.  Callers should still call Validate on the result
// since presets still require at least one entry.
func Presets() (bundles []*Bundle) {
	specs := []presetSpec{
		{
			name:  "Social Media",
			color: ColorBlue,
			hosts: []string{
				"facebook.com", "instagram.com", "twitter.com", "x.com",
				"tiktok.com", "reddit.com", "snapchat.com",
			},
			order: 0,
		},
		{
			name:  "Video & Streaming",
			color: ColorRed,
			hosts: []string{
				"youtube.com", "netflix.com", "hulu.com", "twitch.tv",
			},
			order: 1,
		},
		{
			name:   "Games",
			color:  ColorPurple,
			hosts:  []string{"steampowered.com", "epicgames.com"},
			appIDs: []string{"com.valvesoftware.steam"},
			order:  2,
		},
	}

	for _, spec := range specs {
		b := New(spec.name, spec.color, spec.order)
		for _, h := range spec.hosts {
			e, err := NewWebsiteEntry(h, 0, -1)
			if err == nil {
				b.Entries = append(b.Entries, e)
			}
		}

		for _, id := range spec.appIDs {
			e, err := NewAppEntry(id)
			if err == nil {
				b.Entries = append(b.Entries, e)
			}
		}

		SortEntries(b.Entries)
		bundles = append(bundles, b)
	}

	return bundles
}
