package store

import (
	"fmt"
	"sort"

	"github.com/eyebeam/focusd/internal/bundle"
)

// Bundles returns a snapshot of all stored bundles, ordered by
// DisplayOrder.
func (s *Store) Bundles() (bundles []*bundle.Bundle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bundles = make([]*bundle.Bundle, len(s.data.Bundles))
	copy(bundles, s.data.Bundles)
	sort.SliceStable(bundles, func(i, j int) bool {
		return bundles[i].DisplayOrder < bundles[j].DisplayOrder
	})

	return bundles
}

// Bundle returns the bundle with the given id.
func (s *Store) Bundle(id string) (b *bundle.Bundle, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.Bundles {
		if existing.ID == id {
			return existing, nil
		}
	}

	return nil, fmt.Errorf("bundle %q: %w", id, ErrNotFound)
}

// AddBundle validates and appends b, spec.md §4.2's add_bundle operation.
func (s *Store) AddBundle(b *bundle.Bundle) (err error) {
	if err = b.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.Bundles {
		if existing.ID == b.ID {
			return fmt.Errorf("bundle %q: already exists", b.ID)
		}
	}

	s.data.Bundles = append(s.data.Bundles, b)

	return s.save()
}

// RemoveBundle deletes the bundle with the given id, along with its stored
// schedules.  Per spec.md §4.3, callers enforcing commitments must reject
// this operation themselves when the bundle's week is committed; this
// method performs the unconditional storage-layer removal.
func (s *Store) RemoveBundle(id string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.data.Bundles[:0]
	found := false
	for _, existing := range s.data.Bundles {
		if existing.ID == id {
			found = true

			continue
		}

		kept = append(kept, existing)
	}

	if !found {
		return fmt.Errorf("bundle %q: %w", id, ErrNotFound)
	}

	s.data.Bundles = kept

	for key := range s.data.Schedules {
		if suffixBundleID(key) == id {
			delete(s.data.Schedules, key)
		}
	}

	return s.save()
}

// UpdateBundle replaces the stored bundle matching b.ID with b after
// validating it.
func (s *Store) UpdateBundle(b *bundle.Bundle) (err error) {
	if err = b.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.data.Bundles {
		if existing.ID == b.ID {
			s.data.Bundles[i] = b

			return s.save()
		}
	}

	return fmt.Errorf("bundle %q: %w", b.ID, ErrNotFound)
}

// suffixBundleID extracts the bundle id portion of a "week_key.bundle_id"
// schedule map key.  Bundle ids (UUIDs) never contain '.', so the last
// segment after the first '.' — which is itself inside the fixed-width
// week_key — is unambiguous.
func suffixBundleID(key string) (id string) {
	// week_key is always "YYYY-MM-DD" (10 bytes) followed by '.'.
	const weekKeyLen = 10
	if len(key) <= weekKeyLen+1 {
		return ""
	}

	return key[weekKeyLen+1:]
}
