// Package index builds the relationship index over claims and their
// claimants' shared-resource keys.
//
// The index is derived, never stored: a Builder collects the full claim set
// after generation/ingestion has completely finished, and Build produces an
// immutable Snapshot. The rule, feature and graph scorers all read the same
// snapshot concurrently with no locking, because nothing mutates it after
// the build.
package index

import (
	"fmt"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Keyspace selects which shared-resource key a lookup runs against.
type Keyspace int

const (
	KeyAddress Keyspace = iota
	KeyBank
	KeyDevice
	KeyClaimant
)

// Builder accumulates claims against a fixed claimant set.
// Not safe for concurrent use; Build is the synchronization barrier between
// ingestion and scoring.
type Builder struct {
	claimants map[string]*domain.Claimant
	claims    []*domain.Claim
}

// NewBuilder creates a builder over the given claimant collection.
func NewBuilder(claimants []*domain.Claimant) *Builder {
	m := make(map[string]*domain.Claimant, len(claimants))
	for _, c := range claimants {
		m[c.ID] = c
	}
	return &Builder{claimants: m}
}

// Add queues claims for indexing.
func (b *Builder) Add(claims ...*domain.Claim) *Builder {
	b.claims = append(b.claims, claims...)
	return b
}

// Build groups every claim by its claimant's address, bank and device keys
// plus the claimant itself, sorts each group by loss date, and freezes the
// result. A claim referencing an unknown claimant is a precondition failure
// and aborts the build.
func (b *Builder) Build() (*Snapshot, error) {
	s := &Snapshot{
		byAddress:  make(map[string][]*domain.Claim),
		byBank:     make(map[string][]*domain.Claim),
		byDevice:   make(map[string][]*domain.Claim),
		byClaimant: make(map[string][]*domain.Claim),
	}

	for _, cl := range b.claims {
		party, ok := b.claimants[cl.ClaimantID]
		if !ok {
			return nil, fmt.Errorf("index: claim %s references unknown claimant %s", cl.ID, cl.ClaimantID)
		}
		s.byAddress[party.AddressID] = append(s.byAddress[party.AddressID], cl)
		s.byBank[party.BankAccountHash] = append(s.byBank[party.BankAccountHash], cl)
		s.byDevice[party.DeviceID] = append(s.byDevice[party.DeviceID], cl)
		s.byClaimant[cl.ClaimantID] = append(s.byClaimant[cl.ClaimantID], cl)
	}

	for _, m := range []map[string][]*domain.Claim{s.byAddress, s.byBank, s.byDevice, s.byClaimant} {
		for _, group := range m {
			sortByLossDate(group)
		}
	}

	return s, nil
}

// sortByLossDate orders a group by loss date, breaking ties on claim ID so
// repeated builds over the same data produce identical snapshots.
func sortByLossDate(group []*domain.Claim) {
	sort.Slice(group, func(i, j int) bool {
		if !group[i].LossDate.Equal(group[j].LossDate) {
			return group[i].LossDate.Before(group[j].LossDate)
		}
		return group[i].ID < group[j].ID
	})
}

// Snapshot is the frozen relationship index. All methods are safe for
// concurrent readers.
type Snapshot struct {
	byAddress  map[string][]*domain.Claim
	byBank     map[string][]*domain.Claim
	byDevice   map[string][]*domain.Claim
	byClaimant map[string][]*domain.Claim
}

func (s *Snapshot) group(ks Keyspace, key string) []*domain.Claim {
	switch ks {
	case KeyAddress:
		return s.byAddress[key]
	case KeyBank:
		return s.byBank[key]
	case KeyDevice:
		return s.byDevice[key]
	case KeyClaimant:
		return s.byClaimant[key]
	}
	return nil
}

// Count returns the number of claims sharing the key, over the full dataset.
func (s *Snapshot) Count(ks Keyspace, key string) int {
	return len(s.group(ks, key))
}

// ClaimsWithin returns the claims sharing the key whose loss date falls
// within windowDays of center, inclusive in both directions.
func (s *Snapshot) ClaimsWithin(ks Keyspace, key string, center time.Time, windowDays int) []*domain.Claim {
	group := s.group(ks, key)
	if len(group) == 0 {
		return nil
	}

	// Groups are loss-date sorted, so binary search for the window edges.
	lo := center.AddDate(0, 0, -windowDays)
	hi := center.AddDate(0, 0, windowDays)
	start := sort.Search(len(group), func(i int) bool {
		return !group[i].LossDate.Before(lo)
	})
	end := sort.Search(len(group), func(i int) bool {
		return group[i].LossDate.After(hi)
	})
	if start >= end {
		return nil
	}
	return group[start:end]
}

// ClaimsBefore returns the claimant's claims with a loss date strictly
// before the given date and no older than maxAgeDays before it.
func (s *Snapshot) ClaimsBefore(claimantID string, date time.Time, maxAgeDays int) []*domain.Claim {
	group := s.byClaimant[claimantID]
	if len(group) == 0 {
		return nil
	}

	oldest := date.AddDate(0, 0, -maxAgeDays)
	start := sort.Search(len(group), func(i int) bool {
		return !group[i].LossDate.Before(oldest)
	})
	end := sort.Search(len(group), func(i int) bool {
		return !group[i].LossDate.Before(date)
	})
	if start >= end {
		return nil
	}
	return group[start:end]
}
