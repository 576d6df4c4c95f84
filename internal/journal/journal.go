// Package journal records committed reconciliation outcomes.
package journal

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/GoPolymarket/treasury/internal/reconcile"
)

// ErrDuplicate is returned when an entry id is already recorded.
var ErrDuplicate = errors.New("journal: duplicate entry")

// Entry is one committed report.
type Entry struct {
	ID    uuid.UUID       `json:"id"`
	Kind  reconcile.Kind  `json:"kind"`
	Stage reconcile.Stage `json:"stage"`
	Block uint64          `json:"block"`
	At    time.Time       `json:"at"`

	Previous         *uint256.Int `json:"previous"`
	Reported         *uint256.Int `json:"reported"`
	Delta            *uint256.Int `json:"delta"`
	Fee              *uint256.Int `json:"fee"`
	BufferTopUp      *uint256.Int `json:"buffer_top_up"`
	PegRecovered     *uint256.Int `json:"peg_recovered"`
	Distributed      *uint256.Int `json:"distributed"`
	EpochAmount      *uint256.Int `json:"epoch_amount"`
	BufferBurned     *uint256.Int `json:"buffer_burned"`
	VaultBurned      *uint256.Int `json:"vault_burned"`
	BackingReduction *uint256.Int `json:"backing_reduction"`
	VaultFrozen      bool         `json:"vault_frozen"`
	PrincipalFrozen  bool         `json:"principal_frozen"`
}

// FromOutcome builds an entry with a fresh id.
func FromOutcome(o *reconcile.Outcome, at time.Time) Entry {
	return Entry{
		ID:               uuid.New(),
		Kind:             o.Kind,
		Stage:            o.Stage,
		Block:            o.Block,
		At:               at.UTC(),
		Previous:         o.Previous.Clone(),
		Reported:         o.Reported.Clone(),
		Delta:            o.Delta.Clone(),
		Fee:              o.Fee.Clone(),
		BufferTopUp:      o.BufferTopUp.Clone(),
		PegRecovered:     o.PegRecovered.Clone(),
		Distributed:      o.Distributed.Clone(),
		EpochAmount:      o.EpochAmount.Clone(),
		BufferBurned:     o.BufferBurned.Clone(),
		VaultBurned:      o.VaultBurned.Clone(),
		BackingReduction: o.BackingReduction.Clone(),
		VaultFrozen:      o.VaultFrozen,
		PrincipalFrozen:  o.PrincipalFrozen,
	}
}

// Store persists entries.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first. limit <= 0 means all.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// MemoryStore keeps entries in process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	ids     map[uuid.UUID]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[uuid.UUID]struct{})}
}

func (m *MemoryStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[e.ID]; ok {
		return ErrDuplicate
	}
	m.ids[e.ID] = struct{}{}
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.entries)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
