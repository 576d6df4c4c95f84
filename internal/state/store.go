// Package state holds the single record shared by every treasury module:
// collaborator references, authority addresses, bounded fraction parameters,
// the mutable accounting counters and the dispatch table.
package state

import (
	"fmt"
	"maps"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/GoPolymarket/treasury/internal/fixedpoint"
)

// OpID identifies a dispatchable operation, e.g. "allocation.send".
type OpID string

// Params are the authority-tunable fractions.
type Params struct {
	Fee           fixedpoint.Fraction
	Leverage      fixedpoint.Fraction
	BufferTarget  fixedpoint.Fraction
	BufferRenewal fixedpoint.Fraction
	// EpochLength is the number of blocks over which reported profit drips.
	EpochLength uint64
}

// Bounds are the per-parameter floors and ceilings enforced on every write.
type Bounds struct {
	MaxFee           fixedpoint.Fraction
	MaxLeverage      fixedpoint.Fraction
	MinBufferTarget  fixedpoint.Fraction
	MinBufferRenewal fixedpoint.Fraction
}

// DefaultBounds caps fees at 20% and leverage at 100%, and requires the
// buffer to target at least 1% of supply and to renew at 10% of profit.
func DefaultBounds() Bounds {
	return Bounds{
		MaxFee:           fixedpoint.Percent(20),
		MaxLeverage:      fixedpoint.Full,
		MinBufferTarget:  fixedpoint.Percent(1),
		MinBufferRenewal: fixedpoint.Percent(10),
	}
}

// Init is everything needed to create the store.
type Init struct {
	// Treasury is the address the treasury holds reserve and buffer under.
	Treasury       common.Address
	ReserveAsset   common.Address
	PrincipalToken common.Address
	Vault          common.Address
	Authority      common.Address
	Warchest       common.Address
	Custodian      common.Address
	Params         Params
	Bounds         Bounds
}

// Store is the shared state. Counters are exported for the modules that own
// them; parameters go through validating setters.
type Store struct {
	treasury       common.Address
	reserveAsset   common.Address
	principalToken common.Address
	vault          common.Address

	Authority common.Address
	Warchest  common.Address
	Custodian common.Address

	params Params
	bounds Bounds

	CustodianBalance      *uint256.Int
	FeesAccrued           *uint256.Int
	EpochProfitRemaining  *uint256.Int
	EpochProfitStartBlock uint64

	DispatchTable map[OpID]common.Address
}

// New validates init and creates the store with zeroed counters.
func New(in Init) (*Store, error) {
	refs := []struct {
		name string
		addr common.Address
	}{
		{"treasury", in.Treasury},
		{"reserve asset", in.ReserveAsset},
		{"principal token", in.PrincipalToken},
		{"vault", in.Vault},
		{"authority", in.Authority},
		{"warchest", in.Warchest},
	}
	for _, r := range refs {
		if r.addr == (common.Address{}) {
			return nil, fmt.Errorf("%w: %s address is required", ErrNotFound, r.name)
		}
	}
	if in.Params.EpochLength == 0 {
		return nil, fmt.Errorf("%w: epoch length must be > 0", ErrOutOfBounds)
	}
	if err := checkBounds(in.Bounds); err != nil {
		return nil, err
	}

	s := &Store{
		treasury:             in.Treasury,
		reserveAsset:         in.ReserveAsset,
		principalToken:       in.PrincipalToken,
		vault:                in.Vault,
		Authority:            in.Authority,
		Warchest:             in.Warchest,
		Custodian:            in.Custodian,
		bounds:               in.Bounds,
		params:               Params{EpochLength: in.Params.EpochLength},
		CustodianBalance:     fixedpoint.Zero(),
		FeesAccrued:          fixedpoint.Zero(),
		EpochProfitRemaining: fixedpoint.Zero(),
		DispatchTable:        make(map[OpID]common.Address),
	}
	if err := s.SetFee(in.Params.Fee); err != nil {
		return nil, err
	}
	if err := s.SetLeverage(in.Params.Leverage); err != nil {
		return nil, err
	}
	if err := s.SetBufferTarget(in.Params.BufferTarget); err != nil {
		return nil, err
	}
	if err := s.SetBufferRenewal(in.Params.BufferRenewal); err != nil {
		return nil, err
	}
	return s, nil
}

func checkBounds(b Bounds) error {
	if b.MaxFee > fixedpoint.Full || b.MaxLeverage > fixedpoint.Full {
		return fmt.Errorf("%w: fraction ceilings must be <= 100%%", ErrOutOfBounds)
	}
	if b.MinBufferTarget == 0 || b.MinBufferTarget > fixedpoint.Full {
		return fmt.Errorf("%w: buffer target floor must be within (0, 100%%]", ErrOutOfBounds)
	}
	if b.MinBufferRenewal == 0 || b.MinBufferRenewal > fixedpoint.Full {
		return fmt.Errorf("%w: buffer renewal floor must be within (0, 100%%]", ErrOutOfBounds)
	}
	return nil
}

func (s *Store) Treasury() common.Address       { return s.treasury }
func (s *Store) ReserveAsset() common.Address   { return s.reserveAsset }
func (s *Store) PrincipalToken() common.Address { return s.principalToken }
func (s *Store) Vault() common.Address          { return s.vault }

// Params returns a copy of the current parameters.
func (s *Store) Params() Params { return s.params }

// Bounds returns the configured parameter bounds.
func (s *Store) Bounds() Bounds { return s.bounds }

// SetFee sets the profit fee fraction.
func (s *Store) SetFee(f fixedpoint.Fraction) error {
	if !f.Within(0, s.bounds.MaxFee) {
		return fmt.Errorf("%w: fee %s must be within [0, %s]", ErrOutOfBounds, f, s.bounds.MaxFee)
	}
	s.params.Fee = f
	return nil
}

// SetLeverage sets the leverage fraction.
func (s *Store) SetLeverage(f fixedpoint.Fraction) error {
	if !f.Within(0, s.bounds.MaxLeverage) {
		return fmt.Errorf("%w: leverage %s must be within [0, %s]", ErrOutOfBounds, f, s.bounds.MaxLeverage)
	}
	s.params.Leverage = f
	return nil
}

// SetBufferTarget sets the buffer target as a fraction of principal supply.
func (s *Store) SetBufferTarget(f fixedpoint.Fraction) error {
	if !f.Within(s.bounds.MinBufferTarget, fixedpoint.Full) {
		return fmt.Errorf("%w: buffer target %s must be within [%s, 100%%]", ErrOutOfBounds, f, s.bounds.MinBufferTarget)
	}
	s.params.BufferTarget = f
	return nil
}

// SetBufferRenewal sets the share of net profit used to refill the buffer.
func (s *Store) SetBufferRenewal(f fixedpoint.Fraction) error {
	if !f.Within(s.bounds.MinBufferRenewal, fixedpoint.Full) {
		return fmt.Errorf("%w: buffer renewal %s must be within [%s, 100%%]", ErrOutOfBounds, f, s.bounds.MinBufferRenewal)
	}
	s.params.BufferRenewal = f
	return nil
}

// Snapshot is an opaque deep copy used to roll back a failed operation.
type Snapshot struct {
	s Store
}

// Snapshot deep-copies the store.
func (s *Store) Snapshot() Snapshot {
	cp := *s
	cp.CustodianBalance = s.CustodianBalance.Clone()
	cp.FeesAccrued = s.FeesAccrued.Clone()
	cp.EpochProfitRemaining = s.EpochProfitRemaining.Clone()
	cp.DispatchTable = maps.Clone(s.DispatchTable)
	return Snapshot{s: cp}
}

// Restore puts the store back to snap.
func (s *Store) Restore(snap Snapshot) {
	*s = snap.s
}
