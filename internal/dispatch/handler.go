package dispatch

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/GoPolymarket/treasury/internal/collab"
	"github.com/GoPolymarket/treasury/internal/state"
)

// Access is the caller requirement of an operation, enforced by the
// dispatcher before the handler runs.
type Access int

const (
	AccessPublic Access = iota
	AccessAuthority
	AccessCustodian
)

func (a Access) String() string {
	switch a {
	case AccessAuthority:
		return "authority"
	case AccessCustodian:
		return "custodian"
	default:
		return "public"
	}
}

// Operation describes one operation a handler can serve.
type Operation struct {
	ID     state.OpID
	Access Access
}

// Call is a single dispatched operation.
type Call struct {
	Caller common.Address
	Op     state.OpID
	Args   any
}

// Env is what a handler executes against: the shared state, the
// collaborators and the current block.
type Env struct {
	State  *state.Store
	Collab collab.Set
	Block  uint64
	Log    zerolog.Logger
}

// Handler is an independently deployable logic unit.
type Handler interface {
	Name() string
	Version() string
	Operations() []Operation
	Handle(ctx context.Context, env *Env, call Call) (any, error)
}

// ModuleAddress derives the address a handler is deployed at from its name
// and version.
func ModuleAddress(name, version string) common.Address {
	id := "treasury.module/" + strings.TrimSpace(name) + "@" + strings.TrimSpace(version)
	return common.BytesToAddress(crypto.Keccak256([]byte(id)))
}

// AddressOf is ModuleAddress for a handler value.
func AddressOf(h Handler) common.Address {
	return ModuleAddress(h.Name(), h.Version())
}

func lookupOperation(h Handler, op state.OpID) (Operation, bool) {
	for _, o := range h.Operations() {
		if o.ID == op {
			return o, true
		}
	}
	return Operation{}, false
}
