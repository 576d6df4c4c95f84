// Package dispatch routes treasury operations to independently deployed
// handler modules that share one state store.
//
// The routing table lives in the shared state (state.Store.DispatchTable) and
// maps each operation id to the address of the module serving it. Only the
// authority may change it. Every dispatched call runs inside an
// all-or-nothing envelope: the store and every checkpointable collaborator
// are captured first and restored if the handler fails.
package dispatch

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/GoPolymarket/treasury/internal/collab"
	"github.com/GoPolymarket/treasury/internal/state"
)

var (
	ErrAlreadyRegistered    = fmt.Errorf("%w: operation already registered", state.ErrAlreadyExists)
	ErrAlreadyDeployed      = fmt.Errorf("%w: module already deployed", state.ErrAlreadyExists)
	ErrOperationNotFound    = fmt.Errorf("%w: operation not registered", state.ErrNotFound)
	ErrModuleNotFound       = fmt.Errorf("%w: module not deployed", state.ErrNotFound)
	ErrUnsupportedOperation = fmt.Errorf("%w: module does not serve operation", state.ErrNotFound)
	ErrZeroTarget           = fmt.Errorf("%w: zero module address", state.ErrNotFound)
	ErrNotAuthority         = fmt.Errorf("%w: caller is not the authority", state.ErrAccessDenied)
	ErrNotCustodian         = fmt.Errorf("%w: caller is not the custodian", state.ErrAccessDenied)

	// ErrBusy is returned when an operation is already in flight, including a
	// collaborator calling back into the treasury mid-operation.
	ErrBusy = fmt.Errorf("%w: dispatcher busy", state.ErrInFlight)
)

// Route is one dispatch table entry.
type Route struct {
	Op      state.OpID     `json:"op"`
	Module  common.Address `json:"module"`
	Name    string         `json:"name"`
	Version string         `json:"version"`
	Access  string         `json:"access"`
}

// routeTable is an immutable copy of the dispatch table, republished after
// every registration change.
type routeTable struct {
	routes   []Route
	handlers map[state.OpID]Handler
}

// Dispatcher owns the dispatch table and the deployed modules.
type Dispatcher struct {
	inflight sync.Mutex
	routing  atomic.Pointer[routeTable]

	store         *state.Store
	collab        collab.Set
	checkpointers []collab.Checkpointer
	modules       map[common.Address]Handler
	blocks        func() uint64
	log           zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger handed to handlers.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithBlockSource sets the source of the current block height.
func WithBlockSource(f func() uint64) Option {
	return func(d *Dispatcher) {
		if f != nil {
			d.blocks = f
		}
	}
}

// New creates a dispatcher over store. Collaborators implementing
// collab.Checkpointer join the rollback envelope.
func New(store *state.Store, set collab.Set, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:         store,
		collab:        set,
		checkpointers: set.Checkpointers(),
		modules:       make(map[common.Address]Handler),
		blocks:        func() uint64 { return 0 },
		log:           zerolog.Nop(),
	}
	for _, o := range opts {
		o(d)
	}
	d.publishRoutes()
	return d
}

// Deploy makes h routable at its module address. Deploying is not gated:
// a deployed module serves nothing until the authority registers it.
func (d *Dispatcher) Deploy(h Handler) (common.Address, error) {
	if h == nil {
		return common.Address{}, ErrZeroTarget
	}
	if !d.inflight.TryLock() {
		return common.Address{}, ErrBusy
	}
	defer d.inflight.Unlock()

	addr := AddressOf(h)
	if _, ok := d.modules[addr]; ok {
		return common.Address{}, fmt.Errorf("%w: %s@%s at %s", ErrAlreadyDeployed, h.Name(), h.Version(), addr.Hex())
	}
	d.modules[addr] = h
	d.log.Debug().Str("module", h.Name()).Str("version", h.Version()).Str("addr", addr.Hex()).Msg("module deployed")
	return addr, nil
}

// Register maps op to the module at handler.
func (d *Dispatcher) Register(caller common.Address, op state.OpID, handler common.Address) error {
	if !d.inflight.TryLock() {
		return ErrBusy
	}
	defer d.inflight.Unlock()

	if err := d.requireAuthority(caller); err != nil {
		return err
	}
	if handler == (common.Address{}) {
		return ErrZeroTarget
	}
	h, ok := d.modules[handler]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, handler.Hex())
	}
	if _, ok := lookupOperation(h, op); !ok {
		return fmt.Errorf("%w: %s does not serve %q", ErrUnsupportedOperation, h.Name(), op)
	}
	if cur, ok := d.store.DispatchTable[op]; ok {
		return fmt.Errorf("%w: %q -> %s", ErrAlreadyRegistered, op, cur.Hex())
	}
	d.store.DispatchTable[op] = handler
	d.publishRoutes()
	d.log.Info().Str("op", string(op)).Str("module", h.Name()).Msg("operation registered")
	return nil
}

// Install registers every operation the module at handler declares. Either
// all of them are registered or none.
func (d *Dispatcher) Install(caller common.Address, handler common.Address) error {
	if !d.inflight.TryLock() {
		return ErrBusy
	}
	defer d.inflight.Unlock()

	if err := d.requireAuthority(caller); err != nil {
		return err
	}
	if handler == (common.Address{}) {
		return ErrZeroTarget
	}
	h, ok := d.modules[handler]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, handler.Hex())
	}
	ops := h.Operations()
	for _, o := range ops {
		if cur, ok := d.store.DispatchTable[o.ID]; ok {
			return fmt.Errorf("%w: %q -> %s", ErrAlreadyRegistered, o.ID, cur.Hex())
		}
	}
	for _, o := range ops {
		d.store.DispatchTable[o.ID] = handler
	}
	d.publishRoutes()
	d.log.Info().Str("module", h.Name()).Int("ops", len(ops)).Msg("module installed")
	return nil
}

// Unregister removes every operation currently mapped to handler and returns
// how many were removed.
func (d *Dispatcher) Unregister(caller common.Address, handler common.Address) (int, error) {
	if !d.inflight.TryLock() {
		return 0, ErrBusy
	}
	defer d.inflight.Unlock()

	if err := d.requireAuthority(caller); err != nil {
		return 0, err
	}
	removed := 0
	for op, addr := range d.store.DispatchTable {
		if addr == handler {
			delete(d.store.DispatchTable, op)
			removed++
		}
	}
	d.publishRoutes()
	d.log.Info().Str("module", handler.Hex()).Int("removed", removed).Msg("module unregistered")
	return removed, nil
}

// Replace re-points every operation mapped to oldHandler at newHandler. The
// new module must be deployed and serve all of those operations.
func (d *Dispatcher) Replace(caller common.Address, oldHandler, newHandler common.Address) (int, error) {
	if !d.inflight.TryLock() {
		return 0, ErrBusy
	}
	defer d.inflight.Unlock()

	if err := d.requireAuthority(caller); err != nil {
		return 0, err
	}
	if newHandler == (common.Address{}) {
		return 0, ErrZeroTarget
	}
	h, ok := d.modules[newHandler]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrModuleNotFound, newHandler.Hex())
	}

	var ops []state.OpID
	for op, addr := range d.store.DispatchTable {
		if addr != oldHandler {
			continue
		}
		if _, ok := lookupOperation(h, op); !ok {
			return 0, fmt.Errorf("%w: %s does not serve %q", ErrUnsupportedOperation, h.Name(), op)
		}
		ops = append(ops, op)
	}
	for _, op := range ops {
		d.store.DispatchTable[op] = newHandler
	}
	d.publishRoutes()
	d.log.Info().Str("from", oldHandler.Hex()).Str("to", newHandler.Hex()).Int("ops", len(ops)).Msg("module replaced")
	return len(ops), nil
}

// Dispatch runs call on the registered handler and returns its result
// unmodified. A failing handler leaves the store and the collaborators as
// they were before the call.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (result any, err error) {
	if !d.inflight.TryLock() {
		return nil, ErrBusy
	}
	defer d.inflight.Unlock()

	addr, ok := d.store.DispatchTable[call.Op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOperationNotFound, call.Op)
	}
	h, ok := d.modules[addr]
	if !ok {
		// The table only ever points at deployed modules.
		return nil, fmt.Errorf("%w: %q -> %s", ErrModuleNotFound, call.Op, addr.Hex())
	}
	op, ok := lookupOperation(h, call.Op)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not serve %q", ErrUnsupportedOperation, h.Name(), call.Op)
	}
	if err := d.checkAccess(op.Access, call.Caller); err != nil {
		return nil, fmt.Errorf("%s: %w", call.Op, err)
	}

	snap := d.store.Snapshot()
	rollbacks := make([]func(), 0, len(d.checkpointers))
	for _, cp := range d.checkpointers {
		rollbacks = append(rollbacks, cp.Checkpoint())
	}
	restore := func() {
		for i := len(rollbacks) - 1; i >= 0; i-- {
			rollbacks[i]()
		}
		d.store.Restore(snap)
	}
	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
	}()

	env := &Env{
		State:  d.store,
		Collab: d.collab,
		Block:  d.blocks(),
		Log:    d.log.With().Str("op", string(call.Op)).Str("module", h.Name()).Logger(),
	}
	result, err = h.Handle(ctx, env, call)
	if err != nil {
		restore()
		return nil, err
	}
	return result, nil
}

// View runs a read-only function against the current state without the
// rollback envelope. It fails with ErrBusy while an operation is in flight,
// so a collaborator reading back mid-operation never sees partial state.
func (d *Dispatcher) View(fn func(env *Env) error) error {
	if !d.inflight.TryLock() {
		return ErrBusy
	}
	defer d.inflight.Unlock()
	return fn(&Env{State: d.store, Collab: d.collab, Block: d.blocks(), Log: d.log})
}

// Resolve returns the handler registered for op. It never blocks.
func (d *Dispatcher) Resolve(op state.OpID) (Handler, bool) {
	h, ok := d.routing.Load().handlers[op]
	return h, ok
}

// Routes returns the dispatch table ordered by operation id. It reads the
// last published table and never blocks.
func (d *Dispatcher) Routes() []Route {
	return slices.Clone(d.routing.Load().routes)
}

// publishRoutes rebuilds the route snapshot. Callers hold inflight.
func (d *Dispatcher) publishRoutes() {
	rt := &routeTable{
		routes:   make([]Route, 0, len(d.store.DispatchTable)),
		handlers: make(map[state.OpID]Handler, len(d.store.DispatchTable)),
	}
	for op, addr := range d.store.DispatchTable {
		r := Route{Op: op, Module: addr}
		if h, ok := d.modules[addr]; ok {
			rt.handlers[op] = h
			r.Name, r.Version = h.Name(), h.Version()
			if o, ok := lookupOperation(h, op); ok {
				r.Access = o.Access.String()
			}
		}
		rt.routes = append(rt.routes, r)
	}
	sort.Slice(rt.routes, func(i, j int) bool { return rt.routes[i].Op < rt.routes[j].Op })
	d.routing.Store(rt)
}

func (d *Dispatcher) requireAuthority(caller common.Address) error {
	if caller == (common.Address{}) || caller != d.store.Authority {
		return ErrNotAuthority
	}
	return nil
}

func (d *Dispatcher) checkAccess(a Access, caller common.Address) error {
	switch a {
	case AccessAuthority:
		return d.requireAuthority(caller)
	case AccessCustodian:
		if caller == (common.Address{}) || caller != d.store.Custodian {
			return ErrNotCustodian
		}
	}
	return nil
}
