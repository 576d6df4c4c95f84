package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/GoPolymarket/treasury/internal/dispatch"
	"github.com/GoPolymarket/treasury/internal/fixedpoint"
	"github.com/GoPolymarket/treasury/internal/journal"
	"github.com/GoPolymarket/treasury/internal/treasury"
)

const defaultJournalLimit = 50

// TreasuryState exposes the engine's read side for the API layer.
type TreasuryState interface {
	View() (treasury.View, error)
	Routes() []dispatch.Route
}

// JournalReader exposes recorded reports (nil if unavailable).
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Server is a lightweight read-only HTTP API over the treasury.
type Server struct {
	httpServer *http.Server
	treasury   TreasuryState
	journal    JournalReader
	log        zerolog.Logger
	startedAt  time.Time
}

// NewServer creates a new API server bound to addr.
func NewServer(addr string, state TreasuryState, reader JournalReader, log zerolog.Logger) *Server {
	s := &Server{
		treasury:  state,
		journal:   reader,
		log:       log.With().Str("component", "api").Logger(),
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/treasury", s.handleTreasury)
	mux.HandleFunc("/api/routes", s.handleRoutes)
	mux.HandleFunc("/api/journal", s.handleJournal)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routing handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins serving HTTP requests.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("api server listening")
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("api server stopped")
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// GET /api/health: liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

type paramsStatus struct {
	FeeFraction           uint64 `json:"fee_fraction"`
	LeverageFraction      uint64 `json:"leverage_fraction"`
	BufferTargetFraction  uint64 `json:"buffer_target_fraction"`
	BufferRenewalFraction uint64 `json:"buffer_renewal_fraction"`
	EpochLength           uint64 `json:"epoch_length"`
}

type treasuryStatus struct {
	Block            uint64       `json:"block"`
	Params           paramsStatus `json:"params"`
	Authority        string       `json:"authority"`
	Warchest         string       `json:"warchest"`
	Custodian        string       `json:"custodian"`
	CustodianBalance string       `json:"custodian_balance"`
	NetDeposits      string       `json:"net_deposits"`
	LeverageCeiling  string       `json:"leverage_ceiling"`
	BufferTarget     string       `json:"buffer_target"`
	BufferHeld       string       `json:"buffer_held"`
	FeesAccrued      string       `json:"fees_accrued"`
	EpochRemaining   string       `json:"epoch_remaining"`
	EpochStartBlock  uint64       `json:"epoch_start_block"`
	ReleasedProfit   string       `json:"released_profit"`
	Undistributed    string       `json:"undistributed_profit"`
	PrincipalSupply  string       `json:"principal_supply"`
	BackingRatio     string       `json:"backing_ratio"`
	VaultFrozen      bool         `json:"vault_frozen"`
	PrincipalFrozen  bool         `json:"principal_frozen"`
}

func reserve(v *uint256.Int) string   { return fixedpoint.Format(v, fixedpoint.ReserveDecimals) }
func principal(v *uint256.Int) string { return fixedpoint.Format(v, fixedpoint.PrincipalDecimals) }

// GET /api/treasury: parameters, counters and collaborator state.
func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	v, err := s.treasury.View()
	if err != nil {
		s.log.Error().Err(err).Msg("treasury view failed")
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.writeJSON(w, treasuryStatus{
		Block: v.Block,
		Params: paramsStatus{
			FeeFraction:           uint64(v.Params.Fee),
			LeverageFraction:      uint64(v.Params.Leverage),
			BufferTargetFraction:  uint64(v.Params.BufferTarget),
			BufferRenewalFraction: uint64(v.Params.BufferRenewal),
			EpochLength:           v.Params.EpochLength,
		},
		Authority:        v.Authority.Hex(),
		Warchest:         v.Warchest.Hex(),
		Custodian:        v.Custodian.Hex(),
		CustodianBalance: reserve(v.CustodianBalance),
		NetDeposits:      reserve(v.NetDeposits),
		LeverageCeiling:  reserve(v.LeverageCeiling),
		BufferTarget:     principal(v.BufferTarget),
		BufferHeld:       principal(v.BufferHeld),
		FeesAccrued:      reserve(v.FeesAccrued),
		EpochRemaining:   principal(v.EpochRemaining),
		EpochStartBlock:  v.EpochStartBlock,
		ReleasedProfit:   principal(v.ReleasedProfit),
		Undistributed:    principal(v.Undistributed),
		PrincipalSupply:  principal(v.PrincipalSupply),
		BackingRatio:     principal(v.BackingRatio),
		VaultFrozen:      v.VaultFrozen,
		PrincipalFrozen:  v.PrincipalFrozen,
	})
}

// GET /api/routes: the dispatch table.
func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	routes := s.treasury.Routes()
	if routes == nil {
		routes = []dispatch.Route{}
	}
	s.writeJSON(w, routes)
}

type journalEntry struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	Stage            string `json:"stage"`
	Block            uint64 `json:"block"`
	At               string `json:"at"`
	Delta            string `json:"delta"`
	Fee              string `json:"fee"`
	BufferTopUp      string `json:"buffer_top_up"`
	PegRecovered     string `json:"peg_recovered"`
	Distributed      string `json:"distributed"`
	EpochAmount      string `json:"epoch_amount"`
	BufferBurned     string `json:"buffer_burned"`
	VaultBurned      string `json:"vault_burned"`
	BackingReduction string `json:"backing_reduction"`
	VaultFrozen      bool   `json:"vault_frozen"`
	PrincipalFrozen  bool   `json:"principal_frozen"`
}

// GET /api/journal?limit=N: recent reports, newest first.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.journal == nil {
		s.writeJSON(w, map[string]any{"configured": false, "entries": []journalEntry{}})
		return
	}
	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("journal read failed")
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]journalEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, journalEntry{
			ID:               e.ID.String(),
			Kind:             string(e.Kind),
			Stage:            e.Stage.String(),
			Block:            e.Block,
			At:               e.At.Format(time.RFC3339),
			Delta:            reserve(e.Delta),
			Fee:              reserve(e.Fee),
			BufferTopUp:      reserve(e.BufferTopUp),
			PegRecovered:     reserve(e.PegRecovered),
			Distributed:      principal(e.Distributed),
			EpochAmount:      principal(e.EpochAmount),
			BufferBurned:     principal(e.BufferBurned),
			VaultBurned:      principal(e.VaultBurned),
			BackingReduction: principal(e.BackingReduction),
			VaultFrozen:      e.VaultFrozen,
			PrincipalFrozen:  e.PrincipalFrozen,
		})
	}
	s.writeJSON(w, map[string]any{"configured": true, "entries": out})
}
