package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/GoPolymarket/treasury/internal/dispatch"
	"github.com/GoPolymarket/treasury/internal/journal"
	"github.com/GoPolymarket/treasury/internal/reconcile"
	"github.com/GoPolymarket/treasury/internal/state"
	"github.com/GoPolymarket/treasury/internal/treasury"
)

type mockTreasury struct {
	view    treasury.View
	viewErr error
	routes  []dispatch.Route
}

func (m *mockTreasury) View() (treasury.View, error) { return m.view, m.viewErr }
func (m *mockTreasury) Routes() []dispatch.Route      { return m.routes }

type mockJournal struct {
	entries   []journal.Entry
	err       error
	lastLimit int
}

func (m *mockJournal) Recent(_ context.Context, limit int) ([]journal.Entry, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.entries) {
		return m.entries[:limit], nil
	}
	return m.entries, nil
}

func amount(v uint64) *uint256.Int { return uint256.NewInt(v) }

func sampleView() treasury.View {
	return treasury.View{
		Block:            120,
		Params:           state.Params{Fee: 50_000, Leverage: 100_000, BufferTarget: 20_000, BufferRenewal: 200_000, EpochLength: 100},
		Authority:        common.HexToAddress("0x05"),
		Warchest:         common.HexToAddress("0x06"),
		Custodian:        common.HexToAddress("0x07"),
		CustodianBalance: amount(110_000_000_000),
		NetDeposits:      amount(1_010_000_000_000),
		LeverageCeiling:  amount(100_000_000_000),
		BufferTarget:     new(uint256.Int).Mul(amount(20_000), amount(1_000_000_000_000_000_000)),
		BufferHeld:       new(uint256.Int).Mul(amount(1_900), amount(1_000_000_000_000_000_000)),
		FeesAccrued:      amount(500_000_000),
		EpochRemaining:   amount(0),
		ReleasedProfit:   amount(0),
		Undistributed:    amount(0),
		PrincipalSupply:  new(uint256.Int).Mul(amount(1_000_000), amount(1_000_000_000_000_000_000)),
		BackingRatio:     amount(750_000_000_000_000_000),
		VaultFrozen:      true,
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(":0", &mockTreasury{}, nil, zerolog.Nop())
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decode(t, w); resp["ok"] != true {
		t.Errorf("expected ok=true, got %v", resp["ok"])
	}
}

func TestHandleTreasury(t *testing.T) {
	s := NewServer(":0", &mockTreasury{view: sampleView()}, nil, zerolog.Nop())
	w := httptest.NewRecorder()
	s.handleTreasury(w, httptest.NewRequest(http.MethodGet, "/api/treasury", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode(t, w)
	checks := map[string]string{
		"custodian_balance": "110000",
		"net_deposits":      "1010000",
		"leverage_ceiling":  "100000",
		"buffer_target":     "20000",
		"buffer_held":       "1900",
		"fees_accrued":      "500",
		"principal_supply":  "1000000",
		"backing_ratio":     "0.75",
	}
	for field, want := range checks {
		if resp[field] != want {
			t.Errorf("expected %s=%s, got %v", field, want, resp[field])
		}
	}
	if resp["vault_frozen"] != true || resp["principal_frozen"] != false {
		t.Errorf("unexpected freeze flags %v/%v", resp["vault_frozen"], resp["principal_frozen"])
	}
	params := resp["params"].(map[string]any)
	if int(params["fee_fraction"].(float64)) != 50_000 {
		t.Errorf("expected fee_fraction=50000, got %v", params["fee_fraction"])
	}
}

func TestHandleTreasuryViewError(t *testing.T) {
	s := NewServer(":0", &mockTreasury{viewErr: errors.New("busy")}, nil, zerolog.Nop())
	w := httptest.NewRecorder()
	s.handleTreasury(w, httptest.NewRequest(http.MethodGet, "/api/treasury", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if resp := decode(t, w); resp["error"] != "busy" {
		t.Errorf("expected error=busy, got %v", resp["error"])
	}
}

func TestHandleTreasuryMethodNotAllowed(t *testing.T) {
	s := NewServer(":0", &mockTreasury{view: sampleView()}, nil, zerolog.Nop())
	w := httptest.NewRecorder()
	s.handleTreasury(w, httptest.NewRequest(http.MethodPost, "/api/treasury", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestHandleRoutes(t *testing.T) {
	module := dispatch.ModuleAddress("allocation", "v1")
	routes := []dispatch.Route{{Op: "allocation.send", Module: module, Name: "allocation", Version: "v1", Access: "custodian"}}
	s := NewServer(":0", &mockTreasury{routes: routes}, nil, zerolog.Nop())
	w := httptest.NewRecorder()
	s.handleRoutes(w, httptest.NewRequest(http.MethodGet, "/api/routes", nil))

	var got []dispatch.Route
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Op != "allocation.send" || got[0].Module != module {
		t.Fatalf("unexpected routes %+v", got)
	}
}

func TestHandleJournal(t *testing.T) {
	at := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	z := amount(0)
	entry := journal.Entry{
		ID: uuid.New(), Kind: reconcile.KindLoss, Stage: reconcile.StageVault, Block: 7, At: at,
		Previous: z, Reported: z, Delta: amount(1_000_000_000), Fee: z, BufferTopUp: z, PegRecovered: z,
		Distributed: z, EpochAmount: z, BufferBurned: z,
		VaultBurned:      new(uint256.Int).Mul(amount(1_000), amount(1_000_000_000_000_000_000)),
		BackingReduction: z,
		VaultFrozen:      true,
	}
	j := &mockJournal{entries: []journal.Entry{entry, entry, entry}}
	s := NewServer(":0", &mockTreasury{}, j, zerolog.Nop())

	w := httptest.NewRecorder()
	s.handleJournal(w, httptest.NewRequest(http.MethodGet, "/api/journal?limit=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if j.lastLimit != 2 {
		t.Fatalf("expected limit 2 passed through, got %d", j.lastLimit)
	}
	resp := decode(t, w)
	entries := resp["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0].(map[string]any)
	if first["stage"] != "stage2-vault" || first["delta"] != "1000" || first["vault_burned"] != "1000" {
		t.Errorf("unexpected entry %v", first)
	}
	if first["at"] != "2026-03-01T12:00:00Z" {
		t.Errorf("unexpected at %v", first["at"])
	}
}

func TestHandleJournalDefaultsAndErrors(t *testing.T) {
	j := &mockJournal{}
	s := NewServer(":0", &mockTreasury{}, j, zerolog.Nop())

	w := httptest.NewRecorder()
	s.handleJournal(w, httptest.NewRequest(http.MethodGet, "/api/journal", nil))
	if w.Code != http.StatusOK || j.lastLimit != defaultJournalLimit {
		t.Fatalf("expected default limit, got status %d limit %d", w.Code, j.lastLimit)
	}

	w = httptest.NewRecorder()
	s.handleJournal(w, httptest.NewRequest(http.MethodGet, "/api/journal?limit=-3", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad limit, got %d", w.Code)
	}

	j.err = errors.New("disk full")
	w = httptest.NewRecorder()
	s.handleJournal(w, httptest.NewRequest(http.MethodGet, "/api/journal", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestHandleJournalNotConfigured(t *testing.T) {
	s := NewServer(":0", &mockTreasury{}, nil, zerolog.Nop())
	w := httptest.NewRecorder()
	s.handleJournal(w, httptest.NewRequest(http.MethodGet, "/api/journal", nil))
	resp := decode(t, w)
	if resp["configured"] != false {
		t.Errorf("expected configured=false, got %v", resp["configured"])
	}
}

func TestStartAndShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", &mockTreasury{}, nil, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
