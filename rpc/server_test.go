package rpc

import (
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"meritlend/crypto"
	"meritlend/native/credit"
	"meritlend/native/escrow"
	"meritlend/native/lending"
	"meritlend/state"
)

type serverFixture struct {
	server  *Server
	router  http.Handler
	manager *state.Manager
	pool    *lending.Engine
	credit  *credit.Engine

	admin   crypto.Address
	scoring crypto.Address
	custody crypto.Address
	vault   crypto.Address

	now int64
}

type stubPauseView struct {
	modules map[string]bool
}

func (s stubPauseView) IsPaused(module string) bool {
	return s.modules[module]
}

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.MLTPrefix, raw)
}

func newServerFixture() *serverFixture {
	f := &serverFixture{
		manager: state.NewManager(),
		admin:   makeAddress(0x01),
		scoring: makeAddress(0x02),
		custody: makeAddress(0x03),
		vault:   makeAddress(0x04),
		now:     1_000_000,
	}
	nowFn := func() int64 { return f.now }

	f.credit = credit.NewEngine(f.admin, f.scoring, f.custody)
	f.credit.SetState(f.manager)
	f.credit.SetNowFunc(nowFn)

	escrowEngine := escrow.NewEngine(f.vault, f.custody)
	escrowEngine.SetState(f.manager)

	f.pool = lending.NewEngine(f.custody, f.admin)
	f.pool.SetState(f.manager)
	f.pool.SetScoringEngine(f.credit)
	f.pool.SetCollateralEscrow(escrowEngine)
	f.pool.SetNowFunc(nowFn)
	f.pool.SetEpoch(1)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.server = NewServer(f.credit, escrowEngine, f.pool, f.manager, nil, logger)
	f.router = f.server.Router()
	return f
}

func (f *serverFixture) fund(t *testing.T, addr crypto.Address, amount int64) {
	t.Helper()
	if err := f.manager.Mint(addr, big.NewInt(amount)); err != nil {
		t.Fatalf("fund %s: %v", addr, err)
	}
}

func (f *serverFixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

const testIdentity = "0x00000000000000000000000000000000000000000000000000000000000000a1"

func TestHealthz(t *testing.T) {
	f := newServerFixture()
	rec := f.get(t, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestBindIdentityEndpoint(t *testing.T) {
	f := newServerFixture()
	wallet := makeAddress(0x10)

	body := `{"caller":"` + f.scoring.String() + `","identity":"` + testIdentity + `","wallet":"` + wallet.String() + `"}`
	if rec := f.post(t, "/credit/identity/bind", body); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin caller, got %d: %s", rec.Code, rec.Body.String())
	}

	body = `{"caller":"` + f.admin.String() + `","identity":"` + testIdentity + `","wallet":"` + wallet.String() + `"}`
	rec := f.post(t, "/credit/identity/bind", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["identity"] != testIdentity {
		t.Fatalf("unexpected identity echo %q", resp["identity"])
	}

	// Bindings are append-only.
	if rec := f.post(t, "/credit/identity/bind", body); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on rebinding, got %d", rec.Code)
	}
}

func TestProfileDefaultsForUnseenWallet(t *testing.T) {
	f := newServerFixture()
	wallet := makeAddress(0x10)

	rec := f.post(t, "/credit/profile/get", `{"wallet":"`+wallet.String()+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp profileResponse
	decodeBody(t, rec, &resp)
	if resp.Score != 0 || resp.Tier != 0 || resp.CollateralRatioBps != 15_000 {
		t.Fatalf("unexpected default profile: %+v", resp)
	}
}

func TestBorrowLifecycleOverHTTP(t *testing.T) {
	f := newServerFixture()
	lender := makeAddress(0x10)
	borrower := makeAddress(0x11)
	f.fund(t, lender, 10_000)
	f.fund(t, borrower, 2_000)

	rec := f.post(t, "/lending/deposit", `{"lender":"`+lender.String()+`","amount":"10000"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit failed: %d %s", rec.Code, rec.Body.String())
	}
	var snapshot poolSnapshotResponse
	decodeBody(t, rec, &snapshot)
	if snapshot.TotalLiquidity != "10000" || snapshot.UtilizationBps != 0 {
		t.Fatalf("unexpected snapshot after deposit: %+v", snapshot)
	}

	borrowBody := `{"borrower":"` + borrower.String() + `","amount":"1000","collateral":"1500"}`
	rec = f.post(t, "/lending/borrow", borrowBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("borrow failed: %d %s", rec.Code, rec.Body.String())
	}
	var loan loanPayload
	decodeBody(t, rec, &loan)
	if loan.Principal != "1000" || loan.CollateralRatioBps != 15_000 || loan.Status != "active" {
		t.Fatalf("unexpected loan payload: %+v", loan)
	}

	// Unproven borrowers repay at 5%.
	f.now += 2 * 60 * 60
	repayBody := `{"borrower":"` + borrower.String() + `","loanId":0,"payment":"1050"}`
	rec = f.post(t, "/lending/repay", repayBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("repay failed: %d %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &loan)
	if loan.Status != "repaid" {
		t.Fatalf("expected repaid status, got %q", loan.Status)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	f := newServerFixture()

	// Unknown loans read as 404.
	if rec := f.post(t, "/lending/loans/get", `{"loanId":99}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	// Malformed and over-specified payloads read as 400.
	if rec := f.post(t, "/lending/deposit", `{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on malformed JSON, got %d", rec.Code)
	}
	if rec := f.post(t, "/lending/loans/get", `{"loanId":1,"bogus":true}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on unknown field, got %d", rec.Code)
	}
	if rec := f.post(t, "/lending/deposit", `{"lender":"not-bech32","amount":"1"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on bad address, got %d", rec.Code)
	}
	if rec := f.post(t, "/lending/deposit", `{"lender":"`+makeAddress(0x10).String()+`","amount":"ten"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on bad amount, got %d", rec.Code)
	}
}

func TestPausedModuleReadsUnavailable(t *testing.T) {
	f := newServerFixture()
	lender := makeAddress(0x10)
	f.fund(t, lender, 1_000)
	f.pool.SetPauses(stubPauseView{modules: map[string]bool{"lending": true}})

	rec := f.post(t, "/lending/deposit", `{"lender":"`+lender.String()+`","amount":"1000"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while paused, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPoolSnapshotEndpoint(t *testing.T) {
	f := newServerFixture()
	lender := makeAddress(0x10)
	f.fund(t, lender, 5_000)
	if rec := f.post(t, "/lending/deposit", `{"lender":"`+lender.String()+`","amount":"5000"}`); rec.Code != http.StatusOK {
		t.Fatalf("deposit failed: %d", rec.Code)
	}

	rec := f.get(t, "/lending/pool")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snapshot poolSnapshotResponse
	decodeBody(t, rec, &snapshot)
	if snapshot.TotalLiquidity != "5000" || snapshot.CustodyBalance != "5000" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.LenderAPYPercent != 4 {
		t.Fatalf("expected base APY band at zero utilization, got %d", snapshot.LenderAPYPercent)
	}
}

func TestEventsEndpointDisabledWithoutRecorder(t *testing.T) {
	f := newServerFixture()
	if rec := f.get(t, "/events"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a recorder, got %d", rec.Code)
	}
}
