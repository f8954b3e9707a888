package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/glowcloud/glow/internal/budget"
	"github.com/glowcloud/glow/internal/model"
	"github.com/glowcloud/glow/internal/openapi"
	"github.com/glowcloud/glow/internal/payment"
	"github.com/glowcloud/glow/internal/server/middleware"
	"github.com/glowcloud/glow/internal/service"
	"github.com/glowcloud/glow/internal/store"
	"github.com/glowcloud/glow/internal/wallet"
	"github.com/glowcloud/glow/internal/wallet/wallettest"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

type fakeConn struct {
	connected  atomic.Bool
	reconnects atomic.Int32
	err        error
}

func (c *fakeConn) Connected() bool { return c.connected.Load() }

func (c *fakeConn) Reconnect(ctx context.Context) error {
	c.reconnects.Add(1)
	if c.err != nil {
		return c.err
	}
	c.connected.Store(true)
	return nil
}

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store  *store.Store
	keys   *service.KeyService
	ledger *budget.Ledger
	wallet *wallettest.Fake
	conn   *fakeConn
	router chi.Router
}

// newTestEnv wires the handlers behind the same authentication and
// permission middleware the server uses, over an in-memory store and a
// fake wallet.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	keys := service.NewKeyService(s, nil)
	auth := service.NewAuthService(s)
	ledger := budget.NewLedger(s, budget.WithLogger(discard))
	fake := &wallettest.Fake{
		Info:           wallet.Info{BalanceSats: 50000, MaxPayableSats: 49000, MaxReceivableSats: 1000000},
		InvoiceAmounts: map[string]int64{"lnbc-encoded": 1200},
	}
	conn := &fakeConn{}
	orch := payment.NewOrchestrator(fake, ledger, payment.Config{Logger: discard, SendTimeout: time.Second})

	wh := NewWalletHandler(orch, ledger, conn, discard)
	kh := NewKeyHandler(keys, ledger, discard)
	oh := NewOpenAPIHandler(openapi.Options{Version: "test"})

	r := chi.NewRouter()
	r.Get("/health", Health(conn))
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(auth, "X-API-Key"))
		r.Get("/budget", wh.Budget)
		r.Get("/openapi.json", oh.ServeSpec)
		r.With(middleware.RequirePermission(model.PermBalance)).Get("/balance", wh.Balance)
		r.With(middleware.RequirePermission(model.PermBalance)).Get("/payments", wh.Payments)
		r.With(middleware.RequirePermission(model.PermReceive)).Post("/receive", wh.Receive)
		r.With(middleware.RequirePermission(model.PermSend)).Post("/send", wh.Send)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(model.PermAdmin))
			r.Get("/keys", kh.List)
			r.Post("/keys", kh.Create)
			r.Delete("/keys/{id}", kh.Revoke)
			r.Post("/sync", wh.Sync)
		})
	})

	return &testEnv{store: s, keys: keys, ledger: ledger, wallet: fake, conn: conn, router: r}
}

// seedKey provisions a key and returns its raw secret and record.
func (e *testEnv) seedKey(t *testing.T, p service.CreateKeyParams) (string, *model.APIKey) {
	t.Helper()
	raw, key, err := e.keys.Provision(context.Background(), p)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	return raw, key
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, key string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeTestJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeTestJSON: %v; body = %s", err, rr.Body.String())
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.ErrorDetail {
	t.Helper()
	var resp model.ErrorResponse
	decodeTestJSON(t, rr, &resp)
	return resp.Error
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/health", "", nil)
	assertStatus(t, rr, http.StatusOK)
	var resp model.HealthResponse
	decodeTestJSON(t, rr, &resp)
	if resp.Status != "ok" || resp.WalletConnected {
		t.Errorf("got %+v, want ok and not connected", resp)
	}
	if resp.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}

	env.conn.connected.Store(true)
	rr = env.do(t, "GET", "/health", "", nil)
	decodeTestJSON(t, rr, &resp)
	if !resp.WalletConnected {
		t.Error("expected wallet_connected after connect")
	}
}

// ---------------------------------------------------------------------------
// Wallet routes
// ---------------------------------------------------------------------------

func TestBalance(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.seedKey(t, service.CreateKeyParams{Name: "reader", Permissions: []string{"balance"}})

	rr := env.do(t, "GET", "/balance", raw, nil)
	assertStatus(t, rr, http.StatusOK)
	var resp model.BalanceResponse
	decodeTestJSON(t, rr, &resp)
	if resp.BalanceSats != 50000 || resp.MaxPayableSats != 49000 || resp.MaxReceivableSats != 1000000 {
		t.Errorf("got %+v", resp)
	}
}

func TestBalanceRequiresPermission(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.seedKey(t, service.CreateKeyParams{Name: "receiver", Permissions: []string{"receive"}})

	rr := env.do(t, "GET", "/balance", raw, nil)
	assertStatus(t, rr, http.StatusForbidden)
	if msg := decodeError(t, rr).Message; !strings.Contains(msg, "balance") {
		t.Errorf("message = %q, want it to name the permission", msg)
	}
}

func TestUnauthenticated(t *testing.T) {
	env := newTestEnv(t)

	for _, key := range []string{"", "not-a-key"} {
		rr := env.do(t, "GET", "/balance", key, nil)
		assertStatus(t, rr, http.StatusUnauthorized)
	}
}

func TestRevokedKeyIsRejected(t *testing.T) {
	env := newTestEnv(t)
	raw, key := env.seedKey(t, service.CreateKeyParams{Name: "gone", Permissions: []string{"balance"}})

	if err := env.keys.Revoke(context.Background(), key.ID, ""); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	rr := env.do(t, "GET", "/balance", raw, nil)
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestPayments(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.seedKey(t, service.CreateKeyParams{Name: "both", Permissions: []string{"balance", "send"}})

	rr := env.do(t, "GET", "/payments", raw, nil)
	assertStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), `"payments":[]`) {
		t.Errorf("empty history should encode as []: %s", rr.Body.String())
	}

	for i := 0; i < 3; i++ {
		rr = env.do(t, "POST", "/send", raw, toJSON(t, map[string]any{"destination": "lnbc1", "amount_sats": 10}))
		assertStatus(t, rr, http.StatusOK)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?limit=2", 2},
		{"?offset=2", 1},
		{"?offset=5", 0},
		{"?limit=0", 1},
		{"?limit=500", 3},
		{"?offset=-3", 3},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := env.do(t, "GET", "/payments"+tt.query, raw, nil)
			assertStatus(t, rr, http.StatusOK)
			var resp model.PaymentsResponse
			decodeTestJSON(t, rr, &resp)
			if len(resp.Payments) != tt.want {
				t.Errorf("got %d payments, want %d", len(resp.Payments), tt.want)
			}
		})
	}
}

func TestReceive(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.seedKey(t, service.CreateKeyParams{Name: "receiver", Permissions: []string{"receive"}})

	rr := env.do(t, "POST", "/receive", raw, toJSON(t, map[string]any{"amount_sats": 2100, "description": "coffee"}))
	assertStatus(t, rr, http.StatusOK)
	var resp model.ReceiveResponse
	decodeTestJSON(t, rr, &resp)
	if !strings.HasPrefix(resp.PaymentRequest, "lnbc2100") {
		t.Errorf("payment_request = %q", resp.PaymentRequest)
	}

	// An amountless invoice needs no body at all.
	rr = env.do(t, "POST", "/receive", raw, nil)
	assertStatus(t, rr, http.StatusOK)
}

func TestReceiveValidation(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.seedKey(t, service.CreateKeyParams{Name: "receiver", Permissions: []string{"receive"}})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"description too long", `{"description":"` + strings.Repeat("x", 640) + `"}`, "description must be at most 639 characters"},
		{"zero amount", `{"amount_sats":0}`, "amount_sats must be at least 1"},
		{"negative amount", `{"amount_sats":-5}`, "amount_sats must be at least 1"},
		{"malformed", `{"amount_sats":`, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", "/receive", raw, strings.NewReader(tt.body))
			assertStatus(t, rr, http.StatusBadRequest)
			if msg := decodeError(t, rr).Message; !strings.Contains(msg, tt.want) {
				t.Errorf("message = %q, want it to contain %q", msg, tt.want)
			}
		})
	}
}

func TestSend(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.seedKey(t, service.CreateKeyParams{
		Name: "agent", Permissions: []string{"send"},
		BudgetSats: int64Ptr(10000), BudgetPeriod: strPtr("daily"),
	})

	rr := env.do(t, "POST", "/send", raw, toJSON(t, map[string]any{"destination": "lnbc1", "amount_sats": 2500}))
	assertStatus(t, rr, http.StatusOK)
	var resp model.SendResponse
	decodeTestJSON(t, rr, &resp)
	if resp.PaymentID == "" || resp.AmountSats != 2500 || resp.Status == "" {
		t.Errorf("got %+v", resp)
	}

	// Amount encoded in the destination.
	rr = env.do(t, "POST", "/send", raw, toJSON(t, map[string]any{"destination": "lnbc-encoded"}))
	assertStatus(t, rr, http.StatusOK)
	decodeTestJSON(t, rr, &resp)
	if resp.AmountSats != 1200 {
		t.Errorf("amount_sats = %d, want 1200", resp.AmountSats)
	}
}

func TestSendBudgetExceeded(t *testing.T) {
	env := newTestEnv(t)
	raw, key := env.seedKey(t, service.CreateKeyParams{
		Name: "agent", Permissions: []string{"send"},
		BudgetSats: int64Ptr(10000), BudgetPeriod: strPtr("daily"),
	})
	body := func() io.Reader { return toJSON(t, map[string]any{"destination": "lnbc1", "amount_sats": 6000}) }

	assertStatus(t, env.do(t, "POST", "/send", raw, body()), http.StatusOK)

	rr := env.do(t, "POST", "/send", raw, body())
	assertStatus(t, rr, http.StatusForbidden)
	detail := decodeError(t, rr)
	if !strings.Contains(detail.Message, "remaining 4000 sats") {
		t.Errorf("message = %q", detail.Message)
	}
	if got, ok := detail.Context["remaining_sats"].(float64); !ok || got != 4000 {
		t.Errorf("context remaining_sats = %v", detail.Context["remaining_sats"])
	}

	st, err := env.ledger.Status(context.Background(), key)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.SpentSats != 6000 {
		t.Errorf("spent = %d, want 6000", st.SpentSats)
	}
	if env.wallet.SendCalls() != 1 {
		t.Errorf("wallet sends = %d, want 1", env.wallet.SendCalls())
	}
}

func TestSendPerTransactionLimit(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.seedKey(t, service.CreateKeyParams{
		Name: "capped", Permissions: []string{"send"}, MaxAmountSats: int64Ptr(5000),
	})

	rr := env.do(t, "POST", "/send", raw, toJSON(t, map[string]any{"destination": "lnbc1", "amount_sats": 5001}))
	assertStatus(t, rr, http.StatusForbidden)
	if msg := decodeError(t, rr).Message; !strings.Contains(msg, "5001") || !strings.Contains(msg, "5000") {
		t.Errorf("message = %q", msg)
	}
	if env.wallet.SendCalls() != 0 {
		t.Error("wallet must not be called when the limit is exceeded")
	}
}

func TestSendExecutionFailureReleasesBudget(t *testing.T) {
	env := newTestEnv(t)
	raw, key := env.seedKey(t, service.CreateKeyParams{
		Name: "agent", Permissions: []string{"send"},
		BudgetSats: int64Ptr(10000), BudgetPeriod: strPtr("daily"),
	})
	env.wallet.SendFunc = func(ctx context.Context, p *wallet.PreparedPayment) (*wallet.SendResult, error) {
		return nil, errors.New("no route")
	}

	rr := env.do(t, "POST", "/send", raw, toJSON(t, map[string]any{"destination": "lnbc1", "amount_sats": 3000}))
	assertStatus(t, rr, http.StatusBadGateway)
	if msg := decodeError(t, rr).Message; !strings.Contains(msg, "Budget reservation released") {
		t.Errorf("message = %q", msg)
	}

	st, err := env.ledger.Status(context.Background(), key)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.SpentSats != 0 {
		t.Errorf("spent = %d after failed send, want 0", st.SpentSats)
	}
}

func TestSendValidation(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.seedKey(t, service.CreateKeyParams{Name: "agent", Permissions: []string{"send"}})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing destination", `{"amount_sats":10}`, "destination is required"},
		{"empty body", ``, "destination is required"},
		{"destination too long", `{"destination":"` + strings.Repeat("a", 2001) + `"}`, "destination must be at most 2000 characters"},
		{"zero amount", `{"destination":"lnbc1","amount_sats":0}`, "amount_sats must be at least 1"},
		{"amount unresolved", `{"destination":"lnbc-no-amount"}`, "Could not determine payment amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", "/send", raw, strings.NewReader(tt.body))
			assertStatus(t, rr, http.StatusBadRequest)
			if msg := decodeError(t, rr).Message; !strings.Contains(msg, tt.want) {
				t.Errorf("message = %q, want it to contain %q", msg, tt.want)
			}
		})
	}
	if env.wallet.SendCalls() != 0 {
		t.Errorf("wallet sends = %d, want 0", env.wallet.SendCalls())
	}
}

func TestSendInvalidDestination(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.seedKey(t, service.CreateKeyParams{Name: "agent", Permissions: []string{"send"}})
	env.wallet.PrepareFunc = func(ctx context.Context, req wallet.PrepareRequest) (*wallet.PreparedPayment, error) {
		return nil, wallet.ErrInvalidDestination
	}

	rr := env.do(t, "POST", "/send", raw, toJSON(t, map[string]any{"destination": "garbage", "amount_sats": 1}))
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestBudget(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.seedKey(t, service.CreateKeyParams{
		Name: "agent", Permissions: []string{"send"}, MaxAmountSats: int64Ptr(800),
		BudgetSats: int64Ptr(1000), BudgetPeriod: strPtr("weekly"),
	})
	assertStatus(t, env.do(t, "POST", "/send", raw, toJSON(t, map[string]any{"destination": "lnbc1", "amount_sats": 300})), http.StatusOK)

	rr := env.do(t, "GET", "/budget", raw, nil)
	assertStatus(t, rr, http.StatusOK)
	var st model.BudgetStatus
	decodeTestJSON(t, rr, &st)
	if st.SpentSats != 300 || st.RemainingSats == nil || *st.RemainingSats != 700 {
		t.Errorf("got spent=%d remaining=%v", st.SpentSats, st.RemainingSats)
	}
	if st.MaxAmountSats == nil || *st.MaxAmountSats != 800 {
		t.Errorf("max_amount_sats = %v", st.MaxAmountSats)
	}
	if st.PeriodStart == nil || st.PeriodStart.Weekday() != time.Monday {
		t.Errorf("period_start = %v, want a Monday", st.PeriodStart)
	}
}

func TestSync(t *testing.T) {
	env := newTestEnv(t)
	admin, _ := env.seedKey(t, service.CreateKeyParams{Name: "root", Permissions: []string{"admin"}})

	rr := env.do(t, "POST", "/sync", admin, nil)
	assertStatus(t, rr, http.StatusOK)
	if env.conn.reconnects.Load() != 1 {
		t.Errorf("reconnects = %d, want 1", env.conn.reconnects.Load())
	}

	env.conn.err = wallet.ErrNotConnected
	rr = env.do(t, "POST", "/sync", admin, nil)
	assertStatus(t, rr, http.StatusServiceUnavailable)
}

// ---------------------------------------------------------------------------
// Key management
// ---------------------------------------------------------------------------

func TestCreateKey(t *testing.T) {
	env := newTestEnv(t)
	admin, _ := env.seedKey(t, service.CreateKeyParams{Name: "root", Permissions: []string{"admin"}})

	rr := env.do(t, "POST", "/keys", admin, toJSON(t, map[string]any{
		"name":          "agent",
		"permissions":   []string{"balance", "send"},
		"budget_sats":   10000,
		"budget_period": "daily",
	}))
	assertStatus(t, rr, http.StatusCreated)
	var created model.CreateKeyResponse
	decodeTestJSON(t, rr, &created)
	if created.Key == "" || created.ID == "" || created.Name != "agent" {
		t.Errorf("got %+v", created)
	}
	if created.BudgetPeriod == nil || *created.BudgetPeriod != "daily" {
		t.Errorf("budget_period = %v", created.BudgetPeriod)
	}

	// The new key works immediately.
	assertStatus(t, env.do(t, "GET", "/balance", created.Key, nil), http.StatusOK)
	assertStatus(t, env.do(t, "GET", "/keys", created.Key, nil), http.StatusForbidden)
}

func TestCreateKeyRejectsAdmin(t *testing.T) {
	env := newTestEnv(t)
	admin, _ := env.seedKey(t, service.CreateKeyParams{Name: "root", Permissions: []string{"admin"}})

	rr := env.do(t, "POST", "/keys", admin, toJSON(t, map[string]any{
		"name": "escalate", "permissions": []string{"admin"},
	}))
	assertStatus(t, rr, http.StatusBadRequest)
	if msg := decodeError(t, rr).Message; !strings.Contains(msg, "admin") {
		t.Errorf("message = %q, want it to name admin", msg)
	}
}

func TestCreateKeyValidation(t *testing.T) {
	env := newTestEnv(t)
	admin, _ := env.seedKey(t, service.CreateKeyParams{Name: "root", Permissions: []string{"admin"}})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing name", `{"permissions":["balance"]}`, "name is required"},
		{"long name", `{"name":"` + strings.Repeat("n", 101) + `"}`, "name must be at most 100 characters"},
		{"bad period", `{"name":"k","budget_sats":5,"budget_period":"yearly"}`, "budget_period must be one of daily, weekly, monthly"},
		{"budget without period", `{"name":"k","budget_sats":5}`, "budget_period is required"},
		{"period without budget", `{"name":"k","budget_period":"daily"}`, "budget_sats is required"},
		{"zero max", `{"name":"k","max_amount_sats":0}`, "max_amount_sats must be at least 1"},
		{"unknown permission", `{"name":"k","permissions":["teleport"]}`, "teleport"},
		{"admin without name", `{"permissions":["balance","admin"]}`, "Invalid permissions: admin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", "/keys", admin, strings.NewReader(tt.body))
			assertStatus(t, rr, http.StatusBadRequest)
			if msg := decodeError(t, rr).Message; !strings.Contains(msg, tt.want) {
				t.Errorf("message = %q, want it to contain %q", msg, tt.want)
			}
		})
	}
}

func TestListKeys(t *testing.T) {
	env := newTestEnv(t)
	admin, _ := env.seedKey(t, service.CreateKeyParams{Name: "root", Permissions: []string{"admin"}})
	agentRaw, agent := env.seedKey(t, service.CreateKeyParams{
		Name: "agent", Permissions: []string{"send"},
		BudgetSats: int64Ptr(5000), BudgetPeriod: strPtr("monthly"),
	})
	assertStatus(t, env.do(t, "POST", "/send", agentRaw, toJSON(t, map[string]any{"destination": "lnbc1", "amount_sats": 1500})), http.StatusOK)

	rr := env.do(t, "GET", "/keys", admin, nil)
	assertStatus(t, rr, http.StatusOK)
	if strings.Contains(rr.Body.String(), "key_hash") || strings.Contains(rr.Body.String(), agentRaw) {
		t.Fatal("key listing leaked secret material")
	}

	var views []model.KeyView
	decodeTestJSON(t, rr, &views)
	if len(views) != 2 {
		t.Fatalf("got %d keys, want 2", len(views))
	}
	for _, v := range views {
		switch v.ID {
		case agent.ID:
			if v.SpentSats == nil || *v.SpentSats != 1500 || v.RemainingSats == nil || *v.RemainingSats != 3500 {
				t.Errorf("agent usage = %v / %v", v.SpentSats, v.RemainingSats)
			}
		default:
			if v.SpentSats != nil {
				t.Errorf("unbudgeted key should carry no usage, got %v", *v.SpentSats)
			}
		}
	}
}

func TestRevokeKey(t *testing.T) {
	env := newTestEnv(t)
	admin, adminKey := env.seedKey(t, service.CreateKeyParams{Name: "root", Permissions: []string{"admin"}})
	_, other := env.seedKey(t, service.CreateKeyParams{Name: "other"})

	rr := env.do(t, "DELETE", "/keys/"+adminKey.ID, admin, nil)
	assertStatus(t, rr, http.StatusBadRequest)
	if msg := decodeError(t, rr).Message; !strings.Contains(msg, "own") {
		t.Errorf("message = %q, want it to mention own key", msg)
	}

	rr = env.do(t, "DELETE", "/keys/"+other.ID, admin, nil)
	assertStatus(t, rr, http.StatusOK)
	var detail model.DetailResponse
	decodeTestJSON(t, rr, &detail)
	if detail.Detail != "Key revoked" {
		t.Errorf("detail = %q", detail.Detail)
	}

	rr = env.do(t, "DELETE", "/keys/"+other.ID, admin, nil)
	assertStatus(t, rr, http.StatusNotFound)
	rr = env.do(t, "DELETE", "/keys/unknown", admin, nil)
	assertStatus(t, rr, http.StatusNotFound)
}

// ---------------------------------------------------------------------------
// OpenAPI
// ---------------------------------------------------------------------------

func TestOpenAPISpec(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.seedKey(t, service.CreateKeyParams{Name: "reader", Permissions: []string{"balance"}})

	assertStatus(t, env.do(t, "GET", "/openapi.json", "", nil), http.StatusUnauthorized)

	rr := env.do(t, "GET", "/openapi.json", raw, nil)
	assertStatus(t, rr, http.StatusOK)
	var doc map[string]any
	decodeTestJSON(t, rr, &doc)
	if doc["openapi"] != "3.0.3" {
		t.Errorf("openapi = %v", doc["openapi"])
	}
	servers, _ := doc["servers"].([]any)
	if len(servers) != 1 || servers[0].(map[string]any)["url"] != "http://example.com" {
		t.Errorf("servers = %v", doc["servers"])
	}
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"validation", &service.ValidationError{Message: "name bad"}, 400, "name bad"},
		{"self revoke", service.ErrSelfRevoke, 400, "own"},
		{"not found", store.ErrNotFound, 404, "Key not found"},
		{"forbidden", &service.ForbiddenError{Permission: "send"}, 403, "'send'"},
		{"limit", &budget.RejectedError{Reason: "Amount 2 exceeds per-transaction limit of 1 sats"}, 403, "per-transaction"},
		{"store unavailable", budget.ErrStoreUnavailable, 503, "retry"},
		{"unresolved", payment.ErrAmountUnresolved, 400, "amount"},
		{"prepare failed", payment.ErrPrepareFailed, 502, "prepare"},
		{"execution", &payment.ExecutionError{Err: errors.New("boom")}, 502, "Verify payment status"},
		{"not connected", wallet.ErrNotConnected, 503, "Wallet"},
		{"unknown", errors.New("disk on fire"), 500, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServiceError(rr, httptest.NewRequest("GET", "/", nil), discard, tt.err)
			assertStatus(t, rr, tt.wantStatus)
			if msg := decodeError(t, rr).Message; !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("message = %q, want it to contain %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestWriteServiceErrorRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	writeServiceError(rr, httptest.NewRequest("GET", "/", nil), discard, budget.ErrStoreUnavailable)
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After on 503")
	}
}

func TestReadJSONBodyTooLarge(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"destination":"`+strings.Repeat("a", 100)+`"}`))
	rr := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rr, req.Body, 16)

	var body sendRequest
	err := readJSON(req, &body)
	if err == nil {
		t.Fatal("expected an error for an oversized body")
	}
	writeBodyError(rr, err)
	assertStatus(t, rr, http.StatusRequestEntityTooLarge)
}
