package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/p2pescrow/internal/auth"
	"github.com/mbd888/p2pescrow/internal/config"
	"github.com/mbd888/p2pescrow/internal/ledger"
	"github.com/mbd888/p2pescrow/internal/logging"
)

const testAdminSecret = "server-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal in-memory config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:              "0",
		Env:               "development",
		LogLevel:          "error",
		LogFormat:         "json",
		AdminSecret:       testAdminSecret,
		RateLimitRPM:      10000,
		EscrowAccount:     ledger.AccountFunding,
		PaymentWindow:     15 * time.Minute,
		ExpiryInterval:    20 * time.Millisecond,
		ReconcileInterval: 20 * time.Millisecond,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithDrainDelay(0),
	)
	require.NoError(t, err)
	return s
}

type request struct {
	user  string
	admin bool
	body  interface{}
}

func call(t *testing.T, s *Server, method, path string, r request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(r.body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if r.user != "" {
		req.Header.Set(auth.HeaderUserID, r.user)
	}
	if r.admin {
		req.Header.Set(auth.HeaderAdminSecret, testAdminSecret)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func field(t *testing.T, m map[string]interface{}, obj, key string) string {
	t.Helper()
	inner, ok := m[obj].(map[string]interface{})
	require.True(t, ok, "missing %q in %v", obj, m)
	v, _ := inner[key].(string)
	return v
}

// seedOffer funds the seller and publishes a SELL offer, returning its ID.
func seedOffer(t *testing.T, s *Server) string {
	t.Helper()
	w, _ := call(t, s, http.MethodPost, "/v1/admin/deposits", request{
		user: "ops", admin: true,
		body: map[string]string{
			"userId": "seller", "asset": "USDT", "network": "TRC20",
			"accountType": "FUNDING", "amount": "1000", "reference": "dep-1",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, out := call(t, s, http.MethodPost, "/v1/offers", request{
		user: "seller",
		body: map[string]string{
			"side": "SELL", "asset": "USDT", "network": "TRC20", "fiatCurrency": "NGN",
			"price": "1500", "amount": "1000", "minLimit": "10", "maxLimit": "500",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return field(t, out, "offer", "id")
}

func openTrade(t *testing.T, s *Server, offerID, amount string) string {
	t.Helper()
	w, out := call(t, s, http.MethodPost, "/v1/trades", request{
		user: "buyer",
		body: map[string]string{"offerId": offerID, "amount": amount},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return field(t, out, "trade", "id")
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, out := call(t, s, http.MethodGet, "/health/live", request{})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", out["status"])
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, _ := call(t, s, http.MethodGet, "/health/ready", request{})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s.ready.Store(true)
	w, out := call(t, s, http.MethodGet, "/health/ready", request{})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", out["status"])
}

func TestHealthEndpoint_ReflectsBackgroundLoops(t *testing.T) {
	s := newTestServer(t)

	// Timers not started yet.
	w, out := call(t, s, http.MethodGet, "/health", request{})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", out["status"])

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.stopBackground()

	require.Eventually(t, func() bool {
		w, _ := call(t, s, http.MethodGet, "/health", request{})
		return w.Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	_, out = call(t, s, http.MethodGet, "/health", request{})
	assert.Equal(t, "healthy", out["status"])
	checks, ok := out["checks"].([]interface{})
	require.True(t, ok)
	assert.Len(t, checks, 3) // no database check in memory mode
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	call(t, s, http.MethodGet, "/health/live", request{})

	w, _ := call(t, s, http.MethodGet, "/metrics", request{})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "p2pescrow_http_requests_total"))
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(logging.HeaderRequestID, "req-abc")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, "req-abc", w.Header().Get(logging.HeaderRequestID))
	assert.NotEmpty(t, w.Header().Get("X-Content-Type-Options"))
}

func TestRoutes_RequireIdentity(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		req    request
		status int
	}{
		{"wallets without user", http.MethodGet, "/v1/wallets", request{}, http.StatusUnauthorized},
		{"offers without user", http.MethodPost, "/v1/offers", request{}, http.StatusUnauthorized},
		{"deposit without secret", http.MethodPost, "/v1/admin/deposits", request{user: "ops"}, http.StatusForbidden},
		{"reconcile without secret", http.MethodGet, "/v1/admin/reconcile", request{user: "ops"}, http.StatusForbidden},
		{"wallets with user", http.MethodGet, "/v1/wallets", request{user: "alice"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := call(t, s, tt.method, tt.path, tt.req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestRoutes_InvalidIDParam(t *testing.T) {
	s := newTestServer(t)

	w, out := call(t, s, http.MethodGet, "/v1/trades/not-an-id", request{user: "buyer"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_id", out["error"])
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w, _ := call(t, s, http.MethodGet, "/v1/nope", request{user: "buyer"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEndToEnd_TradeRelease(t *testing.T) {
	s := newTestServer(t)
	offerID := seedOffer(t, s)
	tradeID := openTrade(t, s, offerID, "100")

	w, out := call(t, s, http.MethodGet, "/v1/wallets/USDT?network=TRC20&account=FUNDING", request{user: "seller"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "900", field(t, out, "wallet", "available"))
	assert.Equal(t, "100", field(t, out, "wallet", "locked"))

	w, out = call(t, s, http.MethodPost, "/v1/trades/"+tradeID+"/paid", request{user: "buyer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "PAID", field(t, out, "trade", "status"))

	w, out = call(t, s, http.MethodPost, "/v1/trades/"+tradeID+"/release", request{user: "seller"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "COMPLETED", field(t, out, "trade", "status"))

	_, out = call(t, s, http.MethodGet, "/v1/wallets/USDT?network=TRC20&account=FUNDING", request{user: "buyer"})
	assert.Equal(t, "100", field(t, out, "wallet", "available"))

	w, out = call(t, s, http.MethodGet, "/v1/admin/reconcile", request{user: "ops", admin: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, out["healthy"])
}

func TestEndToEnd_DisputeSellerWins(t *testing.T) {
	s := newTestServer(t)
	offerID := seedOffer(t, s)
	tradeID := openTrade(t, s, offerID, "200")

	w, _ := call(t, s, http.MethodPost, "/v1/trades/"+tradeID+"/paid", request{user: "buyer"})
	require.Equal(t, http.StatusOK, w.Code)

	w, out := call(t, s, http.MethodPost, "/v1/trades/"+tradeID+"/dispute", request{
		user: "buyer", body: map[string]string{"reason": "seller not responding"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "DISPUTED", field(t, out, "trade", "status"))

	w, out = call(t, s, http.MethodPost, "/v1/admin/disputes/"+tradeID+"/resolve", request{
		user: "ops", admin: true, body: map[string]string{"verdict": "seller-wins", "note": "no payment proof"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CANCELLED", field(t, out, "trade", "status"))

	_, out = call(t, s, http.MethodGet, "/v1/wallets/USDT?network=TRC20&account=FUNDING", request{user: "seller"})
	assert.Equal(t, "1000", field(t, out, "wallet", "available"))
	assert.Equal(t, "0", field(t, out, "wallet", "locked"))
}

func TestShutdown_StopsBackgroundLoops(t *testing.T) {
	s := newTestServer(t)
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		return s.expiryTimer.Running() && s.reconcileTimer.Running()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Shutdown())
	require.Eventually(t, func() bool {
		return !s.expiryTimer.Running() && !s.reconcileTimer.Running()
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, s.ready.Load())
}

func TestMaskDSN(t *testing.T) {
	masked := maskDSN("postgres://user:secret@db:5432/p2p?sslmode=disable")
	assert.NotContains(t, masked, "secret")
	assert.Contains(t, masked, "user:")
	assert.Contains(t, masked, "@db:5432/p2p")

	assert.Equal(t, "postgres://db:5432/p2p", maskDSN("postgres://db:5432/p2p"))
}
