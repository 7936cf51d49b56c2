package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arenaledger/internal/crypto"
	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/alanyoungcy/arenaledger/internal/ledger"
	"github.com/alanyoungcy/arenaledger/internal/server/handler"
	"github.com/alanyoungcy/arenaledger/internal/service"
)

const (
	creatorKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	bettorKey  = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	adminKey   = "operator-secret"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type denyLimiter struct {
	mu   sync.Mutex
	keys []string
}

func (l *denyLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (domain.RateDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return domain.RateDecision{Remaining: 0}, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{ID: int64(len(a.entries) + 1), Event: event, Detail: detail})
	return nil
}

func (a *memAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.AuditEntry, 0, len(a.entries))
	for i := len(a.entries) - 1; i >= 0 && len(out) < opts.Limit; i-- {
		out = append(out, a.entries[i])
	}
	return out, nil
}

type memNonces struct {
	mu   sync.Mutex
	seen map[string]time.Duration
	err  error
}

func (n *memNonces) Claim(_ context.Context, signer, nonce string, ttl time.Duration) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return false, n.err
	}
	key := strings.ToLower(signer) + ":" + nonce
	if _, ok := n.seen[key]; ok {
		return false, nil
	}
	n.seen[key] = ttl
	return true, nil
}

type testServer struct {
	handler http.Handler
	clock   *testClock
	audit   *memAudit
	nonces  *memNonces
	creator *crypto.Signer
	bettor  *crypto.Signer
}

func newTestServer(t *testing.T, limiter *denyLimiter) *testServer {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	l, err := ledger.New(ledger.DefaultConfig(), ledger.WithClock(clock.Now), ledger.WithLogger(logger))
	require.NoError(t, err)
	svc := service.NewLedgerService(l, nil, nil, logger)

	cfg := Config{
		APIKey:           adminKey,
		SignatureMaxSkew: time.Minute,
		RateLimit:        10,
		RateWindow:       time.Minute,
	}
	handlers := Handlers{
		Health:      handler.NewHealthHandler(nil, l.LastSeq, logger),
		Markets:     handler.NewMarketHandler(l, logger),
		Actions:     handler.NewActionHandler(svc, logger),
		Leaderboard: handler.NewLeaderboardHandler(svc, 10, logger),
	}
	audit := &memAudit{}
	handlers.Admin = handler.NewAdminHandler(svc, svc, audit, logger)

	ts := &testServer{clock: clock, audit: audit, nonces: &memNonces{seen: map[string]time.Duration{}}}
	if limiter != nil {
		ts.handler = NewHandler(cfg, handlers, nil, limiter, ts.nonces, clock.Now, logger)
	} else {
		ts.handler = NewHandler(cfg, handlers, nil, nil, ts.nonces, clock.Now, logger)
	}
	ts.creator, err = crypto.NewSigner(creatorKey)
	require.NoError(t, err)
	ts.bettor, err = crypto.NewSigner(bettorKey)
	require.NoError(t, err)
	return ts
}

func (ts *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (ts *testServer) signed(t *testing.T, signer *crypto.Signer, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	require.NoError(t, signer.SignRequest(req, raw, ts.clock.Now()))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createMarket(t *testing.T, ts *testServer) {
	t.Helper()
	rec := ts.signed(t, ts.creator, "/api/markets", handler.CreateMarketBody{
		Question:  "Will it rain in Lisbon tomorrow?",
		Category:  "science",
		Outcomes:  []string{"Yes", "No"},
		LaunchNow: true,
		EndTime:   ts.clock.Now().Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.get(t, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["last_seq"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMarketLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	createMarket(t, ts)

	view := decode(t, ts.get(t, "/api/markets/0"))
	assert.Equal(t, "active", view["phase"])
	assert.Equal(t, strings.ToLower(ts.creator.Address().Hex()), strings.ToLower(view["creator"].(string)))

	rec := ts.signed(t, ts.bettor, "/api/markets/0/bets", handler.PlaceBetBody{
		Outcome: 0, Amount: domain.MustParseAmount("3000000000000000000"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.signed(t, ts.creator, "/api/markets/0/bets", handler.PlaceBetBody{
		Outcome: 1, Amount: domain.MustParseAmount("1000000000000000000"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	odds := decode(t, ts.get(t, "/api/markets/0/odds"))
	assert.Equal(t, []any{float64(75), float64(25)}, odds["odds"])

	bettors := decode(t, ts.get(t, "/api/markets/0/bettors"))
	assert.Len(t, bettors["bettors"], 2)

	users := decode(t, ts.get(t, "/api/users/"+ts.bettor.Address().Hex()+"/markets"))
	assert.Equal(t, []any{float64(0)}, users["markets"])

	// Betting is still open, so resolution is refused.
	rec = ts.signed(t, ts.creator, "/api/markets/0/resolve", handler.ResolveBody{WinningOutcome: 0})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "state", decode(t, rec)["kind"])

	ts.clock.Advance(2 * time.Hour)

	rec = ts.signed(t, ts.bettor, "/api/markets/0/resolve", handler.ResolveBody{WinningOutcome: 0})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.signed(t, ts.creator, "/api/markets/0/resolve", handler.ResolveBody{WinningOutcome: 0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "3920000000000000000", decode(t, rec)["distributable"])

	rec = ts.signed(t, ts.bettor, "/api/markets/0/claim", struct{}{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "3920000000000000000", decode(t, rec)["payout"])

	rec = ts.signed(t, ts.bettor, "/api/markets/0/claim", struct{}{})
	assert.Equal(t, http.StatusConflict, rec.Code)

	stake := decode(t, ts.get(t, "/api/markets/0/stakes/"+ts.bettor.Address().Hex()))
	assert.Equal(t, true, stake["claimed"])
}

func TestReadErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		path string
		code int
	}{
		{"unknown market", "/api/markets/7", http.StatusNotFound},
		{"bad id", "/api/markets/abc", http.StatusBadRequest},
		{"bad address", "/api/users/nope/markets", http.StatusBadRequest},
		{"preview without amount", "/api/markets/0/preview?outcome=0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ts.get(t, tt.path).Code)
		})
	}

	count := decode(t, ts.get(t, "/api/markets/count"))
	assert.EqualValues(t, 0, count["count"])
}

func TestPreviewPayout(t *testing.T) {
	ts := newTestServer(t, nil)
	createMarket(t, ts)

	rec := ts.get(t, "/api/markets/0/preview?outcome=0&amount=1000000000000000000")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "980000000000000000", decode(t, rec)["payout"])
}

func TestSignatureRejected(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("unsigned", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(`{}`))
		ts.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tampered body", func(t *testing.T) {
		raw := []byte(`{"outcome":0,"amount":"1"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/markets/0/bets", bytes.NewReader([]byte(`{"outcome":1,"amount":"1"}`)))
		require.NoError(t, ts.bettor.SignRequest(req, raw, ts.clock.Now()))
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		raw := []byte(`{}`)
		req := httptest.NewRequest(http.MethodPost, "/api/markets/0/claim", bytes.NewReader(raw))
		require.NoError(t, ts.bettor.SignRequest(req, raw, ts.clock.Now().Add(-time.Hour)))
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		createMarket(t, ts)
		rec := ts.signed(t, ts.bettor, "/api/markets/0/bets", map[string]any{"outcome": 0, "amount": "1", "extra": true})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation", decode(t, rec)["kind"])
	})
}

func TestReplayedRequestRejected(t *testing.T) {
	ts := newTestServer(t, nil)
	createMarket(t, ts)

	raw, err := json.Marshal(handler.PlaceBetBody{Outcome: 0, Amount: domain.MustParseAmount("1000")})
	require.NoError(t, err)
	signedReq := httptest.NewRequest(http.MethodPost, "/api/markets/0/bets", bytes.NewReader(raw))
	require.NoError(t, ts.bettor.SignRequest(signedReq, raw, ts.clock.Now()))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/markets/0/bets", bytes.NewReader(raw))
		req.Header = signedReq.Header.Clone()
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := send()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for range 2 {
		rec = send()
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "nonce already used")
	}

	stake := decode(t, ts.get(t, "/api/markets/0/stakes/"+ts.bettor.Address().Hex()))
	assert.Equal(t, "1000", stake["amount"])

	// A fresh signature over the same body is a new bet.
	rec = ts.signed(t, ts.bettor, "/api/markets/0/bets", handler.PlaceBetBody{Outcome: 0, Amount: domain.MustParseAmount("1000")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stake = decode(t, ts.get(t, "/api/markets/0/stakes/"+ts.bettor.Address().Hex()))
	assert.Equal(t, "2000", stake["amount"])

	for _, ttl := range ts.nonces.seen {
		assert.Equal(t, 2*time.Minute, ttl)
	}
}

func TestNonceStoreFailureRefusesSignedRequest(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.nonces.err = errors.New("redis down")

	rec := ts.signed(t, ts.creator, "/api/markets", handler.CreateMarketBody{
		Question: "Will it snow?", Category: "science", Outcomes: []string{"Yes", "No"},
		LaunchNow: true, EndTime: ts.clock.Now().Add(time.Hour),
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, http.StatusNotFound, ts.get(t, "/api/markets/0").Code)
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/archive", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/archive", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Archiving is not configured in this server.
	req = httptest.NewRequest(http.MethodPost, "/api/admin/archive", nil)
	req.Header.Set("X-API-Key", adminKey)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, ts.audit.Log(context.Background(), "archive", map[string]any{"events": 3}))
	req = httptest.NewRequest(http.MethodGet, "/api/admin/audit?limit=10", nil)
	req.Header.Set("Authorization", "Bearer "+adminKey)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Entries []domain.AuditEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "archive", body.Entries[0].Event)
}

func TestRateLimitKeys(t *testing.T) {
	limiter := &denyLimiter{}
	ts := newTestServer(t, limiter)

	rec := ts.get(t, "/api/markets")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = ts.signed(t, ts.bettor, "/api/markets/0/claim", struct{}{})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Health is never limited.
	assert.Equal(t, http.StatusOK, ts.get(t, "/api/health").Code)

	require.Len(t, limiter.keys, 2)
	assert.True(t, strings.HasPrefix(limiter.keys[0], "api:ip:"))
	assert.Equal(t, "api:addr:"+strings.ToLower(ts.bettor.Address().Hex()), limiter.keys[1])
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/markets", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), crypto.HeaderSignature)
}
