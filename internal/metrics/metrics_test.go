package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arenaledger/internal/domain"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecordOpLabelsByKind(t *testing.T) {
	RecordOp("place_bet", nil)
	RecordOp("place_bet", domain.Statef("place bet", "closed"))
	RecordOp("claim", errors.New("db down"))

	out := scrape(t)
	assert.Contains(t, out, `arena_ledger_operations_total{op="place_bet",result="ok"}`)
	assert.Contains(t, out, `arena_ledger_operations_total{op="place_bet",result="state"}`)
	assert.Contains(t, out, `arena_ledger_operations_total{op="claim",result="internal"}`)
}

func TestRecordEventAndJobs(t *testing.T) {
	RecordEvent(domain.Event{Seq: 77, Type: domain.EventBetPlaced, Bet: &domain.BetPlaced{Amount: domain.MustParseAmount("1500000000000000000")}})
	RecordJob("archive", 20*time.Millisecond, nil)
	RecordFanoutError("redis_publish")

	out := scrape(t)
	assert.Contains(t, out, "arena_ledger_last_event_seq 77")
	assert.Contains(t, out, "arena_ledger_staked_native_total")
	assert.Contains(t, out, `arena_jobs_runs_total{job="archive",success="true"}`)
	assert.Contains(t, out, `arena_fanout_errors_total{sink="redis_publish"}`)
}

func TestInstrumentHandlerUsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := InstrumentHandler(mux)

	for _, path := range []string{"/api/markets/1", "/api/markets/2", "/nowhere"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := scrape(t)
	assert.Contains(t, out, `arena_http_requests_total{method="GET",path="/api/markets/{id}",status="404"} 2`)
	assert.Contains(t, out, `path="unmatched"`)
	assert.NotContains(t, out, `path="/api/markets/1"`)
}
