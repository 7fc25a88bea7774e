package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"signal-core/internal/engine"
	"signal-core/internal/events"
	"signal-core/internal/ledger"
	"signal-core/internal/market"
	"signal-core/internal/monitor"
	"signal-core/internal/strategy"
	"signal-core/pkg/db"
)

// fakeEngine serves canned answers so handler tests stay independent of market data.
type fakeEngine struct {
	analyses map[string]engine.Analysis
	snapshot ledger.Snapshot
	closed   map[string]ledger.ClosedTrade

	scanMin   float64
	scanLimit int
}

func (f *fakeEngine) Evaluate(ctx context.Context, symbol string) (engine.Analysis, error) {
	a, ok := f.analyses[symbol]
	if !ok {
		return engine.Analysis{}, &market.DataUnavailableError{Symbol: symbol, Timeframe: "5m", Err: market.ErrDataUnavailable}
	}
	return a, nil
}

func (f *fakeEngine) Scan(ctx context.Context, minConfidence float64, limit int) ([]engine.Analysis, error) {
	f.scanMin, f.scanLimit = minConfidence, limit
	var out []engine.Analysis
	for _, a := range f.analyses {
		if a.Signal.Confidence >= minConfidence {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeEngine) RunCycle(ctx context.Context) engine.CycleReport { return engine.CycleReport{} }

func (f *fakeEngine) ClosePosition(ctx context.Context, symbol string) (ledger.ClosedTrade, error) {
	t, ok := f.closed[symbol]
	if !ok {
		return ledger.ClosedTrade{}, &ledger.ViolationError{Op: "close", Symbol: symbol, Err: ledger.ErrPositionNotFound}
	}
	return t, nil
}

func (f *fakeEngine) Snapshot() ledger.Snapshot { return f.snapshot }

func (f *fakeEngine) GetSystemStatus(ctx context.Context) *engine.SystemStatus {
	return &engine.SystemStatus{Mode: "paper", DataSource: "mock", Symbols: []string{"BTCUSDT"}}
}

func newFakeEngine() *fakeEngine {
	opened := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pos := ledger.Position{ID: "p1", Symbol: "BTCUSDT", Direction: strategy.Long, Entry: 100, StopLoss: 97.6, TakeProfit: 107, Size: 10, Status: ledger.StatusOpen, OpenedAt: opened}
	trades := make([]ledger.ClosedTrade, 3)
	for i := range trades {
		trades[i] = ledger.ClosedTrade{
			Position:    ledger.Position{ID: fmt.Sprintf("t%d", i), Symbol: "ETHUSDT", Status: ledger.StatusClosed},
			RealizedPnL: float64(i),
			CloseReason: ledger.ReasonTakeProfit,
		}
	}
	return &fakeEngine{
		analyses: map[string]engine.Analysis{
			"BTCUSDT": {Symbol: "BTCUSDT", Price: 100, Signal: strategy.FusedSignal{Direction: strategy.Long, Confidence: 100}},
			"ETHUSDT": {Symbol: "ETHUSDT", Price: 200, Signal: strategy.FusedSignal{Direction: strategy.Short, Confidence: 70}},
		},
		snapshot: ledger.Snapshot{
			Version:       4,
			OpenPositions: []ledger.Position{pos},
			ClosedTrades:  trades,
			Portfolio:     ledger.Portfolio{StartingBalance: 10000, Cash: 9000},
			Summary:       ledger.Summary{StartingBalance: 10000, ActivePositions: 1, TotalTrades: 3},
		},
		closed: map[string]ledger.ClosedTrade{
			"BTCUSDT": {Position: pos, ExitPrice: 107, RealizedPnL: 70, CloseReason: ledger.ReasonManual},
		},
	}
}

type testAPI struct {
	server *Server
	http   *httptest.Server
	engine *fakeEngine
	bus    *events.Bus
	db     *db.Database
}

func newTestAPIServer(t *testing.T, opts Options) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	fake := newFakeEngine()
	bus := events.NewBus()
	server := NewServer(bus, database, fake, monitor.NewSystemMetrics(), nil, opts)
	ts := httptest.NewServer(server.Router)

	t.Cleanup(func() {
		ts.Close()
		database.Close()
	})
	return &testAPI{server: server, http: ts, engine: fake, bus: bus, db: database}
}

func doJSONRequest(t *testing.T, method, url string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
	return v
}

func TestHealthAndStatus(t *testing.T) {
	api := newTestAPIServer(t, Options{})

	status, _ := doJSONRequest(t, http.MethodGet, api.http.URL+"/health", nil)
	if status != http.StatusOK {
		t.Fatalf("health status=%d, expected 200", status)
	}

	status, body := doJSONRequest(t, http.MethodGet, api.http.URL+"/api/system/status", nil)
	if status != http.StatusOK {
		t.Fatalf("status=%d, expected 200", status)
	}
	got := decode[engine.SystemStatus](t, body)
	if got.Mode != "paper" || got.DataSource != "mock" {
		t.Fatalf("status=%+v, expected paper/mock", got)
	}
}

func TestLedgerViews(t *testing.T) {
	api := newTestAPIServer(t, Options{})

	status, body := doJSONRequest(t, http.MethodGet, api.http.URL+"/api/positions", nil)
	if status != http.StatusOK {
		t.Fatalf("positions status=%d, expected 200", status)
	}
	positions := decode[[]ledger.Position](t, body)
	if len(positions) != 1 || positions[0].Symbol != "BTCUSDT" || positions[0].TakeProfit != 107 {
		t.Fatalf("positions=%+v, expected BTCUSDT with TP 107", positions)
	}

	status, body = doJSONRequest(t, http.MethodGet, api.http.URL+"/api/trades?limit=2", nil)
	if status != http.StatusOK {
		t.Fatalf("trades status=%d, expected 200", status)
	}
	trades := decode[[]ledger.ClosedTrade](t, body)
	if len(trades) != 2 || trades[0].ID != "t2" || trades[1].ID != "t1" {
		t.Fatalf("trades=%+v, expected newest first [t2 t1]", trades)
	}

	status, _ = doJSONRequest(t, http.MethodGet, api.http.URL+"/api/trades?limit=abc", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("bad limit status=%d, expected 400", status)
	}

	status, body = doJSONRequest(t, http.MethodGet, api.http.URL+"/api/portfolio", nil)
	if status != http.StatusOK {
		t.Fatalf("portfolio status=%d, expected 200", status)
	}
	type portfolioView struct {
		Version   uint64           `json:"version"`
		Summary   ledger.Summary   `json:"summary"`
		Portfolio ledger.Portfolio `json:"portfolio"`
	}
	portfolio := decode[portfolioView](t, body)
	if portfolio.Version != 4 || portfolio.Portfolio.Cash != 9000 || portfolio.Summary.ActivePositions != 1 {
		t.Fatalf("portfolio=%+v, expected version 4 cash 9000 active 1", portfolio)
	}

	status, body = doJSONRequest(t, http.MethodGet, api.http.URL+"/api/snapshot", nil)
	if status != http.StatusOK {
		t.Fatalf("snapshot status=%d, expected 200", status)
	}
	snap := decode[ledger.Snapshot](t, body)
	if snap.Version != 4 || len(snap.ClosedTrades) != 3 {
		t.Fatalf("snapshot version=%d trades=%d, expected 4/3", snap.Version, len(snap.ClosedTrades))
	}
}

func TestGetSignal(t *testing.T) {
	api := newTestAPIServer(t, Options{})

	tests := []struct {
		name       string
		symbol     string
		wantStatus int
		wantCode   string
	}{
		{"known symbol lowercased", "btcusdt", http.StatusOK, ""},
		{"no data", "DOGEUSDT", http.StatusServiceUnavailable, "DATA_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSONRequest(t, http.MethodGet, api.http.URL+"/api/signals/"+tt.symbol, nil)
			if status != tt.wantStatus {
				t.Fatalf("status=%d, expected %d (%s)", status, tt.wantStatus, string(body))
			}
			if tt.wantCode != "" {
				errBody := decode[map[string]string](t, body)
				if errBody["code"] != tt.wantCode {
					t.Fatalf("code=%q, expected %q", errBody["code"], tt.wantCode)
				}
				return
			}
			a := decode[engine.Analysis](t, body)
			if a.Symbol != "BTCUSDT" || a.Signal.Confidence != 100 {
				t.Fatalf("analysis=%+v, expected BTCUSDT at 100", a)
			}
		})
	}
}

func TestScanParams(t *testing.T) {
	api := newTestAPIServer(t, Options{})

	status, body := doJSONRequest(t, http.MethodGet, api.http.URL+"/api/scan?min_confidence=80&limit=5", nil)
	if status != http.StatusOK {
		t.Fatalf("status=%d, expected 200", status)
	}
	if api.engine.scanMin != 80 || api.engine.scanLimit != 5 {
		t.Fatalf("scan args=%v/%d, expected 80/5", api.engine.scanMin, api.engine.scanLimit)
	}
	resp := decode[struct {
		Count   int               `json:"count"`
		Results []engine.Analysis `json:"results"`
	}](t, body)
	if resp.Count != 1 || resp.Results[0].Symbol != "BTCUSDT" {
		t.Fatalf("scan=%+v, expected only BTCUSDT", resp)
	}

	for _, q := range []string{"min_confidence=120", "min_confidence=x", "limit=-1"} {
		status, _ := doJSONRequest(t, http.MethodGet, api.http.URL+"/api/scan?"+q, nil)
		if status != http.StatusBadRequest {
			t.Fatalf("%s status=%d, expected 400", q, status)
		}
	}
}

func TestClosePosition(t *testing.T) {
	api := newTestAPIServer(t, Options{})

	status, body := doJSONRequest(t, http.MethodPost, api.http.URL+"/api/positions/BTCUSDT/close", nil)
	if status != http.StatusOK {
		t.Fatalf("status=%d, expected 200 (%s)", status, string(body))
	}
	trade := decode[ledger.ClosedTrade](t, body)
	if trade.CloseReason != ledger.ReasonManual || trade.ExitPrice != 107 {
		t.Fatalf("trade=%+v, expected manual close at 107", trade)
	}

	status, body = doJSONRequest(t, http.MethodPost, api.http.URL+"/api/positions/SOLUSDT/close", nil)
	if status != http.StatusNotFound {
		t.Fatalf("status=%d, expected 404", status)
	}
	if code := decode[map[string]string](t, body)["code"]; code != "POSITION_NOT_FOUND" {
		t.Fatalf("code=%q, expected POSITION_NOT_FOUND", code)
	}
}

func TestSignalHistory(t *testing.T) {
	api := newTestAPIServer(t, Options{})
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, sym := range []string{"BTCUSDT", "ETHUSDT", "BTCUSDT"} {
		row := db.SignalRow{Symbol: sym, Direction: "LONG", Confidence: 80 + float64(i), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := api.db.Exec(ctx, db.InsertSignalStmt(row)); err != nil {
			t.Fatalf("insert signal: %v", err)
		}
	}

	status, body := doJSONRequest(t, http.MethodGet, api.http.URL+"/api/signals/btcusdt/history", nil)
	if status != http.StatusOK {
		t.Fatalf("status=%d, expected 200", status)
	}
	rows := decode[[]db.SignalRow](t, body)
	if len(rows) != 2 || rows[0].Confidence != 82 {
		t.Fatalf("rows=%+v, expected 2 BTCUSDT rows newest first", rows)
	}

	status, body = doJSONRequest(t, http.MethodGet, api.http.URL+"/api/signals/all/history?limit=1", nil)
	if status != http.StatusOK {
		t.Fatalf("status=%d, expected 200", status)
	}
	if rows := decode[[]db.SignalRow](t, body); len(rows) != 1 {
		t.Fatalf("rows=%d, expected 1", len(rows))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPIServer(t, Options{})
	api.server.Metrics.IncrementEvaluations()

	status, body := doJSONRequest(t, http.MethodGet, api.http.URL+"/api/metrics", nil)
	if status != http.StatusOK {
		t.Fatalf("status=%d, expected 200", status)
	}
	if !strings.Contains(string(body), `"bus_dropped"`) {
		t.Fatalf("body=%s, expected bus_dropped", string(body))
	}
}

func TestRateLimit(t *testing.T) {
	api := newTestAPIServer(t, Options{RateLimit: 0.001, Burst: 2})

	for i := 0; i < 2; i++ {
		if status, _ := doJSONRequest(t, http.MethodGet, api.http.URL+"/health", nil); status != http.StatusOK {
			t.Fatalf("request %d status=%d, expected 200", i, status)
		}
	}
	status, body := doJSONRequest(t, http.MethodGet, api.http.URL+"/health", nil)
	if status != http.StatusTooManyRequests {
		t.Fatalf("status=%d, expected 429", status)
	}
	if code := decode[map[string]string](t, body)["code"]; code != "RATE_LIMITED" {
		t.Fatalf("code=%q, expected RATE_LIMITED", code)
	}
}

func TestRequestIDEcho(t *testing.T) {
	api := newTestAPIServer(t, Options{})

	req, _ := http.NewRequest(http.MethodGet, api.http.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("X-Request-ID=%q, expected abc-123", got)
	}
}

func TestWebsocketForwardsEvents(t *testing.T) {
	api := newTestAPIServer(t, Options{})

	wsURL := "ws" + strings.TrimPrefix(api.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The handler subscribes after the upgrade, so keep publishing until a frame arrives.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				api.bus.Publish(events.EventCycleCompleted, map[string]int{"evaluated": 3})
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env struct {
		Event   events.Event   `json:"event"`
		Payload map[string]int `json:"payload"`
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Event != events.EventCycleCompleted || env.Payload["evaluated"] != 3 {
		t.Fatalf("envelope=%+v, expected cycle.completed with evaluated=3", env)
	}
}
