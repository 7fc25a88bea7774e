package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestApplyMigrationsIdempotent(t *testing.T) {
	database := newTestDB(t)
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("second ApplyMigrations: %v", err)
	}
	ok, err := columnExists(database.DB, "signal_log", "actionable")
	if err != nil || !ok {
		t.Fatalf("actionable column missing: ok=%v err=%v", ok, err)
	}
}

func TestPositionUpsertAndDelete(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	opened := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	row := PositionRow{
		ID: "p1", Symbol: "BTCUSDT", Direction: "LONG",
		EntryPrice: 100, StopLoss: 97, TakeProfit: 107, Size: 10, MarginUsed: 100,
		Confidence: 85, OpenedAt: opened, UpdatedAt: opened,
	}
	if err := database.Exec(ctx, UpsertPositionStmt(row)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	row.CurrentPrice = 102
	row.UnrealizedPnL = 20
	if err := database.Exec(ctx, UpsertPositionStmt(row)); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := database.ListPositions(ctx)
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len=%d, expected 1", len(got))
	}
	if got[0].UnrealizedPnL != 20 || got[0].CurrentPrice != 102 || !got[0].OpenedAt.Equal(opened) {
		t.Fatalf("unexpected row %+v", got[0])
	}

	if err := database.Exec(ctx, DeletePositionStmt("BTCUSDT")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ = database.ListPositions(ctx)
	if len(got) != 0 {
		t.Fatalf("len=%d after delete, expected 0", len(got))
	}
}

func TestClosedTradesOrderingAndLimit(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		row := ClosedTradeRow{
			ID: id, Symbol: "ETHUSDT", Direction: "SHORT", EntryPrice: 100, ExitPrice: 95,
			Size: 1, MarginUsed: 10, RealizedPnL: 5, ReturnPct: 50, CloseReason: "TakeProfitHit",
			OpenedAt: base, ClosedAt: base.Add(time.Duration(i+1) * time.Hour),
		}
		if err := database.Exec(ctx, InsertClosedTradeStmt(row)); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	// duplicate ids are ignored
	if err := database.Exec(ctx, InsertClosedTradeStmt(ClosedTradeRow{ID: "a", ClosedAt: base})); err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}

	all, err := database.ListClosedTrades(ctx, 0)
	if err != nil {
		t.Fatalf("ListClosedTrades: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[2].ID != "c" {
		t.Fatalf("unexpected order %+v", all)
	}

	recent, _ := database.ListClosedTrades(ctx, 2)
	if len(recent) != 2 || recent[0].ID != "b" || recent[1].ID != "c" {
		t.Fatalf("limit=2 gave %+v, expected [b c]", recent)
	}
}

func TestPortfolioSaveLoad(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	if _, err := database.LoadPortfolio(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, expected ErrNotFound", err)
	}

	p := PortfolioRow{StartingBalance: 10000, Cash: 9000, PeakEquity: 10100, TotalTrades: 2, WinningTrades: 1, LosingTrades: 1, Version: 5}
	if err := database.Exec(ctx, SavePortfolioStmt(p)); err != nil {
		t.Fatalf("save: %v", err)
	}

	stale := p
	stale.Cash = 1
	stale.Version = 3
	if err := database.Exec(ctx, SavePortfolioStmt(stale)); err != nil {
		t.Fatalf("stale save: %v", err)
	}

	got, err := database.LoadPortfolio(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Cash != 9000 || got.Version != 5 || got.WinningTrades != 1 {
		t.Fatalf("got %+v, expected version 5 state to win over stale write", got)
	}
}

func TestSignalLog(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, sym := range []string{"BTCUSDT", "ETHUSDT", "BTCUSDT"} {
		s := SignalRow{
			Symbol: sym, Direction: "LONG", Confidence: 80 + float64(i), FastDirection: "LONG",
			SlowDirection: "LONG", Price: 100, Reasons: "Strong alignment", Actionable: i == 2,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}
		if err := database.Exec(ctx, InsertSignalStmt(s)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	btc, err := database.ListSignals(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(btc) != 2 || btc[0].Confidence != 82 || !btc[0].Actionable || btc[1].Actionable {
		t.Fatalf("unexpected BTC signals %+v", btc)
	}

	all, _ := database.ListSignals(ctx, "", 10)
	if len(all) != 3 {
		t.Fatalf("len=%d, expected 3", len(all))
	}
}

func TestNewCreatesFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "signals.db")
	database, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer database.Close()

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}
	if database.Path != path {
		t.Fatalf("Path=%q, expected %q", database.Path, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	if _, err := New(""); err == nil {
		t.Fatalf("empty path should fail")
	}
}
