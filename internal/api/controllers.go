package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signal-core/internal/ledger"
	"signal-core/internal/market"
)

const (
	defaultTradeLimit   = 50
	defaultHistoryLimit = 100
	defaultScanLimit    = 10
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{"code": code, "error": msg})
}

func normalizeSymbol(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// GET /api/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.GetSystemStatus(c.Request.Context()))
}

// GET /api/metrics
func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_DISABLED", "metrics not enabled")
		return
	}
	resp := gin.H{"engine": s.Metrics.GetSnapshot()}
	if s.Bus != nil {
		resp["bus_dropped"] = s.Bus.Dropped()
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/snapshot
func (s *Server) getSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Snapshot())
}

// GET /api/positions
func (s *Server) getPositions(c *gin.Context) {
	positions := s.Engine.Snapshot().OpenPositions
	if positions == nil {
		positions = []ledger.Position{}
	}
	c.JSON(http.StatusOK, positions)
}

// GET /api/trades?limit=N returns the most recent N closed trades, newest first.
func (s *Server) getTrades(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultTradeLimit)
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
		return
	}

	trades := s.Engine.Snapshot().ClosedTrades
	out := make([]ledger.ClosedTrade, 0, len(trades))
	for i := len(trades) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, trades[i])
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/portfolio
func (s *Server) getPortfolio(c *gin.Context) {
	snap := s.Engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"version":   snap.Version,
		"summary":   snap.Summary,
		"portfolio": snap.Portfolio,
	})
}

// GET /api/signals/:symbol runs a live evaluation without touching the ledger.
func (s *Server) getSignal(c *gin.Context) {
	symbol := normalizeSymbol(c)
	if symbol == "" {
		respondError(c, http.StatusBadRequest, "INVALID_SYMBOL", "symbol is required")
		return
	}

	analysis, err := s.Engine.Evaluate(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, market.ErrDataUnavailable) {
			respondError(c, http.StatusServiceUnavailable, "DATA_UNAVAILABLE", err.Error())
			return
		}
		s.Log.Error("evaluate failed", zap.String("symbol", symbol), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "EVALUATION_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// GET /api/signals/:symbol/history?limit=N
func (s *Server) getSignalHistory(c *gin.Context) {
	if s.DB == nil {
		respondError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "signal history requires persistence")
		return
	}
	limit, ok := queryInt(c, "limit", defaultHistoryLimit)
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
		return
	}

	symbol := normalizeSymbol(c)
	if symbol == "ALL" {
		symbol = ""
	}
	rows, err := s.DB.ListSignals(c.Request.Context(), symbol, limit)
	if err != nil {
		s.Log.Error("list signals failed", zap.String("symbol", symbol), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "DB_ERROR", "failed to load signal history")
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GET /api/scan?min_confidence=80&limit=10
func (s *Server) scan(c *gin.Context) {
	minConf := 0.0
	if raw := c.Query("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 100 {
			respondError(c, http.StatusBadRequest, "INVALID_CONFIDENCE", "min_confidence must be within [0,100]")
			return
		}
		minConf = v
	}
	limit, ok := queryInt(c, "limit", defaultScanLimit)
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
		return
	}

	results, err := s.Engine.Scan(c.Request.Context(), minConf, limit)
	if err != nil {
		s.Log.Error("scan failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "SCAN_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(results), "results": results})
}

// POST /api/positions/:symbol/close
func (s *Server) closePosition(c *gin.Context) {
	symbol := normalizeSymbol(c)

	trade, err := s.Engine.ClosePosition(c.Request.Context(), symbol)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrPositionNotFound):
			respondError(c, http.StatusNotFound, "POSITION_NOT_FOUND", err.Error())
		case errors.Is(err, market.ErrDataUnavailable):
			respondError(c, http.StatusServiceUnavailable, "DATA_UNAVAILABLE", err.Error())
		case ledger.IsViolation(err):
			respondError(c, http.StatusConflict, "CLOSE_REJECTED", err.Error())
		default:
			s.Log.Error("manual close failed", zap.String("symbol", symbol), zap.Error(err))
			respondError(c, http.StatusInternalServerError, "CLOSE_FAILED", err.Error())
		}
		return
	}

	s.Log.Info("🖐️ manual close", zap.String("symbol", symbol), zap.Float64("exit", trade.ExitPrice), zap.Float64("pnl", trade.RealizedPnL))
	c.JSON(http.StatusOK, trade)
}
