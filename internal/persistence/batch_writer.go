package persistence

import (
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"signal-core/pkg/db"
	"signal-core/pkg/logger"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 500 * time.Millisecond
)

// BatchWriter groups statements into SQLite transactions. Statements handed
// over together through WriteBatch form a unit: a flush commits every queued
// unit in one transaction, so a unit is never split across commits.
type BatchWriter struct {
	conn     *sql.DB
	log      *zap.Logger
	maxSize  int
	interval time.Duration

	mu      sync.Mutex
	units   [][]db.Statement
	queued  int // statements across units
	metrics BatchWriterMetrics

	flushMu   sync.Mutex // serializes commits in queue order
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// BatchWriterMetrics reports commit statistics.
type BatchWriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// NewBatchWriter starts a writer that commits once maxSize statements are
// queued or every interval, whichever comes first.
func NewBatchWriter(conn *sql.DB, log *zap.Logger, maxSize int, interval time.Duration) *BatchWriter {
	if maxSize <= 0 {
		maxSize = defaultBatchSize
	}
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	bw := &BatchWriter{
		conn:     conn,
		log:      logger.OrNop(log),
		maxSize:  maxSize,
		interval: interval,
		done:     make(chan struct{}),
	}
	bw.wg.Add(1)
	go bw.loop()
	return bw
}

// Write queues a single statement as its own unit.
func (bw *BatchWriter) Write(op db.Statement) {
	bw.WriteBatch([]db.Statement{op})
}

// WriteBatch queues ops as one unit. The unit may push the queue past maxSize;
// it is then committed whole together with everything queued before it.
func (bw *BatchWriter) WriteBatch(ops []db.Statement) {
	if len(ops) == 0 {
		return
	}
	unit := make([]db.Statement, len(ops))
	copy(unit, ops)

	bw.mu.Lock()
	bw.units = append(bw.units, unit)
	bw.queued += len(unit)
	full := bw.queued >= bw.maxSize
	bw.mu.Unlock()

	if full {
		if err := bw.Flush(); err != nil {
			bw.log.Warn("⚠️ batch writer: size-triggered flush failed", zap.Error(err))
		}
	}
}

// Flush commits every queued unit in a single transaction.
func (bw *BatchWriter) Flush() error {
	bw.flushMu.Lock()
	defer bw.flushMu.Unlock()

	bw.mu.Lock()
	units, n := bw.units, bw.queued
	bw.units, bw.queued = nil, 0
	bw.mu.Unlock()

	if n == 0 {
		return nil
	}
	err := bw.commit(units)

	bw.mu.Lock()
	bw.metrics.TotalBatches++
	bw.metrics.TotalWrites += uint64(n)
	bw.metrics.LastBatchSize = n
	bw.metrics.LastFlushTime = time.Now()
	if err != nil {
		bw.metrics.TotalErrors++
	}
	bw.mu.Unlock()
	return err
}

func (bw *BatchWriter) commit(units [][]db.Statement) error {
	tx, err := bw.conn.Begin()
	if err != nil {
		bw.log.Error("❌ batch writer: begin transaction failed", zap.Error(err))
		return err
	}
	for _, unit := range units {
		for _, op := range unit {
			if _, err := tx.Exec(op.Query, op.Args...); err != nil {
				_ = tx.Rollback()
				bw.log.Error("❌ batch writer: statement failed, rolled back",
					zap.String("table", op.Table), zap.Int("units", len(units)), zap.Error(err))
				return err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		bw.log.Error("❌ batch writer: commit failed", zap.Error(err))
		return err
	}
	bw.log.Debug("💾 batch writer: committed", zap.Int("units", len(units)))
	return nil
}

func (bw *BatchWriter) loop() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := bw.Flush(); err != nil {
				bw.log.Warn("⚠️ batch writer: periodic flush failed", zap.Error(err))
			}
		case <-bw.done:
			if err := bw.Flush(); err != nil {
				bw.log.Warn("⚠️ batch writer: final flush failed", zap.Error(err))
			}
			return
		}
	}
}

// Pending returns the number of queued statements.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.queued
}

// GetMetrics returns a copy of the commit statistics.
func (bw *BatchWriter) GetMetrics() BatchWriterMetrics {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.metrics
}

// Close stops the periodic loop after a final flush. Safe to call twice.
func (bw *BatchWriter) Close() error {
	bw.closeOnce.Do(func() { close(bw.done) })
	bw.wg.Wait()
	return nil
}
