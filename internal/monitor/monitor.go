package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"signal-core/internal/events"
	"signal-core/internal/ledger"
	"signal-core/pkg/logger"
)

// Monitor watches ledger events, raises alerts and forwards them to sinks.
type Monitor struct {
	Bus   *events.Bus
	Sinks []AlertSink
	Rules *RuleEvaluator
	Log   *zap.Logger

	now func() time.Time
}

// Start subscribes to the bus and returns immediately; the loop ends with ctx.
// Received alerts are delivered to every sink; alerts derived from ledger events
// are republished on EventRiskAlert for dashboard subscribers.
func (m *Monitor) Start(ctx context.Context) {
	log := logger.OrNop(m.Log)
	if m.Bus == nil || len(m.Sinks) == 0 {
		log.Warn("monitor not fully configured; skipping")
		return
	}
	if m.Rules == nil {
		m.Rules = &RuleEvaluator{}
	}
	if m.now == nil {
		m.now = time.Now
	}

	stream, unsub := m.Bus.SubscribeMany([]events.Event{
		events.EventPositionClosed,
		events.EventLedgerSnapshot,
		events.EventRiskAlert,
	}, 100)

	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-stream:
				if !ok {
					return
				}
				m.handle(env, log)
			}
		}
	}()
}

func (m *Monitor) handle(env events.Envelope, log *zap.Logger) {
	switch p := env.Payload.(type) {
	case ledger.ClosedTrade:
		m.Bus.Publish(events.EventRiskAlert, m.Rules.CheckClose(p, m.now()))
	case ledger.Snapshot:
		if a, ok := m.Rules.CheckSnapshot(p, m.now()); ok {
			m.Bus.Publish(events.EventRiskAlert, a)
		}
	case Alert:
		m.deliver(p, log)
	}
}

func (m *Monitor) deliver(a Alert, log *zap.Logger) {
	for _, s := range m.Sinks {
		if err := s.Send(a); err != nil {
			log.Warn("alert sink failed", zap.String("kind", a.Kind), zap.Error(err))
		}
	}
}
