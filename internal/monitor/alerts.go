package monitor

import (
	"time"

	"go.uber.org/zap"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is published on the bus under events.EventRiskAlert.
type Alert struct {
	Kind     string    `json:"kind"`
	Severity Severity  `json:"severity"`
	Symbol   string    `json:"symbol,omitempty"`
	Message  string    `json:"message"`
	Value    float64   `json:"value,omitempty"`
	At       time.Time `json:"at"`
}

// AlertSink interface for pluggable alert delivery.
type AlertSink interface {
	Send(a Alert) error
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Send(a Alert) error {
	fields := []zap.Field{
		zap.String("kind", a.Kind),
		zap.String("symbol", a.Symbol),
		zap.Float64("value", a.Value),
	}
	switch a.Severity {
	case SeverityCritical:
		s.Log.Error("🚨 "+a.Message, fields...)
	case SeverityWarning:
		s.Log.Warn("⚠️ "+a.Message, fields...)
	default:
		s.Log.Info("🔔 "+a.Message, fields...)
	}
	return nil
}
