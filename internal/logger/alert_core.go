package logger

import (
	"go.uber.org/zap/zapcore"
)

// AlertSink receives entries flagged as admin alerts.
type AlertSink interface {
	AddAlert(alert Alert)
}

// AlertCore wraps a core and forwards admin alerts to a sink.
type AlertCore struct {
	zapcore.Core
	sink AlertSink
}

func NewAlertCore(baseCore zapcore.Core, sink AlertSink) zapcore.Core {
	return &AlertCore{
		Core: baseCore,
		sink: sink,
	}
}

// With keeps the sink attached to derived loggers.
func (c *AlertCore) With(fields []zapcore.Field) zapcore.Core {
	return &AlertCore{Core: c.Core.With(fields), sink: c.sink}
}

func (c *AlertCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	flagged := false
	for _, f := range fields {
		f.AddTo(enc)
		if f.Key == AdminAlertKey && f.Type == zapcore.BoolType && f.Integer == 1 {
			flagged = true
		}
	}

	if flagged {
		delete(enc.Fields, AdminAlertKey)
		c.sink.AddAlert(Alert{
			Level:   entry.Level,
			Message: entry.Message,
			Caller:  entry.Caller.Function,
			Fields:  enc.Fields,
			At:      entry.Time,
		})
	}

	return c.Core.Write(entry, fields)
}

func (c *AlertCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}
