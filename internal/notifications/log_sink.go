package notifications

import (
	"context"

	"github.com/angelmondragon/betza-storefront/pkg/logger"
)

// LogSink writes notifications to the structured log.
type LogSink struct {
	logg *logger.Logger
}

func NewLogSink(logg *logger.Logger) *LogSink {
	return &LogSink{logg: logg}
}

func (s *LogSink) Notify(ctx context.Context, n Notification) {
	if s == nil || s.logg == nil {
		return
	}
	fields := map[string]any{"notification_type": string(n.Level)}
	if n.UserID != "" {
		fields["user_id"] = n.UserID
	}
	for k, v := range n.Data {
		fields[k] = v
	}
	ctx = s.logg.WithFields(ctx, fields)
	if n.Level == LevelError {
		s.logg.Warn(ctx, n.Message)
		return
	}
	s.logg.Info(ctx, n.Message)
}
