package repository

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// QueryLogger is a bun query hook that logs every statement with its duration.
type QueryLogger struct {
	logger *zap.Logger
}

var _ bun.QueryHook = (*QueryLogger)(nil)

// NewQueryLogger logs statements at debug level on a child logger named sql.
func NewQueryLogger(logger *zap.Logger) *QueryLogger {
	return &QueryLogger{logger: logger.Named("sql")}
}

func (h *QueryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	fields := []zap.Field{
		zap.String("operation", event.Operation()),
		zap.String("query", event.Query),
		zap.Duration("duration", time.Since(event.StartTime)),
	}
	if event.Err != nil {
		h.logger.Debug("query failed", append(fields, zap.Error(event.Err))...)
		return
	}
	h.logger.Debug("query", fields...)
}
