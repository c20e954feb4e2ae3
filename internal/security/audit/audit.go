package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/herdsphere/herdsphere/internal/security/middleware"
)

// Logger emits one structured audit record per lifecycle mutation.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (al *Logger) LogAction(ctx context.Context, farmID, userID, action, resource, resourceID, status, details string) {
	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("farm_id", farmID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", middleware.GetRequestID(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

func (al *Logger) LogFarmCreated(ctx context.Context, farmID, userID string) {
	al.LogAction(ctx, farmID, userID, "create", "farm", farmID, "ok", "")
}

func (al *Logger) LogFarmDeleted(ctx context.Context, farmID, userID, status, details string) {
	al.LogAction(ctx, farmID, userID, "delete", "farm", farmID, status, details)
}

func (al *Logger) LogJoin(ctx context.Context, farmID, userID, status string) {
	al.LogAction(ctx, farmID, userID, "join", "farm", farmID, status, "")
}

func (al *Logger) LogLeave(ctx context.Context, farmID, userID, status string) {
	al.LogAction(ctx, farmID, userID, "leave", "farm", farmID, status, "")
}

func (al *Logger) LogStockOverride(ctx context.Context, farmID, userID, kind string) {
	al.LogAction(ctx, farmID, userID, "stock_override", "ledger", kind, "ok", "")
}

func (al *Logger) LogDenied(ctx context.Context, farmID, userID, reason string) {
	al.LogAction(ctx, farmID, userID, "access_denied", "farm", farmID, "denied", reason)
}
