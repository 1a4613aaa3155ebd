package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/hackgods/smart-appointment-scheduling/pkg/logging"
)

// LogHandler writes notifications to the log. Used when no queue is configured.
type LogHandler struct {
	logger *zap.Logger
}

func NewLogHandler(logger *zap.Logger) *LogHandler {
	return &LogHandler{logger: logging.OrNop(logger)}
}

func (h *LogHandler) Handle(_ context.Context, msg Message) error {
	fields := []zap.Field{
		zap.String("notification_id", msg.ID.String()),
		zap.String("user_id", msg.UserID.String()),
		zap.String("type", msg.Type),
		zap.String("priority", string(msg.Priority)),
		zap.String("message", msg.Body),
	}
	if msg.AppointmentID != nil {
		fields = append(fields, zap.String("appointment_id", msg.AppointmentID.String()))
	}
	h.logger.Info("notification", fields...)
	return nil
}
