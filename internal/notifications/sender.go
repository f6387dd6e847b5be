package notifications

import (
	"context"

	"github.com/facetcraft/nyp-backend/pkg/logger"
)

// Sender delivers a rendered notification.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the structured log instead of a carrier.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) Send(ctx context.Context, n Notification) error {
	if s.logg == nil {
		return nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"template":       n.Template,
		"recipient_id":   n.RecipientID.String(),
		"phone_suffix":   phoneSuffix(n.Phone),
		"negotiation_id": n.NegotiationID.String(),
		"text":           n.Text,
	})
	s.logg.Info(ctx, "notification.sent")
	return nil
}

func phoneSuffix(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return phone[len(phone)-4:]
}
