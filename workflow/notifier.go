package workflow

import (
	"context"

	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/sirupsen/logrus"
)

const PaymentReceivedEvent = "payment.received"

// Notifier tells the landlord-facing notification service about a settled
// payment. Delivery is best-effort.
type Notifier interface {
	PaymentReceived(ctx context.Context, msg config.PaymentNotificationMessage) error
}

type PubSubNotifier struct {
	logger *logrus.Logger
}

func NewPubSubNotifier(logger *logrus.Logger) *PubSubNotifier {
	return &PubSubNotifier{logger: logger}
}

func (n *PubSubNotifier) PaymentReceived(ctx context.Context, msg config.PaymentNotificationMessage) error {
	id, err := config.PublishPaymentNotification(ctx, msg)
	if err != nil {
		return err
	}
	n.logger.WithFields(logrus.Fields{
		"module":         "workflow",
		"message_id":     id,
		"landlord_id":    msg.LandlordId,
		"transaction_id": msg.TransactionId,
	}).Info("payment notification published")
	return nil
}

// LogNotifier is used when no notification topic is configured.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) PaymentReceived(_ context.Context, msg config.PaymentNotificationMessage) error {
	n.logger.WithFields(logrus.Fields{
		"module":         "workflow",
		"event":          msg.Event,
		"landlord_id":    msg.LandlordId,
		"invoice_id":     msg.InvoiceId,
		"transaction_id": msg.TransactionId,
		"amount":         msg.Amount,
	}).Info("payment received")
	return nil
}

// NotifierFromEnv publishes to Pub/Sub when PAYMENT_NOTIFICATIONS_TOPIC is set.
func NotifierFromEnv(logger *logrus.Logger) Notifier {
	if config.PaymentNotificationsTopic() != "" {
		return NewPubSubNotifier(logger)
	}
	return NewLogNotifier(logger)
}
