package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrNonPositiveAmount is returned by Settle for amounts that are zero or negative.
var ErrNonPositiveAmount = errors.New("payment amount must be positive")

type SettlementStore interface {
	FindPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	CreatePayment(ctx context.Context, p *models.Payment) error
	ApplyInvoicePayment(ctx context.Context, purpose models.PaymentPurpose, invoiceID string, amount decimal.Decimal) (models.InvoiceStatus, error)
}

type Settlement struct {
	Payment       *models.Payment
	Created       bool
	InvoiceStatus models.InvoiceStatus
}

// Settler turns a matched notification into exactly one payment row and
// advances the invoice it pays.
type Settler struct {
	store    SettlementStore
	notifier Notifier
	logger   *logrus.Logger
	now      func() time.Time
}

func NewSettler(store SettlementStore, notifier Notifier, logger *logrus.Logger) *Settler {
	if logger == nil {
		logger = config.GetLogger()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &Settler{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// Existing returns the payment already recorded for a transaction, or nil.
func (s *Settler) Existing(ctx context.Context, transactionID string) (*models.Payment, error) {
	p, err := s.store.FindPaymentByTransactionID(ctx, transactionID)
	if errors.Is(err, models.ErrRecordNotFound) {
		return nil, nil
	}
	return p, err
}

// Settle is idempotent on the provider transaction id. A second delivery of
// the same transaction returns the first payment and changes nothing.
func (s *Settler) Settle(ctx context.Context, n *models.InboundNotification, target models.SettlementTarget, parsed *ParsedCallback) (*Settlement, error) {
	if !parsed.Amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	existing, err := s.Existing(ctx, parsed.TransactionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Settlement{Payment: existing}, nil
	}

	payment := &models.Payment{
		TransactionID:  parsed.TransactionID,
		Provider:       n.Source,
		Purpose:        target.Purpose,
		Amount:         parsed.Amount,
		PhoneNumber:    parsed.PhoneNumber,
		Reference:      parsed.Reference,
		InvoiceID:      utils.NilIfEmpty(target.InvoiceID),
		LeaseID:        utils.NilIfEmpty(target.LeaseID),
		TenantID:       utils.NilIfEmpty(target.TenantID),
		LandlordID:     target.LandlordID,
		NotificationID: n.ID,
		PaidAt:         s.now(),
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			// lost a race with a concurrent delivery
			existing, findErr := s.Existing(ctx, parsed.TransactionID)
			if findErr != nil || existing == nil {
				return nil, err
			}
			return &Settlement{Payment: existing}, nil
		}
		return nil, err
	}

	result := &Settlement{Payment: payment, Created: true}
	if target.InvoiceID != "" {
		status, err := s.store.ApplyInvoicePayment(ctx, target.Purpose, target.InvoiceID, parsed.Amount)
		if err != nil {
			config.LogError(s.logger, "workflow", "Settler.Settle", "invoice status update failed", target.InvoiceID, err)
		} else {
			result.InvoiceStatus = status
		}
	}

	correlationID, _ := utils.GetCorrelationIdFromContext(ctx)
	msg := config.PaymentNotificationMessage{
		Event:         PaymentReceivedEvent,
		LandlordId:    target.LandlordID,
		PaymentId:     payment.ID,
		InvoiceId:     target.InvoiceID,
		TenantId:      target.TenantID,
		Purpose:       string(target.Purpose),
		TransactionId: payment.TransactionID,
		Amount:        payment.Amount.StringFixed(2),
		InvoiceStatus: string(result.InvoiceStatus),
		OccurredAt:    payment.PaidAt,
		CorrelationId: correlationID,
	}
	if err := s.notifier.PaymentReceived(ctx, msg); err != nil {
		config.LogError(s.logger, "workflow", "Settler.Settle", "payment notification failed", payment.TransactionID, err)
	}
	return result, nil
}
