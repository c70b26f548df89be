package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
)

var tracer = otel.Tracer("rentals-reconciliation")

const callbackLockTTL = 30 * time.Second

type ReconcileStore interface {
	MatchStore
	SettlementStore
	CreateInboundNotification(ctx context.Context, n *models.InboundNotification) error
	UpdateNotification(ctx context.Context, n *models.InboundNotification) error
	FindPendingByCheckoutID(ctx context.Context, checkoutRequestID string) (*models.PendingTransaction, error)
	UpdatePendingStatus(ctx context.Context, id string, status models.PendingStatus, resultDesc, transactionID string) error
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
}

// CallbackOutcome is what one delivery ended up as.
type CallbackOutcome struct {
	NotificationID string
	State          models.NotificationState
	MatchOutcome   models.MatchOutcome
	PaymentID      string
}

type Reconciler struct {
	Tracer  trace.Tracer
	store   ReconcileStore
	matcher *Matcher
	settler *Settler
	locker  *redislock.Client
	logger  *logrus.Logger
	now     func() time.Time
}

// NewReconciler wires the callback pipeline. locker may be nil, in which
// case deliveries are processed without the per-transaction lock.
func NewReconciler(store ReconcileStore, notifier Notifier, locker *redislock.Client, logger *logrus.Logger) *Reconciler {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Reconciler{
		Tracer:  tracer,
		store:   store,
		matcher: NewMatcher(store),
		settler: NewSettler(store, notifier, logger),
		locker:  locker,
		logger:  logger,
		now:     time.Now,
	}
}

// HandleCallback stores the raw delivery before anything else and then walks
// it through parse, match and settle. The only error returned is a failure
// to store the raw payload; everything after that is recorded on the
// notification row instead.
func (r *Reconciler) HandleCallback(ctx context.Context, source string, raw []byte) (*CallbackOutcome, error) {
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	ctx, span := r.Tracer.Start(ctx, "Reconciler.HandleCallback",
		trace.WithAttributes(attribute.String("payment.source", source)))
	defer span.End()

	n := &models.InboundNotification{
		Source:     source,
		RawPayload: rawJSON(raw),
		State:      models.NotificationStateReceived,
	}
	if err := r.store.CreateInboundNotification(ctx, n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "raw payload not stored")
		config.LogError(r.logger, "workflow", "Reconciler.HandleCallback", "storing raw callback", source, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("notification.id", n.ID))

	r.process(ctx, n, raw)

	span.SetAttributes(
		attribute.String("notification.state", string(n.State)),
		attribute.String("match.outcome", string(n.MatchOutcome)),
	)
	out := &CallbackOutcome{
		NotificationID: n.ID,
		State:          n.State,
		MatchOutcome:   n.MatchOutcome,
		PaymentID:      utils.DereferencePtr(n.PaymentID),
	}
	return out, nil
}

func (r *Reconciler) process(ctx context.Context, n *models.InboundNotification, raw []byte) {
	parsed, err := ParseCallback(raw)
	if err != nil {
		n.State = models.NotificationStateFailed
		n.ResultDesc = err.Error()
		r.save(ctx, n)
		return
	}
	n.PayloadShape = parsed.Shape
	n.TransactionID = parsed.TransactionID
	n.CheckoutRequestID = parsed.CheckoutRequestID
	n.Amount = parsed.Amount
	n.Reference = parsed.Reference
	n.PhoneNumber = parsed.PhoneNumber
	n.ResultCode = parsed.ResultCode
	n.ResultDesc = parsed.ResultDesc
	n.State = models.NotificationStateParsed
	r.save(ctx, n)

	pending := r.findPending(ctx, parsed.CheckoutRequestID)

	if !parsed.Success {
		if pending != nil {
			if err := r.store.UpdatePendingStatus(ctx, pending.ID, models.PendingStatusFailed, parsed.ResultDesc, ""); err != nil {
				config.LogError(r.logger, "workflow", "Reconciler.process", "marking pending transaction failed", pending.ID, err)
			}
		}
		n.State = models.NotificationStateFailed
		r.save(ctx, n)
		return
	}
	if parsed.TransactionID == "" {
		n.State = models.NotificationStateFailed
		n.ResultDesc = "successful callback without a transaction id"
		r.save(ctx, n)
		return
	}

	release := r.lock(ctx, parsed.TransactionID)
	defer release()

	if pending != nil {
		if err := r.store.UpdatePendingStatus(ctx, pending.ID, models.PendingStatusCompleted, parsed.ResultDesc, parsed.TransactionID); err != nil {
			config.LogError(r.logger, "workflow", "Reconciler.process", "completing pending transaction", pending.ID, err)
		}
		if parsed.Reference == "" {
			parsed.Reference = pending.AccountReference
			n.Reference = pending.AccountReference
		}
		if parsed.Amount.IsZero() {
			parsed.Amount = pending.Amount
			n.Amount = pending.Amount
		}
	}

	existing, err := r.settler.Existing(ctx, parsed.TransactionID)
	if err != nil {
		config.LogError(r.logger, "workflow", "Reconciler.process", "payment lookup", parsed.TransactionID, err)
		r.save(ctx, n)
		return
	}
	if existing != nil {
		n.MatchOutcome = models.MatchOutcomeDuplicate
		n.LandlordID = utils.NilIfEmpty(existing.LandlordID)
		n.InvoiceID = existing.InvoiceID
		r.markSettled(ctx, n, existing.ID)
		r.logger.WithFields(logrus.Fields{
			"module":          "workflow",
			"notification_id": n.ID,
			"transaction_id":  parsed.TransactionID,
			"payment_id":      existing.ID,
		}).Info("callback replay; payment already recorded")
		return
	}

	// A payment row would consume the transaction id, so a later corrected
	// delivery could never settle.
	if !parsed.Amount.IsPositive() {
		n.MatchOutcome = models.MatchOutcomeInvalidAmount
		n.State = models.NotificationStateUnmatched
		r.save(ctx, n)
		r.logger.WithFields(logrus.Fields{
			"module":          "workflow",
			"notification_id": n.ID,
			"transaction_id":  parsed.TransactionID,
			"amount":          parsed.Amount.String(),
		}).Warn("callback amount is not positive; left for review")
		return
	}

	if pending != nil {
		if target, ok := r.pendingTarget(ctx, pending); ok {
			n.MatchOutcome = models.MatchOutcomePendingTx
			r.settle(ctx, n, target, parsed)
			return
		}
	}

	res, err := r.matcher.Match(ctx, parsed.Reference, parsed.MerchantCode, parsed.Amount)
	if err != nil {
		config.LogError(r.logger, "workflow", "Reconciler.process", "matching reference", parsed.Reference, err)
		return
	}
	n.MatchOutcome = res.Outcome
	n.LandlordID = utils.NilIfEmpty(res.LandlordID)
	if res.Outcome.Unmatched() {
		n.State = models.NotificationStateUnmatched
		r.save(ctx, n)
		r.logger.WithFields(logrus.Fields{
			"module":          "workflow",
			"notification_id": n.ID,
			"transaction_id":  parsed.TransactionID,
			"reference":       parsed.Reference,
			"outcome":         res.Outcome,
		}).Warn("callback left unmatched")
		return
	}
	r.settle(ctx, n, res.Target(), parsed)
}

func (r *Reconciler) settle(ctx context.Context, n *models.InboundNotification, target models.SettlementTarget, parsed *ParsedCallback) {
	n.State = models.NotificationStateMatched
	n.LandlordID = utils.NilIfEmpty(target.LandlordID)
	n.InvoiceID = utils.NilIfEmpty(target.InvoiceID)
	r.save(ctx, n)

	s, err := r.settler.Settle(ctx, n, target, parsed)
	if err != nil {
		config.LogError(r.logger, "workflow", "Reconciler.settle", "settling payment", parsed.TransactionID, err)
		return
	}
	if !s.Created {
		n.MatchOutcome = models.MatchOutcomeDuplicate
	}
	r.markSettled(ctx, n, s.Payment.ID)
	r.logger.WithFields(logrus.Fields{
		"module":          "workflow",
		"notification_id": n.ID,
		"transaction_id":  parsed.TransactionID,
		"payment_id":      s.Payment.ID,
		"invoice_id":      target.InvoiceID,
		"invoice_status":  s.InvoiceStatus,
		"outcome":         n.MatchOutcome,
	}).Info("payment settled")
}

func (r *Reconciler) markSettled(ctx context.Context, n *models.InboundNotification, paymentID string) {
	now := r.now()
	n.State = models.NotificationStateSettled
	n.Processed = true
	n.PaymentID = &paymentID
	n.ProcessedAt = &now
	r.save(ctx, n)
}

// pendingTarget settles an STK payment against what was recorded at
// initiation. Invoice purposes without an invoice id fall back to matching.
func (r *Reconciler) pendingTarget(ctx context.Context, p *models.PendingTransaction) (models.SettlementTarget, bool) {
	target := models.SettlementTarget{
		Purpose:    p.Purpose,
		LandlordID: p.LandlordID,
	}
	if !p.Purpose.RequiresInvoice() {
		return target, true
	}
	target.InvoiceID = utils.DereferencePtr(p.InvoiceID)
	if target.InvoiceID == "" {
		return target, false
	}

	var meta models.PendingMetadata
	if len(p.Metadata) > 0 {
		if err := json.Unmarshal(p.Metadata, &meta); err != nil {
			config.LogError(r.logger, "workflow", "Reconciler.pendingTarget", "decoding pending metadata", p.ID, err)
		}
	}
	target.LeaseID = meta.LeaseID
	target.TenantID = meta.TenantID
	if p.Purpose == models.PaymentPurposeRent && target.LeaseID == "" {
		inv, err := r.store.GetInvoice(ctx, target.InvoiceID)
		if err != nil {
			config.LogError(r.logger, "workflow", "Reconciler.pendingTarget", "loading rent invoice", target.InvoiceID, err)
		} else {
			target.LeaseID = inv.LeaseID
			target.TenantID = inv.TenantID
			if target.LandlordID == "" {
				target.LandlordID = inv.LandlordID
			}
		}
	}
	return target, true
}

func (r *Reconciler) findPending(ctx context.Context, checkoutRequestID string) *models.PendingTransaction {
	if checkoutRequestID == "" {
		return nil
	}
	p, err := r.store.FindPendingByCheckoutID(ctx, checkoutRequestID)
	if err != nil {
		if !errors.Is(err, models.ErrRecordNotFound) {
			config.LogError(r.logger, "workflow", "Reconciler.findPending", "pending transaction lookup", checkoutRequestID, err)
		}
		return nil
	}
	return p
}

// lock takes a best-effort Redis lock on the transaction id. Settlement stays
// correct without it; the lock only keeps concurrent redeliveries from doing
// the same work twice.
func (r *Reconciler) lock(ctx context.Context, transactionID string) func() {
	if r.locker == nil || !config.CallbackRedisLockEnabled() {
		return func() {}
	}
	fields := logrus.Fields{
		"module":         "workflow",
		"funcName":       "Reconciler.lock",
		"transaction_id": transactionID,
	}
	lock, err := r.locker.Obtain(ctx, "callback:"+transactionID, callbackLockTTL, nil)
	if err == redislock.ErrNotObtained {
		r.logger.WithFields(fields).Warn("could not obtain callback lock; proceeding without redis lock")
		return func() {}
	} else if err != nil {
		r.logger.WithFields(fields).Warn("error obtaining callback lock; proceeding without redis lock: " + err.Error())
		return func() {}
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && err != redislock.ErrLockNotHeld {
			r.logger.WithFields(fields).Warn("releasing callback lock: " + err.Error())
		}
	}
}

func (r *Reconciler) save(ctx context.Context, n *models.InboundNotification) {
	if err := r.store.UpdateNotification(ctx, n); err != nil {
		config.LogError(r.logger, "workflow", "Reconciler.save", "updating notification "+string(n.State), n.ID, err)
	}
}

// rawJSON keeps non-JSON bodies storable by wrapping them as a JSON string.
func rawJSON(raw []byte) datatypes.JSON {
	if json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	b, _ := json.Marshal(string(raw))
	return datatypes.JSON(b)
}
