package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRecordNotFound = gorm.ErrRecordNotFound
	ErrDuplicate      = errors.New("duplicate record")
)

// PaymentStore is the gorm-backed persistence for initiation, reconciliation
// and settlement. Consumers depend on their own narrow interfaces.
type PaymentStore struct {
	db *gorm.DB
}

func NewPaymentStore(db *gorm.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate entry")
}

func (s *PaymentStore) FindInvoiceAccess(ctx context.Context, invoiceID string) (*InvoiceAccess, error) {
	var row struct {
		InvoiceID         string
		LeaseID           string
		TenantID          string
		TenantUserID      string
		PropertyOwnerID   string
		PropertyManagerID *string
		Amount            decimal.Decimal
		Status            InvoiceStatus
	}
	err := s.db.WithContext(ctx).
		Table("invoices").
		Select(`invoices.id AS invoice_id, invoices.lease_id, invoices.tenant_id, tenants.user_id AS tenant_user_id,
			properties.owner_id AS property_owner_id, properties.manager_id AS property_manager_id,
			invoices.amount, invoices.status`).
		Joins("JOIN leases ON leases.id = invoices.lease_id").
		Joins("JOIN units ON units.id = leases.unit_id").
		Joins("JOIN properties ON properties.id = units.property_id").
		Joins("LEFT JOIN tenants ON tenants.id = invoices.tenant_id").
		Where("invoices.id = ?", invoiceID).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	access := &InvoiceAccess{
		InvoiceID:       row.InvoiceID,
		LeaseID:         row.LeaseID,
		TenantID:        row.TenantID,
		TenantUserID:    row.TenantUserID,
		PropertyOwnerID: row.PropertyOwnerID,
		Amount:          row.Amount,
		Status:          row.Status,
	}
	if row.PropertyManagerID != nil {
		access.PropertyManagerID = *row.PropertyManagerID
	}
	return access, nil
}

func (s *PaymentStore) GetServiceChargeInvoice(ctx context.Context, id string) (*ServiceChargeInvoice, error) {
	var inv ServiceChargeInvoice
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *PaymentStore) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	var inv Invoice
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// ActiveProviderConfigs returns every active row, newest first.
func (s *PaymentStore) ActiveProviderConfigs(ctx context.Context, landlordID string, family ProviderFamily) ([]LandlordProviderConfig, error) {
	var rows []LandlordProviderConfig
	err := s.db.WithContext(ctx).
		Where("landlord_id = ? AND provider = ? AND is_active = ?", landlordID, family, true).
		Order("updated_at DESC").Order("id DESC").
		Find(&rows).Error
	return rows, err
}

func (s *PaymentStore) ProviderConfigs(ctx context.Context) ([]LandlordProviderConfig, error) {
	var rows []LandlordProviderConfig
	err := s.db.WithContext(ctx).Order("created_at").Find(&rows).Error
	return rows, err
}

// UpdateProviderConfigSecrets rewrites only the encrypted columns.
func (s *PaymentStore) UpdateProviderConfigSecrets(ctx context.Context, cfg *LandlordProviderConfig) error {
	return s.db.WithContext(ctx).Model(&LandlordProviderConfig{}).
		Where("id = ?", cfg.ID).
		Updates(map[string]interface{}{
			"consumer_key":    cfg.ConsumerKey,
			"consumer_secret": cfg.ConsumerSecret,
			"passkey":         cfg.Passkey,
			"client_id":       cfg.ClientID,
			"client_secret":   cfg.ClientSecret,
		}).Error
}

func (s *PaymentStore) GetPaymentPreference(ctx context.Context, landlordID string) (*LandlordPaymentPreference, error) {
	var pref LandlordPaymentPreference
	if err := s.db.WithContext(ctx).Where("landlord_id = ?", landlordID).Take(&pref).Error; err != nil {
		return nil, err
	}
	return &pref, nil
}

func (s *PaymentStore) SavePaymentPreference(ctx context.Context, landlordID string, mode PreferenceMode) error {
	pref := LandlordPaymentPreference{LandlordID: landlordID, Mode: mode}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "landlord_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"mode", "updated_at"}),
	}).Create(&pref).Error
}

func (s *PaymentStore) CreatePendingTransaction(ctx context.Context, tx *PendingTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Create(tx).Error
	if isDuplicateKeyErr(err) {
		return ErrDuplicate
	}
	return err
}

func (s *PaymentStore) FindPendingByCheckoutID(ctx context.Context, checkoutRequestID string) (*PendingTransaction, error) {
	var tx PendingTransaction
	if err := s.db.WithContext(ctx).Where("checkout_request_id = ?", checkoutRequestID).Take(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdatePendingStatus only moves rows out of pending; a completed row stays completed.
func (s *PaymentStore) UpdatePendingStatus(ctx context.Context, id string, status PendingStatus, resultDesc, transactionID string) error {
	updates := map[string]interface{}{
		"status":      status,
		"result_desc": resultDesc,
	}
	if transactionID != "" {
		updates["transaction_id"] = transactionID
	}
	return s.db.WithContext(ctx).Model(&PendingTransaction{}).
		Where("id = ? AND status = ?", id, PendingStatusPending).
		Updates(updates).Error
}

func (s *PaymentStore) CreateInboundNotification(ctx context.Context, n *InboundNotification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(n).Error
}

func (s *PaymentStore) UpdateNotification(ctx context.Context, n *InboundNotification) error {
	return s.db.WithContext(ctx).Model(n).Select(NotificationStateColumns).Updates(n).Error
}

// ReviewStaleAfter is how long a notification may sit mid-pipeline before
// the review queue treats it as stuck.
const ReviewStaleAfter = 5 * time.Minute

type UnmatchedFilter struct {
	LandlordID string
	Outcome    MatchOutcome
	Since      *time.Time
	Limit      int
}

// ListUnmatchedNotifications returns the manual review queue, newest first:
// unmatched rows, rows settled on a heuristic invoice pick, and rows stuck
// before settlement after a store error. Landlord requests are scoped by the
// landlord guard from the context; LandlordID is the admin filter.
func (s *PaymentStore) ListUnmatchedNotifications(ctx context.Context, filter UnmatchedFilter) ([]InboundNotification, error) {
	var rows []InboundNotification
	err := s.db.WithContext(ctx).Scopes(ReviewQueueScope(filter, time.Now())).Find(&rows).Error
	return rows, err
}

// ReviewQueueScope builds the review queue query as of now.
func ReviewQueueScope(filter UnmatchedFilter, now time.Time) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		q = q.Where("(state = ? OR match_outcome = ? OR (state IN ? AND created_at < ?))",
			NotificationStateUnmatched,
			MatchOutcomeMatchedHeuristic,
			[]NotificationState{NotificationStateReceived, NotificationStateParsed, NotificationStateMatched},
			now.Add(-ReviewStaleAfter),
		)
		if filter.LandlordID != "" {
			q = q.Where("landlord_id = ?", filter.LandlordID)
		}
		if filter.Outcome != "" {
			q = q.Where("match_outcome = ?", filter.Outcome)
		}
		if filter.Since != nil {
			q = q.Where("created_at >= ?", *filter.Since)
		}
		limit := filter.Limit
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		return q.Order("created_at DESC").Limit(limit)
	}
}

// LandlordsByMerchantCode returns the distinct landlords whose active
// configuration carries the given shortcode or till.
func (s *PaymentStore) LandlordsByMerchantCode(ctx context.Context, code string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&LandlordProviderConfig{}).
		Where("is_active = ?", true).
		Where("shortcode = ? OR till_number = ? OR till_number = ?", code, code, "K"+code).
		Distinct().Pluck("landlord_id", &ids).Error
	return ids, err
}

func (s *PaymentStore) FindUnitsByNumber(ctx context.Context, unitNumber, landlordID string) ([]UnitMatch, error) {
	var rows []UnitMatch
	q := s.db.WithContext(ctx).Table("units").
		Select("units.id AS unit_id, units.unit_number, units.property_id, properties.owner_id").
		Joins("JOIN properties ON properties.id = units.property_id").
		Where("LOWER(units.unit_number) = ?", strings.ToLower(strings.TrimSpace(unitNumber)))
	if landlordID != "" {
		q = q.Where("properties.owner_id = ?", landlordID)
	}
	err := q.Scan(&rows).Error
	return rows, err
}

func (s *PaymentStore) ActiveLeasesForUnit(ctx context.Context, unitID string) ([]Lease, error) {
	var rows []Lease
	err := s.db.WithContext(ctx).
		Where("unit_id = ? AND status = ?", unitID, LeaseStatusActive).
		Order("start_date DESC").
		Find(&rows).Error
	return rows, err
}

// PendingInvoicesForLease returns pending invoices, oldest due date first.
func (s *PaymentStore) PendingInvoicesForLease(ctx context.Context, leaseID string) ([]Invoice, error) {
	var rows []Invoice
	err := s.db.WithContext(ctx).
		Where("lease_id = ? AND status = ?", leaseID, InvoiceStatusPending).
		Order("due_date ASC").Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (s *PaymentStore) FindPaymentByTransactionID(ctx context.Context, transactionID string) (*Payment, error) {
	var p Payment
	if err := s.db.WithContext(ctx).Where("transaction_id = ?", transactionID).Take(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PaymentStore) CreatePayment(ctx context.Context, p *Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Create(p).Error
	if isDuplicateKeyErr(err) {
		return ErrDuplicate
	}
	return err
}

// ApplyInvoicePayment adds amount to the invoice's amount_paid and moves its
// status forward. The row is locked for the duration of the update.
func (s *PaymentStore) ApplyInvoicePayment(ctx context.Context, purpose PaymentPurpose, invoiceID string, amount decimal.Decimal) (InvoiceStatus, error) {
	var status InvoiceStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var table string
		var current struct {
			Amount     decimal.Decimal
			AmountPaid decimal.Decimal
			Status     InvoiceStatus
		}
		switch purpose {
		case PaymentPurposeServiceCharge:
			table = "service_charge_invoices"
		default:
			table = "invoices"
		}
		if err := tx.Table(table).Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("amount, amount_paid, status").
			Where("id = ?", invoiceID).
			Take(&current).Error; err != nil {
			return err
		}
		paid := current.AmountPaid.Add(amount)
		status = current.Status.Advance(NextInvoiceStatus(current.Amount, paid))
		return tx.Table(table).Where("id = ?", invoiceID).Updates(map[string]interface{}{
			"amount_paid": paid,
			"status":      status,
		}).Error
	})
	return status, err
}

// NextInvoiceStatus is paid once the cumulative amount covers the invoice.
func NextInvoiceStatus(invoiceAmount, paid decimal.Decimal) InvoiceStatus {
	if paid.GreaterThanOrEqual(invoiceAmount) {
		return InvoiceStatusPaid
	}
	if paid.IsPositive() {
		return InvoiceStatusPartial
	}
	return InvoiceStatusPending
}
