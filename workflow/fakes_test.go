package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/shopspring/decimal"
)

type appliedPayment struct {
	purpose   models.PaymentPurpose
	invoiceID string
	amount    decimal.Decimal
}

type fakeStore struct {
	mu            sync.Mutex
	notifications map[string]models.InboundNotification
	merchants     map[string][]string
	units         []models.UnitMatch
	leases        map[string][]models.Lease
	invoices      map[string]*models.Invoice
	pending       map[string]*models.PendingTransaction
	payments      map[string]*models.Payment
	applied       []appliedPayment
	createErr     error
	seq           int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		notifications: map[string]models.InboundNotification{},
		merchants:     map[string][]string{},
		leases:        map[string][]models.Lease{},
		invoices:      map[string]*models.Invoice{},
		pending:       map[string]*models.PendingTransaction{},
		payments:      map[string]*models.Payment{},
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeStore) CreateInboundNotification(_ context.Context, n *models.InboundNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	n.ID = f.nextID("ntf")
	f.notifications[n.ID] = *n
	return nil
}

func (f *fakeStore) UpdateNotification(_ context.Context, n *models.InboundNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications[n.ID] = *n
	return nil
}

func (f *fakeStore) FindPendingByCheckoutID(_ context.Context, id string) (*models.PendingTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.pending[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, models.ErrRecordNotFound
}

func (f *fakeStore) UpdatePendingStatus(_ context.Context, id string, status models.PendingStatus, resultDesc, transactionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pending {
		if p.ID != id || p.Status != models.PendingStatusPending {
			continue
		}
		p.Status = status
		p.ResultDesc = resultDesc
		if transactionID != "" {
			tx := transactionID
			p.TransactionID = &tx
		}
	}
	return nil
}

func (f *fakeStore) GetInvoice(_ context.Context, id string) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.invoices[id]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, models.ErrRecordNotFound
}

func (f *fakeStore) LandlordsByMerchantCode(_ context.Context, code string) ([]string, error) {
	return f.merchants[code], nil
}

func (f *fakeStore) FindUnitsByNumber(_ context.Context, unitNumber, landlordID string) ([]models.UnitMatch, error) {
	var out []models.UnitMatch
	for _, u := range f.units {
		if !strings.EqualFold(u.UnitNumber, unitNumber) {
			continue
		}
		if landlordID != "" && u.OwnerID != landlordID {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeStore) ActiveLeasesForUnit(_ context.Context, unitID string) ([]models.Lease, error) {
	return f.leases[unitID], nil
}

func (f *fakeStore) PendingInvoicesForLease(_ context.Context, leaseID string) ([]models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Invoice
	for _, inv := range f.invoices {
		if inv.LeaseID == leaseID && inv.Status == models.InvoiceStatusPending {
			out = append(out, *inv)
		}
	}
	// oldest due date first, as the database query orders them
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].DueDate.Before(out[j-1].DueDate); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (f *fakeStore) FindPaymentByTransactionID(_ context.Context, transactionID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[transactionID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, models.ErrRecordNotFound
}

func (f *fakeStore) CreatePayment(_ context.Context, p *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.payments[p.TransactionID]; ok {
		return models.ErrDuplicate
	}
	p.ID = f.nextID("pay")
	cp := *p
	f.payments[p.TransactionID] = &cp
	return nil
}

func (f *fakeStore) ApplyInvoicePayment(_ context.Context, purpose models.PaymentPurpose, invoiceID string, amount decimal.Decimal) (models.InvoiceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, appliedPayment{purpose: purpose, invoiceID: invoiceID, amount: amount})
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return "", errors.New("invoice not found")
	}
	inv.AmountPaid = inv.AmountPaid.Add(amount)
	inv.Status = inv.Status.Advance(models.NextInvoiceStatus(inv.Amount, inv.AmountPaid))
	return inv.Status, nil
}

func (f *fakeStore) notification(id string) models.InboundNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notifications[id]
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []config.PaymentNotificationMessage
}

func (r *recordingNotifier) PaymentReceived(_ context.Context, msg config.PaymentNotificationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}
