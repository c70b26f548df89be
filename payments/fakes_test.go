package payments

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mmdatafocus/rentals_backend/appctx"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/providers"
)

type fakeStore struct {
	mu           sync.Mutex
	invoices     map[string]*models.InvoiceAccess
	scInvoices   map[string]*models.ServiceChargeInvoice
	configs      []models.LandlordProviderConfig
	preferences  map[string]models.PreferenceMode
	pending      []models.PendingTransaction
	unmatched    []models.InboundNotification
	lastFilter   models.UnmatchedFilter
	pendingErr   error
	preferenceOp int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		invoices:    map[string]*models.InvoiceAccess{},
		scInvoices:  map[string]*models.ServiceChargeInvoice{},
		preferences: map[string]models.PreferenceMode{},
	}
}

func (f *fakeStore) FindInvoiceAccess(_ context.Context, id string) (*models.InvoiceAccess, error) {
	if inv, ok := f.invoices[id]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, models.ErrRecordNotFound
}

func (f *fakeStore) GetServiceChargeInvoice(_ context.Context, id string) (*models.ServiceChargeInvoice, error) {
	if inv, ok := f.scInvoices[id]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, models.ErrRecordNotFound
}

func (f *fakeStore) ActiveProviderConfigs(_ context.Context, landlordID string, family models.ProviderFamily) ([]models.LandlordProviderConfig, error) {
	var out []models.LandlordProviderConfig
	for _, c := range f.configs {
		if c.LandlordID == landlordID && c.Provider == family && c.IsActive {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeStore) GetPaymentPreference(_ context.Context, landlordID string) (*models.LandlordPaymentPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mode, ok := f.preferences[landlordID]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	return &models.LandlordPaymentPreference{LandlordID: landlordID, Mode: mode}, nil
}

func (f *fakeStore) SavePaymentPreference(_ context.Context, landlordID string, mode models.PreferenceMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preferenceOp++
	f.preferences[landlordID] = mode
	return nil
}

func (f *fakeStore) CreatePendingTransaction(_ context.Context, tx *models.PendingTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingErr != nil {
		return f.pendingErr
	}
	if tx.ID == "" {
		tx.ID = fmt.Sprintf("ptx-%d", len(f.pending)+1)
	}
	f.pending = append(f.pending, *tx)
	return nil
}

// ListUnmatchedNotifications applies the landlord guard's context scope the
// way the gorm plugin does for the real store.
func (f *fakeStore) ListUnmatchedNotifications(ctx context.Context, filter models.UnmatchedFilter) ([]models.InboundNotification, error) {
	f.lastFilter = filter
	scoped, _ := appctx.GetString(ctx, appctx.ContextKeyLandlordId)
	if admin, _ := appctx.GetBool(ctx, appctx.ContextKeyIsAdmin); admin {
		scoped = ""
	}
	var out []models.InboundNotification
	for _, n := range f.unmatched {
		if !ownedBy(n, scoped) || !ownedBy(n, filter.LandlordID) {
			continue
		}
		if filter.Outcome != "" && n.MatchOutcome != filter.Outcome {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func ownedBy(n models.InboundNotification, landlordID string) bool {
	return landlordID == "" || (n.LandlordID != nil && *n.LandlordID == landlordID)
}

type fakeProvider struct {
	kind  models.ProviderKind
	calls int
	req   providers.PushRequest
	creds providers.Credentials
	ack   *providers.Ack
	err   error
}

func (p *fakeProvider) Kind() models.ProviderKind { return p.kind }

func (p *fakeProvider) InitiatePush(_ context.Context, req providers.PushRequest, creds providers.Credentials) (*providers.Ack, error) {
	p.calls++
	p.req = req
	p.creds = creds
	if p.err != nil {
		return nil, p.err
	}
	return p.ack, nil
}
