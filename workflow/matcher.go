package workflow

import (
	"context"
	"strings"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/shopspring/decimal"
)

type MatchStore interface {
	LandlordsByMerchantCode(ctx context.Context, code string) ([]string, error)
	FindUnitsByNumber(ctx context.Context, unitNumber, landlordID string) ([]models.UnitMatch, error)
	ActiveLeasesForUnit(ctx context.Context, unitID string) ([]models.Lease, error)
	PendingInvoicesForLease(ctx context.Context, leaseID string) ([]models.Invoice, error)
}

// MatchResult carries whatever was resolved before the match stopped, so an
// unmatched notification can still be attributed to a landlord.
type MatchResult struct {
	Outcome    models.MatchOutcome
	LandlordID string
	UnitID     string
	LeaseID    string
	TenantID   string
	Invoice    *models.Invoice
}

func (r *MatchResult) Target() models.SettlementTarget {
	t := models.SettlementTarget{
		Purpose:    models.PaymentPurposeRent,
		LeaseID:    r.LeaseID,
		TenantID:   r.TenantID,
		LandlordID: r.LandlordID,
	}
	if r.Invoice != nil {
		t.InvoiceID = r.Invoice.ID
	}
	return t
}

type Matcher struct {
	store MatchStore
}

func NewMatcher(store MatchStore) *Matcher {
	return &Matcher{store: store}
}

// SplitReference splits "<merchant>-<unit>" on the first hyphen. A reference
// without a hyphen is treated as a bare unit number.
func SplitReference(reference string) (merchant, unit string) {
	reference = strings.TrimSpace(reference)
	if i := strings.Index(reference, "-"); i >= 0 {
		return strings.TrimSpace(reference[:i]), strings.TrimSpace(reference[i+1:])
	}
	return "", reference
}

// Match resolves a payer-typed reference to the rent invoice it pays.
// merchantHint is the shortcode or till the money arrived on; it only scopes
// the search when the reference itself carries no merchant token and the
// code belongs to exactly one landlord.
func (m *Matcher) Match(ctx context.Context, reference, merchantHint string, amount decimal.Decimal) (*MatchResult, error) {
	res := &MatchResult{}
	if strings.TrimSpace(reference) == "" {
		res.Outcome = models.MatchOutcomeNoReference
		return res, nil
	}

	merchant, unitNumber := SplitReference(reference)
	if merchant != "" {
		landlords, err := m.store.LandlordsByMerchantCode(ctx, merchant)
		if err != nil {
			return nil, err
		}
		switch len(landlords) {
		case 0:
			res.Outcome = models.MatchOutcomeNoMerchant
			return res, nil
		case 1:
			res.LandlordID = landlords[0]
		default:
			res.Outcome = models.MatchOutcomeAmbiguousMerchant
			return res, nil
		}
	} else if merchantHint != "" {
		landlords, err := m.store.LandlordsByMerchantCode(ctx, merchantHint)
		if err != nil {
			return nil, err
		}
		if len(landlords) == 1 {
			res.LandlordID = landlords[0]
		}
	}
	if unitNumber == "" {
		res.Outcome = models.MatchOutcomeNoUnit
		return res, nil
	}

	units, err := m.store.FindUnitsByNumber(ctx, unitNumber, res.LandlordID)
	if err != nil {
		return nil, err
	}
	switch len(units) {
	case 0:
		res.Outcome = models.MatchOutcomeNoUnit
		return res, nil
	case 1:
	default:
		res.Outcome = models.MatchOutcomeAmbiguousUnit
		return res, nil
	}
	unit := units[0]
	res.UnitID = unit.UnitID
	if res.LandlordID == "" {
		res.LandlordID = unit.OwnerID
	}

	leases, err := m.store.ActiveLeasesForUnit(ctx, unit.UnitID)
	if err != nil {
		return nil, err
	}
	switch len(leases) {
	case 0:
		res.Outcome = models.MatchOutcomeNoLease
		return res, nil
	case 1:
	default:
		res.Outcome = models.MatchOutcomeAmbiguousLease
		return res, nil
	}
	res.LeaseID = leases[0].ID
	res.TenantID = leases[0].TenantID

	invoices, err := m.store.PendingInvoicesForLease(ctx, res.LeaseID)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		res.Outcome = models.MatchOutcomeNoPendingInvoices
		return res, nil
	}

	chosen, exact := pickInvoice(invoices, amount)
	res.Invoice = chosen
	if exact || len(invoices) == 1 {
		res.Outcome = models.MatchOutcomeMatched
	} else {
		res.Outcome = models.MatchOutcomeMatchedHeuristic
	}
	return res, nil
}

// pickInvoice prefers the oldest invoice whose amount equals the payment and
// otherwise falls back to the oldest outstanding invoice. Invoices arrive
// ordered oldest due date first.
func pickInvoice(invoices []models.Invoice, amount decimal.Decimal) (*models.Invoice, bool) {
	exact := -1
	count := 0
	for i := range invoices {
		if invoices[i].Amount.Equal(amount) {
			if exact < 0 {
				exact = i
			}
			count++
		}
	}
	if exact >= 0 {
		return &invoices[exact], count == 1
	}
	return &invoices[0], false
}
