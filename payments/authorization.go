package payments

import (
	"context"
	"errors"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/utils"
)

type InvoiceReader interface {
	FindInvoiceAccess(ctx context.Context, invoiceID string) (*models.InvoiceAccess, error)
	GetServiceChargeInvoice(ctx context.Context, id string) (*models.ServiceChargeInvoice, error)
}

type Caller struct {
	UserID string
	Role   string
}

func (c Caller) IsAdmin() bool { return c.Role == utils.RoleAdmin }

// Decision is what the authorization matrix grants: whose credentials collect
// the payment and which invoice it settles.
type Decision struct {
	GoverningLandlordID string
	InvoiceID           string
	LeaseID             string
	TenantID            string
}

type Authorizer struct {
	invoices InvoiceReader
}

func NewAuthorizer(invoices InvoiceReader) *Authorizer {
	return &Authorizer{invoices: invoices}
}

// Authorize applies the per-purpose matrix. A missing invoice is reported as
// InvoiceNotFound and never as NotAuthorized.
func (a *Authorizer) Authorize(ctx context.Context, caller Caller, purpose models.PaymentPurpose, invoiceID, landlordID string) (*Decision, error) {
	if caller.UserID == "" {
		return nil, utils.InvalidAuthentication("no caller identity")
	}

	switch purpose {
	case models.PaymentPurposeRent:
		inv, err := a.invoices.FindInvoiceAccess(ctx, invoiceID)
		if err != nil {
			return nil, invoiceLookupError(invoiceID, err)
		}
		allowed := caller.IsAdmin() ||
			(inv.TenantUserID != "" && inv.TenantUserID == caller.UserID) ||
			inv.PropertyOwnerID == caller.UserID ||
			(inv.PropertyManagerID != "" && inv.PropertyManagerID == caller.UserID)
		if !allowed {
			return nil, utils.NotAuthorized("you are not a party to this invoice")
		}
		return &Decision{
			GoverningLandlordID: inv.PropertyOwnerID,
			InvoiceID:           inv.InvoiceID,
			LeaseID:             inv.LeaseID,
			TenantID:            inv.TenantID,
		}, nil

	case models.PaymentPurposeServiceCharge:
		inv, err := a.invoices.GetServiceChargeInvoice(ctx, invoiceID)
		if err != nil {
			return nil, invoiceLookupError(invoiceID, err)
		}
		if !caller.IsAdmin() && inv.LandlordID != caller.UserID {
			return nil, utils.NotAuthorized("only the landlord billed by this service charge can pay it")
		}
		return &Decision{GoverningLandlordID: inv.LandlordID, InvoiceID: inv.ID}, nil

	case models.PaymentPurposeSubscription:
		return &Decision{GoverningLandlordID: caller.UserID}, nil

	case models.PaymentPurposeSmsBundle:
		if caller.Role != utils.RoleLandlord && !caller.IsAdmin() {
			return nil, utils.NotAuthorized("only landlords can buy SMS bundles")
		}
		return &Decision{GoverningLandlordID: caller.UserID}, nil

	case models.PaymentPurposeTest:
		if landlordID == "" || landlordID != caller.UserID {
			return nil, utils.NotAuthorized("test payments can only target your own account")
		}
		return &Decision{GoverningLandlordID: caller.UserID}, nil
	}

	return nil, utils.ValidationError("unknown paymentType", "use rent, service-charge, subscription, sms_bundle or test")
}

func invoiceLookupError(invoiceID string, err error) error {
	if errors.Is(err, models.ErrRecordNotFound) {
		return utils.InvoiceNotFound(invoiceID)
	}
	return utils.NewPaymentError(utils.KindInternal, "invoice lookup failed", err)
}
