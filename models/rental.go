package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// The rows below belong to the property-management CRUD service. This
// service reads them and only ever writes Invoice status/amount_paid.

type Property struct {
	ID        string  `gorm:"primary_key;size:36" json:"id"`
	Name      string  `gorm:"size:255" json:"name"`
	OwnerID   string  `gorm:"size:36;not null;index" json:"owner_id"`
	ManagerID *string `gorm:"size:36;index" json:"manager_id"`
}

type Unit struct {
	ID         string `gorm:"primary_key;size:36" json:"id"`
	PropertyID string `gorm:"size:36;not null;index" json:"property_id"`
	UnitNumber string `gorm:"size:50;not null;index" json:"unit_number"`
}

type Tenant struct {
	ID     string `gorm:"primary_key;size:36" json:"id"`
	UserID string `gorm:"size:36;index" json:"user_id"`
	Name   string `gorm:"size:255" json:"name"`
}

type Lease struct {
	ID        string    `gorm:"primary_key;size:36" json:"id"`
	UnitID    string    `gorm:"size:36;not null;index" json:"unit_id"`
	TenantID  string    `gorm:"size:36;not null;index" json:"tenant_id"`
	Status    string    `gorm:"size:20;not null;index" json:"status"`
	StartDate time.Time `json:"start_date"`
}

type Invoice struct {
	ID         string          `gorm:"primary_key;size:36" json:"id"`
	LeaseID    string          `gorm:"size:36;not null;index" json:"lease_id"`
	TenantID   string          `gorm:"size:36;not null" json:"tenant_id"`
	LandlordID string          `gorm:"size:36;not null" json:"landlord_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	AmountPaid decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"amount_paid"`
	Status     InvoiceStatus   `gorm:"size:20;not null;index" json:"status"`
	DueDate    time.Time       `gorm:"index" json:"due_date"`
}

type ServiceChargeInvoice struct {
	ID         string          `gorm:"primary_key;size:36" json:"id"`
	LandlordID string          `gorm:"size:36;not null;index" json:"landlord_id"`
	PropertyID string          `gorm:"size:36" json:"property_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	AmountPaid decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"amount_paid"`
	Status     InvoiceStatus   `gorm:"size:20;not null" json:"status"`
	DueDate    time.Time       `json:"due_date"`
}

// InvoiceAccess is the authorization view of a rent invoice.
type InvoiceAccess struct {
	InvoiceID         string
	LeaseID           string
	TenantID          string
	TenantUserID      string
	PropertyOwnerID   string
	PropertyManagerID string
	Amount            decimal.Decimal
	Status            InvoiceStatus
}

// UnitMatch is a unit together with its property owner, as the matcher needs it.
type UnitMatch struct {
	UnitID     string
	UnitNumber string
	PropertyID string
	OwnerID    string
}

// SettlementTarget names the invoice a payment settles.
type SettlementTarget struct {
	Purpose    PaymentPurpose
	InvoiceID  string
	LeaseID    string
	TenantID   string
	LandlordID string
}
