package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is one settled provider transaction. The unique transaction id is
// what makes settlement idempotent.
type Payment struct {
	ID             string          `gorm:"primary_key;size:36" json:"id"`
	TransactionID  string          `gorm:"size:100;not null;uniqueIndex" json:"transaction_id"`
	Provider       string          `gorm:"size:20" json:"provider"`
	Purpose        PaymentPurpose  `gorm:"size:20;not null" json:"purpose"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	PhoneNumber    string          `gorm:"size:20" json:"phone_number"`
	Reference      string          `gorm:"size:100" json:"reference"`
	InvoiceID      *string         `gorm:"size:36;index" json:"invoice_id"`
	LeaseID        *string         `gorm:"size:36" json:"lease_id"`
	TenantID       *string         `gorm:"size:36;index" json:"tenant_id"`
	LandlordID     string          `gorm:"size:36;not null;index" json:"landlord_id"`
	NotificationID string          `gorm:"size:36" json:"notification_id"`
	PaidAt         time.Time       `gorm:"not null" json:"paid_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
