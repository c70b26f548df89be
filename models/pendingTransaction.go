package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PendingTransaction bridges an STK push to its eventual callback. Rejected
// pushes are also written, as failed rows, for audit.
type PendingTransaction struct {
	ID                  string          `gorm:"primary_key;size:36" json:"id"`
	CheckoutRequestID   *string         `gorm:"size:100;uniqueIndex" json:"checkout_request_id"`
	MerchantRequestID   string          `gorm:"size:100" json:"merchant_request_id"`
	Provider            ProviderKind    `gorm:"size:20;not null" json:"provider"`
	PhoneNumber         string          `gorm:"size:20;not null" json:"phone_number"`
	Amount              decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Purpose             PaymentPurpose  `gorm:"size:20;not null;index" json:"purpose"`
	UserID              string          `gorm:"size:36;not null;index" json:"user_id"`
	LandlordID          string          `gorm:"size:36;index" json:"landlord_id"`
	InvoiceID           *string         `gorm:"size:36;index" json:"invoice_id"`
	AccountReference    string          `gorm:"size:100" json:"account_reference"`
	Metadata            datatypes.JSON  `json:"metadata"`
	Status              PendingStatus   `gorm:"size:20;not null;default:pending;index" json:"status"`
	ResultDesc          string          `gorm:"type:text" json:"result_desc"`
	TransactionID       *string         `gorm:"size:100" json:"transaction_id"`
	UsingLandlordConfig bool            `gorm:"not null;default:false" json:"using_landlord_config"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// PendingMetadata is stored in PendingTransaction.Metadata.
type PendingMetadata struct {
	BundleID               string `json:"bundleId,omitempty"`
	ServiceChargeInvoiceID string `json:"serviceChargeInvoiceId,omitempty"`
	RentInvoiceID          string `json:"rentInvoiceId,omitempty"`
	LeaseID                string `json:"leaseId,omitempty"`
	TenantID               string `json:"tenantId,omitempty"`
	Environment            string `json:"environment,omitempty"`
	CorrelationID          string `json:"correlationId,omitempty"`
	ProviderError          string `json:"providerError,omitempty"`
}
