package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InboundNotification is the durable record of one provider delivery. The
// raw payload never changes; parsed fields are filled once and the columns in
// NotificationStateColumns are the only ones UpdateNotification writes.
type InboundNotification struct {
	ID                string            `gorm:"primary_key;size:36" json:"id"`
	Source            string            `gorm:"size:20;not null" json:"source"`
	RawPayload        datatypes.JSON    `gorm:"not null" json:"raw_payload"`
	PayloadShape      PayloadShape      `gorm:"size:20" json:"payload_shape"`
	TransactionID     string            `gorm:"size:100;index" json:"transaction_id"`
	CheckoutRequestID string            `gorm:"size:100;index" json:"checkout_request_id"`
	Amount            decimal.Decimal   `gorm:"type:decimal(20,2)" json:"amount"`
	Reference         string            `gorm:"size:100" json:"reference"`
	PhoneNumber       string            `gorm:"size:20" json:"phone_number"`
	ResultCode        string            `gorm:"size:20" json:"result_code"`
	ResultDesc        string            `gorm:"type:text" json:"result_desc"`
	State             NotificationState `gorm:"size:20;not null;index" json:"state"`
	MatchOutcome      MatchOutcome      `gorm:"size:30;index" json:"match_outcome"`
	LandlordID        *string           `gorm:"size:36;index" json:"landlord_id"`
	InvoiceID         *string           `gorm:"size:36" json:"invoice_id"`
	Processed         bool              `gorm:"not null;default:false" json:"processed"`
	PaymentID         *string           `gorm:"size:36" json:"payment_id"`
	ProcessedAt       *time.Time        `json:"processed_at"`
	CreatedAt         time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

var NotificationStateColumns = []string{
	"payload_shape", "transaction_id", "checkout_request_id", "amount", "reference", "phone_number",
	"result_code", "result_desc", "state", "match_outcome", "landlord_id", "invoice_id",
	"processed", "payment_id", "processed_at",
}
