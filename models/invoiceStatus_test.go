package models

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNextInvoiceStatus(t *testing.T) {
	amount := decimal.NewFromInt(7500)
	assert.Equal(t, InvoiceStatusPaid, NextInvoiceStatus(amount, decimal.NewFromInt(7500)))
	assert.Equal(t, InvoiceStatusPaid, NextInvoiceStatus(amount, decimal.NewFromInt(8000)))
	assert.Equal(t, InvoiceStatusPartial, NextInvoiceStatus(amount, decimal.NewFromInt(100)))
	assert.Equal(t, InvoiceStatusPending, NextInvoiceStatus(amount, decimal.Zero))
}

func TestInvoiceStatusNeverMovesBackwards(t *testing.T) {
	assert.Equal(t, InvoiceStatusPaid, InvoiceStatusPaid.Advance(InvoiceStatusPartial))
	assert.Equal(t, InvoiceStatusPartial, InvoiceStatusPartial.Advance(InvoiceStatusPending))
	assert.Equal(t, InvoiceStatusPaid, InvoiceStatusPartial.Advance(InvoiceStatusPaid))
}

func TestParseProviderFamily(t *testing.T) {
	f, err := ParseProviderFamily("")
	assert.NoError(t, err)
	assert.Equal(t, ProviderFamilyMpesa, f)

	f, err = ParseProviderFamily("KopoKopo")
	assert.NoError(t, err)
	assert.Equal(t, ProviderFamilyKopoKopo, f)

	_, err = ParseProviderFamily("paypal")
	assert.Error(t, err)
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.True(t, isDuplicateKeyErr(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'X' for key 'transaction_id'"}))
	assert.False(t, isDuplicateKeyErr(&mysql.MySQLError{Number: 1213}))
	assert.False(t, isDuplicateKeyErr(errors.New("connection refused")))
	assert.False(t, isDuplicateKeyErr(nil))
}
