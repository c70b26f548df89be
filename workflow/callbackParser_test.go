package workflow

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stkSuccess = `{"Body":{"stkCallback":{
	"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_191220191020363925",
	"ResultCode":0,"ResultDesc":"The service request is processed successfully.",
	"CallbackMetadata":{"Item":[
		{"Name":"Amount","Value":7500.00},
		{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},
		{"Name":"Balance"},
		{"Name":"TransactionDate","Value":20191219102115},
		{"Name":"PhoneNumber","Value":254708374149}]}}}}`

const stkCancelled = `{"Body":{"stkCallback":{
	"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_191220191020363925",
	"ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`

const c2bConfirmation = `{"TransactionType":"Pay Bill","TransID":"RKTQDM7W6S","TransTime":"20191122063845",
	"TransAmount":"7,500.00","BusinessShortCode":"600638","BillRefNumber":" TILL123-A101 ",
	"InvoiceNumber":"","OrgAccountBalance":"49197.00","MSISDN":"254708374149","FirstName":"John"}`

const kopoKopoResult = `{"data":{"id":"cac95329-9fa5-42f1-a4fc-c08af7b868fb","type":"incoming_payment",
	"attributes":{"initiation_time":"2024-01-02T06:04:05+03:00","status":"Success",
	"event":{"type":"Incoming Payment Request","resource":{
		"id":"cac95329","reference":"OJM6Q1W84K","origination_time":"2024-01-02T06:04:05+03:00",
		"sender_phone_number":"+254999999999","amount":"20.0","currency":"KES",
		"till_number":"K000000","system":"Lipa Na M-PESA","status":"Received"},"errors":null},
	"metadata":{"reference":"K000000-A101","notes":"Rent"}}}}`

const kopoKopoBuygoods = `{"topic":"buygoods_transaction_received","id":"2133dbfb",
	"event":{"type":"Buygoods Transaction","resource":{"id":"458712f","amount":"2500.0",
	"status":"Received","reference":"OJM6Q1W84L","till_number":"514459",
	"sender_phone_number":"+254712345678"}}}`

func TestParseCallback_StkSuccess(t *testing.T) {
	p, err := ParseCallback([]byte(stkSuccess))
	require.NoError(t, err)

	assert.Equal(t, models.PayloadShapeStkCallback, p.Shape)
	assert.True(t, p.Success)
	assert.Equal(t, "0", p.ResultCode)
	assert.Equal(t, "ws_CO_191220191020363925", p.CheckoutRequestID)
	assert.Equal(t, "29115-34620561-1", p.MerchantRequestID)
	assert.Equal(t, "NLJ7RT61SV", p.TransactionID)
	assert.Equal(t, "7500", p.Amount.String())
	assert.Equal(t, "254708374149", p.PhoneNumber)
}

func TestParseCallback_StkCancelled(t *testing.T) {
	p, err := ParseCallback([]byte(stkCancelled))
	require.NoError(t, err)

	assert.False(t, p.Success)
	assert.Equal(t, "1032", p.ResultCode)
	assert.Equal(t, "Request cancelled by user", p.ResultDesc)
	assert.Empty(t, p.TransactionID)
}

func TestParseCallback_C2B(t *testing.T) {
	p, err := ParseCallback([]byte(c2bConfirmation))
	require.NoError(t, err)

	assert.Equal(t, models.PayloadShapeC2B, p.Shape)
	assert.True(t, p.Success)
	assert.Equal(t, "RKTQDM7W6S", p.TransactionID)
	assert.Equal(t, "TILL123-A101", p.Reference)
	assert.Equal(t, "600638", p.MerchantCode)
	assert.Equal(t, "7500", p.Amount.String())
}

func TestParseCallback_KopoKopoIncomingPayment(t *testing.T) {
	p, err := ParseCallback([]byte(kopoKopoResult))
	require.NoError(t, err)

	assert.Equal(t, models.PayloadShapeKopoKopo, p.Shape)
	assert.True(t, p.Success)
	assert.Equal(t, "cac95329-9fa5-42f1-a4fc-c08af7b868fb", p.CheckoutRequestID)
	assert.Equal(t, "OJM6Q1W84K", p.TransactionID)
	assert.Equal(t, "K000000-A101", p.Reference)
	assert.Equal(t, "000000", p.MerchantCode)
	assert.Equal(t, "254999999999", p.PhoneNumber)
	assert.Equal(t, "20", p.Amount.String())
}

func TestParseCallback_KopoKopoBuygoods(t *testing.T) {
	p, err := ParseCallback([]byte(kopoKopoBuygoods))
	require.NoError(t, err)

	assert.Equal(t, models.PayloadShapeKopoKopo, p.Shape)
	assert.True(t, p.Success)
	assert.Empty(t, p.CheckoutRequestID)
	assert.Equal(t, "OJM6Q1W84L", p.TransactionID)
	assert.Equal(t, "514459", p.MerchantCode)
}

func TestParseCallback_KopoKopoFailure(t *testing.T) {
	raw := `{"data":{"id":"abc","attributes":{"status":"Failed",
		"event":{"type":"Incoming Payment Request","resource":null,"errors":"The initiator information is invalid."}}}}`
	p, err := ParseCallback([]byte(raw))
	require.NoError(t, err)

	assert.False(t, p.Success)
	assert.Equal(t, "abc", p.CheckoutRequestID)
	assert.Equal(t, "The initiator information is invalid.", p.ResultDesc)
}

func TestParseCallback_Generic(t *testing.T) {
	p, err := ParseCallback([]byte(`{"transaction_id":"GEN1","amount":"KES 1,200","account_number":"A101","msisdn":"0712 345 678"}`))
	require.NoError(t, err)

	assert.Equal(t, models.PayloadShapeGeneric, p.Shape)
	assert.True(t, p.Success)
	assert.Equal(t, "GEN1", p.TransactionID)
	assert.Equal(t, "A101", p.Reference)
	assert.Equal(t, "1200", p.Amount.String())
	assert.Equal(t, "0712345678", p.PhoneNumber)

	p, err = ParseCallback([]byte(`{"transaction_id":"GEN2","status":"failed"}`))
	require.NoError(t, err)
	assert.False(t, p.Success)
	assert.Equal(t, "failed", p.ResultCode)
}

func TestParseCallback_Unrecognised(t *testing.T) {
	for _, raw := range []string{`not json`, `{"hello":"world"}`, `{"Body":{"stkCallback":{"ResultCode":0}}}`} {
		_, err := ParseCallback([]byte(raw))
		assert.True(t, errors.Is(err, ErrUnrecognisedPayload), raw)
	}
}

func TestSplitReference(t *testing.T) {
	cases := []struct{ in, merchant, unit string }{
		{"TILL123-A101", "TILL123", "A101"},
		{"TILL123-A-101", "TILL123", "A-101"},
		{"A101", "", "A101"},
		{" 600000 - B2 ", "600000", "B2"},
		{"-A101", "", "A101"},
	}
	for _, c := range cases {
		m, u := SplitReference(c.in)
		assert.Equal(t, c.merchant, m, c.in)
		assert.Equal(t, c.unit, u, c.in)
	}
}
