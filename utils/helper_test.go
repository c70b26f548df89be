package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhoneNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0712345678", "254712345678"},
		{"+254 712 345 678", "254712345678"},
		{"254712345678", "254712345678"},
		{"(0712) 345-678", "254712345678"},
	}
	for _, tc := range cases {
		got, err := NormalizePhoneNumber(tc.in, "KE")
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNormalizePhoneNumber_DigitBounds(t *testing.T) {
	_, err := NormalizePhoneNumber("12345678", "KE")
	assert.Error(t, err)

	_, err = NormalizePhoneNumber("1234567890123456", "KE")
	assert.Error(t, err)

	_, err = NormalizePhoneNumber("phone", "KE")
	assert.Error(t, err)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "2547*****678", MaskPhone("254712345678"))
	assert.Equal(t, "***", MaskPhone("123"))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "ab****yz", MaskSecret("abcdefxyz"))
}

func TestPaymentError_Taxonomy(t *testing.T) {
	err := error(InvoiceNotFound("inv-1"))
	assert.True(t, IsKind(err, KindInvoiceNotFound))
	assert.False(t, IsKind(err, KindNotAuthorized))

	pe := AsPaymentError(err)
	assert.Equal(t, "INVOICE_NOT_FOUND", pe.ErrorID())
	assert.Equal(t, 404, pe.HTTPStatus())

	wrapped := AsPaymentError(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", wrapped.ErrorID())
	assert.True(t, NewPaymentError(KindProviderUnreachable, "timeout", nil).Retryable())
	assert.False(t, NewPaymentError(KindProviderAuthFailed, "bad creds", nil).Retryable())
}
