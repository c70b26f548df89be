package utils

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

var DefaultPhoneRegion = "KE"

// DigitsOnly strips everything that is not an ASCII digit.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhoneNumber validates a payer phone number (9-15 digits once
// non-digits are stripped) and returns it as an MSISDN without the leading '+'.
// Numbers libphonenumber cannot place in region are passed through as digits.
func NormalizePhoneNumber(raw, region string) (string, error) {
	digits := DigitsOnly(raw)
	if len(digits) < 9 || len(digits) > 15 {
		return "", fmt.Errorf("phone number must contain 9 to 15 digits, got %d", len(digits))
	}
	if region == "" {
		region = DefaultPhoneRegion
	}

	candidate := digits
	if strings.HasPrefix(strings.TrimSpace(raw), "+") || len(digits) > 10 {
		candidate = "+" + digits
	}
	p, err := libphonenumber.Parse(candidate, region)
	if err == nil && libphonenumber.IsValidNumber(p) {
		return strings.TrimPrefix(libphonenumber.Format(p, libphonenumber.E164), "+"), nil
	}
	return digits, nil
}

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errorResponse["body"] = "invalid"
		return errorResponse
	}
	for _, ve := range validationErrors {
		errorResponse[LowercaseFirst(ve.Field())] = ve.Tag()
	}
	return errorResponse
}

// MaskPhone keeps enough of the number to correlate logs without exposing it.
func MaskPhone(phone string) string {
	d := DigitsOnly(phone)
	if len(d) < 7 {
		return "***"
	}
	return d[:4] + strings.Repeat("*", len(d)-7) + d[len(d)-3:]
}

func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}

func LowercaseFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func NilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	var zero T
	if len(defaults) > 0 {
		return defaults[0]
	}
	return zero
}
