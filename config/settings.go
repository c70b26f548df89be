package config

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PlatformCredentials is the process-wide fallback credential set for one
// provider family. Secrets here are plaintext deployment config, never stored.
type PlatformCredentials struct {
	Kind           string
	Shortcode      string
	TillNumber     string
	ConsumerKey    string
	ConsumerSecret string
	Passkey        string
	ClientID       string
	ClientSecret   string
	Environment    string
}

// Configured reports whether enough is set to attempt a push.
func (p PlatformCredentials) Configured() bool {
	switch p.Kind {
	case "till-oauth":
		return p.ClientID != "" && p.ClientSecret != "" && (p.TillNumber != "" || p.Shortcode != "")
	case "":
		return false
	default:
		return p.ConsumerKey != "" && p.ConsumerSecret != "" && p.Passkey != "" && p.Shortcode != ""
	}
}

// PaymentSettings is resolved once at process start and injected; nothing in the
// request path re-reads the environment.
type PaymentSettings struct {
	EncryptionKey   string
	LegacySecret    string
	MaxAmount       decimal.Decimal
	RateLimitMax    int64
	RateLimitWindow time.Duration
	ProviderTimeout time.Duration
	PhoneRegion     string
	CallbackURLs    map[string]string
	Platform        map[string]PlatformCredentials
}

func LoadPaymentSettings() *PaymentSettings {
	s := &PaymentSettings{
		EncryptionKey:   strings.TrimSpace(os.Getenv("CREDENTIAL_ENCRYPTION_KEY")),
		MaxAmount:       decimalFromEnv("MAX_STK_AMOUNT", decimal.NewFromInt(150000)),
		RateLimitMax:    int64(intFromEnv("STK_RATE_LIMIT_MAX_REQUESTS", 5)),
		RateLimitWindow: time.Duration(intFromEnv("STK_RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		ProviderTimeout: time.Duration(intFromEnv("PROVIDER_HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		PhoneRegion:     stringFromEnv("PHONE_DEFAULT_REGION", "KE"),
		CallbackURLs: map[string]string{
			"mpesa":    strings.TrimSpace(os.Getenv("MPESA_CALLBACK_URL")),
			"kopokopo": strings.TrimSpace(os.Getenv("KOPOKOPO_CALLBACK_URL")),
		},
		Platform: map[string]PlatformCredentials{
			"mpesa": {
				Kind:           stringFromEnv("MPESA_KIND", "paybill"),
				Shortcode:      strings.TrimSpace(os.Getenv("MPESA_SHORTCODE")),
				TillNumber:     strings.TrimSpace(os.Getenv("MPESA_TILL_NUMBER")),
				ConsumerKey:    strings.TrimSpace(os.Getenv("MPESA_CONSUMER_KEY")),
				ConsumerSecret: strings.TrimSpace(os.Getenv("MPESA_CONSUMER_SECRET")),
				Passkey:        strings.TrimSpace(os.Getenv("MPESA_PASSKEY")),
				Environment:    stringFromEnv("MPESA_ENVIRONMENT", "sandbox"),
			},
			"kopokopo": {
				Kind:         "till-oauth",
				TillNumber:   strings.TrimSpace(os.Getenv("KOPOKOPO_TILL_NUMBER")),
				ClientID:     strings.TrimSpace(os.Getenv("KOPOKOPO_CLIENT_ID")),
				ClientSecret: strings.TrimSpace(os.Getenv("KOPOKOPO_CLIENT_SECRET")),
				Environment:  stringFromEnv("KOPOKOPO_ENVIRONMENT", "sandbox"),
			},
		},
	}
	if LegacyCredentialKeysEnabled() {
		s.LegacySecret = os.Getenv("CREDENTIAL_LEGACY_SECRET")
	}
	if s.RateLimitMax <= 0 {
		s.RateLimitMax = 5
	}
	if s.RateLimitWindow <= 0 {
		s.RateLimitWindow = time.Minute
	}
	return s
}

func stringFromEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func decimalFromEnv(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil || !d.IsPositive() {
		return def
	}
	return d
}
