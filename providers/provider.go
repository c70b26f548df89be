package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrAuthFailed  = errors.New("provider token request failed")
	ErrRejected    = errors.New("provider rejected the push")
	ErrUnreachable = errors.New("provider unreachable")
)

// PushRequest is what the orchestrator asks a provider to send to the payer.
type PushRequest struct {
	Phone            string // MSISDN, no '+'
	Amount           decimal.Decimal
	AccountReference string
	TransactionDesc  string
	CallbackURL      string
	FirstName        string
	LastName         string
	Metadata         map[string]string
}

// Credentials are already decrypted when they reach an adapter.
type Credentials struct {
	Kind           models.ProviderKind
	Environment    models.ProviderEnvironment
	Shortcode      string
	TillNumber     string
	ConsumerKey    string
	ConsumerSecret string
	Passkey        string
	ClientID       string
	ClientSecret   string
}

type Ack struct {
	CheckoutRequestID   string
	MerchantRequestID   string
	ResponseDescription string
	CustomerMessage     string
}

type Provider interface {
	Kind() models.ProviderKind
	InitiatePush(ctx context.Context, req PushRequest, creds Credentials) (*Ack, error)
}

type Options struct {
	// BaseURL replaces the environment's base URL; tests point it at httptest.
	BaseURL string
	Timeout time.Duration
	Logger  *logrus.Logger
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// ForKind returns the adapter for a stored configuration kind. It is the only
// place that branches on the kind.
func ForKind(kind models.ProviderKind, opts Options) (Provider, error) {
	opts = opts.withDefaults()
	switch kind {
	case models.ProviderKindPaybill, models.ProviderKindTillNative:
		return newDaraja(kind, opts), nil
	case models.ProviderKindTillOAuth:
		return newKopoKopo(opts), nil
	default:
		return nil, fmt.Errorf("unsupported provider kind %q", kind)
	}
}

func newRestyClient(opts Options) *resty.Client {
	return resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
}

func baseURLFor(opts Options, env models.ProviderEnvironment, sandbox, production string) string {
	if opts.BaseURL != "" {
		return strings.TrimRight(opts.BaseURL, "/")
	}
	if env == models.ProviderEnvironmentProduction {
		return production
	}
	return sandbox
}

func authFailed(provider string, body string, err error) error {
	pe := utils.NewPaymentError(utils.KindProviderAuthFailed, provider+" rejected the credentials", fmt.Errorf("%w: %v", ErrAuthFailed, err))
	pe.Hint = "check the consumer key and secret for this shortcode"
	pe.ProviderBody = body
	return pe
}

func rejected(provider string, status int, body string) error {
	pe := utils.NewPaymentError(utils.KindProviderRejected, provider+" rejected the payment request", fmt.Errorf("%w: status %d", ErrRejected, status))
	pe.ProviderBody = body
	return pe
}

func unreachable(provider string, err error) error {
	return utils.NewPaymentError(utils.KindProviderUnreachable, provider+" could not be reached", fmt.Errorf("%w: %v", ErrUnreachable, err))
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > n {
		return string(r[:n])
	}
	return string(r)
}
