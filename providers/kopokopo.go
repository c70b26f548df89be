package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	kopoKopoSandboxURL    = "https://sandbox.kopokopo.com"
	kopoKopoProductionURL = "https://api.kopokopo.com"

	kopoKopoTokenPath = "/oauth/token"
	kopoKopoPushPath  = "/api/v1/incoming_payments"
)

type kopoKopoProvider struct {
	opts   Options
	client *resty.Client
}

type kopoKopoToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type kopoKopoSubscriber struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	PhoneNumber string `json:"phone_number"`
}

type kopoKopoAmount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type kopoKopoPushPayload struct {
	PaymentChannel string             `json:"payment_channel"`
	TillNumber     string             `json:"till_number"`
	Subscriber     kopoKopoSubscriber `json:"subscriber"`
	Amount         kopoKopoAmount     `json:"amount"`
	Metadata       map[string]string  `json:"metadata,omitempty"`
	Links          struct {
		CallbackURL string `json:"callback_url"`
	} `json:"_links"`
}

type kopoKopoPushResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func newKopoKopo(opts Options) *kopoKopoProvider {
	return &kopoKopoProvider{opts: opts, client: newRestyClient(opts)}
}

func (k *kopoKopoProvider) Kind() models.ProviderKind { return models.ProviderKindTillOAuth }

// KopoKopoTill adds the K marker OAuth tills are addressed with.
func KopoKopoTill(till string) string {
	till = strings.TrimSpace(till)
	if till == "" {
		return ""
	}
	if till[0] == 'K' || till[0] == 'k' {
		return "K" + till[1:]
	}
	return "K" + till
}

func (k *kopoKopoProvider) InitiatePush(ctx context.Context, req PushRequest, creds Credentials) (*Ack, error) {
	base := baseURLFor(k.opts, creds.Environment, kopoKopoSandboxURL, kopoKopoProductionURL)

	token, err := k.token(ctx, base, creds)
	if err != nil {
		return nil, err
	}

	till := creds.TillNumber
	if till == "" {
		till = creds.Shortcode
	}
	payload := kopoKopoPushPayload{
		PaymentChannel: "M-PESA STK Push",
		TillNumber:     KopoKopoTill(till),
		Subscriber: kopoKopoSubscriber{
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			PhoneNumber: "+" + strings.TrimPrefix(req.Phone, "+"),
		},
		Amount:   kopoKopoAmount{Currency: "KES", Value: req.Amount.StringFixed(2)},
		Metadata: map[string]string{"reference": req.AccountReference, "notes": req.TransactionDesc},
	}
	for key, v := range req.Metadata {
		payload.Metadata[key] = v
	}
	payload.Links.CallbackURL = req.CallbackURL

	var out kopoKopoPushResponse
	resp, err := k.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetResult(&out).
		Post(base + kopoKopoPushPath)
	if err != nil {
		config.LogError(k.opts.Logger, "providers", "kopokopo.InitiatePush", "push request", logrus.Fields{
			"till":  payload.TillNumber,
			"phone": utils.MaskPhone(req.Phone),
		}, err)
		return nil, unreachable("Kopo Kopo", err)
	}

	id := out.Data.ID
	if id == "" {
		id = lastPathSegment(resp.Header().Get("Location"))
	}
	if !resp.IsSuccess() || id == "" {
		k.opts.Logger.WithFields(logrus.Fields{
			"module": "providers",
			"till":   payload.TillNumber,
			"phone":  utils.MaskPhone(req.Phone),
			"status": resp.StatusCode(),
			"body":   resp.String(),
		}).Warn("kopokopo push rejected")
		return nil, rejected("Kopo Kopo", resp.StatusCode(), resp.String())
	}

	return &Ack{
		CheckoutRequestID:   id,
		ResponseDescription: "Payment request accepted",
		CustomerMessage:     "Check your phone to complete the payment",
	}, nil
}

func (k *kopoKopoProvider) token(ctx context.Context, base string, creds Credentials) (string, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return "", authFailed("Kopo Kopo", "", errors.New("client id or secret is empty"))
	}
	var tok kopoKopoToken
	resp, err := k.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     creds.ClientID,
			"client_secret": creds.ClientSecret,
		}).
		SetResult(&tok).
		Post(base + kopoKopoTokenPath)
	if err != nil {
		return "", unreachable("Kopo Kopo", err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return "", unreachable("Kopo Kopo", fmt.Errorf("token endpoint returned %d", resp.StatusCode()))
	}
	if !resp.IsSuccess() || tok.AccessToken == "" {
		return "", authFailed("Kopo Kopo", resp.String(), fmt.Errorf("token endpoint returned %d", resp.StatusCode()))
	}
	return tok.AccessToken, nil
}

func lastPathSegment(location string) string {
	location = strings.TrimRight(strings.TrimSpace(location), "/")
	if location == "" {
		return ""
	}
	if i := strings.LastIndex(location, "/"); i >= 0 {
		return location[i+1:]
	}
	return location
}
