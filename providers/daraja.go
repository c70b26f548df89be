package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	darajaSandboxURL    = "https://sandbox.safaricom.co.ke"
	darajaProductionURL = "https://api.safaricom.co.ke"

	darajaTokenPath = "/oauth/v1/generate"
	darajaPushPath  = "/mpesa/stkpush/v1/processrequest"
)

var nairobi = loadNairobi()

func loadNairobi() *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		return time.FixedZone("EAT", 3*60*60)
	}
	return loc
}

type darajaProvider struct {
	kind   models.ProviderKind
	opts   Options
	client *resty.Client
}

type darajaToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type darajaPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type darajaPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

func newDaraja(kind models.ProviderKind, opts Options) *darajaProvider {
	return &darajaProvider{kind: kind, opts: opts, client: newRestyClient(opts)}
}

func (d *darajaProvider) Kind() models.ProviderKind { return d.kind }

// DarajaTimestamp formats t in Nairobi time as YYYYMMDDHHMMSS.
func DarajaTimestamp(t time.Time) string {
	return t.In(nairobi).Format("20060102150405")
}

func DarajaPassword(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

func (d *darajaProvider) InitiatePush(ctx context.Context, req PushRequest, creds Credentials) (*Ack, error) {
	base := baseURLFor(d.opts, creds.Environment, darajaSandboxURL, darajaProductionURL)

	token, err := d.token(ctx, base, creds)
	if err != nil {
		return nil, err
	}

	timestamp := DarajaTimestamp(d.opts.Now())
	payload := darajaPushPayload{
		BusinessShortCode: creds.Shortcode,
		Password:          DarajaPassword(creds.Shortcode, creds.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.Ceil().IntPart(),
		PartyA:            req.Phone,
		PartyB:            creds.Shortcode,
		PhoneNumber:       req.Phone,
		CallBackURL:       req.CallbackURL,
		AccountReference:  truncate(req.AccountReference, 12),
		TransactionDesc:   truncate(req.TransactionDesc, 13),
	}
	if d.kind == models.ProviderKindTillNative {
		payload.TransactionType = "CustomerBuyGoodsOnline"
		payload.PartyB = creds.TillNumber
	}
	if payload.TransactionDesc == "" {
		payload.TransactionDesc = "Payment"
	}

	var out darajaPushResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetResult(&out).
		Post(base + darajaPushPath)
	if err != nil {
		config.LogError(d.opts.Logger, "providers", "daraja.InitiatePush", "push request", logrus.Fields{
			"shortcode": creds.Shortcode,
			"phone":     utils.MaskPhone(req.Phone),
		}, err)
		return nil, unreachable("M-Pesa", err)
	}
	if !resp.IsSuccess() || out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		d.opts.Logger.WithFields(logrus.Fields{
			"module":    "providers",
			"shortcode": creds.Shortcode,
			"phone":     utils.MaskPhone(req.Phone),
			"status":    resp.StatusCode(),
			"body":      resp.String(),
		}).Warn("daraja push rejected")
		return nil, rejected("M-Pesa", resp.StatusCode(), resp.String())
	}

	return &Ack{
		CheckoutRequestID:   out.CheckoutRequestID,
		MerchantRequestID:   out.MerchantRequestID,
		ResponseDescription: out.ResponseDescription,
		CustomerMessage:     out.CustomerMessage,
	}, nil
}

func (d *darajaProvider) token(ctx context.Context, base string, creds Credentials) (string, error) {
	if creds.ConsumerKey == "" || creds.ConsumerSecret == "" {
		return "", authFailed("M-Pesa", "", errors.New("consumer key or secret is empty"))
	}
	var tok darajaToken
	resp, err := d.client.R().
		SetContext(ctx).
		SetBasicAuth(creds.ConsumerKey, creds.ConsumerSecret).
		SetQueryParam("grant_type", "client_credentials").
		SetResult(&tok).
		Get(base + darajaTokenPath)
	if err != nil {
		return "", unreachable("M-Pesa", err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return "", unreachable("M-Pesa", fmt.Errorf("token endpoint returned %d", resp.StatusCode()))
	}
	if !resp.IsSuccess() || tok.AccessToken == "" {
		return "", authFailed("M-Pesa", resp.String(), fmt.Errorf("token endpoint returned %d", resp.StatusCode()))
	}
	return tok.AccessToken, nil
}
