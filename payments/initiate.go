package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/providers"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/mmdatafocus/rentals_backend/vault"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
)

type LedgerWriter interface {
	CreatePendingTransaction(ctx context.Context, tx *models.PendingTransaction) error
}

type Store interface {
	ConfigStore
	InvoiceReader
	LedgerWriter
}

type InitiateRequest struct {
	Phone            string          `json:"phone" binding:"required"`
	Amount           decimal.Decimal `json:"amount"`
	AccountReference string          `json:"accountReference"`
	TransactionDesc  string          `json:"transactionDesc"`
	InvoiceID        string          `json:"invoiceId"`
	PaymentType      string          `json:"paymentType" binding:"required"`
	LandlordID       string          `json:"landlordId"`
	Provider         string          `json:"provider"`
	BundleID         string          `json:"bundleId"`
	DryRun           bool            `json:"dryRun"`
}

type InitiateData struct {
	PendingTransactionID string                     `json:"pendingTransactionId,omitempty"`
	Phone                string                     `json:"phone"`
	Amount               decimal.Decimal            `json:"amount"`
	AccountReference     string                     `json:"accountReference"`
	PaymentType          models.PaymentPurpose      `json:"paymentType"`
	InvoiceID            string                     `json:"invoiceId,omitempty"`
	LandlordID           string                     `json:"landlordId"`
	Provider             models.ProviderKind        `json:"provider"`
	Environment          models.ProviderEnvironment `json:"environment"`
	BusinessShortCode    string                     `json:"BusinessShortCode"`
	UsingLandlordConfig  bool                       `json:"UsingLandlordConfig"`
	CustomerMessage      string                     `json:"customerMessage,omitempty"`
	DryRun               bool                       `json:"dryRun,omitempty"`
}

type InitiateResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	Message           string
	Data              InitiateData
}

// ProviderFactory builds the adapter for a configuration kind.
type ProviderFactory func(kind models.ProviderKind) (providers.Provider, error)

type Service struct {
	Tracer trace.Tracer

	store       Store
	authorizer  *Authorizer
	resolver    *Resolver
	limiter     *RateLimiter
	codec       *vault.Codec
	settings    *config.PaymentSettings
	providerFor ProviderFactory
	allowLegacy bool
	logger      *logrus.Logger
}

type ServiceOption func(*Service)

func WithProviderFactory(f ProviderFactory) ServiceOption {
	return func(s *Service) { s.providerFor = f }
}

func WithLegacyKeys(enabled bool) ServiceOption {
	return func(s *Service) { s.allowLegacy = enabled }
}

func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) { s.Tracer = t }
}

func NewService(store Store, limiter *RateLimiter, codec *vault.Codec, settings *config.PaymentSettings, logger *logrus.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = config.GetLogger()
	}
	s := &Service{
		Tracer:     otel.Tracer("rentals-payments"),
		store:      store,
		authorizer: NewAuthorizer(store),
		resolver:   NewResolver(store, settings.Platform, logger),
		limiter:    limiter,
		codec:      codec,
		settings:   settings,
		logger:     logger,
	}
	s.providerFor = func(kind models.ProviderKind) (providers.Provider, error) {
		return providers.ForKind(kind, providers.Options{Timeout: settings.ProviderTimeout, Logger: logger})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// validatedRequest is an InitiateRequest after validation and normalisation.
type validatedRequest struct {
	phone   string
	amount  decimal.Decimal
	purpose models.PaymentPurpose
	family  models.ProviderFamily
}

func (s *Service) validate(req *InitiateRequest) (*validatedRequest, error) {
	phone, err := utils.NormalizePhoneNumber(req.Phone, s.settings.PhoneRegion)
	if err != nil {
		return nil, utils.ValidationError("invalid phone number", "send 9 to 15 digits, e.g. 0712345678 or 254712345678")
	}
	if !req.Amount.IsPositive() {
		return nil, utils.ValidationError("amount must be greater than zero", "")
	}
	if req.Amount.GreaterThan(s.settings.MaxAmount) {
		return nil, utils.ValidationError("amount exceeds the maximum of "+s.settings.MaxAmount.String(), "split the payment into smaller amounts")
	}
	purpose := models.PaymentPurpose(strings.TrimSpace(req.PaymentType))
	if !purpose.Valid() {
		return nil, utils.ValidationError("unknown paymentType", "use rent, service-charge, subscription, sms_bundle or test")
	}
	if purpose.RequiresInvoice() && strings.TrimSpace(req.InvoiceID) == "" {
		return nil, utils.ValidationError("invoiceId is required for "+string(purpose)+" payments", "")
	}
	if purpose == models.PaymentPurposeTest && strings.TrimSpace(req.LandlordID) == "" {
		return nil, utils.ValidationError("landlordId is required for test payments", "")
	}
	family, err := models.ParseProviderFamily(req.Provider)
	if err != nil {
		return nil, utils.ValidationError("unknown provider", "use mpesa or kopokopo")
	}
	return &validatedRequest{phone: phone, amount: req.Amount, purpose: purpose, family: family}, nil
}

// Initiate runs one STK push: validation, rate limit, authorization,
// configuration, decryption, push and ledger write, in that order. Once the
// provider has accepted the push the acknowledgement is always returned.
func (s *Service) Initiate(ctx context.Context, caller Caller, req InitiateRequest) (result *InitiateResult, err error) {
	ctx, span := s.Tracer.Start(ctx, "payments.Initiate")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, utils.AsPaymentError(err).ErrorID())
		}
		span.End()
	}()

	v, err := s.validate(&req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.purpose", string(v.purpose)), attribute.Bool("payment.dry_run", req.DryRun))

	if err := s.limiter.Allow(ctx, caller.UserID); err != nil {
		return nil, err
	}

	decision, err := s.authorizer.Authorize(ctx, caller, v.purpose, req.InvoiceID, req.LandlordID)
	if err != nil {
		return nil, err
	}

	resolved, err := s.resolver.Resolve(ctx, decision.GoverningLandlordID, v.family)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("payment.provider_kind", string(resolved.Kind)),
		attribute.Bool("payment.using_landlord_config", resolved.UsingLandlordConfig),
	)

	accountRef := strings.TrimSpace(req.AccountReference)
	if accountRef == "" {
		accountRef = defaultAccountReference(v.purpose, resolved, decision)
	}
	data := InitiateData{
		Phone:               utils.MaskPhone(v.phone),
		Amount:              v.amount,
		AccountReference:    accountRef,
		PaymentType:         v.purpose,
		InvoiceID:           decision.InvoiceID,
		LandlordID:          decision.GoverningLandlordID,
		Provider:            resolved.Kind,
		Environment:         resolved.Environment,
		BusinessShortCode:   resolved.BusinessShortCode(),
		UsingLandlordConfig: resolved.UsingLandlordConfig,
	}

	if req.DryRun {
		data.DryRun = true
		return &InitiateResult{Message: "Dry run: configuration resolved, no payment request sent", Data: data}, nil
	}

	callbackURL := s.settings.CallbackURLs[string(resolved.Family)]
	if callbackURL == "" {
		pe := utils.NewPaymentError(utils.KindConfigMissing, "callback URL is not configured for "+string(resolved.Family), nil)
		pe.Hint = "set " + strings.ToUpper(string(resolved.Family)) + "_CALLBACK_URL"
		return nil, pe
	}

	creds, err := s.credentials(resolved)
	if err != nil {
		return nil, err
	}

	provider, err := s.providerFor(resolved.Kind)
	if err != nil {
		return nil, utils.NewPaymentError(utils.KindConfigMissing, "unsupported provider configuration", err)
	}

	pushReq := providers.PushRequest{
		Phone:            v.phone,
		Amount:           v.amount,
		AccountReference: accountRef,
		TransactionDesc:  strings.TrimSpace(req.TransactionDesc),
		CallbackURL:      callbackURL,
		Metadata:         map[string]string{"paymentType": string(v.purpose)},
	}
	if decision.InvoiceID != "" {
		pushReq.Metadata["invoiceId"] = decision.InvoiceID
	}

	ledger := &models.PendingTransaction{
		Provider:            resolved.Kind,
		PhoneNumber:         v.phone,
		Amount:              v.amount,
		Purpose:             v.purpose,
		UserID:              caller.UserID,
		LandlordID:          decision.GoverningLandlordID,
		InvoiceID:           utils.NilIfEmpty(decision.InvoiceID),
		AccountReference:    accountRef,
		UsingLandlordConfig: resolved.UsingLandlordConfig,
	}
	meta := s.metadata(ctx, req, v.purpose, decision, resolved)

	ack, pushErr := provider.InitiatePush(ctx, pushReq, creds)
	if pushErr != nil {
		pe := utils.AsPaymentError(pushErr)
		ledger.Status = models.PendingStatusFailed
		ledger.ResultDesc = pe.Message
		meta.ProviderError = pe.ProviderBody
		ledger.Metadata = encodeMetadata(meta)
		if werr := s.store.CreatePendingTransaction(ctx, ledger); werr != nil {
			config.LogError(s.logger, "payments", "Service.Initiate", "failed to write audit row for rejected push", logrus.Fields{
				"landlord_id": decision.GoverningLandlordID,
				"phone":       utils.MaskPhone(v.phone),
			}, werr)
		}
		config.LogError(s.logger, "payments", "Service.Initiate", "provider push failed", logrus.Fields{
			"landlord_id": decision.GoverningLandlordID,
			"kind":        resolved.Kind,
			"shortcode":   resolved.BusinessShortCode(),
			"phone":       utils.MaskPhone(v.phone),
			"error_id":    pe.ErrorID(),
		}, pushErr)
		return nil, pe
	}

	ledger.Status = models.PendingStatusPending
	ledger.CheckoutRequestID = utils.NilIfEmpty(ack.CheckoutRequestID)
	ledger.MerchantRequestID = ack.MerchantRequestID
	ledger.ResultDesc = ack.ResponseDescription
	ledger.Metadata = encodeMetadata(meta)
	if werr := s.store.CreatePendingTransaction(ctx, ledger); werr != nil {
		// The push is already on the payer's phone; it cannot be recalled.
		config.LogError(s.logger, "payments", "Service.Initiate", "ledger write failed after provider accepted push", logrus.Fields{
			"checkout_request_id": ack.CheckoutRequestID,
			"landlord_id":         decision.GoverningLandlordID,
			"phone":               utils.MaskPhone(v.phone),
		}, werr)
	} else {
		data.PendingTransactionID = ledger.ID
	}
	data.CustomerMessage = ack.CustomerMessage

	s.logger.WithFields(logrus.Fields{
		"module":              "payments",
		"checkout_request_id": ack.CheckoutRequestID,
		"landlord_id":         decision.GoverningLandlordID,
		"purpose":             v.purpose,
		"using_landlord":      resolved.UsingLandlordConfig,
		"phone":               utils.MaskPhone(v.phone),
	}).Info("stk push accepted")

	message := ack.CustomerMessage
	if message == "" {
		message = "Payment request sent. Check your phone to complete the payment."
	}
	return &InitiateResult{
		CheckoutRequestID: ack.CheckoutRequestID,
		MerchantRequestID: ack.MerchantRequestID,
		Message:           message,
		Data:              data,
	}, nil
}

// credentials decrypts landlord secrets. Platform secrets are deployment
// config and are used as-is.
func (s *Service) credentials(resolved *ResolvedConfig) (providers.Credentials, error) {
	creds := resolved.Secrets
	if !resolved.UsingLandlordConfig {
		return creds, nil
	}
	usedLegacy := false
	for _, field := range []*string{&creds.ConsumerKey, &creds.ConsumerSecret, &creds.Passkey, &creds.ClientID, &creds.ClientSecret} {
		if *field == "" {
			continue
		}
		res, err := s.codec.DecryptWithFallback(*field, s.allowLegacy)
		if err != nil {
			pe := utils.NewPaymentError(utils.KindCredentialDecrypt, "stored provider credentials could not be read", err)
			pe.Hint = "the landlord must re-enter their provider credentials"
			config.LogError(s.logger, "payments", "Service.credentials", "decrypt failed", logrus.Fields{
				"config_id":  resolved.ConfigID,
				"ciphertext": utils.MaskSecret(*field),
			}, err)
			return providers.Credentials{}, pe
		}
		usedLegacy = usedLegacy || res.Legacy
		*field = res.Plaintext
	}
	if usedLegacy {
		s.logger.WithFields(logrus.Fields{
			"module":    "payments",
			"config_id": resolved.ConfigID,
		}).Warn("provider configuration is still encrypted with the legacy key; run credential-rekey")
	}
	return creds, nil
}

func (s *Service) metadata(ctx context.Context, req InitiateRequest, purpose models.PaymentPurpose, d *Decision, resolved *ResolvedConfig) models.PendingMetadata {
	meta := models.PendingMetadata{Environment: string(resolved.Environment)}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		meta.CorrelationID = cid
	}
	switch purpose {
	case models.PaymentPurposeRent:
		meta.RentInvoiceID = d.InvoiceID
		meta.LeaseID = d.LeaseID
		meta.TenantID = d.TenantID
	case models.PaymentPurposeServiceCharge:
		meta.ServiceChargeInvoiceID = d.InvoiceID
	case models.PaymentPurposeSmsBundle:
		meta.BundleID = strings.TrimSpace(req.BundleID)
	}
	return meta
}

func encodeMetadata(meta models.PendingMetadata) datatypes.JSON {
	b, err := json.Marshal(meta)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

// maxAccountReference is the longest reference the Daraja push accepts.
const maxAccountReference = 12

// defaultAccountReference produces "<merchant>-<suffix>" so a payer-visible
// reference still carries the merchant token the matcher understands. The
// suffix is cut to fit maxAccountReference so the provider never truncates it.
func defaultAccountReference(purpose models.PaymentPurpose, resolved *ResolvedConfig, d *Decision) string {
	suffix := strings.ToUpper(string(purpose))
	if d.InvoiceID != "" {
		suffix = strings.ToUpper(strings.ReplaceAll(d.InvoiceID, "-", ""))
	}
	code := resolved.BusinessShortCode()
	if code == "" {
		return clip(suffix, maxAccountReference)
	}
	room := maxAccountReference - len(code) - 1
	if room <= 0 {
		return clip(code, maxAccountReference)
	}
	return code + "-" + clip(suffix, room)
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// IsClientError reports errors caused by the request rather than upstream.
func IsClientError(err error) bool {
	var pe *utils.PaymentError
	return errors.As(err, &pe) && !pe.Upstream()
}
