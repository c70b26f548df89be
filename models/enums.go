package models

import (
	"errors"
	"strings"
)

// ProviderFamily groups the provider kinds that share credentials and callbacks.
type ProviderFamily string

const (
	ProviderFamilyMpesa    ProviderFamily = "mpesa"
	ProviderFamilyKopoKopo ProviderFamily = "kopokopo"
)

func (f ProviderFamily) Valid() bool {
	return f == ProviderFamilyMpesa || f == ProviderFamilyKopoKopo
}

func ParseProviderFamily(s string) (ProviderFamily, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mpesa", "m-pesa", "daraja":
		return ProviderFamilyMpesa, nil
	case "kopokopo", "kopo-kopo", "k2":
		return ProviderFamilyKopoKopo, nil
	default:
		return "", errors.New("invalid provider")
	}
}

// ProviderKind selects the adapter. Only providers.ForKind branches on it.
type ProviderKind string

const (
	ProviderKindPaybill    ProviderKind = "paybill"
	ProviderKindTillNative ProviderKind = "till-native"
	ProviderKindTillOAuth  ProviderKind = "till-oauth"
)

func (k ProviderKind) Family() ProviderFamily {
	if k == ProviderKindTillOAuth {
		return ProviderFamilyKopoKopo
	}
	return ProviderFamilyMpesa
}

type ProviderEnvironment string

const (
	ProviderEnvironmentSandbox    ProviderEnvironment = "sandbox"
	ProviderEnvironmentProduction ProviderEnvironment = "production"
)

type PreferenceMode string

const (
	PreferenceModeCustom          PreferenceMode = "custom"
	PreferenceModePlatformDefault PreferenceMode = "platform_default"
)

type PaymentPurpose string

const (
	PaymentPurposeRent          PaymentPurpose = "rent"
	PaymentPurposeServiceCharge PaymentPurpose = "service-charge"
	PaymentPurposeSubscription  PaymentPurpose = "subscription"
	PaymentPurposeSmsBundle     PaymentPurpose = "sms_bundle"
	PaymentPurposeTest          PaymentPurpose = "test"
)

func (p PaymentPurpose) Valid() bool {
	switch p {
	case PaymentPurposeRent, PaymentPurposeServiceCharge, PaymentPurposeSubscription, PaymentPurposeSmsBundle, PaymentPurposeTest:
		return true
	}
	return false
}

// RequiresInvoice is true for purposes that settle a tenant invoice.
func (p PaymentPurpose) RequiresInvoice() bool {
	return p == PaymentPurposeRent || p == PaymentPurposeServiceCharge
}

type PendingStatus string

const (
	PendingStatusPending   PendingStatus = "pending"
	PendingStatusCompleted PendingStatus = "completed"
	PendingStatusFailed    PendingStatus = "failed"
)

type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// rank orders invoice statuses; an invoice never moves to a lower rank.
func (s InvoiceStatus) rank() int {
	switch s {
	case InvoiceStatusPartial:
		return 1
	case InvoiceStatusPaid:
		return 2
	}
	return 0
}

// Advance returns next unless that would move the invoice backwards.
func (s InvoiceStatus) Advance(next InvoiceStatus) InvoiceStatus {
	if next.rank() < s.rank() {
		return s
	}
	return next
}

const LeaseStatusActive = "active"

type NotificationState string

const (
	NotificationStateReceived  NotificationState = "received"
	NotificationStateParsed    NotificationState = "parsed"
	NotificationStateMatched   NotificationState = "matched"
	NotificationStateUnmatched NotificationState = "unmatched"
	NotificationStateSettled   NotificationState = "settled"
	NotificationStateFailed    NotificationState = "failed"
)

type PayloadShape string

const (
	PayloadShapeStkCallback PayloadShape = "stk_callback"
	PayloadShapeC2B         PayloadShape = "c2b"
	PayloadShapeKopoKopo    PayloadShape = "kopokopo"
	PayloadShapeGeneric     PayloadShape = "generic"
)

type MatchOutcome string

const (
	MatchOutcomeMatched           MatchOutcome = "matched"
	MatchOutcomeMatchedHeuristic  MatchOutcome = "matched_heuristic"
	MatchOutcomePendingTx         MatchOutcome = "pending_transaction"
	MatchOutcomeDuplicate         MatchOutcome = "duplicate"
	MatchOutcomeNoReference       MatchOutcome = "no_reference"
	MatchOutcomeNoMerchant        MatchOutcome = "no_merchant"
	MatchOutcomeAmbiguousMerchant MatchOutcome = "ambiguous_merchant"
	MatchOutcomeNoUnit            MatchOutcome = "no_unit"
	MatchOutcomeAmbiguousUnit     MatchOutcome = "ambiguous_unit"
	MatchOutcomeNoLease           MatchOutcome = "no_lease"
	MatchOutcomeAmbiguousLease    MatchOutcome = "ambiguous_lease"
	MatchOutcomeNoPendingInvoices MatchOutcome = "no_pending_invoices"
	MatchOutcomeInvalidAmount     MatchOutcome = "invalid_amount"
)

// Unmatched reports outcomes that need manual reconciliation.
func (o MatchOutcome) Unmatched() bool {
	switch o {
	case MatchOutcomeNoReference, MatchOutcomeNoMerchant, MatchOutcomeAmbiguousMerchant,
		MatchOutcomeNoUnit, MatchOutcomeAmbiguousUnit, MatchOutcomeNoLease, MatchOutcomeAmbiguousLease,
		MatchOutcomeNoPendingInvoices, MatchOutcomeInvalidAmount:
		return true
	}
	return false
}
