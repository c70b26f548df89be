package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/shopspring/decimal"
)

var ErrUnrecognisedPayload = errors.New("unrecognised callback payload")

// ParsedCallback is the provider-neutral view of one delivery.
type ParsedCallback struct {
	Shape             models.PayloadShape
	TransactionID     string
	CheckoutRequestID string
	MerchantRequestID string
	Amount            decimal.Decimal
	Reference         string
	PhoneNumber       string
	MerchantCode      string
	ResultCode        string
	ResultDesc        string
	Success           bool
}

// ParseCallback recognises the STK envelope, the flat C2B confirmation, the
// Kopo Kopo webhook and, failing those, a generic payload keyed by looser names.
func ParseCallback(raw []byte) (*ParsedCallback, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognisedPayload, err)
	}

	if body, ok := objectAt(doc, "Body", "stkCallback"); ok {
		return parseStkCallback(body)
	}
	if _, ok := doc["TransID"]; ok {
		return parseC2B(doc)
	}
	if p, ok := parseKopoKopo(doc); ok {
		return p, nil
	}
	return parseGeneric(doc)
}

func parseStkCallback(body map[string]interface{}) (*ParsedCallback, error) {
	p := &ParsedCallback{
		Shape:             models.PayloadShapeStkCallback,
		CheckoutRequestID: str(body["CheckoutRequestID"]),
		MerchantRequestID: str(body["MerchantRequestID"]),
		ResultCode:        str(body["ResultCode"]),
		ResultDesc:        str(body["ResultDesc"]),
	}
	if p.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: stk callback without CheckoutRequestID", ErrUnrecognisedPayload)
	}
	p.Success = p.ResultCode == "0"

	if meta, ok := objectAt(body, "CallbackMetadata"); ok {
		items, _ := meta["Item"].([]interface{})
		for _, it := range items {
			item, ok := it.(map[string]interface{})
			if !ok {
				continue
			}
			value := item["Value"]
			switch str(item["Name"]) {
			case "Amount":
				if amt, err := utils.ParseAmount(value); err == nil {
					p.Amount = amt
				}
			case "MpesaReceiptNumber":
				p.TransactionID = str(value)
			case "PhoneNumber":
				p.PhoneNumber = utils.DigitsOnly(str(value))
			case "AccountReference", "BillRefNumber":
				p.Reference = str(value)
			}
		}
	}
	return p, nil
}

func parseC2B(doc map[string]interface{}) (*ParsedCallback, error) {
	p := &ParsedCallback{
		Shape:         models.PayloadShapeC2B,
		TransactionID: str(doc["TransID"]),
		Reference:     strings.TrimSpace(str(doc["BillRefNumber"])),
		PhoneNumber:   str(doc["MSISDN"]),
		MerchantCode:  str(doc["BusinessShortCode"]),
		ResultCode:    "0",
		ResultDesc:    str(doc["TransactionType"]),
		Success:       true,
	}
	amt, err := utils.ParseAmount(doc["TransAmount"])
	if err != nil {
		return nil, fmt.Errorf("%w: c2b amount: %v", ErrUnrecognisedPayload, err)
	}
	p.Amount = amt
	return p, nil
}

// parseKopoKopo handles both the incoming-payment result (data.attributes)
// and the buygoods webhook (event.resource at the top level).
func parseKopoKopo(doc map[string]interface{}) (*ParsedCallback, bool) {
	var resource, metadata map[string]interface{}
	var status, checkoutID string
	var eventErrors interface{}

	if attrs, ok := objectAt(doc, "data", "attributes"); ok {
		data, _ := objectAt(doc, "data")
		checkoutID = str(data["id"])
		status = str(attrs["status"])
		resource, _ = objectAt(attrs, "event", "resource")
		metadata, _ = objectAt(attrs, "metadata")
		if event, ok := objectAt(attrs, "event"); ok {
			eventErrors = event["errors"]
		}
	} else if res, ok := objectAt(doc, "event", "resource"); ok {
		resource = res
		status = str(res["status"])
	} else {
		return nil, false
	}

	p := &ParsedCallback{
		Shape:             models.PayloadShapeKopoKopo,
		CheckoutRequestID: checkoutID,
		ResultDesc:        status,
	}
	if resource != nil {
		p.TransactionID = str(resource["reference"])
		p.PhoneNumber = utils.DigitsOnly(str(resource["sender_phone_number"]))
		p.MerchantCode = strings.TrimPrefix(strings.ToUpper(str(resource["till_number"])), "K")
		if amt, err := utils.ParseAmount(resource["amount"]); err == nil {
			p.Amount = amt
		}
	}
	if metadata != nil {
		p.Reference = str(metadata["reference"])
	}

	switch strings.ToLower(status) {
	case "success", "received", "complete", "completed":
		p.Success = resource != nil && eventErrors == nil
	}
	if p.Success {
		p.ResultCode = "0"
	} else {
		p.ResultCode = "1"
		if s := str(eventErrors); s != "" {
			p.ResultDesc = s
		}
	}
	return p, true
}

var (
	genericTransactionKeys = []string{"transaction_id", "transactionId", "trans_id", "transId", "receipt", "receipt_number", "mpesa_receipt_number"}
	genericCheckoutKeys    = []string{"checkout_request_id", "checkoutRequestId", "CheckoutRequestID"}
	genericReferenceKeys   = []string{"reference", "account_reference", "accountReference", "account_number", "accountNumber", "bill_ref", "bill_ref_number", "narration"}
	genericAmountKeys      = []string{"amount", "Amount", "trans_amount", "transAmount", "value"}
	genericPhoneKeys       = []string{"phone", "phone_number", "phoneNumber", "msisdn", "MSISDN", "sender_phone"}
	genericResultKeys      = []string{"result_code", "resultCode", "ResultCode", "status", "Status"}
)

func parseGeneric(doc map[string]interface{}) (*ParsedCallback, error) {
	p := &ParsedCallback{
		Shape:             models.PayloadShapeGeneric,
		TransactionID:     firstString(doc, genericTransactionKeys),
		CheckoutRequestID: firstString(doc, genericCheckoutKeys),
		Reference:         strings.TrimSpace(firstString(doc, genericReferenceKeys)),
		PhoneNumber:       utils.DigitsOnly(firstString(doc, genericPhoneKeys)),
		ResultDesc:        str(doc["result_desc"]),
	}
	if p.TransactionID == "" && p.CheckoutRequestID == "" && p.Reference == "" {
		return nil, ErrUnrecognisedPayload
	}
	for _, k := range genericAmountKeys {
		if v, ok := doc[k]; ok {
			if amt, err := utils.ParseAmount(v); err == nil {
				p.Amount = amt
				break
			}
		}
	}

	result := firstString(doc, genericResultKeys)
	switch strings.ToLower(result) {
	case "", "0", "success", "successful", "completed", "complete", "received", "paid":
		p.Success = true
		p.ResultCode = "0"
	default:
		p.ResultCode = result
	}
	return p, nil
}

func objectAt(doc map[string]interface{}, path ...string) (map[string]interface{}, bool) {
	cur := doc
	for _, key := range path {
		next, ok := cur[key].(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func firstString(doc map[string]interface{}, keys []string) string {
	for _, k := range keys {
		if s := str(doc[k]); s != "" {
			return s
		}
	}
	return ""
}

func str(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []interface{}, map[string]interface{}:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
