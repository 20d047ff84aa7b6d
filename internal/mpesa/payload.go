package mpesa

import (
	"encoding/json"
	"fmt"
	"strings"

	"paygate/internal/domain"
)

// STKCallbackEnvelope is the body Daraja posts to the STK push result URL.
type STKCallbackEnvelope struct {
	Body struct {
		StkCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback is the inner STK push result.
type STKCallback struct {
	MerchantRequestID string       `json:"MerchantRequestID"`
	CheckoutRequestID string       `json:"CheckoutRequestID"`
	ResultCode        int          `json:"ResultCode"`
	ResultDesc        string       `json:"ResultDesc"`
	CallbackMetadata  *STKMetadata `json:"CallbackMetadata,omitempty"`
}

// STKMetadata holds the name/value items present on successful results.
type STKMetadata struct {
	Item []STKMetadataItem `json:"Item"`
}

// STKMetadataItem is one metadata entry. Value is a string or a number
// depending on the item.
type STKMetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// C2BConfirmation is the body Daraja posts to the C2B confirmation URL.
// TransAmount arrives as a decimal string.
type C2BConfirmation struct {
	TransactionType   string `json:"TransactionType"`
	TransID           string `json:"TransID"`
	TransTime         string `json:"TransTime"`
	TransAmount       string `json:"TransAmount"`
	BusinessShortCode string `json:"BusinessShortCode"`
	BillRefNumber     string `json:"BillRefNumber"`
	InvoiceNumber     string `json:"InvoiceNumber"`
	OrgAccountBalance string `json:"OrgAccountBalance"`
	ThirdPartyTransID string `json:"ThirdPartyTransID"`
	MSISDN            string `json:"MSISDN"`
	FirstName         string `json:"FirstName"`
	MiddleName        string `json:"MiddleName"`
	LastName          string `json:"LastName"`
}

// ToNotification converts a successful STK callback into a typed payment
// notification. Metadata items of interest: MpesaReceiptNumber,
// TransactionDate, PhoneNumber, Amount.
func (c STKCallback) ToNotification() domain.PaymentNotification {
	n := domain.PaymentNotification{
		CheckoutRequestID: c.CheckoutRequestID,
		Method:            domain.MethodSTKPush,
		ResultCode:        c.ResultCode,
		ResultDesc:        c.ResultDesc,
	}

	if c.CallbackMetadata == nil {
		return n
	}

	for _, item := range c.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			n.ReceiptID = item.stringValue()
		case "Amount":
			n.Amount = item.amountValue()
		case "PhoneNumber":
			n.RawPhone = item.stringValue()
			n.PayerPhone = NormalizePhone(n.RawPhone)
		case "TransactionDate":
			n.OccurredAt = ParseTimestamp(item.stringValue())
		}
	}
	return n
}

// ToNotification converts a C2B confirmation into a typed payment
// notification. The bill reference (if any) rides along for explicit
// order matching.
func (c C2BConfirmation) ToNotification() domain.PaymentNotification {
	name := strings.TrimSpace(strings.Join([]string{c.FirstName, c.MiddleName, c.LastName}, " "))
	return domain.PaymentNotification{
		ReceiptID:  strings.TrimSpace(c.TransID),
		Amount:     ParseAmount(c.TransAmount),
		OccurredAt: ParseTimestamp(c.TransTime),
		RawPhone:   c.MSISDN,
		PayerPhone: NormalizePhone(c.MSISDN),
		PayerName:  strings.Join(strings.Fields(name), " "),
		Reference:  strings.TrimSpace(c.BillRefNumber),
		Method:     domain.MethodC2B,
		ResultCode: 0,
		ResultDesc: c.TransactionType,
	}
}

// stringValue renders the raw JSON value as a string, unquoting strings
// and trimming a trailing ".0" style float rendering on numbers.
func (i STKMetadataItem) stringValue() string {
	if len(i.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(i.Value, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(i.Value, &f); err == nil {
		return fmt.Sprintf("%.0f", f)
	}
	return string(i.Value)
}

// amountValue parses the value as an amount in minor units.
func (i STKMetadataItem) amountValue() int64 {
	if len(i.Value) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(i.Value, &f); err == nil {
		return AmountToMinor(f)
	}
	var s string
	if err := json.Unmarshal(i.Value, &s); err == nil {
		return ParseAmount(s)
	}
	return 0
}
