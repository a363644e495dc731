// Package payos models the payment gateway's webhook payload and its checksum scheme.
package payos

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// SuccessCode is the gateway's code for a settled payment.
const SuccessCode = "00"

// Webhook is a decoded gateway callback. Data keeps the raw JSON values of the data
// object so the signature is computed over exactly what the gateway sent.
type Webhook struct {
	Code      string                     `json:"code"`
	Desc      string                     `json:"desc"`
	Success   bool                       `json:"success"`
	Data      map[string]json.RawMessage `json:"data"`
	Signature string                     `json:"signature"`
}

// WebhookData is the typed view of the data object.
type WebhookData struct {
	OrderCode              int64  `json:"orderCode"`
	Amount                 int64  `json:"amount"`
	Description            string `json:"description"`
	AccountNumber          string `json:"accountNumber"`
	Reference              string `json:"reference"`
	TransactionDateTime    string `json:"transactionDateTime"`
	Currency               string `json:"currency"`
	PaymentLinkID          string `json:"paymentLinkId"`
	Code                   string `json:"code"`
	Desc                   string `json:"desc"`
	CounterAccountBankID   string `json:"counterAccountBankId"`
	CounterAccountBankName string `json:"counterAccountBankName"`
	CounterAccountName     string `json:"counterAccountName"`
	CounterAccountNumber   string `json:"counterAccountNumber"`
	VirtualAccountName     string `json:"virtualAccountName"`
	VirtualAccountNumber   string `json:"virtualAccountNumber"`
}

var (
	// ErrMalformed is returned for payloads that are not a webhook object.
	ErrMalformed = errors.New("payos: malformed webhook payload")
	// ErrMissingOrderCode is returned when data.orderCode is absent or not an integer.
	ErrMissingOrderCode = errors.New("payos: missing orderCode")
)

// ParseWebhook decodes a raw callback body.
func ParseWebhook(raw []byte) (*Webhook, error) {
	var w Webhook
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Data == nil {
		return nil, fmt.Errorf("%w: data object is missing", ErrMalformed)
	}
	return &w, nil
}

// Typed decodes the data object into WebhookData. Fields the gateway sends as null are
// left at their zero value.
func (w *Webhook) Typed() (WebhookData, error) {
	var d WebhookData
	for key, raw := range w.Data {
		if string(raw) == "null" {
			continue
		}
		var err error
		switch key {
		case "orderCode":
			d.OrderCode, err = parseInt(raw)
			if err != nil {
				return WebhookData{}, fmt.Errorf("%w: %v", ErrMissingOrderCode, err)
			}
		case "amount":
			d.Amount, err = parseInt(raw)
		default:
			err = assignString(&d, key, raw)
		}
		if err != nil {
			return WebhookData{}, fmt.Errorf("%w: field %s: %v", ErrMalformed, key, err)
		}
	}
	if d.OrderCode == 0 {
		return WebhookData{}, ErrMissingOrderCode
	}
	return d, nil
}

// Paid reports whether the callback confirms a settled payment.
func (d WebhookData) Paid() bool {
	return d.Code == SuccessCode
}

func parseInt(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return strconv.ParseInt(n.String(), 10, 64)
}

func assignString(d *WebhookData, key string, raw json.RawMessage) error {
	target := map[string]*string{
		"description":            &d.Description,
		"accountNumber":          &d.AccountNumber,
		"reference":              &d.Reference,
		"transactionDateTime":    &d.TransactionDateTime,
		"currency":               &d.Currency,
		"paymentLinkId":          &d.PaymentLinkID,
		"code":                   &d.Code,
		"desc":                   &d.Desc,
		"counterAccountBankId":   &d.CounterAccountBankID,
		"counterAccountBankName": &d.CounterAccountBankName,
		"counterAccountName":     &d.CounterAccountName,
		"counterAccountNumber":   &d.CounterAccountNumber,
		"virtualAccountName":     &d.VirtualAccountName,
		"virtualAccountNumber":   &d.VirtualAccountNumber,
	}[key]
	if target == nil {
		return nil
	}
	s, err := scalarString(raw)
	if err != nil {
		return err
	}
	*target = s
	return nil
}
