package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Buyer is the customer block sent to the invoicing agent when issuing.
type Buyer struct {
	Name       string `json:"name" binding:"required"`
	Country    string `json:"country"`
	Zip        string `json:"zip" binding:"required"`
	City       string `json:"city" binding:"required"`
	Address    string `json:"address" binding:"required"`
	Email      string `json:"email" binding:"required"`
	TaxNumber  string `json:"tax_number,omitempty"`
	Identifier string `json:"identifier,omitempty"`
}

// LineItem is a single invoice line. Values are computed by the caller; this
// service only sums gross values, it never recomputes VAT.
type LineItem struct {
	Name         string          `json:"name" binding:"required"`
	Quantity     float64         `json:"quantity"`
	NetUnitPrice decimal.Decimal `json:"net_unit_price"`
	VATRate      float64         `json:"vat_rate"`
	NetValue     decimal.Decimal `json:"net_value"`
	VATValue     decimal.Decimal `json:"vat_value"`
	GrossValue   decimal.Decimal `json:"gross_value"`
	Comment      string          `json:"comment,omitempty"`
}

// IssueRequest carries everything the invoicing agent needs to generate an
// invoice upstream.
type IssueRequest struct {
	Buyer           Buyer      `json:"buyer"`
	Items           []LineItem `json:"items"`
	PaymentMethod   string     `json:"payment_method"`
	Currency        string     `json:"currency"`
	IssueDate       time.Time  `json:"issue_date"`
	DueDate         time.Time  `json:"due_date"`
	InvoiceLanguage string     `json:"invoice_language"`
	Comment         string     `json:"comment,omitempty"`
	OrderNumber     string     `json:"order_number,omitempty"`
	ExternalID      string     `json:"external_id,omitempty"`
}

// GrossTotal sums the gross value of every line.
func (r IssueRequest) GrossTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		total = total.Add(item.GrossValue)
	}
	return total
}
