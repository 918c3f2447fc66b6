package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice statuses. "paid" is terminal; there is no reverse transition.
const (
	StatusOpen = "open"
	StatusPaid = "paid"
)

// InvoiceRecord is the local ledger entry for an issued invoice. The invoice
// number is assigned by the invoicing system and is the primary key; buyer
// fields are denormalized snapshots taken at issuance.
type InvoiceRecord struct {
	InvoiceNumber      string          `gorm:"primaryKey;size:64" json:"invoice_number"`
	BuyerName          string          `gorm:"size:255;not null" json:"buyer_name"`
	BuyerEmail         string          `gorm:"size:255;not null" json:"buyer_email"`
	IssueDate          time.Time       `gorm:"type:date;not null" json:"issue_date"`
	DueDate            time.Time       `gorm:"type:date;not null;index" json:"due_date"`
	GrossTotal         decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"gross_total"`
	Currency           string          `gorm:"size:8;not null" json:"currency"`
	Status             string          `gorm:"size:16;not null;index" json:"status"`
	CreatedAt          time.Time       `gorm:"not null" json:"created_at"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	LastRemindedAt     *time.Time      `json:"last_reminded_at,omitempty"`
	RemindersSentCount int             `gorm:"not null;default:0" json:"reminders_sent_count"`
	ExternalID         *string         `gorm:"size:64" json:"external_id,omitempty"`
}

func (InvoiceRecord) TableName() string { return "invoices" }
