package model

import "time"

// Ledger event types written to the outbox alongside each committed mutation.
const (
	EventInvoiceStored = "invoice_stored"
	EventInvoicePaid   = "invoice_paid"
	EventReminderSent  = "reminder_sent"
)

// LedgerEvent is an outbox row. Rows are written in the same transaction as
// the ledger mutation they describe and published to Kafka by cmd/poller.
type LedgerEvent struct {
	ID            uint64    `gorm:"primaryKey"`
	EventID       string    `gorm:"size:36;not null"`
	InvoiceNumber string    `gorm:"size:64;not null;index"`
	EventType     string    `gorm:"size:32;not null"`
	Payload       string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	Processed     bool      `gorm:"not null;default:false"`
	ProcessedAt   *time.Time
}

func (LedgerEvent) TableName() string { return "ledger_events" }
