package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/model"
)

// BucketTotals aggregates one aging bucket.
type BucketTotals struct {
	Count      int             `json:"count"`
	GrossTotal decimal.Decimal `json:"gross_total"`
}

// AgingSummary maps bucket name to totals for open invoices, plus overall
// totals across every record regardless of status.
type AgingSummary struct {
	ByBucket map[string]BucketTotals `json:"by_bucket"`
	Totals   BucketTotals            `json:"totals"`
}

// agingBuckets in priority order; first match wins. Bounds are inclusive.
var agingBuckets = []struct {
	name string
	max  int
}{
	{"current", 0},
	{"1-7", 7},
	{"8-30", 30},
	{"31-60", 60},
}

const lastBucket = "60+"

// BucketNames returns every bucket label in reporting order.
func BucketNames() []string {
	names := make([]string, 0, len(agingBuckets)+1)
	for _, b := range agingBuckets {
		names = append(names, b.name)
	}
	return append(names, lastBucket)
}

// DateOf truncates a timestamp to its local calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysOverdue is the whole-day difference between today and the due date.
// Negative or zero means not yet due.
func DaysOverdue(today, due time.Time) int {
	return int(DateOf(today).Sub(DateOf(due)).Hours() / 24)
}

func bucketFor(daysOverdue int) string {
	for _, b := range agingBuckets {
		if daysOverdue <= b.max {
			return b.name
		}
	}
	return lastBucket
}

// Summarize buckets every open record by days overdue and totals the whole
// snapshot. Pure function: the caller supplies the snapshot and "today".
// Sums stay in decimal so money never drifts.
func Summarize(records []model.InvoiceRecord, today time.Time) AgingSummary {
	byBucket := make(map[string]BucketTotals, len(agingBuckets)+1)
	for _, name := range BucketNames() {
		byBucket[name] = BucketTotals{GrossTotal: decimal.Zero}
	}
	totals := BucketTotals{GrossTotal: decimal.Zero}

	for _, rec := range records {
		totals.Count++
		totals.GrossTotal = totals.GrossTotal.Add(rec.GrossTotal)
		if rec.Status != model.StatusOpen {
			continue
		}
		name := bucketFor(DaysOverdue(today, rec.DueDate))
		b := byBucket[name]
		b.Count++
		b.GrossTotal = b.GrossTotal.Add(rec.GrossTotal)
		byBucket[name] = b
	}

	return AgingSummary{ByBucket: byBucket, Totals: totals}
}
