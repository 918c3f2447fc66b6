package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/logger"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/model"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/repo"
)

func newTestService(t *testing.T) (*LedgerService, context.Context) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	log, err := logger.New("error")
	require.NoError(t, err)
	repository := repo.NewRepository(db, nil, nil, log)
	ctx := context.Background()
	require.NoError(t, repository.Init(ctx))
	return NewLedgerService(repository, log), ctx
}

func openInvoice(number string, dueOffset int, gross string) *model.InvoiceRecord {
	rec := agingRecord(number, dueOffset, gross, model.StatusOpen)
	return &rec
}

func TestRecordIssuedRejectsNegativeTotal(t *testing.T) {
	svc, ctx := newTestService(t)

	rec := openInvoice("INV-NEG", 7, "100")
	rec.GrossTotal = decimal.NewFromInt(-1)
	err := svc.RecordIssued(ctx, rec)
	assert.ErrorIs(t, err, ErrValidation)

	// nothing written
	var count int64
	require.NoError(t, svc.Repo().DB(ctx).Model(&model.InvoiceRecord{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestRecordIssuedRejectsBadInput(t *testing.T) {
	svc, ctx := newTestService(t)

	noNumber := openInvoice("", 7, "100")
	assert.ErrorIs(t, svc.RecordIssued(ctx, noNumber), ErrValidation)

	badStatus := openInvoice("INV-BAD", 7, "100")
	badStatus.Status = "overdue"
	assert.ErrorIs(t, svc.RecordIssued(ctx, badStatus), ErrValidation)
}

func TestLedgerFullFlow(t *testing.T) {
	svc, ctx := newTestService(t)

	require.NoError(t, svc.RecordIssued(ctx, openInvoice("INV-1", -5, "50")))
	require.NoError(t, svc.RecordIssued(ctx, openInvoice("INV-2", 7, "100")))

	// round trip
	got, err := svc.Get(ctx, "INV-1")
	require.NoError(t, err)
	assert.True(t, got.GrossTotal.Equal(decimal.NewFromInt(50)))

	// overdue view sees only the late one
	overdue, err := svc.ListOverdue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "INV-1", overdue[0].InvoiceNumber)

	// reminder sent, bookkeeping advances
	updated, err := svc.RecordReminderSent(ctx, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, 1, updated.RemindersSentCount)
	require.NotNil(t, updated.LastRemindedAt)

	// paid, reminder fields untouched
	paid, err := svc.MarkPaid(ctx, "INV-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, paid.Status)
	assert.Equal(t, 1, paid.RemindersSentCount)

	// second MarkPaid is a no-op, not an error
	paid2, err := svc.MarkPaid(ctx, "INV-1", time.Now().AddDate(0, 0, 1))
	require.NoError(t, err)
	require.NotNil(t, paid2.PaidAt)
	assert.Equal(t, paid.PaidAt.Format("2006-01-02"), paid2.PaidAt.Format("2006-01-02"))

	// aging: INV-1 is paid so only INV-2 is bucketed, totals cover both
	summary, err := svc.AgingSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Totals.Count)
	assert.True(t, summary.Totals.GrossTotal.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, 1, summary.ByBucket["current"].Count)

	// one outbox event per mutation
	var events []model.LedgerEvent
	require.NoError(t, svc.Repo().DB(ctx).Order("id").Find(&events).Error)
	types := make([]string, 0, len(events))
	for _, evt := range events {
		types = append(types, evt.EventType)
		assert.NotEmpty(t, evt.EventID)
	}
	assert.Equal(t, []string{
		model.EventInvoiceStored,
		model.EventInvoiceStored,
		model.EventReminderSent,
		model.EventInvoicePaid,
	}, types)
}

func TestMarkPaidTwiceWritesSingleEvent(t *testing.T) {
	svc, ctx := newTestService(t)

	require.NoError(t, svc.RecordIssued(ctx, openInvoice("INV-ONCE", -3, "75")))

	_, err := svc.MarkPaid(ctx, "INV-ONCE", time.Now())
	require.NoError(t, err)
	_, err = svc.MarkPaid(ctx, "INV-ONCE", time.Now().AddDate(0, 0, 2))
	require.NoError(t, err)

	var count int64
	require.NoError(t, svc.Repo().DB(ctx).
		Model(&model.LedgerEvent{}).
		Where("event_type = ?", model.EventInvoicePaid).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestMarkPaidUnknownInvoice(t *testing.T) {
	svc, ctx := newTestService(t)

	_, err := svc.MarkPaid(ctx, "NOPE", time.Now())
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRecordReminderSentUnknownInvoice(t *testing.T) {
	svc, ctx := newTestService(t)

	_, err := svc.RecordReminderSent(ctx, "NOPE")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc, ctx := newTestService(t)

	_, err := svc.List(ctx, repo.Filter{Status: "cancelled"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListOverdueRejectsNegativeThreshold(t *testing.T) {
	svc, ctx := newTestService(t)

	_, err := svc.ListOverdue(ctx, -1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAgingSummaryUsesCache(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	log, err := logger.New("error")
	require.NoError(t, err)
	rdb, mock := redismock.NewClientMock()
	repository := repo.NewRepository(db, rdb, nil, log)
	ctx := context.Background()
	require.NoError(t, repository.Init(ctx))
	svc := NewLedgerService(repository, log)

	payload, err := json.Marshal(Summarize(nil, time.Now()))
	require.NoError(t, err)

	mock.ExpectGet("aging:summary").RedisNil()
	mock.ExpectSet("aging:summary", payload, time.Minute).SetVal("OK")
	first, err := svc.AgingSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Totals.Count)

	// second call is served from the cache, no further Set expected
	mock.ExpectGet("aging:summary").SetVal(string(payload))
	second, err := svc.AgingSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Totals.Count, second.Totals.Count)
	assert.True(t, first.Totals.GrossTotal.Equal(second.Totals.GrossTotal))

	assert.NoError(t, mock.ExpectationsWereMet())
}
