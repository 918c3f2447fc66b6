package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/model"
)

// ErrNotFound is returned when a keyed lookup or mutation targets an invoice
// number the ledger does not hold. Missing records are a normal outcome for
// reads; mutations report it explicitly so callers learn the ledger is out of
// sync.
var ErrNotFound = errors.New("invoice not found")

// ErrStorage wraps persistence failures. They are surfaced as-is, never
// retried here.
var ErrStorage = errors.New("storage failure")

const agingCacheKey = "aging:summary"

// agingCacheTTL bounds staleness of the cached summary; the summary also
// depends on the calendar date, so it must not outlive the day by much.
const agingCacheTTL = time.Minute

// Filter narrows List results. Zero values mean "no constraint"; set fields
// combine with AND.
type Filter struct {
	Status     string
	DueBefore  *time.Time
	BuyerEmail string
}

// RepositoryInterface restricts Repository methods so the service layer can
// be unit-tested against a mock.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	Init(ctx context.Context) error
	Upsert(ctx context.Context, tx *gorm.DB, rec *model.InvoiceRecord) error
	GetByNumber(ctx context.Context, number string) (*model.InvoiceRecord, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, number string, paidDate time.Time) error
	BumpReminderSent(ctx context.Context, tx *gorm.DB, number string) error
	List(ctx context.Context, f Filter) ([]model.InvoiceRecord, error)
	ListOverdue(ctx context.Context, minDays int, today time.Time) ([]model.InvoiceRecord, error)
	CreateLedgerEvent(ctx context.Context, tx *gorm.DB, evt *model.LedgerEvent) error
	PollEvents(ctx context.Context, limit int) ([]model.LedgerEvent, error)
	MarkEventProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.LedgerEvent) error
	CacheAgingSummary(ctx context.Context, payload []byte) error
	GetCachedAgingSummary(ctx context.Context) ([]byte, error)
	InvalidateAgingSummary(ctx context.Context) error
}

// Repository implements RepositoryInterface on gorm, with an optional redis
// cache and kafka writer. Both rdb and writer may be nil.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs the ledger repository.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns the underlying *gorm.DB scoped to ctx.
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// Init idempotently ensures the schema exists. Safe on every startup.
func (r *Repository) Init(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&model.InvoiceRecord{}, &model.LedgerEvent{}); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// upsertColumns are the columns replaced when an invoice number is re-stored.
// invoice_number is the key and created_at is set once at insertion, so both
// survive the replace.
var upsertColumns = []string{
	"buyer_name", "buyer_email", "issue_date", "due_date", "gross_total",
	"currency", "status", "paid_at", "last_reminded_at",
	"reminders_sent_count", "external_id",
}

// Upsert inserts or fully replaces the record at its invoice number.
func (r *Repository) Upsert(ctx context.Context, tx *gorm.DB, rec *model.InvoiceRecord) error {
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invoice_number"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// GetByNumber fetches a record by exact key.
func (r *Repository) GetByNumber(ctx context.Context, number string) (*model.InvoiceRecord, error) {
	var rec model.InvoiceRecord
	err := r.db.WithContext(ctx).Where("invoice_number = ?", number).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return &rec, nil
}

// MarkPaid transitions the record to paid. Idempotent: a second call leaves
// status and the original paid_at unchanged. Reminder fields are never
// touched here.
func (r *Repository) MarkPaid(ctx context.Context, tx *gorm.DB, number string, paidDate time.Time) error {
	res := tx.WithContext(ctx).
		Model(&model.InvoiceRecord{}).
		Where("invoice_number = ?", number).
		Updates(map[string]interface{}{
			"status":  model.StatusPaid,
			"paid_at": gorm.Expr("COALESCE(paid_at, ?)", paidDate),
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrStorage, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// BumpReminderSent atomically records one reminder-send event. A single
// UPDATE with a SQL expression keeps the increment race-free against
// concurrent mutations on the same key.
func (r *Repository) BumpReminderSent(ctx context.Context, tx *gorm.DB, number string) error {
	res := tx.WithContext(ctx).
		Model(&model.InvoiceRecord{}).
		Where("invoice_number = ?", number).
		Updates(map[string]interface{}{
			"reminders_sent_count": gorm.Expr("reminders_sent_count + 1"),
			"last_reminded_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrStorage, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns records matching the filter, due date ascending.
func (r *Repository) List(ctx context.Context, f Filter) ([]model.InvoiceRecord, error) {
	q := r.db.WithContext(ctx).Model(&model.InvoiceRecord{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.DueBefore != nil {
		q = q.Where("due_date <= ?", *f.DueBefore)
	}
	if f.BuyerEmail != "" {
		q = q.Where("buyer_email = ?", f.BuyerEmail)
	}
	var recs []model.InvoiceRecord
	if err := q.Order("due_date ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return recs, nil
}

// ListOverdue returns open records at least minDays overdue relative to
// today, due date ascending.
func (r *Repository) ListOverdue(ctx context.Context, minDays int, today time.Time) ([]model.InvoiceRecord, error) {
	cutoff := today.AddDate(0, 0, -minDays)
	var recs []model.InvoiceRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND due_date <= ?", model.StatusOpen, cutoff).
		Order("due_date ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return recs, nil
}

// CreateLedgerEvent writes an outbox row inside the caller's transaction.
func (r *Repository) CreateLedgerEvent(ctx context.Context, tx *gorm.DB, evt *model.LedgerEvent) error {
	if err := tx.WithContext(ctx).Create(evt).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// PollEvents pulls unprocessed outbox rows, oldest first.
func (r *Repository) PollEvents(ctx context.Context, limit int) ([]model.LedgerEvent, error) {
	var evts []model.LedgerEvent
	err := r.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("created_at").
		Limit(limit).
		Find(&evts).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return evts, nil
}

// MarkEventProcessed sets the processed flag.
func (r *Repository) MarkEventProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&model.LedgerEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// PublishEvent sends one outbox row to Kafka, keyed by invoice number so
// per-invoice ordering survives partitioning.
func (r *Repository) PublishEvent(ctx context.Context, evt model.LedgerEvent) error {
	msg := kafka.Message{
		Key:   []byte(evt.InvoiceNumber),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// CacheAgingSummary stores a rendered summary. No-op without redis.
func (r *Repository) CacheAgingSummary(ctx context.Context, payload []byte) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Set(ctx, agingCacheKey, payload, agingCacheTTL).Err()
}

// GetCachedAgingSummary reads the cached summary; redis.Nil on miss.
func (r *Repository) GetCachedAgingSummary(ctx context.Context) ([]byte, error) {
	if r.rdb == nil {
		return nil, redis.Nil
	}
	return r.rdb.Get(ctx, agingCacheKey).Bytes()
}

// InvalidateAgingSummary drops the cached summary after a mutation.
func (r *Repository) InvalidateAgingSummary(ctx context.Context) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Del(ctx, agingCacheKey).Err()
}
