package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/metrics"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/model"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/repo"
)

// ErrValidation is returned when a record fails an invariant before any
// write.
var ErrValidation = errors.New("validation failed")

// LedgerService owns the collections invariants: validation before every
// write, one outbox event per committed mutation, and the aging view.
type LedgerService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

// NewLedgerService returns the ledger service.
func NewLedgerService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *LedgerService {
	return &LedgerService{repo: r, log: logger}
}

func validateRecord(rec *model.InvoiceRecord) error {
	if rec.InvoiceNumber == "" {
		return fmt.Errorf("%w: invoice_number is required", ErrValidation)
	}
	if rec.GrossTotal.IsNegative() {
		return fmt.Errorf("%w: gross_total must not be negative", ErrValidation)
	}
	if rec.Status != model.StatusOpen && rec.Status != model.StatusPaid {
		return fmt.Errorf("%w: status must be %q or %q", ErrValidation, model.StatusOpen, model.StatusPaid)
	}
	if rec.RemindersSentCount < 0 {
		return fmt.Errorf("%w: reminders_sent_count must not be negative", ErrValidation)
	}
	return nil
}

// RecordIssued stores a confirmed invoice in the ledger. Re-storing an
// existing number replaces it (created_at excepted). The record and its
// outbox event commit together or not at all.
func (s *LedgerService) RecordIssued(ctx context.Context, rec *model.InvoiceRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Upsert(ctx, tx, rec); err != nil {
			return err
		}
		return s.writeEvent(ctx, tx, model.EventInvoiceStored, rec.InvoiceNumber, map[string]interface{}{
			"invoice_number": rec.InvoiceNumber,
			"buyer_email":    rec.BuyerEmail,
			"gross_total":    rec.GrossTotal,
			"currency":       rec.Currency,
			"due_date":       DateOf(rec.DueDate).Format("2006-01-02"),
		})
	})
	if err != nil {
		return err
	}
	s.dropAgingCache(ctx)
	metrics.InvoicesStored.Inc()
	s.log.Infow("stored invoice", "invoice_number", rec.InvoiceNumber)
	return nil
}

// Get fetches one record by invoice number.
func (s *LedgerService) Get(ctx context.Context, number string) (*model.InvoiceRecord, error) {
	return s.repo.GetByNumber(ctx, number)
}

// List returns filtered records, due date ascending.
func (s *LedgerService) List(ctx context.Context, f repo.Filter) ([]model.InvoiceRecord, error) {
	if f.Status != "" && f.Status != model.StatusOpen && f.Status != model.StatusPaid {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
	}
	return s.repo.List(ctx, f)
}

// ListOverdue returns open records at least minDays overdue, evaluated
// against the local calendar date at call time.
func (s *LedgerService) ListOverdue(ctx context.Context, minDays int) ([]model.InvoiceRecord, error) {
	if minDays < 0 {
		return nil, fmt.Errorf("%w: min_days_overdue must not be negative", ErrValidation)
	}
	return s.repo.ListOverdue(ctx, minDays, DateOf(time.Now()))
}

// MarkPaid transitions an invoice to paid and returns the updated record.
// Idempotent when already paid; the repeat is a no-op that emits no outbox
// event. Reminder metadata is left untouched.
func (s *LedgerService) MarkPaid(ctx context.Context, number string, paidDate time.Time) (*model.InvoiceRecord, error) {
	var alreadyPaid bool
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.InvoiceRecord
		if err := tx.WithContext(ctx).Where("invoice_number = ?", number).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repo.ErrNotFound
			}
			return fmt.Errorf("%w: %v", repo.ErrStorage, err)
		}
		if current.Status == model.StatusPaid {
			alreadyPaid = true
			return nil
		}
		if err := s.repo.MarkPaid(ctx, tx, number, DateOf(paidDate)); err != nil {
			return err
		}
		return s.writeEvent(ctx, tx, model.EventInvoicePaid, number, map[string]interface{}{
			"invoice_number": number,
			"paid_date":      DateOf(paidDate).Format("2006-01-02"),
		})
	})
	if err != nil {
		return nil, err
	}
	if !alreadyPaid {
		s.dropAgingCache(ctx)
		metrics.PaymentsMarked.Inc()
		s.log.Infow("marked invoice paid", "invoice_number", number)
	}
	return s.repo.GetByNumber(ctx, number)
}

// RecordReminderSent registers one successful reminder send: count up by one,
// last_reminded_at set to now. Advisory bookkeeping only; it never decides
// whether a reminder may be sent.
func (s *LedgerService) RecordReminderSent(ctx context.Context, number string) (*model.InvoiceRecord, error) {
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.BumpReminderSent(ctx, tx, number); err != nil {
			return err
		}
		return s.writeEvent(ctx, tx, model.EventReminderSent, number, map[string]interface{}{
			"invoice_number": number,
		})
	})
	if err != nil {
		return nil, err
	}
	metrics.RemindersSent.Inc()
	return s.repo.GetByNumber(ctx, number)
}

// AgingSummary buckets outstanding receivables by days overdue. The rendered
// summary is cached briefly; every cache failure is soft.
func (s *LedgerService) AgingSummary(ctx context.Context) (*AgingSummary, error) {
	if cached, err := s.repo.GetCachedAgingSummary(ctx); err == nil {
		var summary AgingSummary
		if err := json.Unmarshal(cached, &summary); err == nil {
			return &summary, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warnw("aging cache read failed", "err", err)
	}

	records, err := s.repo.List(ctx, repo.Filter{})
	if err != nil {
		return nil, err
	}
	summary := Summarize(records, time.Now())

	if payload, err := json.Marshal(summary); err == nil {
		if err := s.repo.CacheAgingSummary(ctx, payload); err != nil {
			s.log.Warnw("aging cache write failed", "err", err)
		}
	}
	return &summary, nil
}

func (s *LedgerService) writeEvent(ctx context.Context, tx *gorm.DB, eventType, number string, body map[string]interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return s.repo.CreateLedgerEvent(ctx, tx, &model.LedgerEvent{
		EventID:       uuid.NewString(),
		InvoiceNumber: number,
		EventType:     eventType,
		Payload:       string(payload),
	})
}

func (s *LedgerService) dropAgingCache(ctx context.Context) {
	if err := s.repo.InvalidateAgingSummary(ctx); err != nil {
		s.log.Warnw("aging cache invalidation failed", "err", err)
	}
}

// Repo exposes the underlying repository (unit tests helper).
func (s *LedgerService) Repo() repo.RepositoryInterface {
	return s.repo
}
