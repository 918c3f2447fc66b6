package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/config"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/model"
)

//go:embed templates/*.txt.tmpl
var templateFS embed.FS

var reminderTemplates = template.Must(template.New("reminders").ParseFS(templateFS, "templates/*.txt.tmpl"))

// Draft is a rendered reminder, ready to send or hand back to the caller for
// review.
type Draft struct {
	Subject       string          `json:"subject"`
	Body          string          `json:"body"`
	Language      string          `json:"language"`
	Tone          string          `json:"tone"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       time.Time       `json:"due_date"`
}

var subjects = map[string]string{
	"hu": "Kíméletes emlékeztető: Számla %s",
	"en": "Friendly reminder: Invoice %s",
}

type templateData struct {
	BuyerName     string
	InvoiceNumber string
	DueDate       string
	Amount        string
	Currency      string
	Tone          string
}

// RenderReminder builds a reminder draft for the record in the requested
// language and tone. Unknown languages are an error, not a fallback.
func RenderReminder(rec *model.InvoiceRecord, language, tone string) (*Draft, error) {
	name := fmt.Sprintf("reminder_%s.txt.tmpl", language)
	tmpl := reminderTemplates.Lookup(name)
	if tmpl == nil {
		return nil, fmt.Errorf("no reminder template for language %q", language)
	}

	var body bytes.Buffer
	err := tmpl.Execute(&body, templateData{
		BuyerName:     rec.BuyerName,
		InvoiceNumber: rec.InvoiceNumber,
		DueDate:       rec.DueDate.Format("2006-01-02"),
		Amount:        rec.GrossTotal.String(),
		Currency:      rec.Currency,
		Tone:          tone,
	})
	if err != nil {
		return nil, err
	}

	subject := fmt.Sprintf("Invoice %s reminder", rec.InvoiceNumber)
	if f, ok := subjects[language]; ok {
		subject = fmt.Sprintf(f, rec.InvoiceNumber)
	}

	return &Draft{
		Subject:       subject,
		Body:          body.String(),
		Language:      language,
		Tone:          tone,
		InvoiceNumber: rec.InvoiceNumber,
		Amount:        rec.GrossTotal,
		DueDate:       rec.DueDate,
	}, nil
}

// Mailer delivers reminder drafts over SMTP.
type Mailer struct {
	cfg config.SMTPConfig
	log *zap.SugaredLogger
}

// NewMailer returns a mailer bound to the SMTP settings.
func NewMailer(cfg config.SMTPConfig, logger *zap.SugaredLogger) *Mailer {
	return &Mailer{cfg: cfg, log: logger}
}

// Send delivers the draft to one recipient. An error here means the reminder
// was not sent and its ledger metadata must not be bumped.
func (m *Mailer) Send(to string, draft *Draft) error {
	if !m.cfg.Configured() {
		return fmt.Errorf("smtp is not configured")
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", draft.Subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(draft.Body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}
	m.log.Infow("sent reminder", "to", to, "invoice_number", draft.InvoiceNumber)
	return nil
}
