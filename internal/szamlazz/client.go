package szamlazz

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/config"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/model"
)

//go:embed templates/*.xml.tmpl
var templateFS embed.FS

var xmlTemplates = template.Must(template.New("szamlazz").ParseFS(templateFS, "templates/*.xml.tmpl"))

var (
	doneNumberRe = regexp.MustCompile(`DONE;\s*([A-Za-z0-9\-\/]+)`)
	xmlNumberRe  = regexp.MustCompile(`(?i)<invoiceNumber>(.*?)</invoiceNumber>`)
)

// Client talks to the szamlazz.hu XML agent. Requests are XML documents
// posted as a multipart file field; the field name selects the action.
type Client struct {
	cfg   config.SzamlazzConfig
	httpc *http.Client
	log   *zap.SugaredLogger
}

// NewClient returns a configured agent client.
func NewClient(cfg config.SzamlazzConfig, logger *zap.SugaredLogger) *Client {
	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 30 * time.Second},
		log:   logger,
	}
}

// IssueResult is the parsed response of an invoice generation call.
type IssueResult struct {
	InvoiceNumber string `json:"invoice_number"`
	PDFBase64     string `json:"pdf_base64,omitempty"`
	RawSummary    string `json:"raw_response_summary,omitempty"`
}

// PDFResult carries a fetched invoice PDF.
type PDFResult struct {
	InvoiceNumber string `json:"invoice_number"`
	PDFBase64     string `json:"pdf_base64"`
	FilePath      string `json:"file_path,omitempty"`
}

// PaymentResult reports an upstream payment registration.
type PaymentResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type auth struct {
	AgentKey string
	Username string
	Password string
}

// authFragment prefers the agent key over username/password.
func (c *Client) authFragment() auth {
	if c.cfg.AgentKey != "" {
		return auth{AgentKey: c.cfg.AgentKey}
	}
	return auth{Username: c.cfg.Username, Password: c.cfg.Password}
}

// BuildXML renders one of the embedded agent templates.
func BuildXML(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := xmlTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (c *Client) postXML(ctx context.Context, field, xmlBody string) ([]byte, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "request.xml")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write([]byte(xmlBody)); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, &body)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.log.Debugw("posting to szamlazz.hu", "field", field)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("agent request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("agent returned status %d: %s", resp.StatusCode, summarize(string(data), 120))
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func parseInvoiceNumber(text string) string {
	if m := doneNumberRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := xmlNumberRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func summarize(text string, limit int) string {
	s := strings.ReplaceAll(strings.TrimSpace(text), "\n", " ")
	if len(s) <= limit {
		return s
	}
	// agent responses are Hungarian; never cut a rune in half
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func isPDF(data []byte, contentType string) bool {
	return bytes.HasPrefix(data, []byte("%PDF")) || strings.Contains(contentType, "pdf")
}

type issueData struct {
	Auth auth
	Req  model.IssueRequest
}

// GenerateInvoice issues an invoice upstream and returns its assigned number.
// Some agent configurations answer with the PDF itself instead of a status
// line; in that case only the PDF comes back and the number stays empty.
func (c *Client) GenerateInvoice(ctx context.Context, req model.IssueRequest) (*IssueResult, error) {
	xmlBody, err := BuildXML("generate_invoice.xml.tmpl", issueData{Auth: c.authFragment(), Req: req})
	if err != nil {
		return nil, err
	}
	data, contentType, err := c.postXML(ctx, "action-xmlagentxmlfile", xmlBody)
	if err != nil {
		return nil, err
	}

	res := &IssueResult{}
	if isPDF(data, contentType) {
		res.PDFBase64 = base64.StdEncoding.EncodeToString(data)
		return res, nil
	}
	text := string(data)
	res.RawSummary = summarize(text, 300)
	res.InvoiceNumber = parseInvoiceNumber(text)
	return res, nil
}

type numberData struct {
	Auth          auth
	InvoiceNumber string
}

// QueryInvoicePDF fetches the invoice PDF and optionally saves it under the
// configured data dir.
func (c *Client) QueryInvoicePDF(ctx context.Context, invoiceNumber string, save bool) (*PDFResult, error) {
	xmlBody, err := BuildXML("query_invoice_pdf.xml.tmpl", numberData{Auth: c.authFragment(), InvoiceNumber: invoiceNumber})
	if err != nil {
		return nil, err
	}
	data, contentType, err := c.postXML(ctx, "action-szamla_agent_pdf", xmlBody)
	if err != nil {
		return nil, err
	}
	if !isPDF(data, contentType) {
		return nil, fmt.Errorf("unexpected agent response for PDF query: %s", summarize(string(data), 120))
	}

	res := &PDFResult{
		InvoiceNumber: invoiceNumber,
		PDFBase64:     base64.StdEncoding.EncodeToString(data),
	}
	if save {
		if err := os.MkdirAll(c.cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		path := filepath.Join(c.cfg.DataDir, invoiceNumber+".pdf")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, err
		}
		res.FilePath = path
	}
	return res, nil
}

// QueryInvoiceXML fetches the invoice as XML.
func (c *Client) QueryInvoiceXML(ctx context.Context, invoiceNumber string) (string, error) {
	xmlBody, err := BuildXML("query_invoice_xml.xml.tmpl", numberData{Auth: c.authFragment(), InvoiceNumber: invoiceNumber})
	if err != nil {
		return "", err
	}
	data, _, err := c.postXML(ctx, "action-szamla_agent_xml", xmlBody)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type paymentData struct {
	Auth          auth
	InvoiceNumber string
	PaidDate      string
	Amount        string
	Currency      string
}

// RegisterPayment records a payment against the invoice upstream. It does
// not touch the local ledger.
func (c *Client) RegisterPayment(ctx context.Context, invoiceNumber string, paidDate time.Time, amount decimal.Decimal, currency string) (*PaymentResult, error) {
	xmlBody, err := BuildXML("register_payment.xml.tmpl", paymentData{
		Auth:          c.authFragment(),
		InvoiceNumber: invoiceNumber,
		PaidDate:      paidDate.Format("2006-01-02"),
		Amount:        amount.String(),
		Currency:      currency,
	})
	if err != nil {
		return nil, err
	}
	data, _, err := c.postXML(ctx, "action-szamla_agent_kifiz", xmlBody)
	if err != nil {
		return nil, err
	}
	text := string(data)
	return &PaymentResult{
		OK:      strings.Contains(strings.ToUpper(text), "DONE"),
		Message: summarize(text, 300),
	}, nil
}
