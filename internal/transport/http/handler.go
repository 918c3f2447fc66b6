package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/mailer"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/model"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/repo"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/service"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/szamlazz"
)

const dateLayout = "2006-01-02"

// Handlers bundles everything the tool surface needs. Agent and mail may be
// nil when the corresponding upstream is not configured; the affected
// endpoints answer 503.
type Handlers struct {
	svc   *service.LedgerService
	agent *szamlazz.Client
	mail  *mailer.Mailer
}

// RegisterHandlers mounts every ledger operation under /v1.
func RegisterHandlers(r gin.IRouter, svc *service.LedgerService, agent *szamlazz.Client, mail *mailer.Mailer) {
	h := &Handlers{svc: svc, agent: agent, mail: mail}
	v1 := r.Group("/v1")
	{
		v1.POST("/invoices", h.issueInvoice)
		v1.GET("/invoices", h.listInvoices)
		v1.GET("/invoices/overdue", h.listOverdue)
		v1.GET("/invoices/:number", h.getInvoice)
		v1.GET("/invoices/:number/pdf", h.invoicePDF)
		v1.GET("/invoices/:number/xml", h.invoiceXML)
		v1.POST("/invoices/:number/payment", h.markPaid)
		v1.POST("/invoices/:number/payment/remote", h.registerPayment)
		v1.GET("/invoices/:number/reminder", h.draftReminder)
		v1.POST("/invoices/:number/reminder", h.sendReminder)
		v1.GET("/aging", h.agingSummary)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (h *Handlers) requireAgent(c *gin.Context) bool {
	if h.agent == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "invoicing agent is not configured"})
		return false
	}
	return true
}

type issueInvoiceReq struct {
	Buyer           model.Buyer      `json:"buyer" binding:"required"`
	Items           []model.LineItem `json:"items" binding:"required,min=1"`
	PaymentMethod   string           `json:"payment_method" binding:"required"`
	Currency        string           `json:"currency"`
	IssueDate       string           `json:"issue_date" binding:"required"`
	DueDate         string           `json:"due_date" binding:"required"`
	InvoiceLanguage string           `json:"invoice_language"`
	Comment         string           `json:"comment"`
	OrderNumber     string           `json:"order_number"`
	ExternalID      string           `json:"external_id"`
}

func (h *Handlers) issueInvoice(c *gin.Context) {
	if !h.requireAgent(c) {
		return
	}
	var req issueInvoiceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	issueDate, err := time.Parse(dateLayout, req.IssueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid issue_date"})
		return
	}
	dueDate, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_date"})
		return
	}
	if req.Currency == "" {
		req.Currency = "HUF"
	}
	if req.InvoiceLanguage == "" {
		req.InvoiceLanguage = "hu"
	}
	if req.Buyer.Country == "" {
		req.Buyer.Country = "HU"
	}

	issueReq := model.IssueRequest{
		Buyer:           req.Buyer,
		Items:           req.Items,
		PaymentMethod:   req.PaymentMethod,
		Currency:        req.Currency,
		IssueDate:       issueDate,
		DueDate:         dueDate,
		InvoiceLanguage: req.InvoiceLanguage,
		Comment:         req.Comment,
		OrderNumber:     req.OrderNumber,
		ExternalID:      req.ExternalID,
	}
	result, err := h.agent.GenerateInvoice(c, issueReq)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if result.InvoiceNumber == "" {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":                "agent did not return an invoice number",
			"raw_response_summary": result.RawSummary,
		})
		return
	}

	rec := &model.InvoiceRecord{
		InvoiceNumber:      result.InvoiceNumber,
		BuyerName:          req.Buyer.Name,
		BuyerEmail:         req.Buyer.Email,
		IssueDate:          issueDate,
		DueDate:            dueDate,
		GrossTotal:         issueReq.GrossTotal(),
		Currency:           req.Currency,
		Status:             model.StatusOpen,
		CreatedAt:          time.Now().UTC(),
		RemindersSentCount: 0,
	}
	if req.ExternalID != "" {
		rec.ExternalID = &req.ExternalID
	}
	if err := h.svc.RecordIssued(c, rec); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"invoice_number":       result.InvoiceNumber,
		"stored_record":        rec,
		"raw_response_summary": result.RawSummary,
	})
}

func (h *Handlers) listInvoices(c *gin.Context) {
	f := repo.Filter{
		Status:     c.Query("status"),
		BuyerEmail: c.Query("buyer_email"),
	}
	if raw := c.Query("due_before"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_before"})
			return
		}
		f.DueBefore = &t
	}
	recs, err := h.svc.List(c, f)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handlers) listOverdue(c *gin.Context) {
	minDays, err := strconv.Atoi(c.DefaultQuery("min_days_overdue", "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_days_overdue"})
		return
	}
	recs, err := h.svc.ListOverdue(c, minDays)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handlers) getInvoice(c *gin.Context) {
	rec, err := h.svc.Get(c, c.Param("number"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handlers) invoicePDF(c *gin.Context) {
	if !h.requireAgent(c) {
		return
	}
	save := c.DefaultQuery("save", "true") == "true"
	res, err := h.agent.QueryInvoicePDF(c, c.Param("number"), save)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) invoiceXML(c *gin.Context) {
	if !h.requireAgent(c) {
		return
	}
	xml, err := h.agent.QueryInvoiceXML(c, c.Param("number"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice_number": c.Param("number"), "xml": xml})
}

type markPaidReq struct {
	PaidDate string `json:"paid_date" binding:"required"`
}

func (h *Handlers) markPaid(c *gin.Context) {
	var req markPaidReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	paidDate, err := time.Parse(dateLayout, req.PaidDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paid_date"})
		return
	}
	rec, err := h.svc.MarkPaid(c, c.Param("number"), paidDate)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type registerPaymentReq struct {
	PaidDate string `json:"paid_date" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency"`
}

func (h *Handlers) registerPayment(c *gin.Context) {
	if !h.requireAgent(c) {
		return
	}
	var req registerPaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	paidDate, err := time.Parse(dateLayout, req.PaidDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paid_date"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	if req.Currency == "" {
		req.Currency = "HUF"
	}
	res, err := h.agent.RegisterPayment(c, c.Param("number"), paidDate, amount, req.Currency)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) draftReminder(c *gin.Context) {
	rec, err := h.svc.Get(c, c.Param("number"))
	if err != nil {
		abortWith(c, err)
		return
	}
	draft, err := mailer.RenderReminder(rec, c.DefaultQuery("language", "hu"), c.DefaultQuery("tone", "polite"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, draft)
}

type sendReminderReq struct {
	ToEmail  string `json:"to_email"`
	Language string `json:"language"`
	Tone     string `json:"tone"`
}

// sendReminder renders and delivers the reminder, then records the send.
// The bump happens only after the mailer reports success.
func (h *Handlers) sendReminder(c *gin.Context) {
	if h.mail == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "smtp is not configured"})
		return
	}
	var req sendReminderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Language == "" {
		req.Language = "hu"
	}
	if req.Tone == "" {
		req.Tone = "polite"
	}

	rec, err := h.svc.Get(c, c.Param("number"))
	if err != nil {
		abortWith(c, err)
		return
	}
	to := req.ToEmail
	if to == "" {
		to = rec.BuyerEmail
	}
	draft, err := mailer.RenderReminder(rec, req.Language, req.Tone)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.mail.Send(to, draft); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	updated, err := h.svc.RecordReminderSent(c, rec.InvoiceNumber)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent_to": to, "record": updated})
}

func (h *Handlers) agingSummary(c *gin.Context) {
	summary, err := h.svc.AgingSummary(c)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
