package szamlazz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/config"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/logger"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/model"
)

func testIssueRequest() model.IssueRequest {
	return model.IssueRequest{
		Buyer: model.Buyer{
			Name:    "Teszt Kft.",
			Country: "HU",
			Zip:     "1011",
			City:    "Budapest",
			Address: "Fo ut 1",
			Email:   "teszt@example.com",
		},
		Items: []model.LineItem{
			{
				Name:         "Consulting",
				Quantity:     1,
				NetUnitPrice: decimal.RequireFromString("100"),
				VATRate:      27,
				NetValue:     decimal.RequireFromString("100"),
				VATValue:     decimal.RequireFromString("27"),
				GrossValue:   decimal.RequireFromString("127"),
			},
		},
		PaymentMethod:   "átutalás",
		Currency:        "HUF",
		IssueDate:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		DueDate:         time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC),
		InvoiceLanguage: "hu",
	}
}

func TestParseInvoiceNumber(t *testing.T) {
	assert.Equal(t, "E-2026-12", parseInvoiceNumber("DONE; E-2026-12"))
	assert.Equal(t, "INV/2026/042", parseInvoiceNumber("DONE;INV/2026/042"))
	assert.Equal(t, "E-2026-12", parseInvoiceNumber("<xml><invoiceNumber>E-2026-12</invoiceNumber></xml>"))
	assert.Empty(t, parseInvoiceNumber("ERROR;3;authentication failed"))
}

func TestBuildXMLGenerateInvoice(t *testing.T) {
	xml, err := BuildXML("generate_invoice.xml.tmpl", issueData{
		Auth: auth{AgentKey: "key"},
		Req:  testIssueRequest(),
	})
	require.NoError(t, err)

	assert.Contains(t, xml, "xmlszamla")
	assert.Contains(t, xml, "<szamlaagentkulcs>key</szamlaagentkulcs>")
	assert.Contains(t, xml, "Teszt Kft.")
	assert.Contains(t, xml, "<fizetesiHataridoDatum>2026-01-08</fizetesiHataridoDatum>")
	assert.Contains(t, xml, "<bruttoErtek>127</bruttoErtek>")
	assert.NotContains(t, xml, "<felhasznalo>")
}

func TestBuildXMLPasswordFallback(t *testing.T) {
	xml, err := BuildXML("query_invoice_xml.xml.tmpl", numberData{
		Auth:          auth{Username: "user", Password: "pw"},
		InvoiceNumber: "INV-1",
	})
	require.NoError(t, err)

	assert.Contains(t, xml, "<felhasznalo>user</felhasznalo>")
	assert.Contains(t, xml, "<szamlaszam>INV-1</szamlaszam>")
	assert.NotContains(t, xml, "szamlaagentkulcs")
}

func newStubClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log, err := logger.New("error")
	require.NoError(t, err)
	return NewClient(config.SzamlazzConfig{
		BaseURL:  srv.URL,
		AgentKey: "key",
		DataDir:  t.TempDir(),
	}, log)
}

func TestGenerateInvoice(t *testing.T) {
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("action-xmlagentxmlfile")
		require.NoError(t, err)
		w.Write([]byte("DONE; E-2026-99"))
	})

	res, err := c.GenerateInvoice(context.Background(), testIssueRequest())
	require.NoError(t, err)
	assert.Equal(t, "E-2026-99", res.InvoiceNumber)
	assert.Empty(t, res.PDFBase64)
}

func TestGenerateInvoicePDFResponse(t *testing.T) {
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	})

	res, err := c.GenerateInvoice(context.Background(), testIssueRequest())
	require.NoError(t, err)
	assert.Empty(t, res.InvoiceNumber)
	assert.NotEmpty(t, res.PDFBase64)
}

func TestRegisterPayment(t *testing.T) {
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("action-szamla_agent_kifiz")
		require.NoError(t, err)
		w.Write([]byte("DONE"))
	})

	res, err := c.RegisterPayment(context.Background(), "INV-1", time.Now(), decimal.NewFromInt(100), "HUF")
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestSummarizeTruncatesOnRuneBoundary(t *testing.T) {
	assert.Equal(t, "short", summarize("  short\n", 300))

	// "é" is two bytes; a byte-limit landing inside it must back off
	s := summarize("Sikeres kiállítás", 9)
	assert.True(t, utf8.ValidString(s))
	assert.Equal(t, "Sikeres k", s)

	s = summarize("Sikeres kiállítás", 11)
	assert.True(t, utf8.ValidString(s))
	assert.Equal(t, "Sikeres ki", s)
}

func TestQueryInvoicePDFRejectsNonPDF(t *testing.T) {
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ERROR;7;no such invoice"))
	})

	_, err := c.QueryInvoicePDF(context.Background(), "INV-1", false)
	assert.Error(t, err)
}
