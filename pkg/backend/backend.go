// Package backend provides the wire types and client abstraction for the
// remote ESG analysis service. The service owns text extraction, retrieval
// and model reasoning; this package only speaks its REST contract.
package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// Report is one uploaded or sample ESG document known to the backend.
type Report struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Pages      *int   `json:"pages,omitempty"` // nil when the backend did not report a count
	UploadedAt string `json:"uploaded_at"`     // ISO-8601, timezone optional
}

// uploadedAtLayouts covers RFC 3339 and the naive ISO form the service emits.
var uploadedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// UploadedTime parses UploadedAt. Naive timestamps are interpreted as UTC.
func (r Report) UploadedTime() (time.Time, bool) {
	s := strings.TrimSpace(r.UploadedAt)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range uploadedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// PageCount returns the page count and whether it is known.
func (r Report) PageCount() (int, bool) {
	if r.Pages == nil || *r.Pages < 0 {
		return 0, false
	}
	return *r.Pages, true
}

// Citation points from a chat answer back to a page of a source report.
type Citation struct {
	ID         string `json:"id,omitempty"`
	ReportID   string `json:"report_id,omitempty"`
	ReportName string `json:"report_name"`
	Page       int    `json:"page"`
	Snippet    string `json:"snippet,omitempty"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Question  string   `json:"question"`
	ReportIDs []string `json:"report_ids"`
	TopK      int      `json:"top_k"`
}

// QueryResponse is the chat answer with its supporting citations.
type QueryResponse struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// SummaryResponse carries the markdown-like executive summary.
type SummaryResponse struct {
	ReportID  string `json:"report_id,omitempty"`
	SummaryMD string `json:"summary_md"`
}

// ComplianceEntry is the backend's judgement for a single framework.
type ComplianceEntry struct {
	Covered bool   `json:"covered"`
	Notes   string `json:"notes"`
}

// ComplianceResponse keeps the raw per-framework objects; keys and shape are
// not trusted, decoding happens per framework on the client side.
type ComplianceResponse struct {
	ReportID   string                     `json:"report_id,omitempty"`
	Compliance map[string]json.RawMessage `json:"compliance"`
}

// RiskResponse is the greenwashing risk label and its explanation.
type RiskResponse struct {
	ReportID    string  `json:"report_id,omitempty"`
	Score       *string `json:"score"`
	Explanation *string `json:"explanation"`
}

// MetricsResponse is an opaque, backend-defined metric tree. Metrics is
// kept as the raw JSON so key order and number literals survive.
type MetricsResponse struct {
	ReportID string          `json:"report_id,omitempty"`
	Metrics  json.RawMessage `json:"metrics"`
}

// Health describes the backend's readiness and index size.
type Health struct {
	Status  string `json:"status"`
	Model   string `json:"model"`
	Chunks  int    `json:"chunks"`
	Reports int    `json:"reports"`
}

// Upload is one file to send with UploadReports.
type Upload struct {
	Name    string
	Content io.Reader
}

// Client defines the operations the analysis backend exposes.
// Every method blocks until the backend answers or ctx is done.
type Client interface {
	// ListReports returns every report the backend has indexed, in arrival order.
	ListReports(ctx context.Context) ([]Report, error)

	// UploadReports sends one or more files and returns the full updated list.
	UploadReports(ctx context.Context, files []Upload) ([]Report, error)

	// LoadSample asks the backend to index its bundled sample report and
	// returns the full updated list.
	LoadSample(ctx context.Context) ([]Report, error)

	// Preview returns the leading text of a report.
	Preview(ctx context.Context, reportID string) (string, error)

	// Query answers a question against the given reports.
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)

	// Summary generates an executive summary for one report.
	Summary(ctx context.Context, reportID string) (*SummaryResponse, error)

	// Compliance checks framework coverage for one report.
	Compliance(ctx context.Context, reportID string) (*ComplianceResponse, error)

	// Risk assesses greenwashing risk for one report.
	Risk(ctx context.Context, reportID string) (*RiskResponse, error)

	// Metrics extracts structured ESG metrics for one report.
	Metrics(ctx context.Context, reportID string) (*MetricsResponse, error)

	// Health reports service status.
	Health(ctx context.Context) (*Health, error)
}

// Config holds connection settings for an HTTP Client.
type Config struct {
	// BaseURL is the service root, e.g. http://localhost:8000.
	BaseURL string

	// Timeout bounds each request. Zero means no client-side timeout.
	Timeout time.Duration

	// Token, when set, is sent as a bearer token on every request.
	Token string

	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64

	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
}
