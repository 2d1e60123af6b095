// Package testutil provides an in-process fake of the ESG analysis backend
// for tests. It serves every REST route the client uses, and lets a test
// hold a route open or force it to fail.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/greg-hellings/esginsight/pkg/backend"
)

// Route names accepted by Fail, Block, Entered and Hits.
const (
	RouteList       = "list"
	RouteUpload     = "upload"
	RouteSample     = "sample"
	RoutePreview    = "preview"
	RouteQuery      = "query"
	RouteSummary    = "summary"
	RouteCompliance = "compliance"
	RouteRisk       = "risk"
	RouteMetrics    = "metrics"
	RouteHealth     = "health"
)

// SampleText is the body of the report added by the sample route.
const SampleText = "ESG REPORT 2024 - AFRIGRID ENERGY PLC. Scope 1 emissions: 130000 tCO2e; " +
	"Scope 2 emissions: 82000 tCO2e. The company references GRI Standards and SASB."

type failure struct {
	status int
	body   any
}

// Backend is a fake analysis service bound to an httptest.Server.
type Backend struct {
	srv *httptest.Server

	mu       sync.Mutex
	reports  []backend.Report
	texts    map[string]string
	failures map[string]failure
	blocks   map[string]chan struct{}
	entered  map[string]chan struct{}
	hits     map[string]int
	queries  []backend.QueryRequest
	uploads  []string

	answer     backend.QueryResponse
	summaryMD  string
	compliance map[string]any
	risk       map[string]any
	metrics    json.RawMessage
}

// NewBackend starts a fake backend that is closed when the test ends.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		texts:    map[string]string{},
		failures: map[string]failure{},
		blocks:   map[string]chan struct{}{},
		entered:  map[string]chan struct{}{},
		hits:     map[string]int{},
		answer: backend.QueryResponse{
			Answer: "Scope 1 emissions were 130000 tCO2e [1].",
			Citations: []backend.Citation{
				{ID: "c1", ReportName: "Sample_ESG_Report_2024_Afrigrid.txt", Page: 1, Snippet: "Scope 1 emissions: 130000 tCO2e"},
			},
		},
		summaryMD: "## Overview\n\nAfrigrid Energy Plc is a West African utility.",
		compliance: map[string]any{
			"sdgs":    map[string]any{"covered": true, "notes": "SDG 7 and SDG 13"},
			"gri":     map[string]any{"covered": true, "notes": "GRI Standards referenced"},
			"sasb":    map[string]any{"covered": true, "notes": "Electric Utilities"},
			"ifrs_s1": map[string]any{"covered": false, "notes": "Partial alignment only"},
			"ifrs_s2": map[string]any{"covered": false, "notes": ""},
		},
		risk:    map[string]any{"score": "Low", "explanation": "Claims are backed by quantitative disclosures."},
		metrics: json.RawMessage(`{"emissions":{"scope1_tco2e":130000,"scope2_tco2e":82000,"scope3_tco2e":null}}`),
	}
	b.srv = httptest.NewServer(b.router())
	t.Cleanup(b.Close)
	return b
}

// Answer returns the canned chat answer.
func (b *Backend) Answer() backend.QueryResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.answer
}

// SetAnswer replaces the chat answer.
func (b *Backend) SetAnswer(a backend.QueryResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answer = a
}

// SummaryMD returns the canned summary.
func (b *Backend) SummaryMD() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summaryMD
}

// SetSummary replaces the summary markdown.
func (b *Backend) SetSummary(md string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summaryMD = md
}

// SetCompliance replaces the "compliance" object of the compliance route.
func (b *Backend) SetCompliance(c map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compliance = c
}

// SetRisk replaces the whole risk response body.
func (b *Backend) SetRisk(r map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.risk = r
}

// SetMetrics replaces the "metrics" object of the metrics route with raw
// JSON, sent byte for byte.
func (b *Backend) SetMetrics(raw string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = json.RawMessage(raw)
}

// URL is the base URL of the fake service.
func (b *Backend) URL() string { return b.srv.URL }

// Close releases every blocked route and stops the server.
func (b *Backend) Close() {
	b.mu.Lock()
	for name, ch := range b.blocks {
		close(ch)
		delete(b.blocks, name)
	}
	b.mu.Unlock()
	b.srv.Close()
}

// Client returns a backend client pointed at the fake.
func (b *Backend) Client(t testing.TB) *backend.HTTPClient {
	t.Helper()
	c, err := backend.NewHTTPClient(backend.Config{BaseURL: b.URL(), Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("testutil: create client: %v", err)
	}
	return c
}

// AddReport indexes a report directly, bypassing the upload route.
func (b *Backend) AddReport(name, text string) backend.Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addLocked(name, text)
}

func (b *Backend) addLocked(name, text string) backend.Report {
	pages := 1
	r := backend.Report{
		ID:         fmt.Sprintf("rep_%d_%d", len(b.reports)+1, 1700000000+len(b.reports)),
		Name:       name,
		Pages:      &pages,
		UploadedAt: "2024-05-01T10:20:30.123456",
	}
	b.reports = append(b.reports, r)
	b.texts[r.ID] = text
	return r
}

// RemoveAll forgets every report.
func (b *Backend) RemoveAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reports = nil
	b.texts = map[string]string{}
}

// Fail makes route answer with status and, when detail is non-empty, a
// {"detail": ...} body.
func (b *Backend) Fail(route string, status int, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var body any = map[string]any{}
	if detail != "" {
		body = map[string]string{"detail": detail}
	}
	b.failures[route] = failure{status: status, body: body}
}

// Recover clears a failure set with Fail.
func (b *Backend) Recover(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, route)
}

// Block holds requests to route until the returned release func is called.
func (b *Backend) Block(route string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.blocks[route] = ch
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			// Close may already have released it.
			if b.blocks[route] == ch {
				delete(b.blocks, route)
				close(ch)
			}
		})
	}
}

// Entered returns a channel that receives once per request reaching route.
func (b *Backend) Entered(route string) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enteredLocked(route)
}

func (b *Backend) enteredLocked(route string) chan struct{} {
	ch, ok := b.entered[route]
	if !ok {
		ch = make(chan struct{}, 64)
		b.entered[route] = ch
	}
	return ch
}

// Hits returns how many requests reached route.
func (b *Backend) Hits(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

// Queries returns the chat requests received so far.
func (b *Backend) Queries() []backend.QueryRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.QueryRequest(nil), b.queries...)
}

// Uploads returns the file names received by the upload route.
func (b *Backend) Uploads() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.uploads...)
}

func (b *Backend) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/health", b.route(RouteHealth, b.handleHealth))
	r.Get("/api/reports", b.route(RouteList, b.handleList))
	r.Post("/api/reports", b.route(RouteUpload, b.handleUpload))
	r.Post("/api/sample-report", b.route(RouteSample, b.handleSample))
	r.Get("/api/reports/{id}/preview", b.route(RoutePreview, b.handlePreview))
	r.Post("/api/query", b.route(RouteQuery, b.handleQuery))
	r.Post("/api/summary", b.route(RouteSummary, b.reportHandler(func() any {
		return map[string]any{"summary_md": b.summaryMD}
	})))
	r.Post("/api/compliance", b.route(RouteCompliance, b.reportHandler(func() any {
		return map[string]any{"compliance": b.compliance}
	})))
	r.Post("/api/risk", b.route(RouteRisk, b.reportHandler(func() any {
		return b.risk
	})))
	r.Post("/api/metrics", b.route(RouteMetrics, b.reportHandler(func() any {
		return map[string]any{"metrics": b.metrics}
	})))
	return r
}

// route wraps a handler with hit counting, entry notification, blocking
// and forced failures.
func (b *Backend) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[name]++
		block := b.blocks[name]
		entered := b.enteredLocked(name)
		b.mu.Unlock()

		select {
		case entered <- struct{}{}:
		default:
		}

		if block != nil {
			select {
			case <-block:
			case <-r.Context().Done():
				return
			}
		}

		b.mu.Lock()
		f, failing := b.failures[name]
		b.mu.Unlock()
		if failing {
			writeJSON(w, f.status, f.body)
			return
		}
		h(w, r)
	}
}

func (b *Backend) handleHealth(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, backend.Health{Status: "ok", Model: "fake", Chunks: len(b.texts), Reports: len(b.reports)})
}

func (b *Backend) handleList(w http.ResponseWriter, _ *http.Request) {
	b.writeReports(w)
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "No files uploaded"})
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "No files uploaded"})
		return
	}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		b.mu.Lock()
		b.uploads = append(b.uploads, fh.Filename)
		b.addLocked(fh.Filename, string(data))
		b.mu.Unlock()
	}
	b.writeReports(w)
}

func (b *Backend) handleSample(w http.ResponseWriter, _ *http.Request) {
	b.AddReport("Sample_ESG_Report_2024_Afrigrid.txt", SampleText)
	b.writeReports(w)
}

func (b *Backend) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	text, ok := b.texts[id]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Report not found"})
		return
	}
	if len(text) > 1000 {
		text = text[:1000]
	}
	writeJSON(w, http.StatusOK, map[string]string{"report_id": id, "preview_text": text})
}

func (b *Backend) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req backend.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": []string{"invalid body"}})
		return
	}
	b.mu.Lock()
	b.queries = append(b.queries, req)
	answer := b.answer
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, answer)
}

func (b *Backend) reportHandler(body func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ReportID string `json:"report_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": []string{"invalid body"}})
			return
		}
		b.mu.Lock()
		_, ok := b.texts[req.ReportID]
		payload := body()
		b.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Report not found"})
			return
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

func (b *Backend) writeReports(w http.ResponseWriter) {
	b.mu.Lock()
	reports := append([]backend.Report{}, b.reports...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
