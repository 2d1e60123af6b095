package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// HTTPClient implements Client against the REST API.
type HTTPClient struct {
	base    *url.URL
	client  *http.Client
	limiter *rate.Limiter
}

// compile-time check
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the service rooted at cfg.BaseURL.
// Requests are traced through otelhttp; a configured Token is attached as a
// static bearer token.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: base URL %q must include scheme and host", cfg.BaseURL)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	transport = otelhttp.NewTransport(transport)
	if cfg.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   transport,
		}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &HTTPClient{
		base: base,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limiter: limiter,
	}, nil
}

type reportsEnvelope struct {
	Reports []Report `json:"reports"`
}

// ListReports implements Client.ListReports.
func (c *HTTPClient) ListReports(ctx context.Context) ([]Report, error) {
	var out reportsEnvelope
	if err := c.doJSON(ctx, "list reports", http.MethodGet, "/api/reports", nil, &out); err != nil {
		return nil, err
	}
	return reportsOrError("list reports", out)
}

// UploadReports implements Client.UploadReports. Files are sent as one
// multipart part each under the "files" field.
func (c *HTTPClient) UploadReports(ctx context.Context, files []Upload) ([]Report, error) {
	const op = "upload reports"
	if len(files) == 0 {
		return nil, errors.New("backend: upload reports: no files")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", filepath.Base(f.Name))
		if err != nil {
			return nil, fmt.Errorf("backend: %s: create part: %w", op, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("backend: %s: read %s: %w", op, f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("backend: %s: close multipart: %w", op, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/reports", &body)
	if err != nil {
		return nil, fmt.Errorf("backend: %s: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out reportsEnvelope
	if err := c.send(req, op, &out); err != nil {
		return nil, err
	}
	return reportsOrError(op, out)
}

// LoadSample implements Client.LoadSample.
func (c *HTTPClient) LoadSample(ctx context.Context) ([]Report, error) {
	var out reportsEnvelope
	if err := c.doJSON(ctx, "load sample", http.MethodPost, "/api/sample-report", nil, &out); err != nil {
		return nil, err
	}
	return reportsOrError("load sample", out)
}

// Preview implements Client.Preview.
func (c *HTTPClient) Preview(ctx context.Context, reportID string) (string, error) {
	var out struct {
		PreviewText string `json:"preview_text"`
	}
	p := "/api/reports/" + url.PathEscape(reportID) + "/preview"
	if err := c.doJSON(ctx, "preview", http.MethodGet, p, nil, &out); err != nil {
		return "", err
	}
	return out.PreviewText, nil
}

// Query implements Client.Query.
func (c *HTTPClient) Query(ctx context.Context, q QueryRequest) (*QueryResponse, error) {
	if q.ReportIDs == nil {
		q.ReportIDs = []string{}
	}
	var out QueryResponse
	if err := c.doJSON(ctx, "query", http.MethodPost, "/api/query", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type reportIDRequest struct {
	ReportID string `json:"report_id"`
}

// Summary implements Client.Summary.
func (c *HTTPClient) Summary(ctx context.Context, reportID string) (*SummaryResponse, error) {
	var out SummaryResponse
	if err := c.doJSON(ctx, "summary", http.MethodPost, "/api/summary", reportIDRequest{reportID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Compliance implements Client.Compliance.
func (c *HTTPClient) Compliance(ctx context.Context, reportID string) (*ComplianceResponse, error) {
	var out ComplianceResponse
	if err := c.doJSON(ctx, "compliance", http.MethodPost, "/api/compliance", reportIDRequest{reportID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Risk implements Client.Risk.
func (c *HTTPClient) Risk(ctx context.Context, reportID string) (*RiskResponse, error) {
	var out RiskResponse
	if err := c.doJSON(ctx, "risk", http.MethodPost, "/api/risk", reportIDRequest{reportID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Metrics implements Client.Metrics.
func (c *HTTPClient) Metrics(ctx context.Context, reportID string) (*MetricsResponse, error) {
	var out MetricsResponse
	if err := c.doJSON(ctx, "metrics", http.MethodPost, "/api/metrics", reportIDRequest{reportID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health implements Client.Health.
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.doJSON(ctx, "health", http.MethodGet, "/api/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func reportsOrError(op string, env reportsEnvelope) ([]Report, error) {
	if env.Reports == nil {
		return nil, fmt.Errorf("backend: %s: response missing reports", op)
	}
	return env.Reports, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, p string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, c.base.String()+p, body)
}

// doJSON encodes in (if non-nil) as the request body and decodes a 2xx
// response into out.
func (c *HTTPClient) doJSON(ctx context.Context, op, method, p string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: %s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, p, body)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, op, out)
}

func (c *HTTPClient) send(req *http.Request, op string, out any) error {
	req.Header.Set("Accept", "application/json")

	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return &TransportError{Op: op, Err: err}
		}
	}

	slog.Debug("Backend request", "op", op, "method", req.Method, "url", req.URL.String())
	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("Failed to close response body", "op", op, "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Detail: readDetail(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: %s: decode response: %w", op, err)
	}
	return nil
}

// readDetail extracts a string "detail" field from an error body. Structured
// details (validation error lists) are not surfaced.
func readDetail(r io.Reader) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&body); err != nil {
		return ""
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err != nil {
		return ""
	}
	return strings.TrimSpace(detail)
}
