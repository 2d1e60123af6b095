package services

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/greg-hellings/esginsight/pkg/backend"
)

// Framework is one of the reporting frameworks checked for compliance.
type Framework struct {
	Key   string // backend response key
	Label string // display name
}

// Frameworks is the fixed compliance display order.
var Frameworks = []Framework{
	{Key: "sdgs", Label: "SDGs"},
	{Key: "gri", Label: "GRI"},
	{Key: "sasb", Label: "SASB"},
	{Key: "ifrs_s1", Label: "IFRS S1"},
	{Key: "ifrs_s2", Label: "IFRS S2"},
}

// ComplianceItem is the coverage verdict for one framework.
type ComplianceItem struct {
	Framework Framework
	Covered   bool
	Notes     string
}

// ComplianceResult always holds one item per entry of Frameworks, in order.
type ComplianceResult struct {
	Items []ComplianceItem
	// Raw is the backend's unparsed model output, set when it could not
	// produce structured JSON.
	Raw string
}

// NewComplianceResult maps a backend response onto the fixed framework list.
// Missing or malformed entries become not covered with empty notes.
func NewComplianceResult(resp *backend.ComplianceResponse) ComplianceResult {
	var raw map[string]json.RawMessage
	if resp != nil {
		raw = resp.Compliance
	}
	byKey := make(map[string]json.RawMessage, len(raw))
	from := make(map[string]string, len(raw))
	for k, v := range raw {
		norm := normalizeFrameworkKey(k)
		if prev, taken := from[norm]; taken && !preferKey(norm, k, prev) {
			continue
		}
		byKey[norm] = v
		from[norm] = k
	}

	result := ComplianceResult{Items: make([]ComplianceItem, 0, len(Frameworks))}
	for _, fw := range Frameworks {
		item := ComplianceItem{Framework: fw}
		if data, ok := byKey[fw.Key]; ok {
			var entry backend.ComplianceEntry
			if err := json.Unmarshal(data, &entry); err == nil {
				item.Covered = entry.Covered
				item.Notes = entry.Notes
			}
		}
		result.Items = append(result.Items, item)
	}

	if data, ok := byKey["raw"]; ok {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			result.Raw = s
		}
	}
	return result
}

// preferKey decides which of two raw keys folding to norm wins: the exact
// canonical key first, then the lexically smallest.
func preferKey(norm, candidate, current string) bool {
	if current == norm {
		return false
	}
	if candidate == norm {
		return true
	}
	return candidate < current
}

// normalizeFrameworkKey folds "IFRS S1", "ifrs-s1" and "ifrs_s1" together.
func normalizeFrameworkKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(k)
}

// Severity is a normalised greenwashing risk category.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// ParseSeverity matches case-insensitively; anything else is Medium.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow
	case "high":
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// RiskAssessment is the normalised greenwashing risk result.
type RiskAssessment struct {
	Severity    Severity
	Explanation string
	// RawScore is the label as returned by the backend, possibly empty.
	RawScore string
}

// NewRiskAssessment normalises a backend risk response.
func NewRiskAssessment(resp *backend.RiskResponse) RiskAssessment {
	var ra RiskAssessment
	if resp != nil {
		if resp.Score != nil {
			ra.RawScore = *resp.Score
		}
		if resp.Explanation != nil {
			ra.Explanation = *resp.Explanation
		}
	}
	ra.Severity = ParseSeverity(ra.RawScore)
	return ra
}

// MetricsResult is the opaque metric tree returned by the backend, kept as
// the JSON text it arrived in.
type MetricsResult struct {
	Raw json.RawMessage
}

// NewMetricsResult wraps a backend metrics response.
func NewMetricsResult(resp *backend.MetricsResponse) MetricsResult {
	if resp == nil {
		return MetricsResult{}
	}
	return MetricsResult{Raw: resp.Metrics}
}

// Pretty returns the metrics re-indented with two spaces. Keys, their order
// and number literals are left as the backend sent them; a missing or null
// tree renders as "{}".
func (m MetricsResult) Pretty() string {
	trimmed := bytes.TrimSpace(m.Raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
