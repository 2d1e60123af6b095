package services

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greg-hellings/esginsight/pkg/backend"
)

func TestNewComplianceResult(t *testing.T) {
	resp := &backend.ComplianceResponse{Compliance: map[string]json.RawMessage{
		"IFRS S2": json.RawMessage(`{"covered": true, "notes": "Climate scenarios"}`),
		"sasb":    json.RawMessage(`"yes"`),
		"raw":     json.RawMessage(`"model said something"`),
	}}

	res := NewComplianceResult(resp)
	require.Len(t, res.Items, 5)
	assert.Equal(t, "IFRS S2", res.Items[4].Framework.Label)
	assert.True(t, res.Items[4].Covered)
	assert.Equal(t, "Climate scenarios", res.Items[4].Notes)
	assert.False(t, res.Items[2].Covered, "malformed entry is not covered")
	assert.Equal(t, "model said something", res.Raw)

	empty := NewComplianceResult(nil)
	require.Len(t, empty.Items, 5)
	for _, item := range empty.Items {
		assert.False(t, item.Covered)
	}
}

func TestNewComplianceResult_KeyCollisions(t *testing.T) {
	resp := &backend.ComplianceResponse{Compliance: map[string]json.RawMessage{
		"GRI":     json.RawMessage(`{"covered": false, "notes": "upper"}`),
		"gri":     json.RawMessage(`{"covered": true, "notes": "exact"}`),
		"Gri":     json.RawMessage(`{"covered": false, "notes": "mixed"}`),
		"IFRS-S1": json.RawMessage(`{"covered": true, "notes": "dash"}`),
		"IFRS S1": json.RawMessage(`{"covered": false, "notes": "space"}`),
	}}

	// Map iteration order is random; repeat to catch an order-dependent winner.
	for i := 0; i < 50; i++ {
		res := NewComplianceResult(resp)
		assert.Equal(t, "exact", res.Items[1].Notes, "exact key wins")
		assert.True(t, res.Items[1].Covered)
		assert.Equal(t, "space", res.Items[3].Notes, "lexically smallest key wins without an exact match")
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"low", SeverityLow},
		{"Low", SeverityLow},
		{" HIGH ", SeverityHigh},
		{"high", SeverityHigh},
		{"Medium", SeverityMedium},
		{"", SeverityMedium},
		{"Critical", SeverityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSeverity(tt.in))
		})
	}
}

func TestNewRiskAssessment_NilFields(t *testing.T) {
	ra := NewRiskAssessment(&backend.RiskResponse{})
	assert.Equal(t, SeverityMedium, ra.Severity)
	assert.Empty(t, ra.Explanation)
	assert.Empty(t, ra.RawScore)
}

func TestMetricsResult_Pretty(t *testing.T) {
	m := NewMetricsResult(&backend.MetricsResponse{Metrics: json.RawMessage(`{"b":1,"a":{"c":null}}`)})
	assert.Equal(t, "{\n  \"b\": 1,\n  \"a\": {\n    \"c\": null\n  }\n}", m.Pretty())

	assert.Equal(t, "{}", NewMetricsResult(nil).Pretty())
	assert.Equal(t, "{}", NewMetricsResult(&backend.MetricsResponse{Metrics: json.RawMessage("null")}).Pretty())
}

func TestMetricsResult_PrettyKeepsOrderAndNumbers(t *testing.T) {
	raw := `{"zeta":1,"emissions":{"scope1_tco2e":12345678901234567890,"id":9007199254740993},"alpha":0.10}`
	out := NewMetricsResult(&backend.MetricsResponse{Metrics: json.RawMessage(raw)}).Pretty()

	assert.Less(t, strings.Index(out, `"zeta"`), strings.Index(out, `"emissions"`))
	assert.Less(t, strings.Index(out, `"emissions"`), strings.Index(out, `"alpha"`))
	assert.Contains(t, out, `"scope1_tco2e": 12345678901234567890`)
	assert.Contains(t, out, `"id": 9007199254740993`)
	assert.Contains(t, out, `"alpha": 0.10`)
}
