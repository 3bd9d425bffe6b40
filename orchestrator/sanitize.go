package orchestrator

import (
	"math"
	"strconv"
	"strings"
	"time"

	"civicgpt/tax-advisor/types"
)

// Defaults applied to fields the backend left out or sent malformed.
const (
	DefaultSummary        = "Document processing completed."
	DefaultModel          = "unknown"
	DefaultSystem         = "pure_rag_llm_ocr"
	DefaultAnalysisMethod = "ocr"
)

var (
	defaultTips    = []string{"Review your documents for tax saving opportunities"}
	defaultActions = []string{"Consult the analysis above for specific actions"}
)

// SanitizeAnalysis maps a decoded backend analysis payload onto the persisted
// schema. Only known fields are read, every field of the result is set, and
// feeding the JSON form of a result back in yields the same result.
func SanitizeAnalysis(raw map[string]any, now time.Time) types.AnalysisResult {
	res := types.AnalysisResult{
		Summary:            stringOr(raw["summary"], DefaultSummary),
		TaxSavingTips:      stringList(raw["taxSavingTips"], defaultTips),
		EstimatedSavings:   number(raw["estimatedSavings"]),
		RecommendedActions: stringList(raw["recommendedActions"], defaultActions),
		TaxLiability:       taxLiability(raw["taxLiability"]),
		PayslipData:        documentText(raw["payslipData"]),
		PolicyData:         documentText(raw["policyData"]),
		AIGenerated:        boolean(raw["ai_generated"]),
		ResponseTime:       number(raw["response_time"]),
		AnalysisTimestamp:  stringOr(raw["analysis_timestamp"], now.UTC().Format(time.RFC3339)),
		ModelUsed:          stringOr(raw["model_used"], DefaultModel),
		System:             stringOr(raw["system"], DefaultSystem),
	}
	return res
}

func documentText(v any) types.DocumentText {
	m, _ := v.(map[string]any)
	return types.DocumentText{
		RawText:         stringOr(m["raw_text"], ""),
		ExtractedLength: int(number(m["extracted_length"])),
		AnalysisMethod:  stringOr(m["analysis_method"], DefaultAnalysisMethod),
		HasContent:      boolean(m["has_content"]),
	}
}

func taxLiability(v any) types.TaxLiability {
	m, _ := v.(map[string]any)
	return types.TaxLiability{
		Current:   number(m["current"]),
		Potential: number(m["potential"]),
		Savings:   number(m["savings"]),
	}
}

func stringOr(v any, def string) string {
	s, ok := v.(string)
	if !ok {
		return def
	}
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

// stringList keeps non-empty strings and numbers (as text). An empty result
// falls back to def.
func stringList(v any, def []string) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		switch x := item.(type) {
		case string:
			s = strings.TrimSpace(x)
		case float64:
			s = strconv.FormatFloat(x, 'f', -1, 64)
		case int:
			s = strconv.Itoa(x)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), def...)
	}
	return out
}

func number(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return f
		}
	}
	return 0
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}
