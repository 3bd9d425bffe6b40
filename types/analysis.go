package types

import "time"

// Analysis is the structured result attached to a completed session.
type Analysis struct {
	PolicyTextLength  int            `json:"policyTextLength"`
	PayslipTextLength int            `json:"payslipTextLength"`
	ChunksProcessed   int            `json:"chunksProcessed"`
	OCRUsed           bool           `json:"ocrUsed"`
	PayslipData       DocumentText   `json:"payslipData"`
	AnalysisResult    AnalysisResult `json:"analysisResult"`
	ProcessedAt       time.Time      `json:"processedAt"`
}

// AnalysisResult is the persisted schema of the backend's tax analysis.
// Every field is always present after sanitizing.
type AnalysisResult struct {
	Summary            string       `json:"summary"`
	TaxSavingTips      []string     `json:"taxSavingTips"`
	EstimatedSavings   float64      `json:"estimatedSavings"`
	RecommendedActions []string     `json:"recommendedActions"`
	TaxLiability       TaxLiability `json:"taxLiability"`
	PayslipData        DocumentText `json:"payslipData"`
	PolicyData         DocumentText `json:"policyData"`
	AIGenerated        bool         `json:"ai_generated"`
	ResponseTime       float64      `json:"response_time"`
	AnalysisTimestamp  string       `json:"analysis_timestamp"`
	ModelUsed          string       `json:"model_used"`
	System             string       `json:"system"`
}

type TaxLiability struct {
	Current   float64 `json:"current"`
	Potential float64 `json:"potential"`
	Savings   float64 `json:"savings"`
}

// DocumentText describes the text extracted from one uploaded document.
type DocumentText struct {
	RawText         string `json:"raw_text"`
	ExtractedLength int    `json:"extracted_length"`
	AnalysisMethod  string `json:"analysis_method"`
	HasContent      bool   `json:"has_content"`
}
