package orchestrator

import (
	"context"
	"fmt"
	"time"

	"civicgpt/tax-advisor/store"
	"civicgpt/tax-advisor/types"

	"github.com/sirupsen/logrus"
)

// Reconciler is the only writer that moves a session to completed.
type Reconciler struct {
	sessions store.SessionStore
	now      func() time.Time
	log      *logrus.Entry
}

func NewReconciler(sessions store.SessionStore, log *logrus.Entry) *Reconciler {
	return &Reconciler{sessions: sessions, now: time.Now, log: log}
}

// Reconcile sanitizes a successful process response and writes it to the
// session together with status completed.
func (r *Reconciler) Reconcile(ctx context.Context, sessionID string, raw map[string]any) (types.Analysis, error) {
	analysis := BuildAnalysis(raw, r.now())

	if err := r.sessions.Complete(ctx, sessionID, analysis); err != nil {
		return analysis, fmt.Errorf("failed to store analysis: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"session_id":        sessionID,
		"estimated_savings": analysis.AnalysisResult.EstimatedSavings,
	}).Info("Session analysis completed")
	return analysis, nil
}

// BuildAnalysis maps a raw process response onto the persisted analysis.
// payslipData is taken from the top level when present, otherwise from the
// analysis result.
func BuildAnalysis(raw map[string]any, now time.Time) types.Analysis {
	resultRaw, _ := raw["analysisResult"].(map[string]any)
	result := SanitizeAnalysis(resultRaw, now)

	payslip, ok := raw["payslipData"]
	if !ok || payslip == nil {
		payslip = resultRaw["payslipData"]
	}

	return types.Analysis{
		PolicyTextLength:  int(number(raw["policyTextLength"])),
		PayslipTextLength: int(number(raw["payslipTextLength"])),
		ChunksProcessed:   int(number(raw["chunksProcessed"])),
		OCRUsed:           boolean(raw["ocr_used"]),
		PayslipData:       documentText(payslip),
		AnalysisResult:    result,
		ProcessedAt:       now.UTC(),
	}
}
