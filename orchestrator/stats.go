package orchestrator

import "civicgpt/tax-advisor/types"

// Summarize derives dashboard figures from a user's sessions. Every session
// counts for two processed documents on top of the separately listed ones.
func Summarize(sessions []types.Session, listedDocuments int) types.DashboardStats {
	stats := types.DashboardStats{
		TotalSessions:      len(sessions),
		DocumentsProcessed: listedDocuments + 2*len(sessions),
	}

	for _, s := range sessions {
		stats.QuestionsAsked += len(s.Questions)

		switch s.Status {
		case types.StatusCompleted:
			stats.CompletedSessions++
			if s.AnalysisResult != nil {
				stats.EstimatedSavings += s.AnalysisResult.EstimatedSavings
				stats.TaxLiability += s.AnalysisResult.TaxLiability.Current
			}
		case types.StatusProcessing, types.StatusPending:
			stats.ProcessingSessions++
		case types.StatusError:
			stats.FailedSessions++
		}
	}

	if stats.TaxLiability > 0 {
		stats.SavingsPercentage = stats.EstimatedSavings / stats.TaxLiability * 100
	}
	return stats
}
