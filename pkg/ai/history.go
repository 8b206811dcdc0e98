package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"anyotherday/pkg/domain"
)

const historyDateLayout = "2006-01-02"

// ReportSource is the slice of the report store the history provider needs.
type ReportSource interface {
	GetRecentReportsByWard(wardID string, limit int) ([]domain.Report, error)
}

// HistoryProvider supplies summarized prior reports as retrieval context
// for new diagnoses. It never fails: history is an enhancement, and its
// absence must not block a diagnosis.
type HistoryProvider struct {
	reports ReportSource
}

// NewHistoryProvider builds a provider over the report store.
func NewHistoryProvider(reports ReportSource) *HistoryProvider {
	return &HistoryProvider{reports: reports}
}

// Recent returns up to limit prior report summaries keyed by date
// (YYYY-MM-DD). On any store failure it returns an empty map. When several
// reports share a date, the newest wins.
func (p *HistoryProvider) Recent(wardID string, limit int) map[string]string {
	history := make(map[string]string)
	if limit <= 0 {
		limit = 1
	}
	reports, err := p.reports.GetRecentReportsByWard(wardID, limit)
	if err != nil {
		slog.Warn("fetch report history failed", "ward_id", wardID, "err", err)
		return history
	}
	for _, report := range reports {
		date := report.CreatedAt.Format(historyDateLayout)
		if _, seen := history[date]; seen {
			continue
		}
		history[date] = SummarizeAnalysis(report.AnalysisResult, date)
	}
	return history
}

// analysisDigest is the subset of the stored payload the summarizer reads.
type analysisDigest struct {
	Accuracy []float64 `json:"accuracy"`
	Risk     []string  `json:"risk"`
	Summary  string    `json:"summary"`
}

// SummarizeAnalysis converts a stored analysis payload into a one-line
// summary prefixed with its date. It is total: malformed or empty payloads
// degrade to a placeholder string instead of an error, so one broken report
// can never block future diagnoses.
func SummarizeAnalysis(analysisResult string, createdAt string) string {
	if analysisResult == "" {
		return createdAt + ": no analysis result"
	}
	var digest analysisDigest
	if err := json.Unmarshal([]byte(analysisResult), &digest); err != nil {
		return createdAt + ": result-processing error"
	}

	if digest.Summary != "" {
		return createdAt + ": " + digest.Summary
	}

	primaryRisk := "unknown"
	if len(digest.Risk) > 0 {
		primaryRisk = digest.Risk[0]
	}
	maxAccuracy := 0.0
	for _, acc := range digest.Accuracy {
		if acc > maxAccuracy {
			maxAccuracy = acc
		}
	}
	summary := createdAt + ": " + primaryRisk
	if maxAccuracy > 0 {
		summary += fmt.Sprintf(" (probability: %.1f%%)", maxAccuracy*100)
	}
	return summary
}
