package ai

import (
	"errors"
	"strings"
	"testing"
	"time"

	"anyotherday/pkg/domain"
)

func TestSummarizeAnalysisPrefersSummaryField(t *testing.T) {
	payload := `{"accuracy":[0.1,0.2,0.7],"risk":["stroke"],"summary":"stable compared to last month"}`
	got := SummarizeAnalysis(payload, "2026-08-01")
	if got != "2026-08-01: stable compared to last month" {
		t.Fatalf("summarize = %q", got)
	}
}

func TestSummarizeAnalysisFallsBackToRiskAndAccuracy(t *testing.T) {
	payload := `{"accuracy":[0.1,0.935,0.2],"risk":["dementia","stroke"]}`
	got := SummarizeAnalysis(payload, "2026-08-01")
	if got != "2026-08-01: dementia (probability: 93.5%)" {
		t.Fatalf("summarize = %q", got)
	}
}

func TestSummarizeAnalysisUnknownRisk(t *testing.T) {
	got := SummarizeAnalysis(`{"accuracy":[]}`, "2026-08-01")
	if got != "2026-08-01: unknown" {
		t.Fatalf("summarize = %q", got)
	}
}

func TestSummarizeAnalysisTotal(t *testing.T) {
	cases := map[string]string{
		"empty":      "",
		"not json":   "{{{",
		"wrong type": `{"accuracy":"high"}`,
		"json array": `[1,2,3]`,
	}
	for name, payload := range cases {
		got := SummarizeAnalysis(payload, "2026-08-01")
		if !strings.Contains(got, "2026-08-01") {
			t.Errorf("%s: summary %q missing date", name, got)
		}
	}
	if got := SummarizeAnalysis("", "2026-08-01"); got != "2026-08-01: no analysis result" {
		t.Errorf("empty payload summary = %q", got)
	}
	if got := SummarizeAnalysis("{{{", "2026-08-01"); got != "2026-08-01: result-processing error" {
		t.Errorf("malformed payload summary = %q", got)
	}
}

type stubReportSource struct {
	reports []domain.Report
	err     error
}

func (s *stubReportSource) GetRecentReportsByWard(string, int) ([]domain.Report, error) {
	return s.reports, s.err
}

func TestHistoryProviderRecent(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	provider := NewHistoryProvider(&stubReportSource{
		reports: []domain.Report{{
			ID:             "rep-1",
			RecordingID:    "rec-1",
			AnalysisResult: `{"summary":"mild decline"}`,
			CreatedAt:      created,
		}},
	})
	history := provider.Recent("ward-1", 1)
	if len(history) != 1 {
		t.Fatalf("history size = %d, want 1", len(history))
	}
	if history["2026-08-01"] != "2026-08-01: mild decline" {
		t.Fatalf("history = %v", history)
	}
}

func TestHistoryProviderEmptyOnStoreError(t *testing.T) {
	provider := NewHistoryProvider(&stubReportSource{err: errors.New("db down")})
	history := provider.Recent("ward-1", 5)
	if len(history) != 0 {
		t.Fatalf("history should be empty on store failure, got %v", history)
	}
}

func TestHistoryProviderNewestWinsPerDate(t *testing.T) {
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	provider := NewHistoryProvider(&stubReportSource{
		reports: []domain.Report{
			{AnalysisResult: `{"summary":"evening report"}`, CreatedAt: day.Add(20 * time.Hour)},
			{AnalysisResult: `{"summary":"morning report"}`, CreatedAt: day.Add(8 * time.Hour)},
		},
	})
	history := provider.Recent("ward-1", 5)
	if history["2026-08-01"] != "2026-08-01: evening report" {
		t.Fatalf("history = %v, want newest-first entry kept", history)
	}
}
