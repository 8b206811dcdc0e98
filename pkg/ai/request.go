package ai

import (
	"errors"
	"strings"
)

// ErrInvalidRequest indicates a diagnosis request could not be built from
// its inputs. Hitting it is a programming error upstream, not an AI failure.
var ErrInvalidRequest = errors.New("invalid diagnosis request")

// DiagnoseRequest is the outbound wire contract of the diagnosis service.
// ReportHistory carries prior report summaries keyed by date (YYYY-MM-DD)
// and grounds the new analysis in the ward's history.
type DiagnoseRequest struct {
	AudioPath     string            `json:"audio_path"`
	SelfReport    map[string]any    `json:"self_report"`
	ReportHistory map[string]string `json:"report_history"`
}

// DiagnoseResponse is the diagnosis service response. Accuracy is the
// per-condition probability vector and the required-presence signal for a
// successful diagnosis; everything else is optional and the shape tolerates
// unknown fields.
type DiagnoseResponse struct {
	Accuracy []float64 `json:"accuracy"`
	ASR      string    `json:"ASR"`
	Risk     []string  `json:"risk"`
	Explain  []string  `json:"explain"`
	Total    string    `json:"total,omitempty"`
	Summary  string    `json:"summary,omitempty"`
	Status   string    `json:"status,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// BuildDiagnoseRequest assembles the outbound request from an audio
// reference, the ward's self-report answers, and the summarized history.
// Nil maps are normalized so the wire body always carries objects.
func BuildDiagnoseRequest(audioRef string, selfReport map[string]any, history map[string]string) (DiagnoseRequest, error) {
	if strings.TrimSpace(audioRef) == "" {
		return DiagnoseRequest{}, ErrInvalidRequest
	}
	if selfReport == nil {
		selfReport = map[string]any{}
	}
	if history == nil {
		history = map[string]string{}
	}
	return DiagnoseRequest{
		AudioPath:     audioRef,
		SelfReport:    selfReport,
		ReportHistory: history,
	}, nil
}
