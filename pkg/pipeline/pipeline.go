package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"anyotherday/internal/util"
	"anyotherday/pkg/ai"
	"anyotherday/pkg/domain"
)

var (
	// ErrRecordingNotFound aborts a run before any state mutation: without
	// the recording there is nothing to mark failed.
	ErrRecordingNotFound = errors.New("audio recording not found")
	ErrWardNotFound      = errors.New("ward not found")
)

// RecordStore is the slice of the store the orchestrator mutates.
type RecordStore interface {
	GetRecording(id string) (domain.AudioRecording, bool, error)
	SetRecordingStatus(id string, status domain.RecordingStatus, errMsg string) error
	SetRecordingTranscript(id string, transcript string) error
}

// WardStore supplies ward lookups.
type WardStore interface {
	GetWard(id string) (domain.Ward, bool, error)
}

// ReportStore persists analysis outcomes.
type ReportStore interface {
	SaveReport(domain.Report) error
}

// HistorySource supplies summarized prior reports; it never fails.
type HistorySource interface {
	Recent(wardID string, limit int) map[string]string
}

// Diagnoser performs the external AI call.
type Diagnoser interface {
	Diagnose(ctx context.Context, request ai.DiagnoseRequest) (ai.DiagnoseResponse, error)
}

// Notifier receives terminal pipeline outcomes. Implementations must not
// block for long and must swallow their own failures.
type Notifier interface {
	ReportCompleted(ctx context.Context, recordingID, wardID, reportID string)
	ReportFailed(ctx context.Context, recordingID, wardID, errMsg string)
}

// Config holds orchestrator settings.
type Config struct {
	// HistoryLimit is how many prior reports feed the retrieval context.
	// The canonical deployment sends only the most recent one.
	HistoryLimit int
	CoreWorkers  int
	MaxWorkers   int
	QueueDepth   int
}

// Processor drives an uploaded recording through diagnosis: load inputs,
// mark processing, gather history, call the AI service, persist the report,
// and advance the recording status. The same body backs the synchronous and
// asynchronous entry points.
type Processor struct {
	records      RecordStore
	wards        WardStore
	reports      ReportStore
	history      HistorySource
	diagnoser    Diagnoser
	notifier     Notifier
	pool         *Pool
	historyLimit int
}

// NewProcessor wires the orchestrator and starts its worker pool.
// notifier may be nil.
func NewProcessor(records RecordStore, wards WardStore, reports ReportStore, history HistorySource, diagnoser Diagnoser, notifier Notifier, cfg Config) *Processor {
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 1
	}
	return &Processor{
		records:      records,
		wards:        wards,
		reports:      reports,
		history:      history,
		diagnoser:    diagnoser,
		notifier:     notifier,
		pool:         NewPool(cfg.CoreWorkers, cfg.MaxWorkers, cfg.QueueDepth),
		historyLimit: historyLimit,
	}
}

// ProcessAsync submits the recording to the worker pool and returns
// immediately. ErrSaturated is returned when the pool cannot admit the task;
// the recording stays pending and can be replayed later.
func (p *Processor) ProcessAsync(recordingID, wardID string) error {
	return p.pool.Submit(func() {
		if err := p.run(context.Background(), recordingID, wardID); err != nil {
			slog.Error("audio processing failed", "recording_id", recordingID, "ward_id", wardID, "err", err)
		}
	})
}

// ProcessSync runs the pipeline on the caller's goroutine, for operational
// replay and tests.
func (p *Processor) ProcessSync(ctx context.Context, recordingID, wardID string) error {
	return p.run(ctx, recordingID, wardID)
}

// Close drains in-flight work, waiting up to timeout.
func (p *Processor) Close(timeout time.Duration) error {
	return p.pool.Close(timeout)
}

func (p *Processor) run(ctx context.Context, recordingID, wardID string) error {
	logger := slog.Default().With("recording_id", recordingID, "ward_id", wardID)

	recording, ok, err := p.records.GetRecording(recordingID)
	if err != nil {
		return fmt.Errorf("load recording: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordingNotFound, recordingID)
	}

	ward, ok, err := p.wards.GetWard(wardID)
	if err != nil {
		return fmt.Errorf("load ward: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrWardNotFound, wardID)
	}

	if !recording.Status.CanTransition(domain.StatusProcessing) {
		return fmt.Errorf("recording %s in status %s cannot start processing", recordingID, recording.Status)
	}
	if err := p.records.SetRecordingStatus(recordingID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	logger.Info("audio processing started", "audio", recording.FileURL)

	// History and self-report are enhancements: both degrade without
	// blocking the diagnosis.
	history := p.history.Recent(wardID, p.historyLimit)
	selfReport := parseSelfReport(ward.Diagnosis)

	request, err := ai.BuildDiagnoseRequest(recording.FileURL, selfReport, history)
	if err != nil {
		return p.fail(ctx, logger, recordingID, wardID, err)
	}

	response, err := p.diagnoser.Diagnose(ctx, request)
	if err != nil {
		return p.fail(ctx, logger, recordingID, wardID, err)
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return p.fail(ctx, logger, recordingID, wardID, fmt.Errorf("encode analysis result: %w", err))
	}
	report := domain.Report{
		ID:             util.NewID(),
		RecordingID:    recordingID,
		AnalysisResult: string(payload),
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := p.reports.SaveReport(report); err != nil {
		// The recording stays in processing; at-most-once report creation,
		// no automatic recovery.
		return fmt.Errorf("save report: %w", err)
	}

	if response.ASR != "" {
		if err := p.records.SetRecordingTranscript(recordingID, response.ASR); err != nil {
			logger.Warn("store transcript failed", "err", err)
		}
	}

	if err := p.records.SetRecordingStatus(recordingID, domain.StatusCompleted, ""); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	logger.Info("audio processing completed", "report_id", report.ID)
	if p.notifier != nil {
		p.notifier.ReportCompleted(ctx, recordingID, wardID, report.ID)
	}
	return nil
}

// fail records the terminal failure on the recording. The update itself is
// best-effort: a store outage here leaves the recording in processing,
// which the caller sees through the returned error.
func (p *Processor) fail(ctx context.Context, logger *slog.Logger, recordingID, wardID string, cause error) error {
	if err := p.records.SetRecordingStatus(recordingID, domain.StatusFailed, cause.Error()); err != nil {
		logger.Error("mark failed did not persist", "err", err)
	}
	if p.notifier != nil {
		p.notifier.ReportFailed(ctx, recordingID, wardID, cause.Error())
	}
	return cause
}

// parseSelfReport decodes the ward's questionnaire answers. Malformed or
// absent data degrades to a minimal "not yet answered" form.
func parseSelfReport(diagnosis string) map[string]any {
	if diagnosis == "" {
		return map[string]any{"answered": false}
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(diagnosis), &parsed); err != nil {
		slog.Warn("self-report data malformed, using default", "err", err)
		return map[string]any{"answered": false}
	}
	return parsed
}
