package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"anyotherday/internal/util"
	"anyotherday/pkg/ai"
	"anyotherday/pkg/auth"
	"anyotherday/pkg/domain"
	"anyotherday/pkg/pipeline"
	"anyotherday/pkg/storage"
	"anyotherday/pkg/store"
)

// allowedAudioFormats lists the upload extensions the AI service can decode.
var allowedAudioFormats = map[string]bool{
	"mp3":  true,
	"wav":  true,
	"m4a":  true,
	"flac": true,
	"ogg":  true,
	"aac":  true,
}

const presignExpiry = 15 * time.Minute

// Config holds the dependencies wired into the core application.
type Config struct {
	Store     store.Store
	Sessions  store.SessionStore
	Objects   storage.ObjectStore
	Processor *pipeline.Processor
	AI        *ai.Client
}

// App is the core application service connecting guardians, wards,
// recordings, and the diagnosis pipeline.
type App struct {
	store     store.Store
	sessions  store.SessionStore
	objects   storage.ObjectStore
	processor *pipeline.Processor
	ai        *ai.Client
}

// New constructs the application from its wired dependencies.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store is required")
	}
	if cfg.Processor == nil {
		return nil, errors.New("processor is required")
	}
	if cfg.AI == nil {
		return nil, errors.New("ai client is required")
	}
	return &App{
		store:     cfg.Store,
		sessions:  cfg.Sessions,
		objects:   cfg.Objects,
		processor: cfg.Processor,
		ai:        cfg.AI,
	}, nil
}

// SignUp registers a guardian account and issues a session token.
func (a *App) SignUp(email, password, name, phone string) (domain.Guardian, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.Guardian{}, "", ErrEmailAndPasswordRequired
	}
	exists, err := a.store.HasGuardianEmail(email)
	if err != nil {
		return domain.Guardian{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.Guardian{}, "", ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.Guardian{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	guardian := domain.Guardian{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(name),
		Phone:        strings.TrimSpace(phone),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveGuardian(guardian); err != nil {
		return domain.Guardian{}, "", fmt.Errorf("save guardian: %w", err)
	}
	token, err := a.sessions.NewSession(guardian.ID)
	if err != nil {
		return domain.Guardian{}, "", fmt.Errorf("create session: %w", err)
	}
	return guardian, token, nil
}

// Login validates credentials and issues a session token.
func (a *App) Login(email, password string) (domain.Guardian, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	guardian, ok, err := a.store.GetGuardianByEmail(email)
	if err != nil {
		return domain.Guardian{}, "", fmt.Errorf("fetch guardian: %w", err)
	}
	if !ok || !auth.CheckPassword(password, guardian.PasswordHash) {
		return domain.Guardian{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(guardian.ID)
	if err != nil {
		return domain.Guardian{}, "", fmt.Errorf("create session: %w", err)
	}
	return guardian, token, nil
}

// Logout revokes a session token. Unknown tokens are not an error.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// GuardianByToken resolves a session token to its guardian.
func (a *App) GuardianByToken(token string) (domain.Guardian, bool, error) {
	guardianID, ok, err := a.sessions.GetGuardianIDByToken(token)
	if err != nil || !ok {
		return domain.Guardian{}, false, err
	}
	return a.store.GetGuardianByID(guardianID)
}

// Me returns the guardian's own profile.
func (a *App) Me(guardianID string) (domain.Guardian, bool, error) {
	return a.store.GetGuardianByID(guardianID)
}

// CreateWard registers a monitored person under the guardian.
func (a *App) CreateWard(guardianID string, ward domain.Ward) (domain.Ward, error) {
	ward.Name = strings.TrimSpace(ward.Name)
	if ward.Name == "" {
		return domain.Ward{}, ErrWardNameRequired
	}
	now := time.Now().UTC()
	ward.ID = util.NewID()
	ward.GuardianID = guardianID
	ward.Status = domain.WardActive
	ward.CreatedAt = now
	ward.UpdatedAt = now
	if err := a.store.SaveWard(ward); err != nil {
		return domain.Ward{}, fmt.Errorf("save ward: %w", err)
	}
	return ward, nil
}

// ListWards returns the guardian's active wards.
func (a *App) ListWards(guardianID string) ([]domain.Ward, error) {
	wards, err := a.store.ListWardsByGuardian(guardianID)
	if err != nil {
		return nil, fmt.Errorf("list wards: %w", err)
	}
	active := wards[:0]
	for _, w := range wards {
		if w.Status == domain.WardActive {
			active = append(active, w)
		}
	}
	return active, nil
}

// GetWard returns one of the guardian's wards.
func (a *App) GetWard(guardianID, wardID string) (domain.Ward, error) {
	return a.ownedWard(guardianID, wardID)
}

// UpdateWard replaces the mutable ward fields. Diagnosis carries the
// self-report questionnaire answers as raw JSON.
func (a *App) UpdateWard(guardianID, wardID string, update domain.Ward) (domain.Ward, error) {
	ward, err := a.ownedWard(guardianID, wardID)
	if err != nil {
		return domain.Ward{}, err
	}
	if name := strings.TrimSpace(update.Name); name != "" {
		ward.Name = name
	}
	if update.BirthDate != "" {
		ward.BirthDate = update.BirthDate
	}
	if update.Age > 0 {
		ward.Age = update.Age
	}
	if update.Gender != "" {
		ward.Gender = update.Gender
	}
	if update.Phone != "" {
		ward.Phone = update.Phone
	}
	if update.Relationship != "" {
		ward.Relationship = update.Relationship
	}
	if update.Diagnosis != "" {
		ward.Diagnosis = update.Diagnosis
	}
	ward.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveWard(ward); err != nil {
		return domain.Ward{}, fmt.Errorf("save ward: %w", err)
	}
	return ward, nil
}

// UpdateWardDiagnosis replaces the ward's self-report questionnaire answers.
// The payload is stored verbatim; the pipeline parses it permissively.
func (a *App) UpdateWardDiagnosis(guardianID, wardID, diagnosis string) (domain.Ward, error) {
	ward, err := a.ownedWard(guardianID, wardID)
	if err != nil {
		return domain.Ward{}, err
	}
	ward.Diagnosis = diagnosis
	ward.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveWard(ward); err != nil {
		return domain.Ward{}, fmt.Errorf("save ward: %w", err)
	}
	return ward, nil
}

// DeleteWard soft-deletes a ward. Its recordings and reports stay readable
// through direct IDs but the ward disappears from listings.
func (a *App) DeleteWard(guardianID, wardID string) error {
	ward, err := a.ownedWard(guardianID, wardID)
	if err != nil {
		return err
	}
	ward.Status = domain.WardDeleted
	ward.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveWard(ward); err != nil {
		return fmt.Errorf("save ward: %w", err)
	}
	return nil
}

// UploadAudio stores a recording file, registers it as pending, and submits
// it to the diagnosis pipeline. The recording is returned immediately; the
// caller polls its status for the outcome.
func (a *App) UploadAudio(ctx context.Context, guardianID, wardID, filename, contentType string, size int64, r io.Reader) (domain.AudioRecording, error) {
	ward, err := a.ownedWard(guardianID, wardID)
	if err != nil {
		return domain.AudioRecording{}, err
	}
	if r == nil || filename == "" {
		return domain.AudioRecording{}, ErrAudioFileRequired
	}
	format := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if !allowedAudioFormats[format] {
		return domain.AudioRecording{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	key := fmt.Sprintf("audio/%s/%s.%s", ward.ID, uuid.NewString(), format)
	fileURL, err := a.objects.Put(ctx, key, r, size, contentType)
	if err != nil {
		return domain.AudioRecording{}, fmt.Errorf("store audio: %w", err)
	}

	now := time.Now().UTC()
	recording := domain.AudioRecording{
		ID:         util.NewID(),
		WardID:     ward.ID,
		FileURL:    fileURL,
		FileFormat: format,
		RecordedAt: now,
		UploadedAt: now,
		Status:     domain.StatusPending,
		UpdatedAt:  now,
	}
	if err := a.store.SaveRecording(recording); err != nil {
		return domain.AudioRecording{}, fmt.Errorf("save recording: %w", err)
	}

	if err := a.processor.ProcessAsync(recording.ID, ward.ID); err != nil {
		if errors.Is(err, pipeline.ErrSaturated) || errors.Is(err, pipeline.ErrClosed) {
			// The recording stays pending; a replay request can resubmit it.
			return recording, ErrProcessingSaturated
		}
		return recording, fmt.Errorf("submit processing: %w", err)
	}
	return recording, nil
}

// ProcessRecording replays a pending or failed recording through the
// pipeline on the caller's goroutine and returns the recording in its final
// state. A diagnosis failure is not an error here: the outcome is recorded
// on the recording itself. Completed recordings are immutable.
func (a *App) ProcessRecording(ctx context.Context, guardianID, recordingID string) (domain.AudioRecording, error) {
	recording, ward, err := a.ownedRecording(guardianID, recordingID)
	if err != nil {
		return domain.AudioRecording{}, err
	}
	switch recording.Status {
	case domain.StatusPending, domain.StatusFailed:
	default:
		return domain.AudioRecording{}, ErrAlreadyProcessed
	}
	if err := a.processor.ProcessSync(ctx, recording.ID, ward.ID); err != nil {
		slog.Warn("synchronous replay failed", "recording_id", recording.ID, "err", err)
	}
	refreshed, ok, err := a.store.GetRecording(recording.ID)
	if err != nil {
		return domain.AudioRecording{}, fmt.Errorf("fetch recording: %w", err)
	}
	if !ok {
		return domain.AudioRecording{}, ErrRecordingNotFound
	}
	return refreshed, nil
}

// GetLatestRecording returns the ward's most recent recording.
func (a *App) GetLatestRecording(guardianID, wardID string) (domain.AudioRecording, error) {
	if _, err := a.ownedWard(guardianID, wardID); err != nil {
		return domain.AudioRecording{}, err
	}
	recording, ok, err := a.store.GetLatestRecordingByWard(wardID)
	if err != nil {
		return domain.AudioRecording{}, fmt.Errorf("fetch latest recording: %w", err)
	}
	if !ok {
		return domain.AudioRecording{}, ErrRecordingNotFound
	}
	return recording, nil
}

// ListRecordings returns a ward's recordings, newest-first.
func (a *App) ListRecordings(guardianID, wardID string) ([]domain.AudioRecording, error) {
	if _, err := a.ownedWard(guardianID, wardID); err != nil {
		return nil, err
	}
	recs, err := a.store.ListRecordingsByWard(wardID)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return recs, nil
}

// GetRecording returns one recording with its current pipeline status.
func (a *App) GetRecording(guardianID, recordingID string) (domain.AudioRecording, error) {
	recording, _, err := a.ownedRecording(guardianID, recordingID)
	return recording, err
}

// RecordingPlaybackURL returns a short-lived presigned URL for the audio
// object behind a recording.
func (a *App) RecordingPlaybackURL(ctx context.Context, guardianID, recordingID string) (string, error) {
	recording, _, err := a.ownedRecording(guardianID, recordingID)
	if err != nil {
		return "", err
	}
	key, err := objectKeyFromURL(recording.FileURL)
	if err != nil {
		return "", err
	}
	url, err := a.objects.PresignGet(ctx, key, presignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign audio: %w", err)
	}
	return url, nil
}

// GetReportByRecording returns the analysis report for a recording once the
// pipeline has produced one.
func (a *App) GetReportByRecording(guardianID, recordingID string) (domain.Report, error) {
	recording, _, err := a.ownedRecording(guardianID, recordingID)
	if err != nil {
		return domain.Report{}, err
	}
	report, ok, err := a.store.GetReportByRecording(recording.ID)
	if err != nil {
		return domain.Report{}, fmt.Errorf("fetch report: %w", err)
	}
	if !ok {
		return domain.Report{}, ErrReportNotReady
	}
	return report, nil
}

// ListReports returns all reports for a ward, newest-first.
func (a *App) ListReports(guardianID, wardID string) ([]domain.Report, error) {
	if _, err := a.ownedWard(guardianID, wardID); err != nil {
		return nil, err
	}
	reports, err := a.store.ListReportsByWard(wardID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// GetReport returns one report, verifying the guardian owns the ward it
// belongs to.
func (a *App) GetReport(guardianID, reportID string) (domain.Report, error) {
	report, ok, err := a.store.GetReport(reportID)
	if err != nil {
		return domain.Report{}, fmt.Errorf("fetch report: %w", err)
	}
	if !ok {
		return domain.Report{}, ErrReportNotFound
	}
	if _, _, err := a.ownedRecording(guardianID, report.RecordingID); err != nil {
		return domain.Report{}, ErrReportNotFound
	}
	return report, nil
}

// AIHealth reports the diagnosis backend's reachability.
func (a *App) AIHealth(ctx context.Context) string {
	return a.ai.HealthCheck(ctx)
}

func (a *App) ownedWard(guardianID, wardID string) (domain.Ward, error) {
	ward, ok, err := a.store.GetWard(wardID)
	if err != nil {
		return domain.Ward{}, fmt.Errorf("fetch ward: %w", err)
	}
	if !ok || ward.GuardianID != guardianID || ward.Status == domain.WardDeleted {
		return domain.Ward{}, ErrWardNotFound
	}
	return ward, nil
}

func (a *App) ownedRecording(guardianID, recordingID string) (domain.AudioRecording, domain.Ward, error) {
	recording, ok, err := a.store.GetRecording(recordingID)
	if err != nil {
		return domain.AudioRecording{}, domain.Ward{}, fmt.Errorf("fetch recording: %w", err)
	}
	if !ok {
		return domain.AudioRecording{}, domain.Ward{}, ErrRecordingNotFound
	}
	ward, ok, err := a.store.GetWard(recording.WardID)
	if err != nil {
		return domain.AudioRecording{}, domain.Ward{}, fmt.Errorf("fetch ward: %w", err)
	}
	if !ok || ward.GuardianID != guardianID {
		return domain.AudioRecording{}, domain.Ward{}, ErrRecordingNotFound
	}
	return recording, ward, nil
}

// objectKeyFromURL strips the scheme, host, and bucket segment from a stored
// object URL, recovering the key used at upload time.
func objectKeyFromURL(fileURL string) (string, error) {
	rest := fileURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 3 || parts[2] == "" {
		return "", fmt.Errorf("malformed object url %q", fileURL)
	}
	return parts[2], nil
}
