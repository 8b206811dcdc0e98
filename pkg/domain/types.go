package domain

import "time"

// RecordingStatus tracks an audio recording through the diagnosis pipeline.
type RecordingStatus string

const (
	StatusPending    RecordingStatus = "pending"
	StatusProcessing RecordingStatus = "processing"
	StatusCompleted  RecordingStatus = "completed"
	StatusFailed     RecordingStatus = "failed"
)

// CanTransition reports whether moving to the given status is allowed.
// completed is terminal; failed recordings may re-enter processing so a
// replay can re-run the pipeline.
func (s RecordingStatus) CanTransition(to RecordingStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	case StatusFailed:
		return to == StatusProcessing
	default:
		return false
	}
}

// Valid reports whether the status is one of the four known values.
func (s RecordingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type WardStatus string

const (
	WardActive  WardStatus = "active"
	WardDeleted WardStatus = "deleted"
)

// Guardian is the account holder managing one or more wards.
type Guardian struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Ward is the monitored person whose recordings and reports belong to them.
// Diagnosis holds the self-report questionnaire answers as raw JSON; the
// pipeline parses it permissively and never depends on its exact shape.
type Ward struct {
	ID           string     `json:"id"`
	GuardianID   string     `json:"guardianId"`
	Name         string     `json:"name"`
	BirthDate    string     `json:"birthDate,omitempty"`
	Age          int        `json:"age,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Relationship string     `json:"relationship,omitempty"`
	Diagnosis    string     `json:"diagnosis,omitempty"`
	Status       WardStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// AudioRecording is one uploaded voice sample tracked through processing.
// Status mutations after upload are owned by the pipeline; ErrorMessage is
// non-empty exactly when Status is failed.
type AudioRecording struct {
	ID           string          `json:"id"`
	WardID       string          `json:"wardId"`
	FileURL      string          `json:"fileUrl"`
	FileFormat   string          `json:"fileFormat,omitempty"`
	RecordedAt   time.Time       `json:"recordedAt"`
	UploadedAt   time.Time       `json:"uploadedAt"`
	Status       RecordingStatus `json:"status"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Transcript   string          `json:"transcript,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Report is one AI analysis outcome tied to a recording. AnalysisResult is
// the diagnosis response exactly as received, serialized; it is never
// reinterpreted destructively.
type Report struct {
	ID             string    `json:"id"`
	RecordingID    string    `json:"recordingId"`
	AnalysisResult string    `json:"analysisResult"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
