package store

import "anyotherday/pkg/domain"

// Store defines persistence operations for guardians, wards, recordings,
// and reports.
type Store interface {
	// guardians
	SaveGuardian(domain.Guardian) error
	HasGuardianEmail(email string) (bool, error)
	GetGuardianByEmail(email string) (domain.Guardian, bool, error)
	GetGuardianByID(id string) (domain.Guardian, bool, error)

	// wards
	SaveWard(domain.Ward) error
	GetWard(id string) (domain.Ward, bool, error)
	ListWardsByGuardian(guardianID string) ([]domain.Ward, error)

	// recordings
	SaveRecording(domain.AudioRecording) error
	GetRecording(id string) (domain.AudioRecording, bool, error)
	ListRecordingsByWard(wardID string) ([]domain.AudioRecording, error)
	GetLatestRecordingByWard(wardID string) (domain.AudioRecording, bool, error)
	SetRecordingStatus(id string, status domain.RecordingStatus, errMsg string) error
	SetRecordingTranscript(id string, transcript string) error

	// reports
	SaveReport(domain.Report) error
	GetReport(id string) (domain.Report, bool, error)
	GetReportByRecording(recordingID string) (domain.Report, bool, error)
	ListReportsByWard(wardID string) ([]domain.Report, error)
	GetRecentReportsByWard(wardID string, limit int) ([]domain.Report, error)
}

// SessionStore persists guardian session tokens.
type SessionStore interface {
	NewSession(guardianID string) (string, error)
	GetGuardianIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
