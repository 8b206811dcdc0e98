package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// The message is shown to end users and must not enable account enumeration.
	ErrInvalidCredentials = errors.New("incorrect email address or password")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailAlreadyExists       = errors.New("email already exists")

	ErrWardNameRequired = errors.New("ward name required")

	// ErrWardNotFound also covers wards owned by another guardian, so a
	// caller cannot probe for other guardians' wards.
	ErrWardNotFound      = errors.New("ward not found")
	ErrRecordingNotFound = errors.New("recording not found")
	ErrReportNotFound    = errors.New("report not found")
	ErrReportNotReady    = errors.New("report not ready")

	ErrAudioFileRequired   = errors.New("audio file required")
	ErrUnsupportedFormat   = errors.New("unsupported audio format")
	ErrProcessingSaturated = errors.New("processing queue is full, retry later")
	ErrAlreadyProcessed    = errors.New("recording already processed")
)
