package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type GuardianModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Name         string `gorm:"not null"`
	Phone        string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type WardModel struct {
	ID           string `gorm:"primaryKey"`
	GuardianID   string `gorm:"not null;index"`
	Name         string `gorm:"not null"`
	BirthDate    string
	Age          int
	Gender       string
	Phone        string
	Relationship string
	Diagnosis    datatypes.JSON `gorm:"type:jsonb"`
	Status       string         `gorm:"not null"`
	CreatedAt    time.Time      `gorm:"not null"`
	UpdatedAt    time.Time
}

type AudioRecordingModel struct {
	ID           string `gorm:"primaryKey"`
	WardID       string `gorm:"not null;index"`
	FileURL      string `gorm:"not null"`
	FileFormat   string
	RecordedAt   time.Time
	UploadedAt   time.Time `gorm:"not null;index"`
	Status       string    `gorm:"not null"`
	ErrorMessage string
	Transcript   string    `gorm:"type:text"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type ReportModel struct {
	ID             string         `gorm:"primaryKey"`
	RecordingID    string         `gorm:"not null;index"`
	AnalysisResult datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null;index"`
	UpdatedAt      time.Time
}
