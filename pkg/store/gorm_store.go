package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"anyotherday/pkg/domain"
)

const migrateLockID int64 = 48120731

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent instances do not race.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&GuardianModel{}, &WardModel{}, &AudioRecordingModel{}, &ReportModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("raw db: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("db conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveGuardian registers or updates a guardian.
func (s *GormStore) SaveGuardian(g domain.Guardian) error {
	model := guardianToModel(g)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "name", "phone", "updated_at"}),
	}).Create(&model).Error
}

// HasGuardianEmail checks if email exists.
func (s *GormStore) HasGuardianEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&GuardianModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetGuardianByEmail looks up a guardian by email.
func (s *GormStore) GetGuardianByEmail(email string) (domain.Guardian, bool, error) {
	var model GuardianModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Guardian{}, false, nil
		}
		return domain.Guardian{}, false, err
	}
	return guardianFromModel(model), true, nil
}

// GetGuardianByID returns a guardian by ID.
func (s *GormStore) GetGuardianByID(id string) (domain.Guardian, bool, error) {
	var model GuardianModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Guardian{}, false, nil
		}
		return domain.Guardian{}, false, err
	}
	return guardianFromModel(model), true, nil
}

// SaveWard stores or updates a ward.
func (s *GormStore) SaveWard(w domain.Ward) error {
	model := wardToModel(w)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"guardian_id", "name", "birth_date", "age", "gender", "phone", "relationship", "diagnosis", "status", "updated_at"}),
	}).Create(&model).Error
}

// GetWard retrieves a ward.
func (s *GormStore) GetWard(id string) (domain.Ward, bool, error) {
	var model WardModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Ward{}, false, nil
		}
		return domain.Ward{}, false, err
	}
	return wardFromModel(model), true, nil
}

// ListWardsByGuardian returns active wards for a guardian.
func (s *GormStore) ListWardsByGuardian(guardianID string) ([]domain.Ward, error) {
	var models []WardModel
	if err := s.db.
		Where("guardian_id = ? AND status <> ?", guardianID, string(domain.WardDeleted)).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Ward, 0, len(models))
	for _, m := range models {
		res = append(res, wardFromModel(m))
	}
	return res, nil
}

// SaveRecording stores or updates a recording.
func (s *GormStore) SaveRecording(rec domain.AudioRecording) error {
	model := recordingToModel(rec)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ward_id", "file_url", "file_format", "recorded_at", "status", "error_message", "transcript", "updated_at"}),
	}).Create(&model).Error
}

// GetRecording retrieves a recording.
func (s *GormStore) GetRecording(id string) (domain.AudioRecording, bool, error) {
	var model AudioRecordingModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.AudioRecording{}, false, nil
		}
		return domain.AudioRecording{}, false, err
	}
	return recordingFromModel(model), true, nil
}

// ListRecordingsByWard returns recordings newest-first.
func (s *GormStore) ListRecordingsByWard(wardID string) ([]domain.AudioRecording, error) {
	var models []AudioRecordingModel
	if err := s.db.
		Where("ward_id = ?", wardID).
		Order("uploaded_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AudioRecording, 0, len(models))
	for _, m := range models {
		res = append(res, recordingFromModel(m))
	}
	return res, nil
}

// GetLatestRecordingByWard returns the most recently uploaded recording.
func (s *GormStore) GetLatestRecordingByWard(wardID string) (domain.AudioRecording, bool, error) {
	var model AudioRecordingModel
	if err := s.db.
		Where("ward_id = ?", wardID).
		Order("uploaded_at DESC").
		First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.AudioRecording{}, false, nil
		}
		return domain.AudioRecording{}, false, err
	}
	return recordingFromModel(model), true, nil
}

// SetRecordingStatus updates recording status/error.
func (s *GormStore) SetRecordingStatus(id string, status domain.RecordingStatus, errMsg string) error {
	return s.db.Model(&AudioRecordingModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(status),
			"error_message": errMsg,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// SetRecordingTranscript stores the ASR transcript for a recording.
func (s *GormStore) SetRecordingTranscript(id string, transcript string) error {
	return s.db.Model(&AudioRecordingModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"transcript": transcript,
			"updated_at": time.Now().UTC(),
		}).Error
}

// SaveReport stores a report.
func (s *GormStore) SaveReport(r domain.Report) error {
	model := reportToModel(r)
	return s.db.Create(&model).Error
}

// GetReport retrieves a report.
func (s *GormStore) GetReport(id string) (domain.Report, bool, error) {
	var model ReportModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Report{}, false, nil
		}
		return domain.Report{}, false, err
	}
	return reportFromModel(model), true, nil
}

// GetReportByRecording returns the newest report for a recording.
func (s *GormStore) GetReportByRecording(recordingID string) (domain.Report, bool, error) {
	var model ReportModel
	if err := s.db.
		Where("recording_id = ?", recordingID).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Report{}, false, nil
		}
		return domain.Report{}, false, err
	}
	return reportFromModel(model), true, nil
}

// ListReportsByWard returns reports for all of a ward's recordings, newest-first.
func (s *GormStore) ListReportsByWard(wardID string) ([]domain.Report, error) {
	return s.reportsByWard(wardID, 0)
}

// GetRecentReportsByWard returns up to limit reports for a ward, newest-first.
func (s *GormStore) GetRecentReportsByWard(wardID string, limit int) ([]domain.Report, error) {
	return s.reportsByWard(wardID, limit)
}

func (s *GormStore) reportsByWard(wardID string, limit int) ([]domain.Report, error) {
	var models []ReportModel
	tx := s.db.
		Joins("JOIN audio_recording_models ON audio_recording_models.id = report_models.recording_id").
		Where("audio_recording_models.ward_id = ?", wardID).
		Order("report_models.created_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Report, 0, len(models))
	for _, m := range models {
		res = append(res, reportFromModel(m))
	}
	return res, nil
}

func guardianToModel(g domain.Guardian) GuardianModel {
	return GuardianModel{
		ID:           g.ID,
		Email:        g.Email,
		PasswordHash: g.PasswordHash,
		Name:         g.Name,
		Phone:        g.Phone,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

func guardianFromModel(m GuardianModel) domain.Guardian {
	return domain.Guardian{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Name:         m.Name,
		Phone:        m.Phone,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func wardToModel(w domain.Ward) WardModel {
	var diagnosis []byte
	if w.Diagnosis != "" {
		diagnosis = []byte(w.Diagnosis)
	}
	return WardModel{
		ID:           w.ID,
		GuardianID:   w.GuardianID,
		Name:         w.Name,
		BirthDate:    w.BirthDate,
		Age:          w.Age,
		Gender:       w.Gender,
		Phone:        w.Phone,
		Relationship: w.Relationship,
		Diagnosis:    diagnosis,
		Status:       string(w.Status),
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
}

func wardFromModel(m WardModel) domain.Ward {
	return domain.Ward{
		ID:           m.ID,
		GuardianID:   m.GuardianID,
		Name:         m.Name,
		BirthDate:    m.BirthDate,
		Age:          m.Age,
		Gender:       m.Gender,
		Phone:        m.Phone,
		Relationship: m.Relationship,
		Diagnosis:    string(m.Diagnosis),
		Status:       domain.WardStatus(m.Status),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func recordingToModel(r domain.AudioRecording) AudioRecordingModel {
	return AudioRecordingModel{
		ID:           r.ID,
		WardID:       r.WardID,
		FileURL:      r.FileURL,
		FileFormat:   r.FileFormat,
		RecordedAt:   r.RecordedAt,
		UploadedAt:   r.UploadedAt,
		Status:       string(r.Status),
		ErrorMessage: r.ErrorMessage,
		Transcript:   r.Transcript,
		UpdatedAt:    r.UpdatedAt,
	}
}

func recordingFromModel(m AudioRecordingModel) domain.AudioRecording {
	return domain.AudioRecording{
		ID:           m.ID,
		WardID:       m.WardID,
		FileURL:      m.FileURL,
		FileFormat:   m.FileFormat,
		RecordedAt:   m.RecordedAt,
		UploadedAt:   m.UploadedAt,
		Status:       domain.RecordingStatus(m.Status),
		ErrorMessage: m.ErrorMessage,
		Transcript:   m.Transcript,
		UpdatedAt:    m.UpdatedAt,
	}
}

func reportToModel(r domain.Report) ReportModel {
	var payload []byte
	if r.AnalysisResult != "" {
		payload = []byte(r.AnalysisResult)
	}
	return ReportModel{
		ID:             r.ID,
		RecordingID:    r.RecordingID,
		AnalysisResult: payload,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func reportFromModel(m ReportModel) domain.Report {
	return domain.Report{
		ID:             m.ID,
		RecordingID:    m.RecordingID,
		AnalysisResult: string(m.AnalysisResult),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
