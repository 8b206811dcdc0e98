package store

import (
	"sort"
	"sync"
	"time"

	"anyotherday/internal/util"
	"anyotherday/pkg/domain"
)

// MemoryStore keeps all records in-process. It backs tests and local
// development without Postgres.
type MemoryStore struct {
	mu         sync.RWMutex
	guardians  map[string]domain.Guardian
	emails     map[string]string // email -> guardian ID
	wards      map[string]domain.Ward
	recordings map[string]domain.AudioRecording
	reports    map[string]domain.Report
	sess       map[string]string // token -> guardian ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		guardians:  make(map[string]domain.Guardian),
		emails:     make(map[string]string),
		wards:      make(map[string]domain.Ward),
		recordings: make(map[string]domain.AudioRecording),
		reports:    make(map[string]domain.Report),
		sess:       make(map[string]string),
	}
}

// SaveGuardian registers or replaces a guardian.
func (m *MemoryStore) SaveGuardian(g domain.Guardian) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guardians[g.ID] = g
	m.emails[g.Email] = g.ID
	return nil
}

// HasGuardianEmail checks if email exists.
func (m *MemoryStore) HasGuardianEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.emails[email]
	return ok, nil
}

// GetGuardianByEmail looks up a guardian by email.
func (m *MemoryStore) GetGuardianByEmail(email string) (domain.Guardian, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return domain.Guardian{}, false, nil
	}
	g, ok := m.guardians[id]
	return g, ok, nil
}

// GetGuardianByID returns a guardian by ID.
func (m *MemoryStore) GetGuardianByID(id string) (domain.Guardian, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.guardians[id]
	return g, ok, nil
}

// SaveWard stores or replaces a ward.
func (m *MemoryStore) SaveWard(w domain.Ward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wards[w.ID] = w
	return nil
}

// GetWard retrieves a ward by ID.
func (m *MemoryStore) GetWard(id string) (domain.Ward, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wards[id]
	return w, ok, nil
}

// ListWardsByGuardian returns active wards ordered by creation time.
func (m *MemoryStore) ListWardsByGuardian(guardianID string) ([]domain.Ward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Ward, 0)
	for _, w := range m.wards {
		if w.GuardianID == guardianID && w.Status != domain.WardDeleted {
			res = append(res, w)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// SaveRecording stores or replaces a recording.
func (m *MemoryStore) SaveRecording(rec domain.AudioRecording) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordings[rec.ID] = rec
	return nil
}

// GetRecording retrieves a recording by ID.
func (m *MemoryStore) GetRecording(id string) (domain.AudioRecording, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recordings[id]
	return rec, ok, nil
}

// ListRecordingsByWard returns recordings newest-first.
func (m *MemoryStore) ListRecordingsByWard(wardID string) ([]domain.AudioRecording, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.AudioRecording, 0)
	for _, rec := range m.recordings {
		if rec.WardID == wardID {
			res = append(res, rec)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UploadedAt.After(res[j].UploadedAt) })
	return res, nil
}

// GetLatestRecordingByWard returns the most recently uploaded recording.
func (m *MemoryStore) GetLatestRecordingByWard(wardID string) (domain.AudioRecording, bool, error) {
	recs, err := m.ListRecordingsByWard(wardID)
	if err != nil || len(recs) == 0 {
		return domain.AudioRecording{}, false, err
	}
	return recs[0], true, nil
}

// SetRecordingStatus updates status and optional error message.
func (m *MemoryStore) SetRecordingStatus(id string, status domain.RecordingStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok {
		return nil
	}
	rec.Status = status
	rec.ErrorMessage = errMsg
	rec.UpdatedAt = time.Now().UTC()
	m.recordings[id] = rec
	return nil
}

// SetRecordingTranscript stores the ASR transcript.
func (m *MemoryStore) SetRecordingTranscript(id string, transcript string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok {
		return nil
	}
	rec.Transcript = transcript
	rec.UpdatedAt = time.Now().UTC()
	m.recordings[id] = rec
	return nil
}

// SaveReport stores a report.
func (m *MemoryStore) SaveReport(r domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.ID] = r
	return nil
}

// GetReport retrieves a report by ID.
func (m *MemoryStore) GetReport(id string) (domain.Report, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	return r, ok, nil
}

// GetReportByRecording returns the newest report for a recording.
func (m *MemoryStore) GetReportByRecording(recordingID string) (domain.Report, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		found  bool
		newest domain.Report
	)
	for _, r := range m.reports {
		if r.RecordingID != recordingID {
			continue
		}
		if !found || r.CreatedAt.After(newest.CreatedAt) {
			newest = r
			found = true
		}
	}
	return newest, found, nil
}

// ListReportsByWard returns all reports for a ward, newest-first.
func (m *MemoryStore) ListReportsByWard(wardID string) ([]domain.Report, error) {
	return m.GetRecentReportsByWard(wardID, 0)
}

// GetRecentReportsByWard returns up to limit reports for a ward, newest-first.
func (m *MemoryStore) GetRecentReportsByWard(wardID string, limit int) ([]domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Report, 0)
	for _, r := range m.reports {
		rec, ok := m.recordings[r.RecordingID]
		if ok && rec.WardID == wardID {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// NewSession issues an opaque session token.
func (m *MemoryStore) NewSession(guardianID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := util.NewID()
	m.sess[token] = guardianID
	return token, nil
}

// GetGuardianIDByToken resolves a session token.
func (m *MemoryStore) GetGuardianIDByToken(token string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.sess[token]
	return id, ok, nil
}

// DeleteSession removes a session token.
func (m *MemoryStore) DeleteSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sess, token)
	return nil
}
