package store

import (
	"testing"
	"time"

	"anyotherday/pkg/domain"
)

func TestMemoryStoreRecordingLifecycle(t *testing.T) {
	m := NewMemoryStore()
	now := time.Now().UTC()
	rec := domain.AudioRecording{
		ID:         "rec-1",
		WardID:     "ward-1",
		FileURL:    "https://storage/audio/ward-1/a.mp3",
		Status:     domain.StatusPending,
		UploadedAt: now,
		UpdatedAt:  now,
	}
	if err := m.SaveRecording(rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := m.SetRecordingStatus("rec-1", domain.StatusFailed, "ai timeout"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, ok, _ := m.GetRecording("rec-1")
	if !ok {
		t.Fatalf("recording missing")
	}
	if got.Status != domain.StatusFailed || got.ErrorMessage != "ai timeout" {
		t.Fatalf("status = %s/%q, want failed with message", got.Status, got.ErrorMessage)
	}
}

func TestMemoryStoreLatestRecording(t *testing.T) {
	m := NewMemoryStore()
	base := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		_ = m.SaveRecording(domain.AudioRecording{
			ID:         id,
			WardID:     "ward-1",
			UploadedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	latest, ok, _ := m.GetLatestRecordingByWard("ward-1")
	if !ok || latest.ID != "new" {
		t.Fatalf("latest = %q, want new", latest.ID)
	}
}

func TestMemoryStoreRecentReportsOrderAndLimit(t *testing.T) {
	m := NewMemoryStore()
	base := time.Now().UTC()
	_ = m.SaveRecording(domain.AudioRecording{ID: "rec-1", WardID: "ward-1", UploadedAt: base})
	_ = m.SaveRecording(domain.AudioRecording{ID: "rec-2", WardID: "ward-1", UploadedAt: base})
	_ = m.SaveRecording(domain.AudioRecording{ID: "rec-other", WardID: "ward-2", UploadedAt: base})
	for i, r := range []domain.Report{
		{ID: "rep-1", RecordingID: "rec-1"},
		{ID: "rep-2", RecordingID: "rec-2"},
		{ID: "rep-3", RecordingID: "rec-other"},
	} {
		r.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		_ = m.SaveReport(r)
	}
	reports, err := m.GetRecentReportsByWard("ward-1", 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(reports) != 1 || reports[0].ID != "rep-2" {
		t.Fatalf("recent = %+v, want single newest report for ward-1", reports)
	}
}

func TestMemoryStoreWardSoftDelete(t *testing.T) {
	m := NewMemoryStore()
	_ = m.SaveWard(domain.Ward{ID: "w1", GuardianID: "g1", Status: domain.WardActive})
	_ = m.SaveWard(domain.Ward{ID: "w2", GuardianID: "g1", Status: domain.WardDeleted})
	wards, _ := m.ListWardsByGuardian("g1")
	if len(wards) != 1 || wards[0].ID != "w1" {
		t.Fatalf("wards = %+v, want only active", wards)
	}
}
