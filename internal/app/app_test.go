package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"anyotherday/pkg/ai"
	"anyotherday/pkg/domain"
	"anyotherday/pkg/pipeline"
	"anyotherday/pkg/store"
)

type fakeObjectStore struct {
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.objects[key] = data
	return "http://storage.local/recordings/" + key, nil
}

func (f *fakeObjectStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, ok := f.objects[key]; !ok {
		return "", fmt.Errorf("no such object %q", key)
	}
	return "http://storage.local/recordings/" + key + "?signed=1", nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *fakeObjectStore) {
	t.Helper()
	m := store.NewMemoryStore()
	objects := newFakeObjectStore()
	client := ai.NewClient(ai.Config{Enabled: false})
	processor := pipeline.NewProcessor(m, m, m, ai.NewHistoryProvider(m), client, nil, pipeline.Config{
		CoreWorkers: 1,
		MaxWorkers:  2,
		QueueDepth:  10,
	})
	t.Cleanup(func() { _ = processor.Close(time.Second) })

	a, err := New(Config{
		Store:     m,
		Sessions:  m,
		Objects:   objects,
		Processor: processor,
		AI:        client,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, m, objects
}

func signUp(t *testing.T, a *App) (domain.Guardian, string) {
	t.Helper()
	guardian, token, err := a.SignUp("carer@example.com", "s3cret-pass", "Lee", "010-1234-5678")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	return guardian, token
}

func createWard(t *testing.T, a *App, guardianID string) domain.Ward {
	t.Helper()
	ward, err := a.CreateWard(guardianID, domain.Ward{
		Name:      "Kim",
		Age:       78,
		Gender:    "female",
		Diagnosis: `{"answered": true}`,
	})
	if err != nil {
		t.Fatalf("create ward: %v", err)
	}
	return ward
}

func TestSignUpAndLogin(t *testing.T) {
	a, _, _ := newTestApp(t)
	guardian, token := signUp(t, a)
	if guardian.Email != "carer@example.com" || token == "" {
		t.Fatalf("guardian = %+v, token = %q", guardian, token)
	}

	if _, _, err := a.SignUp("carer@example.com", "other-pass", "", ""); err != ErrEmailAlreadyExists {
		t.Fatalf("duplicate sign up err = %v", err)
	}

	loggedIn, loginToken, err := a.Login("Carer@Example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loggedIn.ID != guardian.ID || loginToken == "" {
		t.Fatalf("login returned %+v", loggedIn)
	}

	if _, _, err := a.Login("carer@example.com", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("bad password err = %v", err)
	}
	if _, _, err := a.Login("nobody@example.com", "s3cret-pass"); err != ErrInvalidCredentials {
		t.Fatalf("unknown email err = %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	a, _, _ := newTestApp(t)
	guardian, token := signUp(t, a)

	got, ok, err := a.GuardianByToken(token)
	if err != nil || !ok || got.ID != guardian.ID {
		t.Fatalf("resolve token: %v %v %+v", err, ok, got)
	}
	if err := a.Logout(token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok, _ := a.GuardianByToken(token); ok {
		t.Fatalf("token still valid after logout")
	}
}

func TestWardLifecycle(t *testing.T) {
	a, _, _ := newTestApp(t)
	guardian, _ := signUp(t, a)
	ward := createWard(t, a, guardian.ID)

	if _, err := a.CreateWard(guardian.ID, domain.Ward{Name: "  "}); err != ErrWardNameRequired {
		t.Fatalf("blank name err = %v", err)
	}

	updated, err := a.UpdateWard(guardian.ID, ward.ID, domain.Ward{Diagnosis: `{"answered": false}`})
	if err != nil {
		t.Fatalf("update ward: %v", err)
	}
	if updated.Diagnosis != `{"answered": false}` || updated.Name != "Kim" {
		t.Fatalf("updated ward = %+v", updated)
	}

	wards, err := a.ListWards(guardian.ID)
	if err != nil || len(wards) != 1 {
		t.Fatalf("list wards: %v %v", wards, err)
	}

	if err := a.DeleteWard(guardian.ID, ward.ID); err != nil {
		t.Fatalf("delete ward: %v", err)
	}
	wards, _ = a.ListWards(guardian.ID)
	if len(wards) != 0 {
		t.Fatalf("deleted ward still listed: %+v", wards)
	}
	if _, err := a.GetWard(guardian.ID, ward.ID); err != ErrWardNotFound {
		t.Fatalf("deleted ward err = %v", err)
	}
}

func TestWardOwnershipIsEnforced(t *testing.T) {
	a, _, _ := newTestApp(t)
	guardian, _ := signUp(t, a)
	ward := createWard(t, a, guardian.ID)

	other, _, err := a.SignUp("other@example.com", "another-pass", "", "")
	if err != nil {
		t.Fatalf("sign up other: %v", err)
	}
	if _, err := a.GetWard(other.ID, ward.ID); err != ErrWardNotFound {
		t.Fatalf("foreign ward err = %v, want not found", err)
	}
	if _, err := a.ListRecordings(other.ID, ward.ID); err != ErrWardNotFound {
		t.Fatalf("foreign recordings err = %v", err)
	}
}

func TestUploadAudioRunsPipeline(t *testing.T) {
	a, m, objects := newTestApp(t)
	guardian, _ := signUp(t, a)
	ward := createWard(t, a, guardian.ID)

	recording, err := a.UploadAudio(context.Background(), guardian.ID, ward.ID,
		"morning-call.mp3", "audio/mpeg", 4, bytes.NewReader([]byte("data")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if recording.FileFormat != "mp3" {
		t.Fatalf("format = %q", recording.FileFormat)
	}
	if !strings.Contains(recording.FileURL, "audio/"+ward.ID+"/") {
		t.Fatalf("file url = %q, want ward-scoped key", recording.FileURL)
	}
	if len(objects.objects) != 1 {
		t.Fatalf("object count = %d", len(objects.objects))
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec, _, _ := m.GetRecording(recording.ID)
		if rec.Status == domain.StatusCompleted {
			report, err := a.GetReportByRecording(guardian.ID, recording.ID)
			if err != nil {
				t.Fatalf("fetch report: %v", err)
			}
			if report.RecordingID != recording.ID {
				t.Fatalf("report = %+v", report)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("recording never completed")
}

func TestUploadAudioRejectsUnknownFormat(t *testing.T) {
	a, _, _ := newTestApp(t)
	guardian, _ := signUp(t, a)
	ward := createWard(t, a, guardian.ID)

	_, err := a.UploadAudio(context.Background(), guardian.ID, ward.ID,
		"notes.txt", "text/plain", 4, bytes.NewReader([]byte("data")))
	if err == nil || !strings.Contains(err.Error(), "unsupported audio format") {
		t.Fatalf("err = %v, want unsupported format", err)
	}
}

func TestGetReportBeforeCompletion(t *testing.T) {
	a, m, _ := newTestApp(t)
	guardian, _ := signUp(t, a)
	ward := createWard(t, a, guardian.ID)

	rec := domain.AudioRecording{
		ID: "rec-1", WardID: ward.ID, Status: domain.StatusPending, UploadedAt: time.Now().UTC(),
	}
	if err := m.SaveRecording(rec); err != nil {
		t.Fatalf("seed recording: %v", err)
	}
	if _, err := a.GetReportByRecording(guardian.ID, "rec-1"); err != ErrReportNotReady {
		t.Fatalf("err = %v, want report not ready", err)
	}
}

func TestProcessRecordingRejectsCompleted(t *testing.T) {
	a, m, _ := newTestApp(t)
	guardian, _ := signUp(t, a)
	ward := createWard(t, a, guardian.ID)

	rec := domain.AudioRecording{
		ID: "rec-1", WardID: ward.ID, Status: domain.StatusPending, UploadedAt: time.Now().UTC(),
	}
	_ = m.SaveRecording(rec)
	_ = m.SetRecordingStatus("rec-1", domain.StatusProcessing, "")
	_ = m.SetRecordingStatus("rec-1", domain.StatusCompleted, "")

	if _, err := a.ProcessRecording(context.Background(), guardian.ID, "rec-1"); err != ErrAlreadyProcessed {
		t.Fatalf("err = %v, want already processed", err)
	}
}

func TestProcessRecordingReplaysFailed(t *testing.T) {
	a, m, _ := newTestApp(t)
	guardian, _ := signUp(t, a)
	ward := createWard(t, a, guardian.ID)

	rec := domain.AudioRecording{
		ID: "rec-1", WardID: ward.ID, FileURL: "http://storage.local/recordings/audio/x.mp3",
		Status: domain.StatusPending, UploadedAt: time.Now().UTC(),
	}
	_ = m.SaveRecording(rec)
	_ = m.SetRecordingStatus("rec-1", domain.StatusProcessing, "")
	_ = m.SetRecordingStatus("rec-1", domain.StatusFailed, "ai unreachable")

	replayed, err := a.ProcessRecording(context.Background(), guardian.ID, "rec-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed after replay", replayed.Status)
	}
}

func TestGetLatestRecording(t *testing.T) {
	a, m, _ := newTestApp(t)
	guardian, _ := signUp(t, a)
	ward := createWard(t, a, guardian.ID)

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	_ = m.SaveRecording(domain.AudioRecording{ID: "rec-1", WardID: ward.ID, UploadedAt: base})
	_ = m.SaveRecording(domain.AudioRecording{ID: "rec-2", WardID: ward.ID, UploadedAt: base.Add(time.Hour)})

	latest, err := a.GetLatestRecording(guardian.ID, ward.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != "rec-2" {
		t.Fatalf("latest = %s, want rec-2", latest.ID)
	}
}

func TestUpdateWardDiagnosis(t *testing.T) {
	a, _, _ := newTestApp(t)
	guardian, _ := signUp(t, a)
	ward := createWard(t, a, guardian.ID)

	updated, err := a.UpdateWardDiagnosis(guardian.ID, ward.ID, `{"answered": false, "score": 3}`)
	if err != nil {
		t.Fatalf("update diagnosis: %v", err)
	}
	if updated.Diagnosis != `{"answered": false, "score": 3}` {
		t.Fatalf("diagnosis = %q", updated.Diagnosis)
	}
}

func TestRecordingPlaybackURL(t *testing.T) {
	a, _, _ := newTestApp(t)
	guardian, _ := signUp(t, a)
	ward := createWard(t, a, guardian.ID)

	recording, err := a.UploadAudio(context.Background(), guardian.ID, ward.ID,
		"call.wav", "audio/wav", 4, bytes.NewReader([]byte("data")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	url, err := a.RecordingPlaybackURL(context.Background(), guardian.ID, recording.ID)
	if err != nil {
		t.Fatalf("playback url: %v", err)
	}
	if !strings.Contains(url, "signed=1") {
		t.Fatalf("url = %q, want presigned", url)
	}
}
