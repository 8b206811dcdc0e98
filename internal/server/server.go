package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"anyotherday/internal/app"
	"anyotherday/internal/ratelimit"
	"anyotherday/internal/util"
	"anyotherday/pkg/domain"
)

// maxUploadBytes caps one multipart audio upload.
const maxUploadBytes = 50 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// UploadLimiter throttles audio uploads per client IP. Optional.
	UploadLimiter *ratelimit.FixedWindowLimiter
	// TrustForwardedFor enables X-Forwarded-For for rate-limit keys.
	TrustForwardedFor bool
}

// Server exposes the guardian-facing HTTP API.
type Server struct {
	app               *app.App
	uploadLimiter     *ratelimit.FixedWindowLimiter
	trustForwardedFor bool
	mux               *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:               cfg.App,
		uploadLimiter:     cfg.UploadLimiter,
		trustForwardedFor: cfg.TrustForwardedFor,
		mux:               http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the handler with the shared middleware applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithSecurityHeaders(h)
	h = util.WithCORS(h)
	h = util.WithRequestLog(h)
	h = util.WithRequestID(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/healthz/ai", s.handleAIHealth)

	// auth
	s.mux.HandleFunc("/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
	s.mux.Handle("/auth/me", s.authenticated(s.handleMe))

	// wards and nested recordings/reports
	s.mux.Handle("/wards", s.authenticated(s.handleWards))
	s.mux.Handle("/wards/", s.authenticated(s.handleWardSubtree))

	// recordings and reports by ID
	s.mux.Handle("/recordings/", s.authenticated(s.handleRecordingSubtree))
	s.mux.Handle("/reports/", s.authenticated(s.handleReportByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAIHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"ai": s.app.AIHealth(r.Context())})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.Guardian)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		guardian, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, guardian)
	})
}

func (s *Server) authorize(r *http.Request) (domain.Guardian, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.Guardian{}, false
	}
	guardian, ok, err := s.app.GuardianByToken(token)
	if err != nil {
		slog.Warn("resolve session failed", "err", err)
		return domain.Guardian{}, false
	}
	return guardian, ok
}

// auth handlers
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req signupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	guardian, token, err := s.app.SignUp(req.Email, req.Password, req.Name, req.Phone)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, Guardian: guardian})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	guardian, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, Guardian: guardian})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, guardian domain.Guardian) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, guardian)
}

// ward handlers
func (s *Server) handleWards(w http.ResponseWriter, r *http.Request, guardian domain.Guardian) {
	switch r.Method {
	case http.MethodGet:
		wards, err := s.app.ListWards(guardian.ID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": wards, "count": len(wards)})
	case http.MethodPost:
		var req wardRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		ward, err := s.app.CreateWard(guardian.ID, req.toWard())
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ward)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleWardSubtree(w http.ResponseWriter, r *http.Request, guardian domain.Guardian) {
	rest := strings.TrimPrefix(r.URL.Path, "/wards/")
	wardID, sub, _ := strings.Cut(rest, "/")
	if wardID == "" {
		http.NotFound(w, r)
		return
	}
	switch sub {
	case "":
		s.handleWardByID(w, r, guardian, wardID)
	case "diagnosis":
		s.handleWardDiagnosis(w, r, guardian, wardID)
	case "recordings":
		s.handleWardRecordings(w, r, guardian, wardID)
	case "recordings/latest":
		s.handleLatestRecording(w, r, guardian, wardID)
	case "reports":
		s.handleWardReports(w, r, guardian, wardID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleWardByID(w http.ResponseWriter, r *http.Request, guardian domain.Guardian, wardID string) {
	switch r.Method {
	case http.MethodGet:
		ward, err := s.app.GetWard(guardian.ID, wardID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ward)
	case http.MethodPut, http.MethodPatch:
		var req wardRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		ward, err := s.app.UpdateWard(guardian.ID, wardID, req.toWard())
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ward)
	case http.MethodDelete:
		if err := s.app.DeleteWard(guardian.ID, wardID); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleWardDiagnosis(w http.ResponseWriter, r *http.Request, guardian domain.Guardian, wardID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req diagnosisRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Diagnosis == "" {
		writeError(w, http.StatusBadRequest, "diagnosis is required")
		return
	}
	ward, err := s.app.UpdateWardDiagnosis(guardian.ID, wardID, req.Diagnosis)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ward)
}

func (s *Server) handleLatestRecording(w http.ResponseWriter, r *http.Request, guardian domain.Guardian, wardID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	recording, err := s.app.GetLatestRecording(guardian.ID, wardID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recording)
}

func (s *Server) handleWardRecordings(w http.ResponseWriter, r *http.Request, guardian domain.Guardian, wardID string) {
	switch r.Method {
	case http.MethodGet:
		recs, err := s.app.ListRecordings(guardian.ID, wardID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": recs, "count": len(recs)})
	case http.MethodPost:
		s.handleUpload(w, r, guardian, wardID)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, guardian domain.Guardian, wardID string) {
	if s.uploadLimiter != nil && !s.uploadLimiter.Allow(util.ClientIP(r, s.trustForwardedFor)) {
		writeError(w, http.StatusTooManyRequests, "too many uploads, slow down")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	recording, err := s.app.UploadAudio(r.Context(), guardian.ID, wardID,
		header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		// A saturated pipeline still stored the recording; report both.
		if errors.Is(err, app.ErrProcessingSaturated) {
			writeJSON(w, http.StatusServiceUnavailable, uploadRejectedResponse{
				Error:     err.Error(),
				Recording: recording,
			})
			return
		}
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, recording)
}

func (s *Server) handleWardReports(w http.ResponseWriter, r *http.Request, guardian domain.Guardian, wardID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	reports, err := s.app.ListReports(guardian.ID, wardID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": reports, "count": len(reports)})
}

// recording handlers
func (s *Server) handleRecordingSubtree(w http.ResponseWriter, r *http.Request, guardian domain.Guardian) {
	rest := strings.TrimPrefix(r.URL.Path, "/recordings/")
	recordingID, sub, _ := strings.Cut(rest, "/")
	if recordingID == "" {
		http.NotFound(w, r)
		return
	}
	switch sub {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		recording, err := s.app.GetRecording(guardian.ID, recordingID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, recording)
	case "audio":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		url, err := s.app.RecordingPlaybackURL(r.Context(), guardian.ID, recordingID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	case "report":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		report, err := s.app.GetReportByRecording(guardian.ID, recordingID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	case "process":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		recording, err := s.app.ProcessRecording(r.Context(), guardian.ID, recordingID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, recording)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleReportByID(w http.ResponseWriter, r *http.Request, guardian domain.Guardian) {
	id := strings.TrimPrefix(r.URL.Path, "/reports/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	report, err := s.app.GetReport(guardian.ID, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token    string          `json:"token"`
	Guardian domain.Guardian `json:"guardian"`
}

type wardRequest struct {
	Name         string `json:"name"`
	BirthDate    string `json:"birthDate"`
	Age          int    `json:"age"`
	Gender       string `json:"gender"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
	Diagnosis    string `json:"diagnosis"`
}

func (r wardRequest) toWard() domain.Ward {
	return domain.Ward{
		Name:         r.Name,
		BirthDate:    r.BirthDate,
		Age:          r.Age,
		Gender:       r.Gender,
		Phone:        r.Phone,
		Relationship: r.Relationship,
		Diagnosis:    r.Diagnosis,
	}
}

type diagnosisRequest struct {
	Diagnosis string `json:"diagnosis"`
}

type uploadRejectedResponse struct {
	Error     string                `json:"error"`
	Recording domain.AudioRecording `json:"recording"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

// writeAppError maps application errors to HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrWardNotFound),
		errors.Is(err, app.ErrRecordingNotFound),
		errors.Is(err, app.ErrReportNotFound),
		errors.Is(err, app.ErrReportNotReady):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrEmailAlreadyExists),
		errors.Is(err, app.ErrAlreadyProcessed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrProcessingSaturated):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, app.ErrEmailAndPasswordRequired),
		errors.Is(err, app.ErrWardNameRequired),
		errors.Is(err, app.ErrAudioFileRequired),
		errors.Is(err, app.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
