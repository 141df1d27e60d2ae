// Package bridge exposes the preloader's operations to the
// browser-extension popup and background workers as a local HTTP JSON
// API, and runs the refresh daemon against the storage service.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"pacs-preloader/lib/dompage"
	"pacs-preloader/lib/preloadlog"
	"pacs-preloader/lib/scrapers/pacs"
	"pacs-preloader/lib/storeclient"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("services/bridge")

// PacsDialer builds a detail-endpoint client for a probed session.
// Indirection keeps the service testable against fixtures.
type PacsDialer func(session *pacs.Session) (*pacs.Client, error)

type ServiceOptions struct {
	Page    dompage.Page
	Store   *storeclient.Client
	Journal preloadlog.Store
	Dial    PacsDialer
	// Defaults applied to every search. Request-level filters override.
	Filters pacs.FilterConfig
	Search  pacs.SearchOptions
}

type Service struct {
	page    dompage.Page
	store   *storeclient.Client
	journal preloadlog.Store
	dial    PacsDialer
	filters pacs.FilterConfig
	search  pacs.SearchOptions

	mu         sync.Mutex
	preloading bool
	session    *pacs.Session
}

func NewService(opts ServiceOptions) *Service {
	return &Service{
		page:    opts.Page,
		store:   opts.Store,
		journal: opts.Journal,
		dial:    opts.Dial,
		filters: opts.Filters,
		search:  opts.Search,
	}
}

// Router serves the upstream message contract. CORS is wide open on
// purpose: the caller is a browser-extension origin.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Post("/api/search", s.handleSearch)
	r.Post("/api/preload", s.handlePreload)
	r.Get("/api/session", s.handleSessionProbe)
	r.Post("/api/diagnostic", s.handleDiagnostic)

	return r
}

// Every response carries either its payload or an error field; handlers
// never panic an error across the HTTP boundary.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type searchRequest struct {
	PatientName string   `json:"patient_name"`
	PatientDOB  string   `json:"patient_dob"`
	Regions     []string `json:"regions"`
	Modalities  []string `json:"modalities"`
}

type searchResponse struct {
	Studies      []pacs.StudyRecord `json:"studies"`
	PatientNames []string           `json:"patient_names"`
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleSearch")
	defer span.End()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.runSearch(ctx, req.PatientName, req.PatientDOB, pacs.FilterConfig{
		Regions:        pick(req.Regions, s.filters.Regions),
		Modalities:     pick(req.Modalities, s.filters.Modalities),
		StrictModality: s.filters.StrictModality,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Studies:      result.Studies,
		PatientNames: result.PatientNames,
	})
}

func (s *Service) runSearch(ctx context.Context, name, dob string, filters pacs.FilterConfig) (*pacs.SearchResult, error) {
	doc, err := dompage.Locate(ctx, s.page, pacs.SearchInputName)
	if err != nil {
		return nil, err
	}

	opts := s.search
	opts.DOB = dob
	result, err := pacs.Search(ctx, doc, name, opts)
	if err != nil {
		return nil, err
	}

	result.Studies = pacs.FilterStudies(result.Studies, filters)
	return result, nil
}

func pick(request, fallback []string) []string {
	if len(request) > 0 {
		return request
	}
	return fallback
}

type preloadRequest struct {
	StudyUID         string   `json:"study_uid"`
	StudyDescription string   `json:"study_description"`
	StudyDate        string   `json:"study_date"`
	SeriesUIDs       []string `json:"series_uids"`
	PatientName      string   `json:"patient_name"`
	PatientDOB       string   `json:"patient_dob"`
	ClinicDate       string   `json:"clinic_date"`
}

type preloadResponse struct {
	Uploaded int    `json:"uploaded"`
	Date     string `json:"date"`
}

func (s *Service) handlePreload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handlePreload")
	defer span.End()

	var req preloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// One preload at a time: a second initiation is rejected outright,
	// not queued behind the first.
	if !s.beginPreload() {
		writeError(w, http.StatusConflict, ErrPreloadInFlight)
		return
	}
	defer s.endPreload()

	series := make([]pacs.SeriesRecord, len(req.SeriesUIDs))
	for i, uid := range req.SeriesUIDs {
		series[i] = pacs.SeriesRecord{UID: uid}
	}

	result, err := s.runPreload(ctx, pacs.PreloadRequest{
		StudyUID:         req.StudyUID,
		StudyDescription: req.StudyDescription,
		StudyDate:        req.StudyDate,
		Series:           series,
		PatientName:      req.PatientName,
		PatientDOB:       req.PatientDOB,
		ClinicDate:       req.ClinicDate,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, preloadResponse{
		Uploaded: result.Uploaded,
		Date:     result.Date,
	})
}

func (s *Service) runPreload(ctx context.Context, req pacs.PreloadRequest) (pacs.PreloadResult, error) {
	session, err := s.currentSession(ctx)
	if err != nil {
		return pacs.PreloadResult{}, err
	}
	client, err := s.dial(session)
	if err != nil {
		return pacs.PreloadResult{}, err
	}

	if err := s.store.RegisterPatient(ctx, req.PatientName, req.PatientDOB, req.ClinicDate); err != nil {
		// The patient entry is cosmetic; images still land without it.
		slog.WarnContext(ctx, "failed to register patient", "err", err)
	}

	result, err := client.PreloadStudy(ctx, s.store, req)
	if err != nil {
		return result, err
	}

	err = s.journal.Record(ctx, preloadlog.Entry{
		PatientKey: patientKey(req.PatientName, req.PatientDOB),
		StudyUID:   req.StudyUID,
		ImageCount: result.Uploaded,
		StudyDate:  result.Date,
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to journal preload", "err", err)
	}
	return result, nil
}

func (s *Service) beginPreload() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preloading {
		return false
	}
	s.preloading = true
	return true
}

func (s *Service) endPreload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preloading = false
}

// currentSession probes the page and reuses the cached session while the
// page still carries the same credentials; the learned routing host
// lives on the cached session. A page reload issues a new token, so the
// probe coming back different replaces the cache and the routing host
// dies with the old session.
func (s *Service) currentSession(ctx context.Context) (*pacs.Session, error) {
	doc, err := dompage.Locate(ctx, s.page, pacs.SearchInputName)
	if err != nil {
		return nil, err
	}
	probed, ok, err := pacs.ProbeSession(ctx, doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && s.session.UserID == probed.UserID && s.session.Token == probed.Token {
		return s.session, nil
	}
	s.session = probed
	return probed, nil
}

type sessionResponse struct {
	Present bool   `json:"present"`
	UserID  string `json:"user_id,omitempty"`
}

func (s *Service) handleSessionProbe(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleSessionProbe")
	defer span.End()

	doc, err := dompage.Locate(ctx, s.page, pacs.SearchInputName)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	session, ok, err := pacs.ProbeSession(ctx, doc)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, sessionResponse{Present: false})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Present: true, UserID: session.UserID})
}

func (s *Service) handleDiagnostic(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleDiagnostic")
	defer span.End()

	entries, err := s.journal.Recent(ctx, 50)
	if err != nil {
		slog.WarnContext(ctx, "failed to read journal for diagnostic dump", "err", err)
	}
	slog.InfoContext(ctx, "diagnostic dump requested",
		"journal_entries", len(entries),
		"preloading", s.isPreloading(),
		"time", time.Now().Format(time.RFC3339),
	)

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Service) isPreloading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preloading
}
