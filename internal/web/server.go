// Package web serves the three-step decoy form. Every handler renders
// normally regardless of tracking outcome: classification and persistence
// failures degrade to an untracked or memory-only session, never to an
// error page in front of the visitor.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/basket/decoy/internal/audit"
	"github.com/basket/decoy/internal/config"
	"github.com/basket/decoy/internal/otel"
	"github.com/basket/decoy/internal/tracking"
)

//go:embed templates/*.html
var templateFS embed.FS

// Config holds the dependencies for the form server.
type Config struct {
	Tracker    *tracking.Tracker
	Classifier *tracking.Classifier
	Logger     *slog.Logger

	AdminToken string
	RateLimit  config.RateLimitConfig

	// ConfigFingerprint is the hash of the active config exposed on
	// /healthz so operators can confirm which config a running server
	// picked up.
	ConfigFingerprint string

	Tracer  trace.Tracer
	Metrics *otel.Metrics
}

// Server is the decoy form HTTP server.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	sessions *sessionStore
	limiter  *RateLimitMiddleware
	admin    *AdminAuth
	tmpl     *template.Template

	startedAt      time.Time
	visitsTracked  atomic.Int64
	visitsRejected atomic.Int64
	upsertErrors   atomic.Int64
}

func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		sessions:  newSessionStore(),
		limiter:   NewRateLimitMiddleware(cfg.RateLimit),
		admin:     NewAdminAuth(cfg.AdminToken),
		tmpl:      tmpl,
		startedAt: time.Now(),
	}
	s.limiter.OnReject(func() {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RateLimitRejects.Add(context.Background(), 1)
		}
	})
	return s, nil
}

// StartEviction launches the background eviction loops for rate-limit
// buckets and idle session views.
func (s *Server) StartEviction(ctx context.Context) {
	s.limiter.StartEviction(ctx, 5*time.Minute, 30*time.Minute)
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sessions.EvictStale(2 * time.Hour)
			}
		}
	}()
}

// Handler returns the full middleware-wrapped route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /step/1", s.handleStep1)
	mux.HandleFunc("GET /step/2", s.handleStep2Page)
	mux.HandleFunc("POST /step/2", s.handleStep2)
	mux.HandleFunc("GET /step/3", s.handleStep3Page)
	mux.HandleFunc("POST /step/3", s.handleStep3)
	mux.HandleFunc("GET /done", s.handleDone)
	mux.HandleFunc("GET /download", s.handleDownload)
	mux.HandleFunc("POST /restart", s.handleRestart)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.Handle("GET /metrics", s.admin.Wrap(http.HandlerFunc(s.handleMetrics)))
	mux.Handle("POST /admin/wipe", s.admin.Wrap(http.HandlerFunc(s.handleWipe)))

	return s.limiter.Wrap(s.logRequests(mux))
}

// logRequests emits one structured line per request and records the
// duration histogram.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		elapsed := time.Since(start)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RequestDuration.Record(r.Context(), elapsed.Seconds())
		}
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// visitFromRequest builds the classifier input, substituting the sentinel
// for a genuinely absent user-agent.
func visitFromRequest(r *http.Request) tracking.Visit {
	ua := strings.TrimSpace(r.UserAgent())
	if ua == "" {
		ua = tracking.MissingHeaderSentinel
	}
	return tracking.Visit{
		UserAgent: ua,
		Referrer:  r.Referer(),
		Host:      r.Host,
	}
}

// pageData is the template payload shared by all form pages.
type pageData struct {
	Title       string
	Step        int
	ProgressPct int
	Error       string

	QRLocations     []string
	AgeRanges       []string
	Genders         []string
	Provinces       []string
	EducationLevels []string

	Collected []collectedField
}

type collectedField struct {
	Label string
	Value string
}

func (s *Server) render(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("render template", "template", name, "error", err)
	}
}

func step1Data(errMsg string) pageData {
	return pageData{
		Title:       "Promozione Speciale",
		Step:        1,
		ProgressPct: 33,
		Error:       errMsg,
		QRLocations: tracking.QRLocationOptions(),
	}
}

func step2Data(errMsg string) pageData {
	return pageData{
		Title:           "Informazioni Personali",
		Step:            2,
		ProgressPct:     66,
		Error:           errMsg,
		AgeRanges:       tracking.AgeRanges(),
		Genders:         tracking.GenderOptions(),
		Provinces:       tracking.Provinces(),
		EducationLevels: tracking.EducationLevels(),
	}
}

func step3Data(errMsg string) pageData {
	return pageData{
		Title:       "Verifica Vincita",
		Step:        3,
		ProgressPct: 100,
		Error:       errMsg,
	}
}

// handleIndex serves the welcome step and is the only tracking point the
// classifier gates: bots see the same page but leave no row behind.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sid, _ := sessionID(w, r)
	visit := visitFromRequest(r)

	if s.cfg.Classifier.ShouldTrack(sid, visit) {
		s.visitsTracked.Add(1)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.VisitsTracked.Add(r.Context(), 1)
		}
		merged := s.sessions.Apply(sid, tracking.SessionRecord{
			SessionID:    sid,
			PageOpenedAt: time.Now(),
			UserAgent:    visit.UserAgent,
			Status:       tracking.StatusPageOpened,
		})
		s.persist(r.Context(), merged)
	} else {
		s.visitsRejected.Add(1)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.VisitsRejected.Add(r.Context(), 1)
		}
		s.logger.Debug("visit not tracked", "session_id", sid, "user_agent", visit.UserAgent)
	}

	s.render(w, "step1", step1Data(""))
}

func (s *Server) handleStep1(w http.ResponseWriter, r *http.Request) {
	sid, _ := sessionID(w, r)
	if err := r.ParseForm(); err != nil {
		s.render(w, "step1", step1Data("Richiesta non valida, riprova."))
		return
	}

	qrLocation := strings.TrimSpace(r.PostFormValue("qr_location"))
	consent := r.PostFormValue("consent") == "yes"

	if !consent {
		s.render(w, "step1", step1Data("Devi accettare il trattamento dati per continuare"))
		return
	}
	if !tracking.ValidOption(tracking.QRLocationOptions(), qrLocation) {
		s.render(w, "step1", step1Data("Indica dove hai trovato il QR code per continuare"))
		return
	}

	merged := s.sessions.Apply(sid, tracking.SessionRecord{
		SessionID:     sid,
		FormStartedAt: time.Now(),
		QRLocation:    qrLocation,
		UserAgent:     visitFromRequest(r).UserAgent,
		Status:        tracking.StatusFormStarted,
	})
	s.persist(r.Context(), merged)

	http.Redirect(w, r, "/step/2", http.StatusSeeOther)
}

// requireStage keeps the steps sequential the way the rendered flow walks
// them: a visitor who deep-links a later step is bounced back to fallback
// until the session view has reached min.
func (s *Server) requireStage(w http.ResponseWriter, r *http.Request, sid string, min tracking.Status, fallback string) bool {
	rec, ok := s.sessions.Get(sid)
	if !ok || !rec.Status.Reached(min) {
		http.Redirect(w, r, fallback, http.StatusSeeOther)
		return false
	}
	return true
}

func (s *Server) handleStep2Page(w http.ResponseWriter, r *http.Request) {
	sid, _ := sessionID(w, r)
	if !s.requireStage(w, r, sid, tracking.StatusFormStarted, "/") {
		return
	}
	s.render(w, "step2", step2Data(""))
}

func (s *Server) handleStep2(w http.ResponseWriter, r *http.Request) {
	sid, _ := sessionID(w, r)
	if !s.requireStage(w, r, sid, tracking.StatusFormStarted, "/") {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.render(w, "step2", step2Data("Richiesta non valida, riprova."))
		return
	}

	ageRange := strings.TrimSpace(r.PostFormValue("age_range"))
	gender := strings.TrimSpace(r.PostFormValue("gender"))
	birthProvince := strings.TrimSpace(r.PostFormValue("birth_province"))
	education := strings.TrimSpace(r.PostFormValue("education"))

	if !tracking.ValidOption(tracking.AgeRanges(), ageRange) ||
		!tracking.ValidOption(tracking.GenderOptions(), gender) ||
		!tracking.ValidOption(tracking.Provinces(), birthProvince) ||
		!tracking.ValidOption(tracking.EducationLevels(), education) {
		s.render(w, "step2", step2Data("Completa tutti i campi per continuare"))
		return
	}

	merged := s.sessions.Apply(sid, tracking.SessionRecord{
		SessionID:     sid,
		Step2At:       time.Now(),
		AgeRange:      ageRange,
		Gender:        gender,
		BirthProvince: birthProvince,
		Education:     education,
		Status:        tracking.StatusStep2Completed,
	})
	s.persist(r.Context(), merged)

	http.Redirect(w, r, "/step/3", http.StatusSeeOther)
}

func (s *Server) handleStep3Page(w http.ResponseWriter, r *http.Request) {
	sid, _ := sessionID(w, r)
	if !s.requireStage(w, r, sid, tracking.StatusStep2Completed, "/step/2") {
		return
	}
	s.render(w, "step3", step3Data(""))
}

// handleStep3 asks for an email address for the demo effect only. The
// address is validated for presence, then discarded: it is never stored,
// never logged, never leaves this handler.
func (s *Server) handleStep3(w http.ResponseWriter, r *http.Request) {
	sid, _ := sessionID(w, r)
	if !s.requireStage(w, r, sid, tracking.StatusStep2Completed, "/step/2") {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.render(w, "step3", step3Data("Richiesta non valida, riprova."))
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	if email == "" {
		s.render(w, "step3", step3Data("Inserisci la tua email per ricevere il buono Amazon"))
		return
	}

	merged := s.sessions.Apply(sid, tracking.SessionRecord{
		SessionID:   sid,
		CompletedAt: time.Now(),
		Status:      tracking.StatusFullyCompleted,
		Completed:   true,
	})
	s.persist(r.Context(), merged)

	http.Redirect(w, r, "/done", http.StatusSeeOther)
}

// persist writes the merged session view to the grid. Failures are logged
// and counted, never surfaced to the visitor: the in-memory view keeps
// the demo flow working through a store outage.
func (s *Server) persist(ctx context.Context, rec tracking.SessionRecord) {
	var span trace.Span
	if s.cfg.Tracer != nil {
		ctx, span = s.cfg.Tracer.Start(ctx, "tracker.upsert",
			trace.WithAttributes(
				otel.AttrSessionID.String(rec.SessionID),
				otel.AttrStep.String(string(rec.Status)),
			))
		defer span.End()
	}

	start := time.Now()
	err := s.cfg.Tracker.Upsert(ctx, rec)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.UpsertDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		s.upsertErrors.Add(1)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.UpsertErrors.Add(ctx, 1)
		}
		s.logger.Error("session upsert failed, continuing with in-memory view",
			"session_id", rec.SessionID,
			"status", string(rec.Status),
			"error", err,
		)
	}
}

func (s *Server) handleDone(w http.ResponseWriter, r *http.Request) {
	sid, fresh := sessionID(w, r)
	data := pageData{Title: "Attenzione!", Step: 3, ProgressPct: 100}
	if !fresh {
		if rec, ok := s.sessions.Get(sid); ok {
			data.Collected = collectedFields(rec)
		}
	}
	s.render(w, "done", data)
}

func collectedFields(rec tracking.SessionRecord) []collectedField {
	ts := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04:05")
	}
	return []collectedField{
		{"ID Sessione", rec.SessionID},
		{"Apertura pagina", ts(rec.PageOpenedAt)},
		{"Inizio questionario", ts(rec.FormStartedAt)},
		{"Dove hai trovato il QR", rec.QRLocation},
		{"Fascia d'età", rec.AgeRange},
		{"Sesso", rec.Gender},
		{"Provincia di nascita", rec.BirthProvince},
		{"Titolo di studio", rec.Education},
		{"Browser", rec.UserAgent},
		{"Completato", fmt.Sprintf("%v", rec.Completed)},
	}
}

// handleDownload returns the visitor's own collected data as JSON, the
// "see what you handed over" artifact of the final page.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sid, fresh := sessionID(w, r)
	if fresh {
		http.Error(w, "nessuna sessione attiva", http.StatusNotFound)
		return
	}
	rec, ok := s.sessions.Get(sid)
	if !ok {
		http.Error(w, "nessuna sessione attiva", http.StatusNotFound)
		return
	}

	payload := map[string]any{
		"session_id":     rec.SessionID,
		"page_opened_at": rec.PageOpenedAt,
		"form_started":   rec.FormStartedAt,
		"step2_at":       rec.Step2At,
		"completed_at":   rec.CompletedAt,
		"qr_location":    rec.QRLocation,
		"age_range":      rec.AgeRange,
		"gender":         rec.Gender,
		"birth_province": rec.BirthProvince,
		"education":      rec.Education,
		"status":         rec.Status,
		"completed":      rec.Completed,
		"user_agent":     rec.UserAgent,
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=decoy_data_%s.json", time.Now().Format("20060102_150405")))
	_ = json.NewEncoder(w).Encode(payload)
}

// handleRestart drops the session view and cookie and sends the visitor
// back to the welcome step. The grid row stays.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		s.sessions.Drop(c.Value)
	}
	clearSession(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	storeOK := true
	if _, err := s.cfg.Tracker.ReadAll(r.Context()); err != nil {
		storeOK = false
	}

	payload := map[string]any{
		"healthy":            storeOK,
		"store_ok":           storeOK,
		"config_fingerprint": s.cfg.ConfigFingerprint,
		"uptime_seconds":     int(time.Since(s.startedAt).Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	if !storeOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	mem := &runtime.MemStats{}
	runtime.ReadMemStats(mem)

	var totalRows int
	if records, err := s.cfg.Tracker.ReadAll(r.Context()); err == nil {
		totalRows = len(records)
	}

	payload := map[string]any{
		"visits_tracked":     s.visitsTracked.Load(),
		"visits_rejected":    s.visitsRejected.Load(),
		"upsert_errors":      s.upsertErrors.Load(),
		"live_sessions":      s.sessions.Count(),
		"stored_sessions":    totalRows,
		"ratelimit_buckets":  s.limiter.BucketCount(),
		"classifier_entries": s.cfg.Classifier.SessionCount(),
		"destructive_events": audit.DestructiveCount(),
		"alloc_bytes":        mem.Alloc,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// handleWipe destroys every stored session row and rewrites the header.
func (s *Server) handleWipe(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Tracker.Reset(r.Context()); err != nil {
		s.logger.Error("admin wipe failed", "error", err)
		http.Error(w, "wipe failed", http.StatusInternalServerError)
		return
	}
	s.logger.Warn("admin wipe executed", "remote", clientIP(r))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"wiped": true})
}
