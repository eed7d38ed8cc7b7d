package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	stdsync "sync"
	"time"

	"gavel/internal/api"
	"gavel/internal/config"
	"gavel/internal/dedup"
	"gavel/internal/hearing"
	"gavel/internal/logging"
	"gavel/internal/pipeline"
	"gavel/internal/store"
	gsync "gavel/internal/sync"
)

// apiServer is the HTTP status and control surface. It binds the
// configured address at start and serves until the daemon stops.
type apiServer struct {
	cfg *config.Config
	d   *Daemon
	log *slog.Logger

	mu       stdsync.Mutex
	server   *http.Server
	listener net.Listener
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	return &apiServer{
		cfg: cfg,
		d:   d,
		log: logging.NewComponentLogger(logger, "api"),
	}
}

func (s *apiServer) start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("api server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Paths.APIBind)
	if err != nil {
		return fmt.Errorf("bind api address %s: %w", s.cfg.Paths.APIBind, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/hearings", s.handleHearings)
	mux.HandleFunc("/api/hearings/", s.handleHearingSubtree)
	mux.HandleFunc("/api/pending-merges", s.handlePendingMerges)
	mux.HandleFunc("/api/pending-merges/", s.handleResolve)
	mux.HandleFunc("/api/sync/", s.handleSyncTrigger)

	s.listener = listener
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	server := s.server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server terminated", logging.Error(err))
		}
	}()

	s.log.Info("api listening", logging.String("addr", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		s.log.Warn("api shutdown", logging.Error(err))
	}
}

// addr reports the bound address, empty when the server is down.
func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status, err := s.d.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		DBPath:        status.DBPath,
		LockFilePath:  status.LockFilePath,
		StatusCounts:  status.StatusCounts,
		PendingMerges: status.PendingMerges,
	}
	for _, src := range status.Sources {
		resp.Sources = append(resp.Sources, api.SourceStatus{
			Name:    src.Name,
			Kind:    src.Kind,
			Breaker: src.Breaker,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleHearings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filter := store.HearingFilter{
		Committee: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("committee"))),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := hearing.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		filter.Status = status
	}

	hearings, err := s.d.store.ListHearings(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := api.HearingListResponse{Hearings: make([]api.HearingSummary, 0, len(hearings))}
	for _, h := range hearings {
		resp.Hearings = append(resp.Hearings, api.FromHearing(h))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHearingSubtree dispatches /api/hearings/{id} and its nested
// progress, capture and cancel endpoints.
func (s *apiServer) handleHearingSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/hearings/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "hearing id required")
		return
	}

	switch action {
	case "":
		s.handleHearingDetail(w, r, id)
	case "progress":
		s.handleProgress(w, r, id)
	case "capture":
		s.handleCapture(w, r, id)
	case "cancel":
		s.handleCancel(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *apiServer) handleHearingDetail(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	h, err := s.d.store.GetHearing(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("hearing %s not found", id))
		return
	}

	detail := api.HearingDetail{Hearing: api.FromHearing(h)}

	audit, err := s.d.store.AuditForHearing(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, entry := range audit {
		detail.Audit = append(detail.Audit, api.FromAudit(entry))
	}

	runs, err := s.d.store.RunsForHearing(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, run := range runs {
		detail.Runs = append(detail.Runs, api.FromRun(run))
	}

	writeJSON(w, http.StatusOK, detail)
}

func (s *apiServer) handleProgress(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	controller := s.d.controller
	if controller == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not running")
		return
	}

	report, err := controller.Progress(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	resp := api.ProgressResponse{
		HearingID:      report.HearingID,
		Status:         string(report.Status),
		Stage:          string(report.Stage),
		StagePercent:   report.StagePercent,
		OverallPercent: report.OverallPercent,
		FailedStage:    report.FailedStage,
		ErrorMessage:   report.ErrorMessage,
	}
	if report.Units != nil {
		resp.Units = &api.UnitProgress{
			Total:      report.Units.Total,
			Processing: report.Units.Processing,
			Completed:  report.Units.Completed,
			Failed:     report.Units.Failed,
			Percent:    report.Units.Percent,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleCapture(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	controller := s.d.controller
	if controller == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not running")
		return
	}

	run, err := controller.StartCapture(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, api.CaptureResponse{RunID: run.ID})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	controller := s.d.controller
	if controller == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not running")
		return
	}

	if err := controller.RequestCancel(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handlePendingMerges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	candidates, err := s.d.store.PendingCandidates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := api.PendingMergeListResponse{Candidates: make([]api.PendingMerge, 0, len(candidates))}
	for _, candidate := range candidates {
		resp.Candidates = append(resp.Candidates, api.FromCandidate(candidate))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/pending-merges/")
	idPart, action, _ := strings.Cut(rest, "/")
	if action != "resolve" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid candidate id %q", idPart))
		return
	}

	var req api.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var resolution hearing.PendingResolution
	switch req.Action {
	case "merge":
		resolution = hearing.ResolutionMerged
	case "keep_separate":
		resolution = hearing.ResolutionKeptSeparate
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
		return
	}

	outcome, err := s.d.engine.ResolveCandidate(r.Context(), id, resolution)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	resp := api.ResolveResponse{Decision: string(outcome.Decision)}
	if outcome.Hearing != nil {
		resp.HearingID = outcome.Hearing.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	source := strings.TrimPrefix(r.URL.Path, "/api/sync/")
	if source == "" || strings.Contains(source, "/") {
		writeError(w, http.StatusNotFound, "source name required")
		return
	}

	if err := s.d.scheduler.TriggerNow(source); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, api.SyncTriggerResponse{Source: source, Triggered: true})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrHearingNotFound),
		errors.Is(err, dedup.ErrCandidateNotFound),
		errors.Is(err, gsync.ErrUnknownSource):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, gsync.ErrSchedulerStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message})
}
