package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagespace/internal/domain"
	"github.com/kailas-cloud/imagespace/internal/domain/session"
	"github.com/kailas-cloud/imagespace/internal/domain/urlstate"
	"github.com/kailas-cloud/imagespace/internal/domain/viewmode"
	"github.com/kailas-cloud/imagespace/internal/metrics"
	"github.com/kailas-cloud/imagespace/internal/repository/history"
	"github.com/kailas-cloud/imagespace/internal/transport/smqtk"
	healthuc "github.com/kailas-cloud/imagespace/internal/usecase/health"
	"github.com/kailas-cloud/imagespace/internal/usecase/orchestrator"
	"github.com/kailas-cloud/imagespace/internal/usecase/status"
	"github.com/kailas-cloud/imagespace/internal/usecase/view"
)

// Server serves the search API.
type Server struct {
	orch          *orchestrator.Orchestrator
	host          *view.Host
	history       *history.History
	status        *status.Indicator
	iqr           *smqtk.Client
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. iqr may be nil when no IQR service
// is configured.
func NewServer(
	orch *orchestrator.Orchestrator,
	host *view.Host,
	hist *history.History,
	indicator *status.Indicator,
	iqr *smqtk.Client,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	return &Server{
		orch:          orch,
		host:          host,
		history:       hist,
		status:        indicator,
		iqr:           iqr,
		health:        health,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/search/{target}", s.SearchStored)
	r.Get("/search/{target}/params/{params}", s.SearchStored)
	r.Get("/search/{target}/{mode}", s.SearchImage)
	r.Get("/search/{target}/{mode}/params/{params}", s.SearchImage)

	r.Get("/results", s.GetResults)
	r.Post("/results/page", s.GoToPage)
	r.Put("/results/classifications", s.ChangeClassifications)
	r.Put("/preferences/view-mode", s.SetViewMode)
	r.Get("/state", s.GetState)
	r.Get("/modes", s.ListModes)

	r.Post("/iqr/session", s.CreateIQRSession)
	r.Put("/iqr/refine", s.RefineIQRSession)

	r.Get("/health", s.Health)
	r.Handle("/metrics", metrics.Handler())
}

// navigationParams are the URL-state overrides a navigation may carry.
type navigationParams struct {
	Page            *int
	Classifications *[]string
}

// SearchStored handles GET /search/{query}[/params/{params}].
func (s *Server) SearchStored(w http.ResponseWriter, r *http.Request) {
	token, err := pathParam(r, "target", "query", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	blob, err := pathParam(r, "params", "params", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	nav, err := bindNavigationParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	sess, err := s.orch.SearchByStoredQuery(r.Context(), token, blob, session.Token(r.Context()))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	s.respondWithResults(w, r, sess, nav)
}

// SearchImage handles GET /search/{url}/{mode}[/params/{params}]. The
// params blob is accepted for route compatibility; image searches ignore it.
func (s *Server) SearchImage(w http.ResponseWriter, r *http.Request) {
	rawURL, err := pathParam(r, "target", "url", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	mode, err := pathParam(r, "mode", "mode", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	nav, err := bindNavigationParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	sess, err := s.orch.SearchByImage(r.Context(), rawURL, mode, session.Token(r.Context()))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	s.respondWithResults(w, r, sess, nav)
}

// respondWithResults waits for the first page, applies any URL-state
// overrides and writes the rendered snapshot.
func (s *Server) respondWithResults(
	w http.ResponseWriter,
	r *http.Request,
	sess *orchestrator.Session,
	nav navigationParams,
) {
	ctx := r.Context()
	snap, err := s.host.Await(ctx, sess)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	if nav.Classifications != nil {
		keys := urlstate.OrderedSet(*nav.Classifications)
		if !slices.Equal(keys, snap.Classifications) {
			if snap, err = s.host.ChangeClassifications(ctx, sess, keys); err != nil {
				s.handleDomainError(w, err)
				return
			}
		}
	}
	if nav.Page != nil && *nav.Page > 1 {
		if snap, err = s.host.GoToPage(ctx, sess, *nav.Page); err != nil {
			s.handleDomainError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, snap)
}

// GetResults handles GET /results.
func (s *Server) GetResults(w http.ResponseWriter, r *http.Request) {
	snap, err := s.host.Snapshot(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PageRequest is the body of POST /results/page.
type PageRequest struct {
	Page int `json:"page"`
}

// GoToPage handles POST /results/page.
func (s *Server) GoToPage(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	snap, err := s.host.GoToPage(r.Context(), nil, req.Page)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ClassificationsRequest is the body of PUT /results/classifications.
type ClassificationsRequest struct {
	Keys []string `json:"keys"`
}

// ChangeClassifications handles PUT /results/classifications.
func (s *Server) ChangeClassifications(w http.ResponseWriter, r *http.Request) {
	var req ClassificationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	snap, err := s.host.ChangeClassifications(r.Context(), nil, req.Keys)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ViewModeRequest is the body of PUT /preferences/view-mode.
type ViewModeRequest struct {
	Mode string `json:"mode"`
}

// SetViewMode handles PUT /preferences/view-mode.
func (s *Server) SetViewMode(w http.ResponseWriter, r *http.Request) {
	var req ViewModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	mode, err := viewmode.Parse(req.Mode)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if err := s.host.SetViewMode(r.Context(), mode); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ViewModeRequest{Mode: string(mode)})
}

// StateResponse is the navigable state of the search view.
type StateResponse struct {
	Current  string          `json:"current,omitempty"`
	History  []history.Entry `json:"history"`
	Pushes   int             `json:"pushes"`
	Replaces int             `json:"replaces"`
	Status   status.Snapshot `json:"status"`
}

// GetState handles GET /state.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	resp := StateResponse{
		History: s.history.Entries(),
		Status:  s.status.Current(),
	}
	if cur, ok := s.history.Current(); ok {
		resp.Current = cur.URL()
	}
	resp.Pushes, resp.Replaces = s.history.Counts()
	writeJSON(w, http.StatusOK, resp)
}

// ListModes handles GET /modes.
func (s *Server) ListModes(w http.ResponseWriter, r *http.Request) {
	names := s.orch.Modes().Names()
	out := make([]map[string]string, 0, len(names))
	for _, name := range names {
		m, err := s.orch.Modes().Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, map[string]string{"name": m.Name, "nice_name": m.DisplayName()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"modes": out})
}

// CreateIQRSession handles POST /iqr/session.
func (s *Server) CreateIQRSession(w http.ResponseWriter, r *http.Request) {
	if s.iqr == nil {
		writeError(w, http.StatusNotImplemented, CodeNotConfigured, "iqr service is not configured")
		return
	}
	sid, err := s.iqr.CreateSession(r.Context())
	if err != nil {
		s.logger.Warn("IQR session failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, CodeSearchFailed, "iqr session failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"sid": sid})
}

// RefineIQRSession handles PUT /iqr/refine.
func (s *Server) RefineIQRSession(w http.ResponseWriter, r *http.Request) {
	if s.iqr == nil {
		writeError(w, http.StatusNotImplemented, CodeNotConfigured, "iqr service is not configured")
		return
	}
	var req smqtk.Refinement
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.SID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "sid is required")
		return
	}
	out, err := s.iqr.Refine(r.Context(), req)
	if err != nil {
		s.logger.Warn("IQR refine failed", zap.String("sid", req.SID), zap.Error(err))
		writeError(w, http.StatusBadGateway, CodeSearchFailed, "iqr refine failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	code := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

// pathParam binds a chi path parameter. chi matches on the escaped path, so
// image URLs arrive percent-encoded and are unescaped here.
func pathParam(r *http.Request, key, name string, required bool) (string, error) {
	raw := chi.URLParam(r, key)
	if raw == "" && !required {
		return "", nil
	}
	var out string
	err := runtime.BindStyledParameterWithOptions("simple", name, raw, &out, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      required,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}
	return out, nil
}

func bindNavigationParams(r *http.Request) (navigationParams, error) {
	var p navigationParams
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "page", q, &p.Page); err != nil {
		return navigationParams{}, fmt.Errorf("invalid page: %w", err)
	}
	if err := runtime.BindQueryParameter("form", false, false, "classifications", q, &p.Classifications); err != nil {
		return navigationParams{}, fmt.Errorf("invalid classifications: %w", err)
	}
	if p.Page != nil && *p.Page < 1 {
		return navigationParams{}, fmt.Errorf("invalid page: %d", *p.Page)
	}
	return p, nil
}
