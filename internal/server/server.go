// Package server exposes the tool gateway's HTTP API. Transport concerns
// only: request decoding, identity headers, and mapping the error taxonomy
// to status codes.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Gokhanagingil/grc-sub011/internal/apperr"
	"github.com/Gokhanagingil/grc-sub011/internal/audit"
	"github.com/Gokhanagingil/grc-sub011/internal/gateway"
	"github.com/Gokhanagingil/grc-sub011/internal/policy"
	"github.com/Gokhanagingil/grc-sub011/internal/provider"
	"github.com/Gokhanagingil/grc-sub011/internal/tools"
)

// Version is stamped at build time.
var Version = "dev"

// Server holds the handler dependencies.
type Server struct {
	providers  *provider.Registry
	policies   *policy.Service
	dispatcher *gateway.Dispatcher
	logger     *zap.Logger
}

// New creates a Server.
func New(providers *provider.Registry, policies *policy.Service, dispatcher *gateway.Dispatcher, logger *zap.Logger) *Server {
	return &Server{
		providers:  providers,
		policies:   policies,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Tenant-ID", "X-Actor-ID", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(identity)

		r.Get("/tools", s.handleToolCatalog)
		r.Post("/tools/run", s.handleRunTool)

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", s.handleListProviders)
			r.Post("/", s.handleCreateProvider)
			r.Route("/{providerID}", func(r chi.Router) {
				r.Get("/", s.handleGetProvider)
				r.Patch("/", s.handleUpdateProvider)
				r.Delete("/", s.handleDeleteProvider)
			})
		})

		r.Route("/policy", func(r chi.Router) {
			r.Put("/", s.handleUpsertPolicy)
			r.Get("/status", s.handleToolStatus)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"version": Version})
}

func (s *Server) handleToolCatalog(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, tools.CatalogEntries())
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	views, err := s.providers.List(r.Context(), tenantID(r.Context()))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if views == nil {
		views = []*provider.Redacted{}
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	var in provider.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := s.providers.Create(r.Context(), tenantID(r.Context()), in)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	view, err := s.providers.Get(r.Context(), tenantID(r.Context()), chi.URLParam(r, "providerID"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	var in provider.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := s.providers.Update(r.Context(), tenantID(r.Context()), chi.URLParam(r, "providerID"), in)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := s.providers.Delete(r.Context(), tenantID(r.Context()), chi.URLParam(r, "providerID")); err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleUpsertPolicy(w http.ResponseWriter, r *http.Request) {
	var in policy.UpsertInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := s.policies.Upsert(r.Context(), tenantID(r.Context()), in, actorID(r.Context()))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleToolStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.policies.Status(r.Context(), tenantID(r.Context()))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

type runToolRequest struct {
	ToolKey string         `json:"toolKey"`
	Input   map[string]any `json:"input"`
	RunID   string         `json:"runId"`
}

func (s *Server) handleRunTool(w http.ResponseWriter, r *http.Request) {
	var in runToolRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.dispatcher.RunTool(r.Context(), tenantID(r.Context()), actorID(r.Context()), gateway.RunRequest{
		ToolKey: in.ToolKey,
		Input:   in.Input,
		RunID:   in.RunID,
	})
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// respondFailure maps the error taxonomy to transport status codes.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  ve.Msg,
			"fields": ve.Fields,
		})
		return
	}
	if errors.Is(err, apperr.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	var denial *gateway.Denial
	if errors.As(err, &denial) {
		status := http.StatusForbidden
		switch denial.Decision {
		case audit.DecisionThrottled:
			status = http.StatusTooManyRequests
		case audit.DecisionError:
			status = http.StatusBadGateway
		}
		respondJSON(w, status, map[string]string{
			"decision":  string(denial.Decision),
			"reason":    denial.Reason,
			"requestId": denial.RequestID,
		})
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
