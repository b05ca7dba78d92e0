package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/metrics"
	"github.com/siherrmann/facter/model"
)

// JobService is the processing surface the HTTP server exposes. Implemented
// by the facter facade.
type JobService interface {
	SubmitArticle(payload *model.ArticlePayload) (*model.Job, error)
	Job(rid uuid.UUID) (*model.Job, error)
	CancelJob(rid uuid.UUID) (*model.Job, error)
	Status() (*metrics.Snapshot, error)
}

// Server is the HTTP ingestion surface: article submission, job status,
// cancellation and the service status snapshot.
type Server struct {
	service    JobService
	logger     *slog.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(config *model.ServerConfig, service JobService, logger *slog.Logger) (*Server, error) {
	if config == nil {
		return nil, helper.NewError("server validation", fmt.Errorf("server config is required"))
	}
	if service == nil {
		return nil, helper.NewError("server validation", fmt.Errorf("job service is required"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	server := &Server{
		service: service,
		logger:  logger,
		router:  router,
		httpServer: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	router.Post("/jobs", server.handleSubmit)
	router.Get("/jobs/{rid}", server.handleJob)
	router.Post("/jobs/{rid}/cancel", server.handleCancel)
	router.Get("/status", server.handleStatus)

	return server, nil
}

// Router returns the registered routes for serving and testing.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.httpServer.Addr)

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return helper.NewError("listen and serve", err)
	}

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		return helper.NewError("shutdown", err)
	}

	return nil
}

// jobView is the external job representation. The raw article content stays
// internal, only the submission metadata is echoed back.
type jobView struct {
	RID        uuid.UUID       `json:"rid"`
	Title      string          `json:"title"`
	Status     model.JobStatus `json:"status"`
	Phase      int             `json:"phase"`
	RetryCount int             `json:"retry_count"`
	LastError  string          `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func newJobView(job *model.Job) jobView {
	return jobView{
		RID:        job.RID,
		Title:      job.Payload.Title,
		Status:     job.Status,
		Phase:      job.Phase,
		RetryCount: job.RetryCount,
		LastError:  job.LastError,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload model.ArticlePayload
	err := json.NewDecoder(r.Body).Decode(&payload)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if payload.Title == "" || payload.Content == "" {
		http.Error(w, "title and content are required", http.StatusBadRequest)
		return
	}
	if payload.ReferenceDate.IsZero() {
		payload.ReferenceDate = payload.PublicationDate
	}
	if payload.ReferenceDate.IsZero() {
		http.Error(w, "publication_date or reference_date is required", http.StatusBadRequest)
		return
	}

	job, err := s.service.SubmitArticle(&payload)
	if err != nil {
		s.logger.Error("Failed to submit article", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Resubmitting an already processed article returns the completed job
	// instead of creating a new one.
	status := http.StatusAccepted
	if job.Status == model.JobStatusCompleted {
		status = http.StatusOK
	}

	s.writeJSON(w, status, newJobView(job))
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	rid, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		http.Error(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, err := s.service.Job(rid)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	} else if err != nil {
		s.logger.Error("Failed to load job", "rid", rid, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, newJobView(job))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	rid, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		http.Error(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, err := s.service.CancelJob(rid)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	} else if errors.Is(err, model.ErrInvalidTransition) || errors.Is(err, model.ErrVersionConflict) {
		http.Error(w, "Job is not cancellable", http.StatusConflict)
		return
	} else if err != nil {
		s.logger.Error("Failed to cancel job", "rid", rid, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, newJobView(job))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.service.Status()
	if err != nil {
		s.logger.Error("Failed to build status snapshot", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}
