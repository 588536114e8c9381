// Package server exposes the triage pipeline as a webhook that failed CI
// pipelines call.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/api/schemas"
	"github.com/xkilldash9x/infra-healer/internal/config"
	"github.com/xkilldash9x/infra-healer/internal/healer"
)

// Runner performs one triage run.
type Runner interface {
	Run(ctx context.Context, report schemas.FailureReport) (*healer.Outcome, error)
}

// Server is the webhook listener.
type Server struct {
	logger     *zap.Logger
	cfg        config.ServerConfig
	runner     Runner
	now        func() time.Time
	httpServer *http.Server
}

// NewServer creates a webhook server around runner.
func NewServer(logger *zap.Logger, cfg config.ServerConfig, runner Runner) *Server {
	return &Server{
		logger: logger.Named("server"),
		cfg:    cfg,
		runner: runner,
		now:    time.Now,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/healthz", s.handleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/failures", s.handleFailure)
	})
	return r
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Webhook server starting", zap.String("address", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.logger.Error("HTTP server ListenAndServe error", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down webhook server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}
	<-errCh
	s.logger.Info("Webhook server stopped.")
	return nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.respond(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleFailure(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))

	body := r.Body
	if s.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		s.respond(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON payload"})
		return
	}

	var payload failurePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Warn("Invalid JSON in request.", zap.Error(err))
		s.respond(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON payload"})
		return
	}

	report := payload.report(s.now())
	if report.BuildID <= 0 || report.ProjectName == "" {
		s.respond(w, http.StatusBadRequest, errorResponse{Error: "Missing required fields: buildId or projectName"})
		return
	}

	logger.Info("Pipeline failure webhook received",
		zap.Int("build_id", report.BuildID),
		zap.String("project", report.ProjectName),
		zap.Int("pr_id", report.PRID))

	outcome, err := s.runner.Run(r.Context(), report)
	if err != nil {
		status := http.StatusInternalServerError
		if schemas.IsKind(err, schemas.KindConfiguration) {
			status = http.StatusBadRequest
		}
		logger.Error("Error processing failure.", zap.Error(err))
		s.respond(w, status, errorResponse{Error: err.Error()})
		return
	}

	s.respond(w, http.StatusAccepted, failureResponse{
		Status:         "success",
		RunID:          outcome.RunID,
		FailureContext: outcome.Report,
		RCA: rcaSummary{
			Category:    outcome.Classification.Category,
			Confidence:  outcome.Classification.Confidence,
			Explanation: outcome.Classification.Explanation,
		},
		ActionTaken: outcome.Action.Kind,
		Details:     outcome.Action.Details,
		PRURL:       outcome.Action.PRURL,
		WorkItemID:  outcome.Action.WorkItemID,
		Degraded:    outcome.Degraded,
	})
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
