package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"hackathon-ai-jury/internal/usecase"
)

// Server is the operator-facing HTTP surface: job intake, status polls,
// live event streams and session control. Everything under /api/v1
// except session minting requires a valid operator token.
type Server struct {
	analysisUC usecase.AnalysisUseCase
	juryUC     usecase.EliminationUseCase
	auth       *AuthManager
	log        *zerolog.Logger

	srv *http.Server
}

func NewServer(
	analysisUC usecase.AnalysisUseCase,
	juryUC usecase.EliminationUseCase,
	auth *AuthManager,
	port int,
	log *zerolog.Logger,
) *Server {
	s := &Server{
		analysisUC: analysisUC,
		juryUC:     juryUC,
		auth:       auth,
		log:        log,
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session", s.handleMintSession)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", s.handleEnqueueJob)
				r.Get("/{id}", s.handleGetJob)
				r.Get("/{id}/status", s.handleGetJobStatus)
				r.Get("/{id}/events", s.handleJobEvents)
			})

			r.Post("/reclaimer/sweep", s.handleSweep)

			r.Route("/jury/sessions", func(r chi.Router) {
				r.Post("/", s.handleStartSession)
				r.Get("/{id}", s.handleGetSession)
				r.Get("/{id}/outcomes", s.handleSessionOutcomes)
				r.Get("/{id}/survivors", s.handleSessionSurvivors)
				r.Get("/{id}/events", s.handleSessionEvents)
				r.Post("/{id}/reset", s.handleResetSession)
			})
		})
	})

	return r
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("ops server listening")
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
