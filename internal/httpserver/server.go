// Package httpserver exposes the HTTP surface owned by this gateway
// (§6): the three synthesized per-workflow routes plus the auxiliary
// UI-facing routes, all backed by a single chi router.
package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/daz23456/workflow-sub005/pkg/endpoints"
	"github.com/daz23456/workflow-sub005/pkg/eventhub"
)

// Deps bundles every collaborator the handlers dispatch to.
type Deps struct {
	Registry  *endpoints.Registry
	Workflows WorkflowService
	Execs     ExecutionService
	Hub       *eventhub.Hub
	Log       *logrus.Logger
}

// New builds the chi router for the full HTTP surface (§6), with
// go-chi/cors applying allowOrigins for browser UI clients.
func New(deps Deps, allowOrigins []string) http.Handler {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:           300,
	}))

	h := &handlers{deps: deps}

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/workflows", h.listWorkflows)
		api.Get("/workflows/{workflow}", h.getWorkflow)
		api.Post("/workflows/{workflow}/execute", h.execute)
		api.Post("/workflows/{workflow}/test", h.test)
		api.Get("/workflows/{workflow}/executions", h.listExecutions)
		api.Get("/workflows/{workflow}/versions", h.listVersions)
		api.Get("/executions/{id}", h.getExecution)
		api.Get("/executions/{id}/trace", h.getExecutionTrace)
		api.Get("/tasks", h.listTasks)
		api.Get("/tasks/{taskRef}/used-by", h.blastRadiusUsedBy)
		api.Get("/workflows/{workflow}/contains", h.blastRadiusContains)
	})

	r.Get("/ws/events", h.events)

	return r
}

// requestLogger is a thin chi middleware logging method/path/status/
// duration at info level, in the teacher's structured-field style.
func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"duration": time.Since(start).String(),
			}).Info("http request")
		})
	}
}
