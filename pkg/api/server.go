// Package api exposes the schema registry and the document store over HTTP.
// Every response uses the {success, message, data} envelope.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/ginthi/docregistry/pkg/audit"
	"github.com/ginthi/docregistry/pkg/authz"
	"github.com/ginthi/docregistry/pkg/document"
	"github.com/ginthi/docregistry/pkg/jobs"
	"github.com/ginthi/docregistry/pkg/schema"
	"github.com/ginthi/docregistry/pkg/tenancy"
)

// BasePath is the prefix of every API route.
const BasePath = "/api/v1"

// Server wires the registry, the document store and their supporting
// stores into one chi router.
type Server struct {
	db          *gorm.DB
	registry    *schema.Registry
	documents   *document.Service
	authorizer  authz.Authorizer
	verifier    *authz.TokenVerifier
	auditStore  *audit.Store
	auditConfig audit.Config
	jobStore    *jobs.JobStore
	gatherer    prometheus.Gatherer
	origins     []string
	logger      *slog.Logger
	startedAt   time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAuthorizer sets the Authorizer consulted for every API request.
// Defaults to allowing everything.
func WithAuthorizer(a authz.Authorizer) ServerOption {
	return func(s *Server) { s.authorizer = a }
}

// WithTokenVerifier requires HS256 bearer tokens instead of trusting
// X-Remote-* proxy headers.
func WithTokenVerifier(v *authz.TokenVerifier) ServerOption {
	return func(s *Server) { s.verifier = v }
}

// WithAudit records mutating requests in store and mounts the audit API.
func WithAudit(store *audit.Store, cfg audit.Config) ServerOption {
	return func(s *Server) {
		s.auditStore = store
		s.auditConfig = cfg
	}
}

// WithJobStore enables revalidation jobs and mounts the job API.
func WithJobStore(store *jobs.JobStore) ServerOption {
	return func(s *Server) { s.jobStore = store }
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = g }
}

// WithAllowedOrigins sets the CORS origins. Defaults to any http(s) origin.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// NewServer creates a Server. db is only used for readiness checks and
// may be nil.
func NewServer(db *gorm.DB, registry *schema.Registry, documents *document.Service, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		db:         db,
		registry:   registry,
		documents:  documents,
		authorizer: &authz.NoopAuthorizer{},
		origins:    []string{"https://*", "http://*"},
		logger:     logger,
		startedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Correlation-ID",
			"X-Remote-User", "X-Remote-Group", "X-Remote-Client", tenancy.ClientHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route(BasePath, func(r chi.Router) {
		if s.verifier != nil {
			r.Use(authz.BearerMiddleware(s.verifier, s.logger))
		} else {
			r.Use(authz.IdentityMiddleware())
		}
		if s.auditStore != nil && s.auditConfig.Enabled {
			r.Use(audit.AuditMiddleware(s.auditStore, s.auditConfig, s.logger))
			s.logger.Info("audit middleware enabled",
				"logDenied", s.auditConfig.LogDenied,
				"retention", s.auditConfig.Retention.String())
		}

		// Client-scoped routes resolve the tenant from the path, then authorize.
		guarded := r.With(
			tenancy.Middleware(tenancy.PathResolver{Param: "clientID"}, false),
			authz.AuthzMiddleware(s.authorizer),
		)
		s.mountSchemaRoutes(guarded)
		s.mountDocumentRoutes(guarded)

		if s.jobStore != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(tenancy.Middleware(tenancy.HeaderResolver{}, false))
				r.Mount("/", jobs.Router(s.jobStore, s.authorizer))
			})
		}
		if s.auditStore != nil {
			r.Mount("/audit", audit.Router(s.auditStore, s.authorizer))
		}
	})

	return r
}

func (s *Server) mountSchemaRoutes(r chi.Router) {
	r.Post("/client-schemas", s.createSchema)
	r.Post("/client-schemas/create", s.createSchema)
	r.Get("/client-schemas", s.listSchemas)
	r.Get("/client-schemas/client/{clientID}", s.listSchemasByClient)
	r.Get("/client-schemas/client/{clientID}/{schemaName}", s.listSchemaVersions)
	r.Get("/client-schemas/client/{clientID}/{schemaName}/active", s.getActiveSchema)
	r.Get("/client-schemas/{schemaID}", s.getSchema)
	r.Put("/client-schemas/{schemaID}", s.updateSchema)
	r.Delete("/client-schemas/{schemaID}", s.deleteSchema)
	r.Patch("/client-schemas/{schemaID}/activate", s.activateSchema)
	r.Get("/client-schemas/{schemaID}/json-schema", s.exportJSONSchema)
	if s.jobStore != nil {
		r.Post("/client-schemas/{schemaID}/revalidate", s.revalidateSchema)
	}
}

func (s *Server) mountDocumentRoutes(r chi.Router) {
	r.Post("/documents", s.createDocument)
	r.Post("/documents/create", s.createDocument)
	r.Get("/documents/{clientID}/{collection}", s.listDocuments)
	r.Post("/documents/{clientID}/{collection}/validate", s.validateDocument)
	r.Get("/documents/{clientID}/{collection}/{documentID}", s.getDocument)
	r.Put("/documents/{clientID}/{collection}/{documentID}", s.updateDocument)
	r.Delete("/documents/{clientID}/{collection}/{documentID}", s.deleteDocument)
}

// check authorizes the caller for resource/verb on clientID once a handler
// knows the owning client.
func (s *Server) check(ctx context.Context, clientID, resource, verb string) error {
	return authz.Check(ctx, s.authorizer, clientID, authz.ResourceMapping{Resource: resource, Verb: verb})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	dbStatus := map[string]string{"status": "up"}
	ready := true
	if s.db == nil {
		dbStatus["status"] = "not_configured"
	} else if sqlDB, err := s.db.DB(); err != nil {
		dbStatus["status"], dbStatus["error"] = "down", err.Error()
		ready = false
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			dbStatus["status"], dbStatus["error"] = "down", err.Error()
			ready = false
		}
	}

	status, state := http.StatusOK, "ready"
	if !ready {
		status, state = http.StatusServiceUnavailable, "not_ready"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": state,
		"checks": map[string]any{"database": dbStatus},
	})
}
