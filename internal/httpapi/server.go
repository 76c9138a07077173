package httpapi

import (
	"net/http"

	"ragcore/internal/answer"
	"ragcore/internal/config"
	"ragcore/internal/metadata"
	"ragcore/internal/objectstore"
	"ragcore/internal/quota"
	"ragcore/internal/realtime"
	"ragcore/internal/retriever"
)

// Server wires every other component behind a single http.Handler: auth,
// rate/quota enforcement, request validation, and delegation. Grounded on
// manifold's internal/httpapi.Server (NewServer + registerRoutes +
// ServeHTTP-delegates-to-mux shape), generalized from one playground
// service dependency to the full set of RAG components this facade fronts.
type Server struct {
	cfg     config.Config
	store   metadata.Store
	objects objectstore.ObjectStore
	retr    *retriever.Retriever
	orch    *answer.Orchestrator
	gateway *realtime.Gateway
	limiter *quota.Limiter
	auth    *authenticator
	mux     *http.ServeMux
}

// NewServer builds the HTTP Facade from already-constructed component
// instances. cmd/apiserver owns connecting every backend and constructing
// gateway with an authenticator from NewAuthenticator built on the same
// AuthConfig, so /ws and every other route share one tenant-resolution
// policy. NewServer builds its own authenticator instance from cfg.Auth.
func NewServer(
	cfg config.Config,
	store metadata.Store,
	objects objectstore.ObjectStore,
	retr *retriever.Retriever,
	orch *answer.Orchestrator,
	gateway *realtime.Gateway,
	limiter *quota.Limiter,
) *Server {
	s := &Server{
		cfg: cfg, store: store, objects: objects, retr: retr, orch: orch,
		gateway: gateway, limiter: limiter, auth: newAuthenticator(cfg.Auth),
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// NewAuthenticator exposes the facade's tenant-resolution policy so
// cmd/apiserver can hand realtime.New an authenticator that resolves
// tenants the same way for GET /ws. Each call returns a new instance.
func NewAuthenticator(cfg config.AuthConfig) realtime.Authenticator {
	return newAuthenticator(cfg)
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /ingest", s.auth.requireAuth(s.withRateLimit(s.handleIngest)))
	s.mux.HandleFunc("GET /ingest/{job_id}", s.auth.requireAuth(s.handleGetJob))
	s.mux.HandleFunc("GET /ingest/document/{document_id}", s.auth.requireAuth(s.handleGetDocumentJobs))

	s.mux.HandleFunc("POST /query", s.auth.requireAuth(s.withRateLimit(s.handleQuery)))
	s.mux.HandleFunc("GET /chunks/{id}", s.auth.requireAuth(s.handleGetChunk))

	s.mux.HandleFunc("POST /answer", s.auth.requireAuth(s.withRateLimit(s.handleAnswer)))
	s.mux.HandleFunc("POST /answer/stream", s.auth.requireAuth(s.withRateLimit(s.handleAnswerStream)))

	// The Realtime Gateway authenticates each upgrade itself via an
	// authenticator built from the same AuthConfig (passed to realtime.New
	// by cmd/apiserver), so
	// this route is intentionally left outside requireAuth.
	s.mux.HandleFunc("GET /ws", s.gateway.ServeHTTP)

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// withRateLimit enforces the per-tenant requests-per-minute budget ahead of
// any work; the daily token quota is enforced after generation, once the
// actual token usage for this call is known, since it isn't predictable in
// advance for a given query.
func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, _ := tenantFromContext(r.Context())
		if err := s.limiter.Allow(tenantID); err != nil {
			respondError(w, http.StatusTooManyRequests, err)
			return
		}
		next(w, r)
	}
}
