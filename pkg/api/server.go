// Package api wires the HTTP surface: authentication endpoints, the
// permission catalogue, role management and tenant membership, all
// behind the authorization guard.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/sentinel/pkg/audit"
	"github.com/platinummonkey/sentinel/pkg/config"
	"github.com/platinummonkey/sentinel/pkg/httputil"
	"github.com/platinummonkey/sentinel/pkg/identity"
	"github.com/platinummonkey/sentinel/pkg/middleware"
	"github.com/platinummonkey/sentinel/pkg/observability"
	"github.com/platinummonkey/sentinel/pkg/rbac"
	"github.com/platinummonkey/sentinel/pkg/session"
	"github.com/platinummonkey/sentinel/pkg/sso"
	"github.com/platinummonkey/sentinel/pkg/tenants"
)

// IdentityStore is the identity surface the server needs.
// *identity.Store implements it.
type IdentityStore interface {
	SignUp(ctx context.Context, email, password, fullName string) (*identity.User, error)
	SignIn(ctx context.Context, email, password string) (*identity.User, error)
	FindOrCreateOAuthUser(ctx context.Context, provider, providerID, email, fullName string) (*identity.User, error)
	GetUser(ctx context.Context, userID int64) (*identity.User, error)
}

// TenantService is the tenant surface the server needs.
// *tenants.Service implements it.
type TenantService interface {
	middleware.TenantResolver
	IsMember(ctx context.Context, tenantID, userID int64) (bool, error)
	ListMembers(ctx context.Context, tenantID int64) ([]*tenants.Member, error)
	AddMember(ctx context.Context, tenantID, userID int64, invitedBy *int64) error
	RemoveMember(ctx context.Context, tenantID, userID int64) error
}

// AuditLog is the audit trail surface the server needs.
// *audit.Store implements it.
type AuditLog interface {
	Record(ctx context.Context, event *audit.Event) error
	List(ctx context.Context, tenantID int64, filter audit.Filter) ([]audit.Event, error)
}

// Server is the HTTP API server.
type Server struct {
	router *mux.Router

	rbacSvc  *rbac.Service
	binder   *session.Binder
	identity IdentityStore
	tenants  TenantService

	oidc   *sso.OIDCProvider
	states *sso.StateStore
	audits AuditLog

	sessionCfg config.SessionConfig
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithOIDC enables the OAuth sign-in endpoints.
func WithOIDC(provider *sso.OIDCProvider, states *sso.StateStore) Option {
	return func(s *Server) {
		s.oidc = provider
		s.states = states
	}
}

// WithMetrics records HTTP request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAuditLog enables the audit trail: mutations are recorded and the
// audit endpoint is registered.
func WithAuditLog(a AuditLog) Option {
	return func(s *Server) { s.audits = a }
}

// NewServer creates the API server and sets up routes.
func NewServer(
	rbacSvc *rbac.Service,
	binder *session.Binder,
	identityStore IdentityStore,
	tenantSvc TenantService,
	sessionCfg config.SessionConfig,
	logger *observability.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		rbacSvc:    rbacSvc,
		binder:     binder,
		identity:   identityStore,
		tenants:    tenantSvc,
		sessionCfg: sessionCfg,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.LoggingMiddleware(s.logger))
	s.router.Use(httputil.RecoveryMiddleware(s.logger))
	if s.metrics != nil {
		s.router.Use(httputil.MetricsMiddleware(s.metrics))
	}

	// Authentication endpoints: no guard, no tenant scope.
	s.router.HandleFunc("/api/v1/auth/signup", s.signUp).Methods("POST")
	s.router.HandleFunc("/api/v1/auth/signin", s.signIn).Methods("POST")
	s.router.HandleFunc("/api/v1/auth/signout", s.signOut).Methods("POST")

	if s.oidc != nil {
		s.router.HandleFunc("/api/v1/auth/oauth/start", s.oauthStart).Methods("GET")
		s.router.HandleFunc("/api/v1/auth/oauth/callback", s.oauthCallback).Methods("GET")
	}

	// Static permission catalogue: requires a session but no tenant scope.
	sessionOnly := middleware.NewSessionMiddleware(s.binder, s.logger)
	catalogue := s.router.PathPrefix("/api/v1/permissions").Subrouter()
	catalogue.Use(sessionOnly.Handler)
	catalogue.HandleFunc("", s.listPermissions).Methods("GET")

	me := s.router.PathPrefix("/api/v1/auth/me").Subrouter()
	me.Use(sessionOnly.Handler)
	me.HandleFunc("", s.me).Methods("GET")

	// Tenant-scoped endpoints: session validation first so anonymous
	// callers get AUTH_REQUIRED without learning whether a tenant
	// exists, then tenant resolution, then the session's tenant
	// binding, then per-route permission checks.
	scoped := s.router.PathPrefix("/api/v1/tenants/{tenant_id}").Subrouter()
	scoped.Use(sessionOnly.Handler)
	scoped.Use(middleware.TenantContextMiddleware(s.tenants))
	scoped.Use(sessionOnly.BindTenant)

	s.guarded(scoped, "/roles", "roles:read", s.listRoles, "GET")
	s.guarded(scoped, "/roles/{name}", "roles:read", s.getRole, "GET")

	s.guarded(scoped, "/users/{user_id}/roles", "users:read", s.getUserRoles, "GET")
	s.guarded(scoped, "/users/{user_id}/roles", "roles:assign", s.replaceUserRoles, "PUT")
	s.guarded(scoped, "/users/{user_id}/permissions", "users:read", s.getUserPermissions, "GET")

	s.guarded(scoped, "/members", "users:read", s.listMembers, "GET")
	s.guarded(scoped, "/members", "members:invite", s.addMember, "POST")
	s.guarded(scoped, "/members/{user_id}", "members:remove", s.removeMember, "DELETE")

	s.guarded(scoped, "/users/{user_id}/sessions", "sessions:revoke", s.revokeUserSessions, "DELETE")

	if s.audits != nil {
		s.guarded(scoped, "/audit", "audit:read", s.listAuditEvents, "GET")
	}
}

// guarded registers a tenant-scoped route behind a permission check.
func (s *Server) guarded(r *mux.Router, path, code string, handler http.HandlerFunc, methods ...string) {
	r.Handle(path, middleware.RequirePermission(s.rbacSvc, code)(handler)).Methods(methods...)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router for embedding in a larger server.
func (s *Server) Router() *mux.Router {
	return s.router
}
