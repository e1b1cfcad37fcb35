package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/sentinel/pkg/contextkeys"
	"github.com/platinummonkey/sentinel/pkg/httputil"
	"github.com/platinummonkey/sentinel/pkg/tenants"
)

// TenantResolver resolves tenants by ID or slug.
type TenantResolver interface {
	GetTenant(ctx context.Context, id int64) (*tenants.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*tenants.Tenant, error)
}

// TenantContextMiddleware resolves the ambient tenant from the request
// path and adds it to the context. Runs after session validation so
// anonymous callers never see tenant-resolution results, and before
// SessionMiddleware.BindTenant so the binding check has a tenant to
// compare against.
func TenantContextMiddleware(resolver TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vars := mux.Vars(r)

			if tenantIDStr, ok := vars["tenant_id"]; ok {
				tenantID, err := strconv.ParseInt(tenantIDStr, 10, 64)
				if err != nil {
					httputil.WriteValidationError(w, "invalid tenant id")
					return
				}
				tenant, err := resolver.GetTenant(r.Context(), tenantID)
				if err != nil {
					httputil.WriteDomainError(w, err)
					return
				}
				if !tenant.IsActive {
					httputil.WriteNotFound(w, "tenant not found")
					return
				}
				ctx := contextkeys.WithTenant(r.Context(), tenant)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if slug, ok := vars["tenant_slug"]; ok {
				tenant, err := resolver.GetTenantBySlug(r.Context(), slug)
				if err != nil {
					httputil.WriteDomainError(w, err)
					return
				}
				if !tenant.IsActive {
					httputil.WriteNotFound(w, "tenant not found")
					return
				}
				ctx := contextkeys.WithTenant(r.Context(), tenant)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetTenant extracts the ambient tenant from the request context.
func GetTenant(r *http.Request) *tenants.Tenant {
	tenant, _ := r.Context().Value(contextkeys.TenantKey).(*tenants.Tenant)
	return tenant
}
