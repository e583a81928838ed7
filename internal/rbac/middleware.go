package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// PrincipalHeader carries the identity asserted by the upstream identity gateway.
const PrincipalHeader = "X-Principal-ID"

// ErrPrincipalNotFound is returned by directories for unknown identities.
var ErrPrincipalNotFound = errors.New("rbac: principal not found")

// Directory resolves an identity into a principal with its current role.
type Directory interface {
	FindPrincipal(ctx context.Context, id uuid.UUID) (Principal, error)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Directory Directory
	Logger    *slog.Logger
}

// Identify resolves the principal named by PrincipalHeader and stores it in
// the request context. Requests without a resolvable, active principal are
// rejected with 401.
func (m Middleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(PrincipalHeader))
		id, err := uuid.Parse(raw)
		if raw == "" || err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if m.Directory == nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		p, err := m.Directory.FindPrincipal(r.Context(), id)
		if err != nil {
			if errors.Is(err, ErrPrincipalNotFound) {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			m.logError("rbac identify", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if !p.Active {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// Require ensures the current principal may perform action on resource.
func (m Middleware) Require(action Action, resource ResourceType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if err := Authorize(p, action, resource, nil); err != nil {
				if m.Logger != nil {
					m.Logger.Info("rbac denied",
						slog.String("principal", p.ID.String()),
						slog.String("role", string(p.Role)),
						slog.String("action", string(action)),
						slog.String("resource", string(resource)),
					)
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny ensures the current principal holds one of the listed roles.
func (m Middleware) RequireAny(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}
