package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/tradeledger/api/responses"
	"github.com/angelmondragon/tradeledger/pkg/config"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/angelmondragon/tradeledger/pkg/logger"
)

type Permission string

const (
	PermInventoryRead    Permission = "inventory.read"
	PermInventoryWrite   Permission = "inventory.write"
	PermInvoicesRead     Permission = "invoices.read"
	PermInvoicesWrite    Permission = "invoices.write"
	PermBrokersRead      Permission = "brokers.read"
	PermBrokersWrite     Permission = "brokers.write"
	PermCommissionsRead  Permission = "commissions.read"
	PermCommissionsWrite Permission = "commissions.write"
	PermAuditRead        Permission = "audit.read"
	PermAuditRepair      Permission = "audit.repair"
)

// OwnerRole holds every permission regardless of configured grants.
const OwnerRole = "owner"

const (
	actorRoleHeader = "X-Actor-Role"
	grantAll        = "*"
)

// Authorizer answers permission lookups against the configured role map.
type Authorizer struct {
	grants      map[string]map[Permission]struct{}
	defaultRole string
}

func NewAuthorizer(cfg config.PermissionsConfig) *Authorizer {
	a := &Authorizer{
		grants:      map[string]map[Permission]struct{}{},
		defaultRole: normalizeRole(cfg.DefaultRole),
	}
	if a.defaultRole == "" {
		a.defaultRole = OwnerRole
	}
	for role, perms := range cfg.RoleGrants() {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[Permission(strings.ToLower(p))] = struct{}{}
		}
		a.grants[role] = set
	}
	return a
}

// Allows reports whether role may perform perm.
func (a *Authorizer) Allows(role string, perm Permission) bool {
	role = normalizeRole(role)
	if role == OwnerRole {
		return true
	}
	set, ok := a.grants[role]
	if !ok {
		return false
	}
	if _, ok := set[grantAll]; ok {
		return true
	}
	_, ok = set[perm]
	return ok
}

// ActorRole resolves the caller's role from X-Actor-Role, falling back to
// the configured default role.
func ActorRole(a *Authorizer, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := normalizeRole(r.Header.Get(actorRoleHeader))
			if role == "" {
				role = a.defaultRole
			}
			ctx := WithRole(r.Context(), role)
			if logg != nil {
				ctx = logg.WithActorRole(ctx, role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequirePermission(a *Authorizer, perm Permission, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if !a.Allows(role, perm) {
				err := pkgerrors.New(pkgerrors.CodeForbidden, "permission required").
					WithDetails(map[string]any{"permission": string(perm), "role": role})
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
