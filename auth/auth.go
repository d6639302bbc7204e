package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ammiranda/knowledge_tree/tree"
)

// RoleHeader carries the caller's role, set by the upstream identity layer
const RoleHeader = "X-User-Role"

// Authorizer decides whether a caller may run structural or bulk mutations
type Authorizer interface {
	CanMutate(ctx context.Context, role string) bool
}

// RoleAuthorizer allows a fixed set of roles, compared case-insensitively
type RoleAuthorizer struct {
	roles map[string]struct{}
}

// NewRoleAuthorizer creates an authorizer that allows roles
func NewRoleAuthorizer(roles ...string) *RoleAuthorizer {
	a := &RoleAuthorizer{roles: make(map[string]struct{}, len(roles))}
	for _, r := range roles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			a.roles[r] = struct{}{}
		}
	}
	return a
}

// CanMutate reports whether role is one of the allowed roles
func (a *RoleAuthorizer) CanMutate(ctx context.Context, role string) bool {
	_, ok := a.roles[strings.ToLower(strings.TrimSpace(role))]
	return ok
}

// Check returns tree.ErrUnauthorized unless role may mutate
func Check(ctx context.Context, a Authorizer, role string) error {
	if a == nil || !a.CanMutate(ctx, role) {
		return fmt.Errorf("%w: role %q may not modify the tree", tree.ErrUnauthorized, role)
	}
	return nil
}

// RequireMutation rejects requests whose role header is not allowed to
// mutate, before the handler runs
func RequireMutation(a Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetHeader(RoleHeader)
		if err := Check(c.Request.Context(), a, role); err != nil {
			slog.WarnContext(c.Request.Context(), "mutation rejected",
				"method", c.Request.Method, "path", c.FullPath(), "role", role)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": err.Error(),
				"kind":  tree.ErrorKind(err),
			})
			return
		}
		c.Next()
	}
}
