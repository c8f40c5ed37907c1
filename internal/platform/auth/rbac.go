package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
// Admins pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == "admin" {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasOnlyRole reports whether the caller holds role and nothing else. Handlers
// use it to narrow results for buddies and patients.
func HasOnlyRole(ctx context.Context, role string) bool {
	roles := RolesFromContext(ctx)
	if len(roles) == 0 {
		return false
	}
	for _, r := range roles {
		if r != role {
			return false
		}
	}
	return true
}
