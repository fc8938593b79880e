package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"collectflow/auth"
)

// requireAuth verifies the bearer token and stores the claims on the request
// context.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return writeProblem(c, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
		}
		claims, err := s.tokens.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			return writeProblem(c, http.StatusUnauthorized, "Unauthorized", "invalid bearer token")
		}
		ctx := auth.WithClaims(c.Request().Context(), claims)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func claimsFrom(c echo.Context) auth.Claims {
	claims, _ := auth.FromContext(c.Request().Context())
	return claims
}
