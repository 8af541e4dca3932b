// Package auth guards the session API with bearer-token authentication.
// Auth is optional: a host embedding the engine behind its own gateway runs
// with it disabled.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// SubjectKey is the echo context key the authenticated subject is stored
// under.
const SubjectKey = "auth_subject"

// RequireToken validates an HS256 bearer token signed with the shared
// secret. The token's subject claim, if any, is exposed on the context.
func RequireToken(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authorization header is not a bearer token")
			}

			token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return key, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				if sub, err := claims.GetSubject(); err == nil && sub != "" {
					c.Set(SubjectKey, sub)
				}
			}
			return next(c)
		}
	}
}
