// Package middleware provides shared request processing for handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/poplist/api/internal/utils"
)

// Context keys populated by JWTAuth.
const (
	CtxUserID = "user_id"
	CtxEmail  = "email"
	CtxRoles  = "roles"
)

// JWTAuth returns a middleware that validates an access token and injects
// the subject, email and roles claims into the request context. The token is
// read from the Authorization header (web and mobile API calls) or from the
// accessToken cookie (browser flow). Failures are an opaque 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			claims, err := utils.VerifyAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			uid, err := claims.UserID()
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			c.Set(CtxUserID, uid)
			c.Set(CtxEmail, claims.Email)
			c.Set(CtxRoles, claims.Roles)
			return next(c)
		}
	}
}

// JWTAuthOptional injects the claims when a valid access token is presented
// but lets anonymous requests through. Handlers behind it see UserID() == 0
// for anonymous callers; endpoints whose response depends on who is asking
// (public lists versus their owner's private ones) sit behind this.
func JWTAuthOptional(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw := bearerToken(c); raw != "" {
				if claims, err := utils.VerifyAccessToken(secret, raw); err == nil {
					if uid, err := claims.UserID(); err == nil {
						c.Set(CtxUserID, uid)
						c.Set(CtxEmail, claims.Email)
						c.Set(CtxRoles, claims.Roles)
					}
				}
			}
			return next(c)
		}
	}
}

// bearerToken extracts the raw access token from the request, preferring the
// Authorization header over the cookie.
func bearerToken(c echo.Context) string {
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := c.Cookie("accessToken"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// UserID returns the authenticated user's id from the context. It is only
// meaningful behind JWTAuth.
func UserID(c echo.Context) uint64 {
	if v, ok := c.Get(CtxUserID).(uint64); ok {
		return v
	}
	return 0
}

// Roles returns the authenticated user's roles from the context.
func Roles(c echo.Context) []string {
	if v, ok := c.Get(CtxRoles).([]string); ok {
		return v
	}
	return nil
}
