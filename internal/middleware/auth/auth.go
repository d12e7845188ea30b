// Package auth resolves the current user from the access/refresh cookie pair
// and exposes role guards for the seller and admin route groups.
package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/avdonin/marketplace/internal/models"
	"github.com/avdonin/marketplace/internal/service/token"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"

	ctxUserID = "userID"
	ctxRole   = "role"
)

type Middleware struct {
	Tokens *token.Service
}

func CreateCookie(name, value, path string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func setUserContext(c echo.Context, claims jwt.MapClaims) error {
	sub, ok := claims["sub"].(float64)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject claim")
	}
	role, ok := claims["role"].(string)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid role claim")
	}
	c.Set(ctxUserID, uint(sub))
	c.Set(ctxRole, role)
	return nil
}

// CurrentUser reads the identity a passed middleware left on the context.
func CurrentUser(c echo.Context) (uint, string, error) {
	id, ok := c.Get(ctxUserID).(uint)
	if !ok {
		return 0, "", echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	role, _ := c.Get(ctxRole).(string)
	return id, role, nil
}

// RequireLogin validates the access cookie, transparently rotating the pair
// off the refresh cookie when the access token has expired.
func (m *Middleware) RequireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if asCookie, err := c.Cookie(AccessCookie); err == nil {
			claims, err := m.Tokens.ParseAccess(asCookie.Value)
			if err == nil {
				if err := setUserContext(c, claims); err != nil {
					return err
				}
				return next(c)
			}
			if !errors.Is(err, jwt.ErrTokenExpired) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}
		}

		rfCookie, err := c.Cookie(RefreshCookie)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
		}
		pair, err := m.Tokens.Rotate(rfCookie.Value)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "cannot rotate token: "+err.Error())
		}

		c.SetCookie(CreateCookie(AccessCookie, pair.Access, "/", time.Now().Add(token.AccessTTL)))
		c.SetCookie(CreateCookie(RefreshCookie, pair.Refresh, "/", time.Now().Add(token.RefreshTTL)))

		claims, err := m.Tokens.ParseAccess(pair.Access)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}
		if err := setUserContext(c, claims); err != nil {
			return err
		}
		return next(c)
	}
}

func (m *Middleware) requireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return m.RequireLogin(func(c echo.Context) error {
			_, role, err := CurrentUser(c)
			if err != nil {
				return err
			}
			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient rights")
		})
	}
}

func (m *Middleware) ClientOnly() echo.MiddlewareFunc {
	return m.requireRole(models.RoleClient)
}

func (m *Middleware) SellerOnly() echo.MiddlewareFunc {
	return m.requireRole(models.RoleSeller)
}

func (m *Middleware) AdminOnly() echo.MiddlewareFunc {
	return m.requireRole(models.RoleAdmin)
}

// OptionalLogin resolves identity when cookies are present but lets anonymous
// requests through. Used by catalog reads where visibility depends on role.
func (m *Middleware) OptionalLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		asCookie, err := c.Cookie(AccessCookie)
		if err != nil {
			return next(c)
		}
		claims, err := m.Tokens.ParseAccess(asCookie.Value)
		if err != nil {
			return next(c)
		}
		if err := setUserContext(c, claims); err != nil {
			return err
		}
		return next(c)
	}
}
