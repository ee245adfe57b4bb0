package middleware

import "github.com/labstack/echo/v4"

// UserID returns the authenticated subject, or "anon" before JWTAuth ran.
func UserID(c echo.Context) string {
	if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}

// TenantID returns the tenant of the authenticated caller, or "" when the
// request is not authenticated.
func TenantID(c echo.Context) string {
	s, _ := c.Get(CtxTenantID).(string)
	return s
}
