// Package router registers the HTTP routes of the checkout API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-core/internal/handler"
	"github.com/iliyamo/ticketing-core/internal/middleware"
)

// Roles accepted on the checkout API.
const (
	RoleCustomer = "CUSTOMER"
	RoleOperator = "OPERATOR"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// CheckoutOptions carries the middleware wrapped around individual routes.
// Nil entries are skipped.
type CheckoutOptions struct {
	JWTSecret string
	// HoldLimiter throttles hold creation.
	HoldLimiter echo.MiddlewareFunc
	// SeatCache caches the availability endpoint.
	SeatCache echo.MiddlewareFunc
}

// RegisterCheckout registers the tenant-scoped checkout routes under /v1.
// Every route needs a valid access token; refunds need the OPERATOR role.
func RegisterCheckout(e *echo.Echo, h *handler.CheckoutHandler, opts CheckoutOptions) {
	g := e.Group("/v1",
		middleware.JWTAuth(opts.JWTSecret),
		middleware.RequireRole(RoleCustomer, RoleOperator),
	)

	g.GET("/sessions/:id/seats", h.Availability, present(opts.SeatCache)...)
	g.POST("/sessions/:id/holds", h.CreateHold, present(opts.HoldLimiter)...)
	g.GET("/holds/:id", h.GetHold)
	g.DELETE("/holds/:id", h.ReleaseHold)

	g.POST("/orders", h.CreateOrder)
	g.GET("/orders/:id", h.GetOrder)
	g.POST("/orders/:id/payments", h.SubmitPayment)
	g.POST("/orders/:id/refunds", h.Refund, middleware.RequireRole(RoleOperator))
}

func present(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := mws[:0]
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
