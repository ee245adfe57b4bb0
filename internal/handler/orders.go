package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-core/internal/middleware"
	"github.com/iliyamo/ticketing-core/internal/service"
)

// CreateOrder handles POST /v1/orders. Repeating the call with the same
// holdId returns the existing order with 200 instead of 201.
func (h *CheckoutHandler) CreateOrder(c echo.Context) error {
	var body createOrderRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.HoldID == "" {
		return badRequest(c, "holdId is required")
	}
	res, err := h.Orders.CreateOrder(c.Request().Context(), service.CreateOrderInput{
		TenantID: middleware.TenantID(c),
		HoldID:   body.HoldID,
		Buyer:    body.Buyer,
	})
	if err != nil {
		return writeError(c, err)
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, toOrder(res.Order, res.Items, nil))
}

// GetOrder handles GET /v1/orders/:id and includes every payment attempt.
func (h *CheckoutHandler) GetOrder(c echo.Context) error {
	d, err := h.Orders.GetOrder(c.Request().Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrder(d.Order, d.Items, d.Payments))
}
