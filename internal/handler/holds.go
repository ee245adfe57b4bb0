package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-core/internal/middleware"
	"github.com/iliyamo/ticketing-core/internal/model"
	"github.com/iliyamo/ticketing-core/internal/service"
)

// Availability handles GET /v1/sessions/:id/seats.
func (h *CheckoutHandler) Availability(c echo.Context) error {
	session, seats, err := h.Holds.Availability(c.Request().Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	resp := availabilityResponse{
		SessionID:    session.ID,
		Status:       string(session.Status),
		CurrencyCode: session.CurrencyCode,
		Seats:        make([]seatResponse, 0, len(seats)),
	}
	for _, s := range seats {
		if s.Status == model.SeatAvailable {
			resp.Available++
		}
		resp.Seats = append(resp.Seats, toSeat(s, &session.DefaultPriceCents))
	}
	return c.JSON(http.StatusOK, resp)
}

// CreateHold handles POST /v1/sessions/:id/holds. The request body holds
// "seatIds" and an optional "ttlSeconds". On 409 seat_unavailable the
// client should re-read availability and pick other seats.
func (h *CheckoutHandler) CreateHold(c echo.Context) error {
	var body createHoldRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.TTLSeconds < 0 {
		return badRequest(c, "ttlSeconds must be positive")
	}
	view, err := h.Holds.CreateHold(c.Request().Context(), service.CreateHoldInput{
		TenantID:  middleware.TenantID(c),
		SessionID: c.Param("id"),
		SeatIDs:   body.SeatIDs,
		TTL:       time.Duration(body.TTLSeconds) * time.Second,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toHold(view.Hold, view.Seats))
}

// GetHold handles GET /v1/holds/:id.
func (h *CheckoutHandler) GetHold(c echo.Context) error {
	view, err := h.Holds.GetHold(c.Request().Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toHold(view.Hold, view.Seats))
}

// ReleaseHold handles DELETE /v1/holds/:id.
func (h *CheckoutHandler) ReleaseHold(c echo.Context) error {
	hold, err := h.Holds.Release(c.Request().Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toHold(hold, nil))
}
