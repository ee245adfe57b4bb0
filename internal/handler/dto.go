package handler

import (
	"time"

	"github.com/iliyamo/ticketing-core/internal/model"
)

type createHoldRequest struct {
	SeatIDs    []string `json:"seatIds"`
	TTLSeconds int      `json:"ttlSeconds,omitempty"`
}

type createOrderRequest struct {
	HoldID string      `json:"holdId"`
	Buyer  model.Buyer `json:"buyer"`
}

type submitPaymentRequest struct {
	Method    string `json:"method"`
	Gateway   string `json:"gateway,omitempty"`
	CardToken string `json:"cardToken,omitempty"`
}

type refundRequest struct {
	ReasonCode        string `json:"reasonCode"`
	ReasonDescription string `json:"reasonDescription,omitempty"`
}

type seatResponse struct {
	ID         string `json:"id"`
	SectorCode string `json:"sectorCode,omitempty"`
	RowLabel   string `json:"rowLabel,omitempty"`
	SeatNumber string `json:"seatNumber,omitempty"`
	Status     string `json:"status"`
	PriceCents *int64 `json:"priceCents,omitempty"`
}

type availabilityResponse struct {
	SessionID    string         `json:"sessionId"`
	Status       string         `json:"status"`
	CurrencyCode string         `json:"currencyCode"`
	Available    int            `json:"available"`
	Seats        []seatResponse `json:"seats"`
}

type holdResponse struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Status    string         `json:"status"`
	SeatIDs   []string       `json:"seatIds"`
	Seats     []seatResponse `json:"seats,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

type orderItemResponse struct {
	SeatID         string `json:"seatId"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type paymentResponse struct {
	ID                string    `json:"id"`
	Method            string    `json:"method"`
	Gateway           string    `json:"gateway"`
	Status            string    `json:"status"`
	AmountCents       int64     `json:"amountCents"`
	ProviderPaymentID string    `json:"providerPaymentId,omitempty"`
	FailureReason     string    `json:"failureReason,omitempty"`
	Attempts          int       `json:"attempts"`
	CreatedAt         time.Time `json:"createdAt"`
}

type orderResponse struct {
	ID                  string              `json:"id"`
	SessionID           string              `json:"sessionId"`
	HoldID              string              `json:"holdId"`
	Status              string              `json:"status"`
	Buyer               model.Buyer         `json:"buyer"`
	TicketSubtotalCents int64               `json:"ticketSubtotalCents"`
	ServiceFeeCents     int64               `json:"serviceFeeCents"`
	TotalAmountCents    int64               `json:"totalAmountCents"`
	CurrencyCode        string              `json:"currencyCode"`
	Items               []orderItemResponse `json:"items,omitempty"`
	Payments            []paymentResponse   `json:"payments,omitempty"`
	CreatedAt           time.Time           `json:"createdAt"`
}

type paymentResultResponse struct {
	Payment     paymentResponse `json:"payment"`
	OrderStatus string          `json:"orderStatus"`
	Retryable   bool            `json:"retryable"`
}

type refundResponse struct {
	ID                string    `json:"id"`
	OrderID           string    `json:"orderId"`
	PaymentID         string    `json:"paymentId"`
	ReasonCode        string    `json:"reasonCode"`
	ReasonDescription string    `json:"reasonDescription,omitempty"`
	ResultStatus      string    `json:"resultStatus"`
	AmountCents       int64     `json:"amountCents"`
	ProviderRefundID  string    `json:"providerRefundId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

func toSeat(s model.Seat, defaultPrice *int64) seatResponse {
	out := seatResponse{
		ID:         s.ID,
		SectorCode: s.SectorCode,
		RowLabel:   s.RowLabel,
		SeatNumber: s.SeatNumber,
		Status:     string(s.Status),
	}
	if defaultPrice != nil {
		p := s.EffectivePrice(*defaultPrice)
		out.PriceCents = &p
	}
	return out
}

func toHold(h model.Hold, seats []model.Seat) holdResponse {
	out := holdResponse{
		ID:        h.ID,
		SessionID: h.SessionID,
		Status:    string(h.Status),
		SeatIDs:   h.SeatIDs,
		CreatedAt: h.CreatedAt,
		ExpiresAt: h.ExpiresAt,
	}
	for _, s := range seats {
		out.Seats = append(out.Seats, toSeat(s, nil))
	}
	return out
}

func toPayment(p model.Payment) paymentResponse {
	return paymentResponse{
		ID:                p.ID,
		Method:            string(p.Method),
		Gateway:           p.Gateway,
		Status:            string(p.Status),
		AmountCents:       p.AmountCents,
		ProviderPaymentID: p.ProviderPaymentID,
		FailureReason:     p.FailureReason,
		Attempts:          p.Attempts,
		CreatedAt:         p.CreatedAt,
	}
}

func toOrder(o model.Order, items []model.OrderItem, payments []model.Payment) orderResponse {
	out := orderResponse{
		ID:                  o.ID,
		SessionID:           o.SessionID,
		HoldID:              o.HoldID,
		Status:              string(o.Status),
		Buyer:               o.Buyer,
		TicketSubtotalCents: o.TicketSubtotalCents,
		ServiceFeeCents:     o.ServiceFeeCents,
		TotalAmountCents:    o.TotalAmountCents,
		CurrencyCode:        o.CurrencyCode,
		CreatedAt:           o.CreatedAt,
	}
	for _, it := range items {
		out.Items = append(out.Items, orderItemResponse{SeatID: it.SeatID, UnitPriceCents: it.UnitPriceCents})
	}
	for _, p := range payments {
		out.Payments = append(out.Payments, toPayment(p))
	}
	return out
}

func toRefund(r model.Refund) refundResponse {
	return refundResponse{
		ID:                r.ID,
		OrderID:           r.OrderID,
		PaymentID:         r.PaymentID,
		ReasonCode:        r.ReasonCode,
		ReasonDescription: r.ReasonDescription,
		ResultStatus:      string(r.ResultStatus),
		AmountCents:       r.AmountCents,
		ProviderRefundID:  r.ProviderRefundID,
		CreatedAt:         r.CreatedAt,
	}
}
