package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/iliyamo/ticketing-core/internal/model"
)

// Card tokens with a fixed behaviour on the sandbox gateway.
const (
	SandboxTokenDenied      = "tok_denied"
	SandboxTokenUnavailable = "tok_unavailable"
)

// ErrSandboxUnavailable is the transient failure raised for
// SandboxTokenUnavailable.
var ErrSandboxUnavailable = errors.New("sandbox: provider unavailable")

// Sandbox is an in-process gateway for PIX and local development. It
// approves everything except the tokens above and remembers approvals so
// that reversals of unknown payments fail like a real provider would.
type Sandbox struct {
	mu       sync.Mutex
	approved map[string]int64 // provider payment id -> amount still reversible
}

// NewSandbox returns an empty sandbox gateway.
func NewSandbox() *Sandbox {
	return &Sandbox{approved: map[string]int64{}}
}

func (s *Sandbox) Authorize(ctx context.Context, req AuthorizeRequest) (Authorization, error) {
	if err := ctx.Err(); err != nil {
		return Authorization{}, err
	}
	if req.Method != model.MethodPIX {
		switch req.CardToken {
		case SandboxTokenDenied:
			return Authorization{Decision: Denied, Reason: "card_declined"}, nil
		case SandboxTokenUnavailable:
			return Authorization{}, ErrSandboxUnavailable
		}
	}
	id := "sbx_" + uuid.NewString()
	s.mu.Lock()
	s.approved[id] = req.AmountCents
	s.mu.Unlock()
	return Authorization{Decision: Approved, ProviderPaymentID: id}, nil
}

func (s *Sandbox) Reverse(ctx context.Context, providerPaymentID string, amountCents int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	left, ok := s.approved[providerPaymentID]
	if !ok {
		return "", fmt.Errorf("sandbox: unknown payment %s: %w", providerPaymentID, ErrRejected)
	}
	if amountCents > left {
		return "", fmt.Errorf("sandbox: reversal of %d exceeds remaining %d: %w", amountCents, left, ErrRejected)
	}
	s.approved[providerPaymentID] = left - amountCents
	return "sbx_rf_" + uuid.NewString(), nil
}
