// Package payment holds the provider-neutral gateway contract, the registry
// that maps gateway codes to implementations, and the provider adapters.
package payment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/iliyamo/ticketing-core/internal/model"
)

// Decision is the terminal answer of a provider to an authorization.
type Decision int

const (
	Approved Decision = iota + 1
	Denied
)

func (d Decision) String() string {
	switch d {
	case Approved:
		return "approved"
	case Denied:
		return "denied"
	}
	return "unknown"
}

// Authorization is the outcome of Gateway.Authorize when the provider
// answered. A transport failure or provider outage is reported as an error
// instead and is retried by the caller.
type Authorization struct {
	Decision          Decision
	ProviderPaymentID string
	Reason            string
}

// AuthorizeRequest carries what a provider needs to charge an order.
type AuthorizeRequest struct {
	PaymentID    string
	OrderID      string
	AmountCents  int64
	CurrencyCode string
	Method       model.PaymentMethod
	CardToken    string
}

// ErrRejected marks a provider failure that repeating the same request
// cannot fix, such as a reversal of an unknown charge. Retries stop on it.
var ErrRejected = errors.New("payment: rejected by provider")

// Gateway is implemented once per payment provider.
type Gateway interface {
	// Authorize charges the order total. A nil error means the provider gave
	// a terminal answer; any error is treated as transient.
	Authorize(ctx context.Context, req AuthorizeRequest) (Authorization, error)
	// Reverse returns a previously approved amount and yields the provider
	// reference of the reversal. Errors wrapping ErrRejected are final.
	Reverse(ctx context.Context, providerPaymentID string, amountCents int64) (string, error)
}

var codePattern = regexp.MustCompile(`^[a-z0-9_]{1,40}$`)

// ValidCode reports whether code is a well-formed gateway code.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Registry is the lookup table from gateway code to implementation plus
// the default gateway of each payment method.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
	defaults map[model.PaymentMethod]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		gateways: map[string]Gateway{},
		defaults: map[model.PaymentMethod]string{},
	}
}

// Register adds or replaces the gateway for code.
func (r *Registry) Register(code string, g Gateway) {
	if !ValidCode(code) {
		panic(fmt.Sprintf("payment: invalid gateway code %q", code))
	}
	r.mu.Lock()
	r.gateways[code] = g
	r.mu.Unlock()
}

// SetDefault selects the gateway used for method when the caller names none.
func (r *Registry) SetDefault(method model.PaymentMethod, code string) {
	r.mu.Lock()
	r.defaults[method] = code
	r.mu.Unlock()
}

// Lookup returns the gateway registered for code.
func (r *Registry) Lookup(code string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownGateway, code)
	}
	return g, nil
}

// Resolve picks the gateway for a payment: the named one when code is set,
// otherwise the default of method. It returns the code actually used.
func (r *Registry) Resolve(code string, method model.PaymentMethod) (string, Gateway, error) {
	if code == "" {
		r.mu.RLock()
		code = r.defaults[method]
		r.mu.RUnlock()
		if code == "" {
			return "", nil, fmt.Errorf("%w: no default gateway for %s", model.ErrUnknownGateway, method)
		}
	}
	g, err := r.Lookup(code)
	if err != nil {
		return "", nil, err
	}
	return code, g, nil
}

// Codes lists the registered gateway codes.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.gateways))
	for c := range r.gateways {
		codes = append(codes, c)
	}
	return codes
}
