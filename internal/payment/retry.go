package payment

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how a transient provider failure is retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// CallTimeout caps every single provider call.
	CallTimeout time.Duration
}

// DefaultRetryPolicy is used when the configuration leaves fields unset.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     4,
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	CallTimeout:     10 * time.Second,
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = DefaultRetryPolicy.CallTimeout
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)
}

// final stops backoff.Retry on errors no retry can fix.
func final(err error) error {
	if errors.Is(err, ErrRejected) {
		return backoff.Permanent(err)
	}
	return err
}

// Authorize calls g until it gives a terminal answer or the attempt budget
// is spent. It returns the number of provider calls made; the error is the
// last transient failure when the budget ran out.
func Authorize(ctx context.Context, g Gateway, req AuthorizeRequest, p RetryPolicy) (Authorization, int, error) {
	p = p.withDefaults()
	var (
		auth     Authorization
		attempts int
	)
	err := backoff.Retry(func() error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, p.CallTimeout)
		defer cancel()
		a, err := g.Authorize(callCtx, req)
		if err != nil {
			return final(err)
		}
		auth = a
		return nil
	}, p.backOff(ctx))
	if err != nil {
		return Authorization{}, attempts, err
	}
	return auth, attempts, nil
}

// Reverse calls g.Reverse with the same budget as Authorize. A rejection
// is returned after the first call.
func Reverse(ctx context.Context, g Gateway, providerPaymentID string, amountCents int64, p RetryPolicy) (string, error) {
	p = p.withDefaults()
	var ref string
	err := backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.CallTimeout)
		defer cancel()
		r, err := g.Reverse(callCtx, providerPaymentID, amountCents)
		if err != nil {
			return final(err)
		}
		ref = r
		return nil
	}, p.backOff(ctx))
	return ref, err
}
