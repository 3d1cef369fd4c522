package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_storefront/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
)

// BreakerProvider stops calling a failing provider for a while. Declined
// requests and caller cancellations do not count as failures.
type BreakerProvider struct {
	next Provider
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreakerProvider(next Provider, cfg circuitbreaker.Config, log *slog.Logger) *BreakerProvider {
	ignore := func(err error) bool {
		return errors.Is(err, ErrDeclined) || errors.Is(err, context.Canceled)
	}
	return &BreakerProvider{
		next: next,
		cb:   circuitbreaker.New[any](cfg, log, ignore),
	}
}

func (b *BreakerProvider) FindOrCreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.next.FindOrCreateCustomer(ctx, email, metadata)
	})
	if err != nil {
		return "", b.wrap(err)
	}
	return v.(string), nil
}

func (b *BreakerProvider) CreatePaymentTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.next.CreatePaymentTransaction(ctx, req)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return v.(*Transaction), nil
}

func (b *BreakerProvider) wrap(err error) error {
	if circuitbreaker.IsOpen(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
