package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
)

// FakeProvider is an in-process provider for local runs. It remembers
// customers by email and fails the given share of transactions.
type FakeProvider struct {
	mu             sync.Mutex
	customers      map[string]string
	byIdempotency  map[string]*Transaction
	failurePercent int
	roll           func() int
}

func NewFakeProvider(failurePercent int) *FakeProvider {
	return &FakeProvider{
		customers:      make(map[string]string),
		byIdempotency:  make(map[string]*Transaction),
		failurePercent: failurePercent,
		roll:           func() int { return rand.IntN(100) },
	}
}

func (f *FakeProvider) FindOrCreateCustomer(ctx context.Context, email string, _ map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.customers[email]; ok {
		return id, nil
	}
	id := "cus_" + uuid.NewString()
	f.customers[email] = id
	return id, nil
}

func (f *FakeProvider) CreatePaymentTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrDeclined)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if req.IdempotencyKey != "" {
		if tx, ok := f.byIdempotency[req.IdempotencyKey]; ok {
			return tx, nil
		}
	}
	if f.roll() < f.failurePercent {
		return nil, fmt.Errorf("%w: simulated outage", ErrUnavailable)
	}

	id := "pi_" + uuid.NewString()
	tx := &Transaction{ID: id, ClientSecret: id + "_secret_" + uuid.NewString()}
	if req.IdempotencyKey != "" {
		f.byIdempotency[req.IdempotencyKey] = tx
	}
	return tx, nil
}
