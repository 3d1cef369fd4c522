package http

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type resolveCall struct {
	shopperID *string
	token     *string
}

type MockResolver struct {
	mu    sync.Mutex
	cart  *domain.Cart
	err   error
	calls []resolveCall
}

func (m *MockResolver) ResolveCart(_ context.Context, shopperID, deviceToken *string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, resolveCall{shopperID: shopperID, token: deviceToken})
	if m.err != nil {
		return nil, m.err
	}
	return m.cart, nil
}

type ledgerCall struct {
	op        string
	cartID    string
	lineID    string
	productID string
	variantID *string
	qty       int
}

type MockLedger struct {
	mu    sync.Mutex
	lines []domain.CartLine
	err   error
	calls []ledgerCall
}

func (m *MockLedger) record(c ledgerCall) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	if m.err != nil {
		return nil, m.err
	}
	return m.lines, nil
}

func (m *MockLedger) AddLine(_ context.Context, cartID, productID string, variantID *string, qty int) ([]domain.CartLine, error) {
	return m.record(ledgerCall{op: "add", cartID: cartID, productID: productID, variantID: variantID, qty: qty})
}

func (m *MockLedger) UpdateQuantity(_ context.Context, cartID, lineID string, qty int) ([]domain.CartLine, error) {
	return m.record(ledgerCall{op: "update", cartID: cartID, lineID: lineID, qty: qty})
}

func (m *MockLedger) RemoveLine(_ context.Context, cartID, lineID string) ([]domain.CartLine, error) {
	return m.record(ledgerCall{op: "remove", cartID: cartID, lineID: lineID})
}

func (m *MockLedger) Clear(_ context.Context, cartID string) ([]domain.CartLine, error) {
	return m.record(ledgerCall{op: "clear", cartID: cartID})
}

func (m *MockLedger) ListLines(_ context.Context, cartID string) ([]domain.CartLine, error) {
	return m.record(ledgerCall{op: "list", cartID: cartID})
}

func (m *MockLedger) last() ledgerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

type MockCheckout struct {
	mu       sync.Mutex
	tx       *service.Transaction
	err      error
	requests []service.CheckoutRequest
}

func (m *MockCheckout) Checkout(_ context.Context, req service.CheckoutRequest) (*service.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.tx, nil
}

func anonymousCart(id string) *domain.Cart {
	return domain.NewAnonymousCart(id, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), domain.AnonymousCartTTL)
}
