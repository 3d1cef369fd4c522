package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockCartRepository keeps carts in memory. Every method holds the lock for
// its whole body, which makes UpsertLine atomic like the SQL statement.
type MockCartRepository struct {
	mu       sync.Mutex
	carts    map[string]*domain.Cart
	lines    map[string][]domain.CartLine
	err      error
	mergeErr error
}

func NewMockCartRepository() *MockCartRepository {
	return &MockCartRepository{
		carts: make(map[string]*domain.Cart),
		lines: make(map[string][]domain.CartLine),
	}
}

func (m *MockCartRepository) CreateCart(_ context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	c := *cart
	m.carts[cart.ID] = &c
	return nil
}

func (m *MockCartRepository) GetCart(_ context.Context, cartID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[cartID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockCartRepository) GetOrCreateShopperCart(_ context.Context, shopperID string, now time.Time) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, c := range m.carts {
		if c.OwnedBy(shopperID) {
			cp := *c
			return &cp, nil
		}
	}
	owner := shopperID
	c := &domain.Cart{ID: uuid.NewString(), ShopperID: &owner, CreatedAt: now, UpdatedAt: now}
	m.carts[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *MockCartRepository) MergeCarts(_ context.Context, fromID, intoID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mergeErr != nil {
		return m.mergeErr
	}
	from, ok := m.carts[fromID]
	if !ok || !from.IsAnonymous() {
		return repository.ErrCartNotFound
	}
	for _, line := range m.lines[fromID] {
		line.CartID = intoID
		m.upsertLocked(line, now)
	}
	delete(m.lines, fromID)
	delete(m.carts, fromID)
	return nil
}

func (m *MockCartRepository) DeleteCart(_ context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.carts[cartID]; !ok {
		return repository.ErrCartNotFound
	}
	delete(m.carts, cartID)
	delete(m.lines, cartID)
	return nil
}

func (m *MockCartRepository) DeleteExpiredCarts(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var ids []string
	for id, c := range m.carts {
		if len(ids) == limit {
			break
		}
		if c.IsAnonymous() && !c.IsOpen(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		delete(m.carts, id)
		delete(m.lines, id)
	}
	return ids, nil
}

func (m *MockCartRepository) UpsertLine(_ context.Context, line *domain.CartLine) (*domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if _, ok := m.carts[line.CartID]; !ok {
		return nil, repository.ErrCartNotFound
	}
	stored := m.upsertLocked(*line, line.UpdatedAt)
	return &stored, nil
}

func (m *MockCartRepository) upsertLocked(line domain.CartLine, now time.Time) domain.CartLine {
	lines := m.lines[line.CartID]
	for i := range lines {
		if lines[i].Key() == line.Key() {
			lines[i].Quantity += line.Quantity
			lines[i].Subtotal = int64(lines[i].Quantity) * lines[i].UnitPrice
			lines[i].UpdatedAt = now
			return lines[i]
		}
	}
	line.ID = uuid.NewString()
	line.Subtotal = int64(line.Quantity) * line.UnitPrice
	m.lines[line.CartID] = append(lines, line)
	return line
}

func (m *MockCartRepository) SetLineQuantity(_ context.Context, cartID, lineID string, quantity int, now time.Time) (*domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	lines := m.lines[cartID]
	for i := range lines {
		if lines[i].ID == lineID {
			lines[i].Quantity = quantity
			lines[i].Subtotal = int64(quantity) * lines[i].UnitPrice
			lines[i].UpdatedAt = now
			l := lines[i]
			return &l, nil
		}
	}
	return nil, repository.ErrLineNotFound
}

func (m *MockCartRepository) DeleteLine(_ context.Context, cartID, lineID string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	lines := m.lines[cartID]
	for i := range lines {
		if lines[i].ID == lineID {
			m.lines[cartID] = append(lines[:i:i], lines[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *MockCartRepository) DeleteLines(_ context.Context, cartID string, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	n := int64(len(m.lines[cartID]))
	delete(m.lines, cartID)
	return n, nil
}

func (m *MockCartRepository) ListLines(_ context.Context, cartID string) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.CartLine, len(m.lines[cartID]))
	copy(out, m.lines[cartID])
	return out, nil
}

func (m *MockCartRepository) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

type MockCache struct {
	mu      sync.RWMutex
	data    map[string][]domain.CartLine
	gens    map[string]int64
	getErr  error
	gets    int
	deletes []string
}

func NewMockCache() *MockCache {
	return &MockCache{
		data: make(map[string][]domain.CartLine),
		gens: make(map[string]int64),
	}
}

func (c *MockCache) Get(_ context.Context, cartID string) ([]domain.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, c.getErr
	}
	lines, ok := c.data[cartID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return lines, nil
}

func (c *MockCache) Generation(_ context.Context, cartID string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[cartID], nil
}

func (c *MockCache) Set(_ context.Context, cartID string, generation int64, lines []domain.CartLine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[cartID] != generation {
		return cache.ErrGenerationChanged
	}
	c.data[cartID] = lines
	return nil
}

func (c *MockCache) Delete(_ context.Context, cartIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range cartIDs {
		delete(c.data, id)
		c.gens[id]++
		c.deletes = append(c.deletes, id)
	}
	return nil
}

func (c *MockCache) has(cartID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.data[cartID]
	return ok
}

type MockPrices struct {
	mu     sync.RWMutex
	prices map[domain.LineKey]int64
	err    error
}

func NewMockPrices() *MockPrices {
	return &MockPrices{prices: make(map[domain.LineKey]int64)}
}

func (p *MockPrices) set(productID string, variantID *string, price int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[domain.NewLineKey(productID, variantID)] = price
}

func (p *MockPrices) Resolve(_ context.Context, productID string, variantID *string) (domain.PriceSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.err != nil {
		return domain.PriceSnapshot{}, p.err
	}
	price, ok := p.prices[domain.NewLineKey(productID, variantID)]
	if !ok {
		return domain.PriceSnapshot{}, catalog.ErrProductNotFound
	}
	return domain.PriceSnapshot{ProductID: productID, VariantID: variantID, UnitPrice: price, ResolvedAt: time.Now()}, nil
}

func (p *MockPrices) ResolveAll(ctx context.Context, keys []domain.LineKey) (map[domain.LineKey]domain.PriceSnapshot, error) {
	out := make(map[domain.LineKey]domain.PriceSnapshot, len(keys))
	for _, k := range keys {
		snap, err := p.Resolve(ctx, k.ProductID, k.Variant())
		if err != nil {
			return nil, err
		}
		out[k] = snap
	}
	return out, nil
}

type MockProvider struct {
	mu           sync.Mutex
	customers    map[string]string
	customerErr  error
	txErr        error
	requests     []payment.TransactionRequest
	customerMeta map[string]string
	nextID       int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{customers: make(map[string]string)}
}

func (p *MockProvider) FindOrCreateCustomer(_ context.Context, email string, metadata map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.customerErr != nil {
		return "", p.customerErr
	}
	if id, ok := p.customers[email]; ok {
		return id, nil
	}
	id := "cus_" + email
	p.customers[email] = id
	p.customerMeta = metadata
	return id, nil
}

func (p *MockProvider) CreatePaymentTransaction(_ context.Context, req payment.TransactionRequest) (*payment.Transaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.txErr != nil {
		return nil, p.txErr
	}
	p.requests = append(p.requests, req)
	p.nextID++
	id := fmt.Sprintf("pi_%d", p.nextID)
	return &payment.Transaction{ID: id, ClientSecret: id + "_secret"}, nil
}

type MockDraftOrders struct {
	mu     sync.Mutex
	orders map[string]*domain.DraftOrder
	err    error
}

func NewMockDraftOrders() *MockDraftOrders {
	return &MockDraftOrders{orders: make(map[string]*domain.DraftOrder)}
}

func (m *MockDraftOrders) CreateDraftOrder(_ context.Context, order *domain.DraftOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.orders[order.TransactionID]; ok {
		return repository.ErrDuplicateDraftOrder
	}
	o := *order
	m.orders[order.TransactionID] = &o
	return nil
}

func (m *MockDraftOrders) GetDraftOrderByTransaction(_ context.Context, transactionID string) (*domain.DraftOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[transactionID]
	if !ok {
		return nil, repository.ErrDraftOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockDraftOrders) UpdateDraftOrderStatus(_ context.Context, id string, from, to domain.OrderStatus, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID != id {
			continue
		}
		if o.Status != from {
			return repository.ErrStaleDraftOrder
		}
		o.Status = to
		o.UpdatedAt = now
		return nil
	}
	return repository.ErrDraftOrderNotFound
}
