package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *MockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *MockReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *MockReader) Close() error {
	r.closed = true
	return nil
}

type MockOrders struct {
	mu        sync.Mutex
	orders    map[string]*domain.DraftOrder
	getErr    error
	updateErr error
	gets      int
	updates   int
}

func (m *MockOrders) GetDraftOrderByTransaction(_ context.Context, transactionID string) (*domain.DraftOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	o, ok := m.orders[transactionID]
	if !ok {
		return nil, repository.ErrDraftOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrders) UpdateDraftOrderStatus(_ context.Context, id string, from, to domain.OrderStatus, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, o := range m.orders {
		if o.ID == id {
			if o.Status != from {
				return repository.ErrStaleDraftOrder
			}
			o.Status = to
			return nil
		}
	}
	return repository.ErrDraftOrderNotFound
}

type MockCarts struct {
	deleted []string
	err     error
}

func (m *MockCarts) DeleteCart(_ context.Context, cartID string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, cartID)
	return nil
}

type MockCache struct {
	deleted []string
}

func (c *MockCache) Get(context.Context, string) ([]domain.CartLine, error)     { return nil, nil }
func (c *MockCache) Generation(context.Context, string) (int64, error)          { return 0, nil }
func (c *MockCache) Set(context.Context, string, int64, []domain.CartLine) error { return nil }
func (c *MockCache) Delete(_ context.Context, cartIDs ...string) error {
	c.deleted = append(c.deleted, cartIDs...)
	return nil
}

type fixture struct {
	reader *MockReader
	orders *MockOrders
	carts  *MockCarts
	cache  *MockCache
	sut    *PaymentEventsConsumer
}

func newFixture(status domain.OrderStatus) *fixture {
	f := &fixture{
		reader: &MockReader{},
		orders: &MockOrders{orders: map[string]*domain.DraftOrder{
			"pi_1": {ID: "d1", TransactionID: "pi_1", CartID: "c1", Status: status},
		}},
		carts: &MockCarts{},
		cache: &MockCache{},
	}
	f.sut = NewPaymentEventsConsumer(f.reader, f.orders, f.carts, f.cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.sut.backoff = time.Millisecond
	f.sut.maxBackoff = 4 * time.Millisecond
	return f
}

func (f *fixture) setGetErr(err error) {
	f.orders.mu.Lock()
	defer f.orders.mu.Unlock()
	f.orders.getErr = err
}

func (f *fixture) getCalls() int {
	f.orders.mu.Lock()
	defer f.orders.mu.Unlock()
	return f.orders.gets
}

func (f *fixture) commits() int {
	f.reader.mu.Lock()
	defer f.reader.mu.Unlock()
	return len(f.reader.committed)
}

func (f *fixture) run() (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sut.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (f *fixture) status() domain.OrderStatus {
	return f.orders.orders["pi_1"].Status
}

func TestHandle_PaidRetiresCart(t *testing.T) {
	f := newFixture(domain.OrderStatusPending)

	err := f.sut.handle(context.Background(), []byte(`{"transaction_id":"pi_1","status":"succeeded"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, f.status())
	assert.Equal(t, []string{"c1"}, f.carts.deleted)
	assert.Equal(t, []string{"c1"}, f.cache.deleted)
}

func TestHandle_FailedKeepsCart(t *testing.T) {
	for _, status := range []string{"failed", "cancelled", "canceled"} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(domain.OrderStatusPending)

			err := f.sut.handle(context.Background(), []byte(`{"transaction_id":"pi_1","status":"`+status+`"}`))
			require.NoError(t, err)
			assert.True(t, f.status().IsTerminal())
			assert.NotEqual(t, domain.OrderStatusPaid, f.status())
			assert.Empty(t, f.carts.deleted)
		})
	}
}

func TestHandle_Skips(t *testing.T) {
	tests := []struct {
		name    string
		initial domain.OrderStatus
		payload string
	}{
		{"malformed", domain.OrderStatusPending, `{"transaction_id":`},
		{"unknown status", domain.OrderStatusPending, `{"transaction_id":"pi_1","status":"processing"}`},
		{"missing transaction", domain.OrderStatusPending, `{"status":"paid"}`},
		{"unknown transaction", domain.OrderStatusPending, `{"transaction_id":"pi_9","status":"paid"}`},
		{"illegal transition", domain.OrderStatusFailed, `{"transaction_id":"pi_1","status":"paid"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.initial)
			err := f.sut.handle(context.Background(), []byte(tt.payload))
			assert.ErrorIs(t, err, errSkip)
			assert.Equal(t, tt.initial, f.status())
			assert.Empty(t, f.carts.deleted)
		})
	}
}

func TestHandle_RedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(domain.OrderStatusPending)
	payload := []byte(`{"transaction_id":"pi_1","status":"paid"}`)

	require.NoError(t, f.sut.handle(context.Background(), payload))
	require.NoError(t, f.sut.handle(context.Background(), payload))
	assert.Equal(t, 1, f.orders.updates)
	assert.Len(t, f.carts.deleted, 1)
}

func TestHandle_StaleUpdateSkipped(t *testing.T) {
	f := newFixture(domain.OrderStatusPending)
	f.orders.updateErr = repository.ErrStaleDraftOrder

	err := f.sut.handle(context.Background(), []byte(`{"transaction_id":"pi_1","status":"paid"}`))
	assert.ErrorIs(t, err, errSkip)
	assert.Empty(t, f.carts.deleted)
}

func TestHandle_CartAlreadyGone(t *testing.T) {
	f := newFixture(domain.OrderStatusPending)
	f.carts.err = repository.ErrCartNotFound

	err := f.sut.handle(context.Background(), []byte(`{"transaction_id":"pi_1","status":"paid"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, f.status())
	assert.Equal(t, []string{"c1"}, f.cache.deleted)
}

func TestHandleWithRetry_RetriesUntilStoreRecovers(t *testing.T) {
	f := newFixture(domain.OrderStatusPending)
	f.setGetErr(errors.New("connection refused"))
	go func() {
		for f.getCalls() < quietAttempts+2 {
			time.Sleep(time.Millisecond)
		}
		f.setGetErr(nil)
	}()

	err := f.sut.handleWithRetry(context.Background(), []byte(`{"transaction_id":"pi_1","status":"paid"}`))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, f.getCalls(), quietAttempts+2)
	assert.Equal(t, domain.OrderStatusPaid, f.status())
}

func TestHandleWithRetry_StopsWithContext(t *testing.T) {
	f := newFixture(domain.OrderStatusPending)
	f.setGetErr(errors.New("connection refused"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := f.sut.handleWithRetry(ctx, []byte(`{"transaction_id":"pi_1","status":"paid"}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, errSkip)
	assert.Equal(t, domain.OrderStatusPending, f.status())
}

func TestRun_OutageDoesNotCommitEvent(t *testing.T) {
	f := newFixture(domain.OrderStatusPending)
	f.setGetErr(errors.New("connection refused"))
	f.reader.queue = []kafka.Message{
		{Offset: 7, Value: []byte(`{"transaction_id":"pi_1","status":"paid"}`)},
	}
	stop := f.run()
	defer stop()

	require.Eventually(t, func() bool {
		return f.getCalls() > 2*quietAttempts
	}, time.Second, time.Millisecond)
	assert.Zero(t, f.commits())

	f.setGetErr(nil)
	require.Eventually(t, func() bool {
		return f.commits() == 1
	}, time.Second, time.Millisecond)

	f.orders.mu.Lock()
	defer f.orders.mu.Unlock()
	assert.Equal(t, domain.OrderStatusPaid, f.orders.orders["pi_1"].Status)
}

func TestRun_ShutdownDuringOutageLeavesEventUncommitted(t *testing.T) {
	f := newFixture(domain.OrderStatusPending)
	f.setGetErr(errors.New("connection refused"))
	f.reader.queue = []kafka.Message{
		{Offset: 7, Value: []byte(`{"transaction_id":"pi_1","status":"paid"}`)},
	}
	stop := f.run()

	require.Eventually(t, func() bool {
		return f.getCalls() >= 2
	}, time.Second, time.Millisecond)
	stop()

	assert.Zero(t, f.commits())
	assert.Empty(t, f.carts.deleted)
}

func TestRun_CommitsSettledAndSkippedEvents(t *testing.T) {
	f := newFixture(domain.OrderStatusPending)
	f.reader.queue = []kafka.Message{
		{Offset: 1, Value: []byte(`garbage`)},
		{Offset: 2, Value: []byte(`{"transaction_id":"pi_1","status":"paid"}`)},
	}
	stop := f.run()

	require.Eventually(t, func() bool {
		return f.commits() == 2
	}, time.Second, 5*time.Millisecond)
	stop()

	f.orders.mu.Lock()
	defer f.orders.mu.Unlock()
	assert.Equal(t, domain.OrderStatusPaid, f.orders.orders["pi_1"].Status)

	f.sut.Close()
	assert.True(t, f.reader.closed)
}
