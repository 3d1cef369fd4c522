package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/segmentio/kafka-go"
)

// quietAttempts failures of one event are logged as warnings before the
// consumer starts reporting an outage.
const quietAttempts = 3

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type DraftOrderStore interface {
	GetDraftOrderByTransaction(ctx context.Context, transactionID string) (*domain.DraftOrder, error)
	UpdateDraftOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus, now time.Time) error
}

type CartStore interface {
	DeleteCart(ctx context.Context, cartID string) error
}

// PaymentEvent is the provider outcome for a transaction.
type PaymentEvent struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

var errSkip = errors.New("event skipped")

// PaymentEventsConsumer settles draft orders from payment outcomes. A paid
// order retires the cart it was created from.
type PaymentEventsConsumer struct {
	reader  MessageReader
	orders  DraftOrderStore
	carts   CartStore
	cache   cache.LinesCache
	log        *slog.Logger
	backoff    time.Duration
	maxBackoff time.Duration
	now        func() time.Time
}

func NewKafkaReader(topic string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "storefront",
		MaxBytes: 10e6, // 10MB
	})
}

func NewPaymentEventsConsumer(reader MessageReader, orders DraftOrderStore, carts CartStore, c cache.LinesCache, log *slog.Logger) *PaymentEventsConsumer {
	return &PaymentEventsConsumer{
		reader:  reader,
		orders:  orders,
		carts:   carts,
		cache:   c,
		log:        log,
		backoff:    500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		now:        time.Now,
	}
}

func (c *PaymentEventsConsumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *PaymentEventsConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Error("error closing kafka reader", "err", err)
	}
}

// processMessage commits an event only once it is settled or found
// unprocessable. A transient failure is retried until it clears or the
// consumer stops, so an uncommitted event is redelivered on restart.
func (c *PaymentEventsConsumer) processMessage(ctx context.Context) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.ErrorContext(ctx, "error reading payment event", "err", err)
		c.sleep(ctx, c.backoff)
		return
	}

	err = c.handleWithRetry(ctx, m.Value)
	switch {
	case errors.Is(err, errSkip):
		c.log.WarnContext(ctx, "payment event skipped", "offset", m.Offset, "reason", err)
	case err != nil:
		c.log.WarnContext(ctx, "payment event left uncommitted", "offset", m.Offset, "err", err)
		return
	}

	if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.ErrorContext(ctx, "failed to commit payment event", "offset", m.Offset, "err", err)
	}
}

func (c *PaymentEventsConsumer) handleWithRetry(ctx context.Context, value []byte) error {
	delay := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.handle(ctx, value)
		if err == nil || errors.Is(err, errSkip) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ctx.Err(), err)
		}

		if attempt <= quietAttempts {
			c.log.WarnContext(ctx, "payment event failed, retrying", "attempt", attempt, "err", err)
		} else {
			c.log.ErrorContext(ctx, "payment event still failing", "attempt", attempt, "retry_in", delay, "err", err)
		}
		if !c.sleep(ctx, delay) {
			return fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		delay = min(delay*2, c.maxBackoff)
	}
}

func (c *PaymentEventsConsumer) handle(ctx context.Context, value []byte) error {
	var event PaymentEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", errSkip, err)
	}
	next, ok := parseStatus(event.Status)
	if !ok || event.TransactionID == "" {
		return fmt.Errorf("%w: unsupported event %+v", errSkip, event)
	}

	order, err := c.orders.GetDraftOrderByTransaction(ctx, event.TransactionID)
	if errors.Is(err, repository.ErrDraftOrderNotFound) {
		return fmt.Errorf("%w: unknown transaction %s", errSkip, event.TransactionID)
	}
	if err != nil {
		return err
	}
	if order.Status == next {
		return nil
	}
	if !order.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: illegal transition %s -> %s for order %s", errSkip, order.Status, next, order.ID)
	}

	err = c.orders.UpdateDraftOrderStatus(ctx, order.ID, order.Status, next, c.now())
	if errors.Is(err, repository.ErrStaleDraftOrder) {
		return fmt.Errorf("%w: order %s changed concurrently", errSkip, order.ID)
	}
	if err != nil {
		return err
	}
	c.log.InfoContext(ctx, "draft order settled",
		"order_id", order.ID,
		"transaction_id", order.TransactionID,
		"status", next)

	if next == domain.OrderStatusPaid {
		c.retireCart(ctx, order.CartID)
	}
	return nil
}

// retireCart removes a converted cart. The order already holds its snapshot,
// so a failure here only leaves the cart for the shopper to clear.
func (c *PaymentEventsConsumer) retireCart(ctx context.Context, cartID string) {
	if err := c.carts.DeleteCart(ctx, cartID); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		c.log.ErrorContext(ctx, "failed to retire converted cart", "cart_id", cartID, "err", err)
		return
	}
	if err := c.cache.Delete(ctx, cartID); err != nil {
		c.log.WarnContext(ctx, "failed to invalidate cart cache", "cart_id", cartID, "err", err)
	}
}

// sleep waits for d and reports false if ctx ended first.
func (c *PaymentEventsConsumer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func parseStatus(s string) (domain.OrderStatus, bool) {
	switch s {
	case "paid", "succeeded":
		return domain.OrderStatusPaid, true
	case "failed", "payment_failed":
		return domain.OrderStatusFailed, true
	case "cancelled", "canceled":
		return domain.OrderStatusCancelled, true
	}
	return "", false
}
