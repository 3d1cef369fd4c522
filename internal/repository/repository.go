package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
)

var (
	ErrCartNotFound        = errors.New("cart not found")
	ErrLineNotFound        = errors.New("cart line not found")
	ErrDraftOrderNotFound  = errors.New("draft order not found")
	ErrDuplicateDraftOrder = errors.New("draft order for this transaction already exists")
	ErrStaleDraftOrder     = errors.New("draft order status changed concurrently")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CartRepository stores carts and their lines.
// Consumers define this interface
type CartRepository interface {
	CreateCart(ctx context.Context, cart *domain.Cart) error
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)
	// GetOrCreateShopperCart returns the single cart of a shopper, creating it
	// when absent. Concurrent callers converge on the same cart.
	GetOrCreateShopperCart(ctx context.Context, shopperID string, now time.Time) (*domain.Cart, error)
	// MergeCarts moves every line of the anonymous cart fromID into intoID,
	// summing quantities on key collisions, then deletes fromID.
	MergeCarts(ctx context.Context, fromID, intoID string, now time.Time) error
	DeleteCart(ctx context.Context, cartID string) error
	DeleteExpiredCarts(ctx context.Context, now time.Time, limit int) ([]string, error)

	// UpsertLine inserts the line or adds its quantity to the existing line
	// with the same (cart, product, variant) key.
	UpsertLine(ctx context.Context, line *domain.CartLine) (*domain.CartLine, error)
	SetLineQuantity(ctx context.Context, cartID, lineID string, quantity int, now time.Time) (*domain.CartLine, error)
	DeleteLine(ctx context.Context, cartID, lineID string, now time.Time) (bool, error)
	DeleteLines(ctx context.Context, cartID string, now time.Time) (int64, error)
	ListLines(ctx context.Context, cartID string) ([]domain.CartLine, error)
}

type DraftOrderRepository interface {
	// CreateDraftOrder stores the order and enqueues a draft_order.created
	// outbox event in the same transaction.
	CreateDraftOrder(ctx context.Context, order *domain.DraftOrder) error
	GetDraftOrderByTransaction(ctx context.Context, transactionID string) (*domain.DraftOrder, error)
	UpdateDraftOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus, now time.Time) error
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

const (
	EventDraftOrderCreated       = "draft_order.created"
	EventDraftOrderStatusChanged = "draft_order.status_changed"
)
