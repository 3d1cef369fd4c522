package domain

import "time"

// AnonymousCartTTL is how long a cart without a shopper stays resolvable.
const AnonymousCartTTL = 7 * 24 * time.Hour

type Cart struct {
	ID        string     `json:"id"`
	ShopperID *string    `json:"shopper_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func NewAnonymousCart(id string, now time.Time, ttl time.Duration) *Cart {
	expires := now.Add(ttl)
	return &Cart{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: &expires,
	}
}

func (c *Cart) IsAnonymous() bool {
	return c.ShopperID == nil
}

// IsOpen reports whether the cart may still be resolved and mutated.
// Shopper carts never expire.
func (c *Cart) IsOpen(now time.Time) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return now.Before(*c.ExpiresAt)
}

func (c *Cart) OwnedBy(shopperID string) bool {
	return c.ShopperID != nil && *c.ShopperID == shopperID
}

type CartLine struct {
	ID        string    `json:"id"`
	CartID    string    `json:"cart_id"`
	ProductID string    `json:"product_id"`
	VariantID *string   `json:"variant_id,omitempty"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	Subtotal  int64     `json:"subtotal"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l CartLine) Key() LineKey {
	return NewLineKey(l.ProductID, l.VariantID)
}

// LineKey identifies a purchasable item. VariantID is empty when the
// product is bought without a variant.
type LineKey struct {
	ProductID string
	VariantID string
}

func NewLineKey(productID string, variantID *string) LineKey {
	k := LineKey{ProductID: productID}
	if variantID != nil {
		k.VariantID = *variantID
	}
	return k
}

func (k LineKey) Variant() *string {
	if k.VariantID == "" {
		return nil
	}
	v := k.VariantID
	return &v
}

func (k LineKey) String() string {
	if k.VariantID == "" {
		return k.ProductID
	}
	return k.ProductID + "/" + k.VariantID
}

// PriceSnapshot is the catalog price of one item at a point in time.
type PriceSnapshot struct {
	ProductID  string
	VariantID  *string
	UnitPrice  int64
	ResolvedAt time.Time
}

func TotalQuantity(lines []CartLine) int {
	total := 0
	for _, l := range lines {
		total += l.Quantity
	}
	return total
}

func LinesSubtotal(lines []CartLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Subtotal
	}
	return total
}
