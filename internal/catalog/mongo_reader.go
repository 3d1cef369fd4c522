package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const productsCollection = "products"

// ProductDocument is a catalog entry with its variants embedded. A variant
// without a price sells at the product price.
type ProductDocument struct {
	ID         string            `bson:"_id" json:"id"`
	Name       string            `bson:"name" json:"name"`
	PriceCents int64             `bson:"price_cents" json:"price_cents"`
	Variants   []VariantDocument `bson:"variants,omitempty" json:"variants,omitempty"`
}

type VariantDocument struct {
	ID         string `bson:"id" json:"id"`
	Name       string `bson:"name" json:"name"`
	PriceCents *int64 `bson:"price_cents,omitempty" json:"price_cents,omitempty"`
}

type MongoReader struct {
	collection *mongo.Collection
}

func NewMongoReader(db *mongo.Database) *MongoReader {
	return &MongoReader{collection: db.Collection(productsCollection)}
}

func (r *MongoReader) GetUnitPrice(ctx context.Context, productID string, variantID *string) (int64, error) {
	var doc ProductDocument
	opts := options.FindOne().SetProjection(bson.M{"price_cents": 1, "variants.id": 1, "variants.price_cents": 1})
	err := r.collection.FindOne(ctx, bson.M{"_id": productID}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("failed to get product: %w", err)
	}

	if variantID == nil {
		return doc.PriceCents, nil
	}
	for _, v := range doc.Variants {
		if v.ID != *variantID {
			continue
		}
		if v.PriceCents != nil {
			return *v.PriceCents, nil
		}
		return doc.PriceCents, nil
	}
	return 0, ErrVariantNotFound
}

// UpsertProduct replaces the catalog document of a product.
func (r *MongoReader) UpsertProduct(ctx context.Context, doc ProductDocument) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}
