package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{collection: db.Collection("carts")}
}

// cartDoc is the Mongo persistence model. Prices travel as Decimal128:
// decimal.Decimal has no exported fields, so the driver's default codec
// would flatten it to an empty document and decode it back as zero.
type cartDoc struct {
	ID        string        `bson:"_id,omitempty"`
	UserID    string        `bson:"user_id"`
	Items     []lineItemDoc `bson:"items"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

type lineItemDoc struct {
	ID          uuid.UUID            `bson:"id"`
	ProductID   uuid.UUID            `bson:"product_id"`
	VariantID   *uuid.UUID           `bson:"variant_id,omitempty"`
	ProductName string               `bson:"product_name"`
	VariantName string               `bson:"variant_name,omitempty"`
	UnitPrice   primitive.Decimal128 `bson:"unit_price"`
	Quantity    int                  `bson:"quantity"`
	AddedAt     time.Time            `bson:"added_at"`
}

func toLineItemDocs(items []LineItem) ([]lineItemDoc, error) {
	docs := make([]lineItemDoc, len(items))
	for i, item := range items {
		price, err := primitive.ParseDecimal128(item.UnitPrice.String())
		if err != nil {
			return nil, fmt.Errorf("encode unit price %q: %w", item.UnitPrice, err)
		}
		docs[i] = lineItemDoc{
			ID:          item.ID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			UnitPrice:   price,
			Quantity:    item.Quantity,
			AddedAt:     item.AddedAt,
		}
	}
	return docs, nil
}

func (d *cartDoc) toDomain() (*Cart, error) {
	cart := &Cart{
		ID:        d.ID,
		UserID:    d.UserID,
		Items:     make([]LineItem, len(d.Items)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for i, item := range d.Items {
		price, err := decimal.NewFromString(item.UnitPrice.String())
		if err != nil {
			return nil, fmt.Errorf("decode unit price %q: %w", item.UnitPrice, err)
		}
		cart.Items[i] = LineItem{
			ID:          item.ID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			UnitPrice:   price,
			Quantity:    item.Quantity,
			AddedAt:     item.AddedAt,
		}
	}
	return cart, nil
}

func (m *mongoRepository) GetCart(ctx context.Context, userID string) (*Cart, error) {
	var doc cartDoc

	filter := bson.M{"user_id": userID}
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return doc.toDomain()
}

func (m *mongoRepository) UpsertCart(ctx context.Context, cart *Cart) error {
	now := time.Now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	items, err := toLineItemDocs(cart.Items)
	if err != nil {
		return err
	}

	filter := bson.M{"user_id": cart.UserID}
	update := bson.M{"$set": bson.M{
		"user_id":    cart.UserID,
		"items":      items,
		"created_at": cart.CreatedAt,
		"updated_at": cart.UpdatedAt,
	}}
	opts := options.Update().SetUpsert(true)

	_, err = m.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}

	return nil
}

func (m *mongoRepository) DeleteCart(ctx context.Context, userID string) error {
	filter := bson.M{"user_id": userID}

	result, err := m.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

// CreateIndexes sets up the unique user index and an idle-cart TTL so
// abandoned carts age out on their own.
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days
		},
	}

	_, err := db.Collection("carts").Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
