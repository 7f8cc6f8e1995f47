package repository

import (
	"context"
	"errors"

	"workorder-service/internal/domain"
	"workorder-service/internal/domain/entity"
	"workorder-service/internal/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoWorkOrderRepository implements the persistence gateway over a MongoDB
// collection. The full work-order document, audit trail included, is written
// on every save.
type MongoWorkOrderRepository struct {
	collection *mongo.Collection
}

// NewMongoWorkOrderRepository creates the gateway and its indexes.
func NewMongoWorkOrderRepository(db *mongo.Database) repository.WorkOrderRepository {
	collection := db.Collection("work_orders")

	ctx := context.Background()
	siteStatusIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "site", Value: 1}, {Key: "status", Value: 1}},
	}
	collection.Indexes().CreateOne(ctx, siteStatusIndex)

	deletedIndex := mongo.IndexModel{
		Keys: bson.M{"deleted": 1},
	}
	collection.Indexes().CreateOne(ctx, deletedIndex)

	return &MongoWorkOrderRepository{collection: collection}
}

// Save upserts the whole document keyed by the work-order id.
func (r *MongoWorkOrderRepository) Save(ctx context.Context, order *entity.WorkOrder) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": order.ID}, order, opts)
	return err
}

// Load fetches one order by id, soft-deleted ones included.
func (r *MongoWorkOrderRepository) Load(ctx context.Context, id string) (*entity.WorkOrder, error) {
	var order entity.WorkOrder
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// HardDelete removes the document irreversibly.
func (r *MongoWorkOrderRepository) HardDelete(ctx context.Context, id string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// ListOpen returns every non-terminal, non-deleted order across all sites.
func (r *MongoWorkOrderRepository) ListOpen(ctx context.Context) ([]*entity.WorkOrder, error) {
	filter := bson.M{
		"deleted": false,
		"status": bson.M{"$in": []entity.WorkOrderStatus{
			entity.StatusScheduled,
			entity.StatusReady,
			entity.StatusActive,
			entity.StatusPaused,
		}},
	}
	return r.find(ctx, filter)
}

// ListDeleted returns soft-deleted orders not yet hard-removed.
func (r *MongoWorkOrderRepository) ListDeleted(ctx context.Context) ([]*entity.WorkOrder, error) {
	return r.find(ctx, bson.M{"deleted": true})
}

func (r *MongoWorkOrderRepository) find(ctx context.Context, filter bson.M) ([]*entity.WorkOrder, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []*entity.WorkOrder
	for cursor.Next(ctx) {
		var order entity.WorkOrder
		if err := cursor.Decode(&order); err != nil {
			return nil, err
		}
		orders = append(orders, &order)
	}
	return orders, cursor.Err()
}
