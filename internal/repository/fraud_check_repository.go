package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"payment-orchestrator/internal/models"
)

// FraudCheckRepository persists fraud analysis audit records in MongoDB.
// Writes are best-effort from the detector's point of view.
type FraudCheckRepository struct {
	collection *mongo.Collection
}

func NewFraudCheckRepository(db *mongo.Database) *FraudCheckRepository {
	return &FraudCheckRepository{
		collection: db.Collection("fraud_checks"),
	}
}

func (r *FraudCheckRepository) InsertCheck(ctx context.Context, result *models.FraudCheckResult) error {
	_, err := r.collection.InsertOne(ctx, result)
	return err
}

// RecentScores returns a customer's fraud scores since the given time,
// newest first.
func (r *FraudCheckRepository) RecentScores(ctx context.Context, customerID string, since time.Time) ([]float64, error) {
	filter := bson.M{
		"customer_id": customerID,
		"created_at":  bson.M{"$gte": since},
	}
	opts := options.Find().SetSort(bson.M{"created_at": -1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var scores []float64
	for cursor.Next(ctx) {
		var result models.FraudCheckResult
		if err := cursor.Decode(&result); err != nil {
			return nil, err
		}
		scores = append(scores, result.Score)
	}

	return scores, cursor.Err()
}
