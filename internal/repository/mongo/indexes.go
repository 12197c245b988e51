package mongo

import (
	"context"

	"alcyxob/gym-notifier/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// collectionIndexes lists the indexes backing the pipeline's query shapes.
var collectionIndexes = map[repository.Collection][]mongo.IndexModel{
	repository.CollectionUsers: {
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "_id", Value: 1}}},
	},
	repository.CollectionSessions: {
		// weekly summary: finished sessions of an athlete inside a week
		{Keys: bson.D{{Key: "athlete_id", Value: 1}, {Key: "status", Value: 1}, {Key: "end_time", Value: 1}}},
		{Keys: bson.D{{Key: "athlete_id", Value: 1}, {Key: "start_time", Value: -1}}},
	},
	repository.CollectionPlans: {
		{Keys: bson.D{{Key: "athlete_id", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "coach_id", Value: 1}}},
	},
	repository.CollectionNotifications: {
		{Keys: bson.D{{Key: "athlete_id", Value: 1}, {Key: "type", Value: 1}}},
		{Keys: bson.D{{Key: "coach_id", Value: 1}, {Key: "type", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "gym_id", Value: 1}, {Key: "type", Value: 1}, {Key: "created_at", Value: 1}}},
	},
	repository.CollectionExercises: {
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetCollation(&options.Collation{Locale: "pt", Strength: 2})},
	},
}

// EnsureIndexes creates the indexes of every collection. Failures are logged
// and do not stop startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database, log *zap.Logger) {
	for c, indexes := range collectionIndexes {
		if _, err := db.Collection(string(c)).Indexes().CreateMany(ctx, indexes); err != nil {
			log.Warn("failed to create indexes", zap.String("collection", string(c)), zap.Error(err))
		}
	}
}
