package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoKVStore keeps one document per device in the "profiles" collection,
// with each logical key as a string field of "values".
type MongoKVStore struct {
	collection *mongo.Collection
}

type profileDocument struct {
	Scope     string            `bson:"_id"`
	Values    map[string]string `bson:"values"`
	UpdatedAt time.Time         `bson:"updatedAt"`
}

func NewMongoKVStore(db *mongo.Database) *MongoKVStore {
	return &MongoKVStore{
		collection: db.Collection("profiles"),
	}
}

func (m *MongoKVStore) Get(ctx context.Context, scope, key string) (string, error) {
	var doc profileDocument
	opts := options.FindOne().SetProjection(bson.M{"values." + key: 1})
	err := m.collection.FindOne(ctx, bson.M{"_id": scope}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("mongo find profile %s: %w", scope, err)
	}

	v, ok := doc.Values[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (m *MongoKVStore) Set(ctx context.Context, scope, key, value string) error {
	update := bson.M{
		"$set": bson.M{
			"values." + key: value,
			"updatedAt":     time.Now(),
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := m.collection.UpdateOne(ctx, bson.M{"_id": scope}, update, opts); err != nil {
		return fmt.Errorf("mongo update profile %s: %w", scope, err)
	}
	return nil
}

func (m *MongoKVStore) Ping(ctx context.Context) error {
	return m.collection.Database().Client().Ping(ctx, readpref.Primary())
}
