package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultDatabaseName = "haven"

var (
	client   *mongo.Client
	database *mongo.Database
)

// Connect establishes connection to MongoDB and applies pending migrations.
func Connect(databaseURL string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(databaseURL)

	// Configure connection pool
	clientOptions.SetMaxPoolSize(50)
	clientOptions.SetMinPoolSize(2)
	clientOptions.SetMaxConnIdleTime(30 * time.Second)
	clientOptions.SetRetryWrites(true)
	clientOptions.SetRetryReads(true)

	// Profile writes are read back immediately when a session starts
	clientOptions.SetReadPreference(readpref.Primary())

	var err error
	client, err = mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDatabaseName(databaseURL)
	database = client.Database(dbName)

	logrus.Infof("Connected to MongoDB, database: %s", dbName)

	if err := RunMigrations(database); err != nil {
		logrus.Warnf("Migration warning: %v", err)
	}

	return database, nil
}

// Disconnect closes the MongoDB connection
func Disconnect() error {
	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		logrus.Errorf("Error disconnecting from MongoDB: %v", err)
		return err
	}

	logrus.Info("Disconnected from MongoDB")
	return nil
}

// extractDatabaseName takes the path segment of a MongoDB URI, ignoring admin.
func extractDatabaseName(uri string) string {
	for i := len(uri) - 1; i >= 0; i-- {
		if uri[i] != '/' {
			continue
		}
		if i > 0 && uri[i-1] == '/' {
			// The scheme separator; the URI has no path
			break
		}
		dbName := uri[i+1:]
		for j, char := range dbName {
			if char == '?' || char == '&' {
				dbName = dbName[:j]
				break
			}
		}
		if dbName != "" && dbName != "admin" {
			return dbName
		}
		break
	}
	return defaultDatabaseName
}
