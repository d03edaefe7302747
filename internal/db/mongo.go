package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo bundles the client with the database the record store uses
type Mongo struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// ConnectMongo dials uri, verifies the server answers and selects dbName.
func ConnectMongo(ctx context.Context, uri, dbName string) (*Mongo, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetAppName("maestro").
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Mongo{Client: client, DB: client.Database(dbName)}, nil
}

// Close disconnects the client
func (m *Mongo) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
