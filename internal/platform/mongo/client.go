// Package mongo owns the MongoDB connection for the process.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"bloomence/internal/platform/config"
)

// Client wraps the driver client with the application database handle and
// health checking.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and pings it so a bad URI fails at boot, not on the
// first request.
func New(ctx context.Context, cfg config.MongoConfig) (*Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}

	return &Client{client: client, db: client.Database(cfg.Database)}, nil
}

// Database returns the application database handle.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Health checks if the connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
