package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Seams for tests.
var (
	connectMongo = func(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
		return mongo.Connect(ctx, opts)
	}
	pingMongo = func(ctx context.Context, client *mongo.Client) error {
		return client.Ping(ctx, readpref.Primary())
	}
	disconnectMongo = func(ctx context.Context, client *mongo.Client) error {
		return client.Disconnect(ctx)
	}
	createMongoIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
		_, err := coll.Indexes().CreateMany(ctx, models)
		return err
	}
)

const defaultMongoTimeout = 10 * time.Second

// MongoDB holds the client and the profile collection when profiles are
// stored as documents with embedded relations.
type MongoDB struct {
	Client     *mongo.Client
	database   string
	collection string
	timeout    time.Duration
}

func NewMongoDB(uri, database, collection string, timeout time.Duration) (*MongoDB, error) {
	if timeout <= 0 {
		timeout = defaultMongoTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := connectMongo(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	if err := pingMongo(ctx, client); err != nil {
		_ = disconnectMongo(ctx, client)
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	return &MongoDB{
		Client:     client,
		database:   database,
		collection: collection,
		timeout:    timeout,
	}, nil
}

// Collection returns the profiles collection.
func (m *MongoDB) Collection() *mongo.Collection {
	return m.Client.Database(m.database).Collection(m.collection)
}

// profileIndexes covers the lookups the profile store runs: email
// uniqueness, directory filters and the candidate pool ordering.
func profileIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("profiles_email_unique"),
		},
		{
			Keys:    bson.D{{Key: "is_active", Value: 1}, {Key: "university", Value: 1}, {Key: "year_of_study", Value: 1}},
			Options: options.Index().SetName("profiles_directory"),
		},
		{
			Keys:    bson.D{{Key: "enrolled_units.unit_code", Value: 1}},
			Options: options.Index().SetName("profiles_unit_code"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("profiles_created_at"),
		},
	}
}

func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := createMongoIndexes(ctx, m.Collection(), profileIndexes()); err != nil {
		return fmt.Errorf("creating profile indexes: %w", err)
	}
	return nil
}

func (m *MongoDB) Health(ctx context.Context) error {
	return pingMongo(ctx, m.Client)
}

func (m *MongoDB) Close() error {
	if m.Client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	return disconnectMongo(ctx, m.Client)
}
