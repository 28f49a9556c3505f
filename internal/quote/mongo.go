package quote

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoQuote struct {
	Content string `bson:"content"`
	Author  string `bson:"author"`
}

type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return &Mongo{client: client, collection: client.Database(database).Collection("quotes")}, nil
}

func (m *Mongo) Random(ctx context.Context) (Quote, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "content", Value: bson.D{{Key: "$ne", Value: ""}}}}}},
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: 1}}}},
	}

	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return Quote{}, fmt.Errorf("%w: %w", ErrDatabase, err)
		}
		return Quote{}, ErrNoQuotes
	}
	var doc mongoQuote
	if err := cursor.Decode(&doc); err != nil {
		return Quote{}, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return Normalize(Quote{Content: doc.Content, Author: doc.Author})
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
