package memory

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/flowforge/flowforge/types"
)

// Mongo is a Store backed by a MongoDB collection. Documents are keyed by
// namespace+key; expiry rides on a TTL index over expires_at.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

type mongoDoc struct {
	Namespace string     `bson:"namespace"`
	Key       string     `bson:"key"`
	Value     any        `bson:"value"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
}

// NewMongo connects to MongoDB and prepares the memory collection.
func NewMongo(ctx context.Context, uri, database, collection string, logger *zap.Logger) (*Mongo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, types.NewError(types.ErrMemoryBackend, "mongo connect failed").WithCause(err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, types.NewError(types.ErrMemoryBackend, "mongo ping failed").WithCause(err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "namespace", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return nil, types.NewError(types.ErrMemoryBackend, "mongo index setup failed").WithCause(err)
	}
	return &Mongo{
		client: client,
		coll:   coll,
		logger: logger.With(zap.String("component", "memory.mongo")),
	}, nil
}

func (s *Mongo) Read(ctx context.Context, namespace, key string) (any, bool, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.D{
		{Key: "namespace", Value: namespace},
		{Key: "key", Value: key},
	}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.NewError(types.ErrMemoryBackend, "mongo find failed").WithCause(err)
	}
	if doc.ExpiresAt != nil && time.Now().After(*doc.ExpiresAt) {
		return nil, false, nil
	}
	return doc.Value, true, nil
}

func (s *Mongo) ReadAll(ctx context.Context, namespace string) (map[string]any, error) {
	cur, err := s.coll.Find(ctx, bson.D{{Key: "namespace", Value: namespace}})
	if err != nil {
		return nil, types.NewError(types.ErrMemoryBackend, "mongo find failed").WithCause(err)
	}
	defer cur.Close(ctx)

	out := make(map[string]any)
	now := time.Now()
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err != nil {
			s.logger.Warn("skipping undecodable document", zap.Error(err))
			continue
		}
		if doc.ExpiresAt != nil && now.After(*doc.ExpiresAt) {
			continue
		}
		out[doc.Key] = doc.Value
	}
	if err := cur.Err(); err != nil {
		return nil, types.NewError(types.ErrMemoryBackend, "mongo cursor failed").WithCause(err)
	}
	return out, nil
}

func (s *Mongo) Write(ctx context.Context, namespace, key string, value any, opts WriteOptions) error {
	if !opts.Overwrite {
		existing, ok, err := s.Read(ctx, namespace, key)
		if err != nil {
			return err
		}
		if ok {
			value = MergeValues(existing, value)
		}
	}
	doc := mongoDoc{Namespace: namespace, Key: key, Value: value}
	if opts.TTL > 0 {
		exp := time.Now().Add(opts.TTL)
		doc.ExpiresAt = &exp
	}
	_, err := s.coll.ReplaceOne(ctx,
		bson.D{{Key: "namespace", Value: namespace}, {Key: "key", Value: key}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return types.NewError(types.ErrMemoryBackend, "mongo upsert failed").WithCause(err)
	}
	return nil
}

func (s *Mongo) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.coll.DeleteOne(ctx, bson.D{
		{Key: "namespace", Value: namespace},
		{Key: "key", Value: key},
	})
	if err != nil {
		return types.NewError(types.ErrMemoryBackend, "mongo delete failed").WithCause(err)
	}
	return nil
}

func (s *Mongo) Close() error {
	return s.client.Disconnect(context.Background())
}
