package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	gomediacache "github.com/dgduncan/go-media-cache"
	"github.com/dgduncan/go-media-cache/caches"
)

// DefaultCollection is used when Config.Collection is empty.
const DefaultCollection = "media_cache"

// Config defines the configuration options for the MongoDB cache implementation.
type Config struct {
	Collection string

	// ItemExpiration is how long documents are retained. A TTL index on expired_at
	// lets MongoDB delete them; it is independent of the media expiration.
	ItemExpiration time.Duration
}

// Cache implements gomediacache.Cache with one document per URL.
type Cache struct {
	collection *mongo.Collection

	expiration time.Duration
	now        func() time.Time
}

type document struct {
	URL         string     `bson:"_id"`
	Response    []byte     `bson:"response"`
	ContentType string     `bson:"content_type"`
	ExpiresAt   *time.Time `bson:"expires_at,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"`
	ExpiredAt   time.Time  `bson:"expired_at"`
}

// Get retrieves a cache item by its key.
// Returns caches.ErrNoCacheItem if the item doesn't exist.
func (c *Cache) Get(ctx context.Context, k string) (*gomediacache.CacheItem, error) {
	var doc document
	if err := c.collection.FindOne(ctx, bson.M{"_id": k}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, caches.ErrNoCacheItem
		}
		return nil, err
	}

	item := &gomediacache.CacheItem{
		Response:    doc.Response,
		ContentType: doc.ContentType,
	}
	if doc.ExpiresAt != nil {
		item.Expiration = doc.ExpiresAt.UTC()
	}

	return item, nil
}

// Set replaces the document for the key, inserting it when absent.
func (c *Cache) Set(ctx context.Context, k string, v *gomediacache.CacheItem) error {
	now := c.now().UTC()

	doc := document{
		URL:         k,
		Response:    v.Response,
		ContentType: v.ContentType,
		CreatedAt:   now,
		ExpiredAt:   now.Add(c.expiration),
	}
	if !v.Expiration.IsZero() {
		exp := v.Expiration.UTC()
		doc.ExpiresAt = &exp
	}

	_, err := c.collection.ReplaceOne(ctx, bson.M{"_id": k}, doc, options.Replace().SetUpsert(true))
	return err
}

// Delete removes the document for the key.
func (c *Cache) Delete(ctx context.Context, k string) error {
	_, err := c.collection.DeleteOne(ctx, bson.M{"_id": k})
	return err
}

// New creates the cache over db and ensures the retention TTL index exists.
func New(ctx context.Context, db *mongo.Database, config *Config) (*Cache, error) {
	if db == nil {
		return nil, caches.ValidationError{
			Reason: "nil database",
		}
	}

	name := DefaultCollection
	expiration := caches.DefaultExpiredDuration
	if config != nil {
		if config.Collection != "" {
			name = config.Collection
		}
		if config.ItemExpiration > 0 {
			expiration = config.ItemExpiration
		}
	}

	collection := db.Collection(name)

	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expired_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ttl index: %w", err)
	}

	return &Cache{
		collection: collection,
		expiration: expiration,
		now:        time.Now,
	}, nil
}

// Connect opens a client for url and verifies it with a ping.
func Connect(ctx context.Context, url string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return client, nil
}
