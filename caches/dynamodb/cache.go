package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	gomediacache "github.com/dgduncan/go-media-cache"
	"github.com/dgduncan/go-media-cache/caches"
)

// Config defines the configuration options for the DynamoDB cache implementation.
type Config struct {
	ItemExpiration time.Duration // How long an item stays in the table. Written to expired_at for DynamoDB TTL deletion and independent of the media expiration.
	Table          string
}

// Cache implements the gomediacache.Cache interface using Amazon DynamoDB as the storage backend.
type Cache struct {
	client *dynamodb.Client

	table      string
	expiration time.Duration
	now        func() time.Time
}

type cacheItem struct {
	URL         string `json:"url" dynamodbav:"url"`
	Response    []byte `json:"response" dynamodbav:"response"`
	ContentType string `json:"content_type" dynamodbav:"content_type"`
	ExpiresAt   int64  `json:"expires_at" dynamodbav:"expires_at"` // unix millis, 0 when the media never expires
	CreatedAt   int64  `json:"created_at" dynamodbav:"created_at"`
	ExpiredAt   int64  `json:"expired_at" dynamodbav:"expired_at"`
}

func key(k string) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.Marshal(k)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{"url": av}, nil
}

// Get retrieves a cache item from DynamoDB by its key.
// Returns caches.ErrNoCacheItem if the item doesn't exist.
func (c *Cache) Get(ctx context.Context, k string) (*gomediacache.CacheItem, error) {
	itemKey, err := key(k)
	if err != nil {
		return nil, err
	}

	output, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		Key:            itemKey,
		ConsistentRead: aws.Bool(true),
		TableName:      aws.String(c.table),
	})
	if err != nil {
		return nil, err
	}

	if output.Item == nil {
		return nil, caches.ErrNoCacheItem
	}

	var item cacheItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return nil, err
	}

	return fromItem(item), nil
}

// Set stores a cache item in DynamoDB with the provided key and value, replacing
// any previous item. PutItem is atomic for a single item.
func (c *Cache) Set(ctx context.Context, k string, v *gomediacache.CacheItem) error {
	av, err := attributevalue.MarshalMap(toItem(k, v, c.now(), c.expiration))
	if err != nil {
		return err
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      av,
	})
	return err
}

// Delete removes the item stored under the key.
func (c *Cache) Delete(ctx context.Context, k string) error {
	itemKey, err := key(k)
	if err != nil {
		return err
	}

	_, err = c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.table),
		Key:       itemKey,
	})
	return err
}

func toItem(k string, v *gomediacache.CacheItem, now time.Time, retention time.Duration) cacheItem {
	i := cacheItem{
		URL:         k,
		Response:    v.Response,
		ContentType: v.ContentType,
		CreatedAt:   now.Unix(),
		ExpiredAt:   now.Add(retention).Unix(),
	}
	if !v.Expiration.IsZero() {
		i.ExpiresAt = v.Expiration.UnixMilli()
	}
	return i
}

func fromItem(i cacheItem) *gomediacache.CacheItem {
	ci := &gomediacache.CacheItem{
		Response:    i.Response,
		ContentType: i.ContentType,
	}
	if i.ExpiresAt != 0 {
		ci.Expiration = time.UnixMilli(i.ExpiresAt).UTC()
	}
	return ci
}

// New creates a new DynamoDB cache instance with the provided configuration.
// It validates the configuration and sets default values where appropriate.
// Returns an error if the client is nil or if the configuration is invalid.
func New(_ context.Context, client *dynamodb.Client, config *Config) (*Cache, error) {
	if client == nil {
		return nil, caches.ValidationError{
			Reason: "nil client",
		}
	}

	if config == nil || config.Table == "" {
		return nil, caches.ValidationError{
			Reason: "empty table name",
		}
	}

	itemExpiration := config.ItemExpiration
	if itemExpiration == 0 {
		itemExpiration = caches.DefaultExpiredDuration
	}

	return &Cache{
		client: client,

		table:      config.Table,
		expiration: itemExpiration,
		now:        time.Now,
	}, nil
}
