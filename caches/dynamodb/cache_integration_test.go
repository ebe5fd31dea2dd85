//go:build integration

package dynamodb

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gomediacache "github.com/dgduncan/go-media-cache"
	"github.com/dgduncan/go-media-cache/caches"
)

// setup expects DynamoDB Local listening on AWS_ENDPOINT_URL_DYNAMODB.
func setup(t *testing.T) *dynamodb.Client {
	t.Log("setup called")

	awsconfig, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion("local"))
	require.NoError(t, err)

	c := dynamodb.NewFromConfig(awsconfig)
	require.NoError(t, CreateTable(context.Background(), c, "test"))

	t.Cleanup(func() {
		cleanup(t, c)
	})

	return c
}

func cleanup(t *testing.T, c *dynamodb.Client) {
	t.Log("cleanup called")

	output, err := c.ListTables(context.Background(), &dynamodb.ListTablesInput{})
	if err != nil {
		t.Log(err)
		return
	}

	for _, v := range output.TableNames {
		if _, err := c.DeleteTable(context.Background(), &dynamodb.DeleteTableInput{
			TableName: aws.String(v),
		}); err != nil {
			t.Log(err)
		}
	}
}

func TestCacheIntegration(t *testing.T) {
	c := setup(t)
	ctx := context.Background()

	d, err := New(ctx, c, &Config{
		Table: "test",

		ItemExpiration: 1 * time.Minute,
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		key      string
		item     *gomediacache.CacheItem
		cacheHit bool
	}{
		{
			name:     "golden path - cache hit",
			key:      "https://media.example/hit.gif",
			item:     &gomediacache.CacheItem{Response: []byte("gif"), ContentType: "image/gif"},
			cacheHit: true,
		},
		{
			name:     "golden path - cache miss",
			key:      "https://media.example/miss.gif",
			cacheHit: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if tt.item != nil {
				require.NoError(t, d.Set(ctx, tt.key, tt.item))
			}

			resp, err := d.Get(ctx, tt.key)
			if tt.cacheHit {
				require.NoError(t, err)
				assert.Equal(t, tt.item.Response, resp.Response)

				require.NoError(t, d.Delete(ctx, tt.key))
				_, err = d.Get(ctx, tt.key)
			}
			assert.ErrorIs(t, err, caches.ErrNoCacheItem)
		})
	}
}
