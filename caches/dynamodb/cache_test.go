//go:build !integration

package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/go-cmp/cmp"

	gomediacache "github.com/dgduncan/go-media-cache"
	"github.com/dgduncan/go-media-cache/caches"
)

func TestNewDynamoDBCache(t *testing.T) {
	tests := []struct {
		name          string
		client        *dynamodb.Client
		config        *Config
		expectedCache *Cache
		expectedErr   error
	}{
		{
			name:   "nil client returns error",
			client: nil,
			config: &Config{
				Table:          "test-table",
				ItemExpiration: time.Hour,
			},
			expectedCache: nil,
			expectedErr:   caches.ErrValidation,
		},
		{
			name:          "empty table returns error",
			client:        &dynamodb.Client{},
			config:        &Config{},
			expectedCache: nil,
			expectedErr:   caches.ErrValidation,
		},
		{
			name:   "zero item expiration uses default",
			client: &dynamodb.Client{},
			config: &Config{
				Table:          "test-table",
				ItemExpiration: 0,
			},
			expectedCache: &Cache{
				table:      "test-table",
				expiration: caches.DefaultExpiredDuration,
			},
			expectedErr: nil,
		},
		{
			name:   "custom item expiration",
			client: &dynamodb.Client{},
			config: &Config{
				Table:          "test-table",
				ItemExpiration: time.Hour,
			},
			expectedCache: &Cache{
				table:      "test-table",
				expiration: time.Hour,
			},
			expectedErr: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cache, err := New(context.Background(), tt.client, tt.config)

			if !errors.Is(err, tt.expectedErr) {
				t.Errorf("expected error %v, got %v", tt.expectedErr, err)
			}

			if tt.expectedCache == nil {
				if cache != nil {
					t.Error("expected nil cache")
				}
				return
			}

			if cache.table != tt.expectedCache.table {
				t.Errorf("expected table %s, got %s", tt.expectedCache.table, cache.table)
			}

			if cache.expiration != tt.expectedCache.expiration {
				t.Errorf("expected expiration %v, got %v", tt.expectedCache.expiration, cache.expiration)
			}
		})
	}
}

func TestItemConversion(t *testing.T) {
	now := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   gomediacache.CacheItem
	}{
		{
			name: "with expiration",
			in: gomediacache.CacheItem{
				Response:    []byte("gif"),
				ContentType: "image/gif",
				Expiration:  now.Add(6 * time.Hour),
			},
		},
		{
			name: "without expiration",
			in: gomediacache.CacheItem{
				Response:    []byte("gif"),
				ContentType: "image/gif",
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			i := toItem("https://media.example/a.gif", &tt.in, now, time.Hour)
			if i.ExpiredAt != now.Add(time.Hour).Unix() {
				t.Errorf("expected expired_at %d, got %d", now.Add(time.Hour).Unix(), i.ExpiredAt)
			}

			got := fromItem(i)
			if diff := cmp.Diff(&tt.in, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
