//go:build !integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/dgduncan/go-media-cache/caches"
)

func TestNewNilDB(t *testing.T) {
	cache, err := New(context.Background(), nil, &Config{})
	if !errors.Is(err, caches.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if cache != nil {
		t.Error("expected nil cache")
	}
}

func TestEmbeddedQueries(t *testing.T) {
	for name, q := range map[string]string{
		"create_table":   queryCreateTable,
		"delete_expired": queryDeleteExpired,
		"delete_item":    queryDeleteItem,
		"fetch_by_id":    queryFetchByID,
		"insert_item":    queryInsertItem,
	} {
		if q == "" {
			t.Errorf("query %s is empty", name)
		}
	}
}
