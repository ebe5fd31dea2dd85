package gomediacache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gomediacache "github.com/dgduncan/go-media-cache"
)

func TestToken(t *testing.T) {
	t.Parallel()

	token, trigger := gomediacache.NewToken(context.Background())
	assert.False(t, token.Cancelled())
	assert.NoError(t, token.Err())

	const observers = 8
	var wg sync.WaitGroup
	for i := 0; i < observers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-token.Done()
		}()
	}

	trigger()
	trigger() // idempotent
	wg.Wait()

	assert.True(t, token.Cancelled())
	assert.ErrorIs(t, token.Err(), gomediacache.ErrCancelled)
	assert.ErrorIs(t, context.Cause(token.Context()), gomediacache.ErrCancelled)
	assert.True(t, gomediacache.IsCancelled(token.Context().Err()))
}

func TestTokenParentCancelled(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	token, _ := gomediacache.NewToken(parent)

	cancel()

	select {
	case <-token.Done():
	case <-time.After(time.Second):
		require.Fail(t, "token not resolved by parent")
	}
	assert.ErrorIs(t, token.Err(), gomediacache.ErrCancelled)
}

func TestTokenNeverResolvesOnItsOwn(t *testing.T) {
	t.Parallel()

	token, _ := gomediacache.NewToken(nil)

	select {
	case <-token.Done():
		t.Fatal("token resolved without a trigger")
	case <-time.After(20 * time.Millisecond):
	}
}
