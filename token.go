package gomediacache

import (
	"context"
)

// TriggerFunc resolves a Token. Calling it more than once has no further effect.
type TriggerFunc func()

// Token is a single-resolve cancellation signal. Any number of fetches may
// observe the same Token; once it is triggered every one of them ends with
// ErrCancelled. A Token never resolves on its own.
type Token struct {
	ctx context.Context
}

// NewToken returns a Token derived from parent and the function that triggers it.
// The Token is also resolved when parent is cancelled.
func NewToken(parent context.Context) (*Token, TriggerFunc) {
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithCancelCause(parent)

	return &Token{ctx: ctx}, func() { cancel(ErrCancelled) }
}

// Context returns a context that is done once the Token is triggered.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Done returns a channel closed when the Token is triggered.
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Cancelled reports whether the Token has been triggered.
func (t *Token) Cancelled() bool {
	return t.ctx.Err() != nil
}

// Err returns ErrCancelled once the Token is triggered and nil before.
func (t *Token) Err() error {
	if t.ctx.Err() == nil {
		return nil
	}
	return ErrCancelled
}
