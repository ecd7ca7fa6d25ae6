// Package dbtest holds test doubles for the db package.
package dbtest

import (
	"context"
	"sync"
)

// Transactor runs fn directly. It counts calls and, when Err is set, fails
// without running fn, as a failed BEGIN would.
type Transactor struct {
	mu    sync.Mutex
	Calls int
	Err   error
}

func (t *Transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	t.Calls++
	err := t.Err
	t.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(ctx)
}
