package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kgcore/pkg/domain-errors"
	"kgcore/pkg/platform/tx"
)

func TestMemoryUnitOfWork(t *testing.T) {
	ctx := context.Background()

	t.Run("commit keeps writes", func(t *testing.T) {
		uow := NewMemoryUnitOfWork(time.Second)
		undone := false
		err := uow.Run(ctx, uuid.New(), func(ctx context.Context) error {
			tx.RecordUndo(ctx, func() { undone = true })
			return nil
		})
		require.NoError(t, err)
		assert.False(t, undone)
	})

	t.Run("failure undoes writes newest first", func(t *testing.T) {
		uow := NewMemoryUnitOfWork(time.Second)
		var order []int
		boom := errors.New("boom")
		err := uow.Run(ctx, uuid.New(), func(ctx context.Context) error {
			tx.RecordUndo(ctx, func() { order = append(order, 1) })
			tx.RecordUndo(ctx, func() { order = append(order, 2) })
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []int{2, 1}, order)
	})

	t.Run("cancelled context aborts before running", func(t *testing.T) {
		uow := NewMemoryUnitOfWork(time.Second)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		ran := false
		err := uow.Run(cancelled, uuid.New(), func(context.Context) error {
			ran = true
			return nil
		})
		assert.False(t, ran)
		assert.True(t, dErrors.Is(err, dErrors.CodeTimeout))
		assert.Contains(t, err.Error(), "transaction aborted")
	})

	t.Run("deadline passed while running rolls back", func(t *testing.T) {
		uow := NewMemoryUnitOfWork(20 * time.Millisecond)
		undone := false
		err := uow.Run(ctx, uuid.New(), func(ctx context.Context) error {
			tx.RecordUndo(ctx, func() { undone = true })
			<-ctx.Done()
			return nil
		})
		assert.True(t, dErrors.Is(err, dErrors.CodeTimeout))
		assert.True(t, undone)
	})

	t.Run("same instance is serialized", func(t *testing.T) {
		uow := NewMemoryUnitOfWork(time.Second)
		id := uuid.New()
		counter := 0
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = uow.Run(ctx, id, func(context.Context) error {
					current := counter
					time.Sleep(time.Microsecond)
					counter = current + 1
					return nil
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, counter)
	})
}

func TestShardOf(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, shardOf(id), shardOf(id))
	assert.Less(t, shardOf(id), uint32(numShards))
}
