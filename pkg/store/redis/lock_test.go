package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func TestLock_SingleInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	lock := NewLock(client, "refresh:test-lock")
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, lock.IsHeld())
	assert.True(t, mr.Exists("refresh:test-lock"))

	assert.NoError(t, lock.Unlock(ctx))
	assert.False(t, lock.IsHeld())
	assert.False(t, mr.Exists("refresh:test-lock"))
}

func TestLock_MultipleInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	lock1 := NewLock(client, "refresh:multi")
	lock2 := NewLock(client, "refresh:multi")
	ctx := context.Background()

	acquired, err := lock1.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = lock2.TryLock(ctx)
	assert.NoError(t, err)
	assert.False(t, acquired, "second lock should not be acquired")

	// releasing a lock it does not hold is a no-op
	assert.NoError(t, lock2.Unlock(ctx))
	assert.True(t, mr.Exists("refresh:multi"))

	assert.NoError(t, lock1.Unlock(ctx))
	acquired, err = lock2.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)
	assert.NoError(t, lock2.Unlock(ctx))
}

func TestLock_NilClient(t *testing.T) {
	lock := NewLock(nil, "refresh:local")
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)
	assert.NoError(t, lock.Unlock(ctx))
	assert.False(t, lock.IsHeld())
}
