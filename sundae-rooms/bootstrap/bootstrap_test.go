package bootstrap

import (
	"context"
	"testing"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

func withStore(t *testing.T, store string) {
	previous := RoomsOpts.Store
	RoomsOpts.Store = store
	t.Cleanup(func() { RoomsOpts.Store = previous })
}

func TestBuildStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		withStore(t, StoreMemory)

		store, closer, err := BuildStore(ctx, zerolog.Nop())
		assert.Nil(t, err)
		assert.IsType(t, &sundaerooms.MemoryStore{}, store)
		assert.Nil(t, closer(ctx))
	})

	t.Run("redis", func(t *testing.T) {
		withStore(t, StoreRedis)
		mr := miniredis.RunT(t)
		t.Setenv("REDIS_URL", "redis://"+mr.Addr())
		t.Setenv("REDIS_KEY_PREFIX", "bootstrap")

		store, closer, err := BuildStore(ctx, zerolog.Nop())
		assert.Nil(t, err)
		assert.IsType(t, &redisstore.Store{}, store)

		_, err = store.AddConnection(ctx, "A")
		assert.Nil(t, err)
		assert.True(t, mr.Exists("bootstrap:connections"))
		assert.Nil(t, Healthcheck(ctx))
		assert.Nil(t, closer(ctx))
	})

	t.Run("unknown", func(t *testing.T) {
		withStore(t, "postgres")

		_, _, err := BuildStore(ctx, zerolog.Nop())
		assert.NotNil(t, err)
	})
}

func TestBuildServer(t *testing.T) {
	withStore(t, StoreMemory)
	sundaecli.CommonOpts.Console = true
	defer func() { sundaecli.CommonOpts.Console = false }()

	ctx := context.Background()
	transport := sundaerooms.TransportFunc(func(context.Context, sundaerooms.TransportContext, string, []byte) error {
		return nil
	})

	server, closer, err := BuildServer(ctx, sundaecli.NewService("test"), zerolog.Nop(), transport)
	assert.Nil(t, err)
	defer closer(ctx)

	assert.True(t, server.OnConnect(ctx, "A").OK())
	result := server.Broadcast().Emit(ctx, sundaerooms.Trigger{}, "hello", nil)
	assert.Equal(t, 1, result.Delivered)
}
