package sundaeredis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/tj/assert"
)

func TestConnect(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := Connect(context.Background(), Config{
			ConnectionURL:  "redis://" + mr.Addr(),
			ConnectTimeout: time.Second,
			RetryAttempts:  1,
		})
		assert.NoError(t, err)
		defer client.Close()

		assert.NoError(t, Healthcheck(client)(context.Background()))
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := Connect(context.Background(), Config{ConnectionURL: "http://nope", ConnectTimeout: time.Second})
		assert.True(t, errors.Is(err, ErrInvalidURL))
	})
}
