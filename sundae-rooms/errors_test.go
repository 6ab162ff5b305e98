package sundaerooms

import (
	"errors"
	"testing"

	"github.com/tj/assert"
)

func TestWrapStorageError(t *testing.T) {
	assert.Nil(t, WrapStorageError("noop", nil))

	cause := errors.New("timeout")
	err := WrapStorageError("add connection", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "registry add connection failed: timeout", err.Error())

	var se *StorageError
	assert.True(t, errors.As(WrapStorageError("outer", err), &se))
	assert.Equal(t, "add connection", se.Op)
}
