package errx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapRedis(t *testing.T) {
	assert.Nil(t, WrapRedis(nil))

	err := WrapRedis(redis.Nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, redis.Nil))
	assert.Equal(t, http.StatusNotFound, StatusOf(err))

	err = WrapRedis(errors.New("connection refused"))
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Contains(t, err.Error(), RedisErrorMessage)
}

func TestWrapDB(t *testing.T) {
	err := WrapDB(fmt.Errorf("user 7: %w", ErrProfileNotFound))
	assert.True(t, errors.Is(err, ErrProfileNotFound))
	assert.Equal(t, http.StatusNotFound, StatusOf(err))

	err = WrapDB(errors.New("disk full"))
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
}

func TestAppErrorAs(t *testing.T) {
	wrapped := fmt.Errorf("turn: %w", WrapModel(errors.New("deadline")))
	var appErr *AppError
	require.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, http.StatusServiceUnavailable, appErr.Status)
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("plain")))
}
