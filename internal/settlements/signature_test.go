package settlements

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"reference":"stl_1","external_id":"gw-1","outcome":"succeeded"}`)
	signature := Sign("topsecret", body)

	assert.True(t, VerifySignature("topsecret", body, signature))
	assert.False(t, VerifySignature("other", body, signature))
	assert.False(t, VerifySignature("topsecret", append(body, ' '), signature))
	assert.False(t, VerifySignature("topsecret", body, "not-hex"))
	assert.False(t, VerifySignature("", body, Sign("", body)))
}

type memoryStore struct {
	keys map[string]string
	err  error
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func TestIdempotencyGuard(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{keys: map[string]string{}}
	guard, err := NewIdempotencyGuard(store, time.Hour, "gateway")
	require.NoError(t, err)

	seen, err := guard.CheckAndMark(ctx, "gw-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "gw-1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Delete(ctx, "gw-1"))
	seen, err = guard.CheckAndMark(ctx, "gw-1")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = guard.CheckAndMark(ctx, "")
	assert.Error(t, err)

	store.err = errors.New("redis down")
	_, err = guard.CheckAndMark(ctx, "gw-2")
	assert.Error(t, err)

	_, err = NewIdempotencyGuard(nil, time.Hour, "gateway")
	assert.Error(t, err)
}
