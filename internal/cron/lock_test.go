package cron

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	data map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryLockStore) DelIfValue(_ context.Context, key, value string) (bool, error) {
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memoryLockStore) LockKey(name string) string { return "lock:" + name }

func TestRedisLockIsExclusive(t *testing.T) {
	store := &memoryLockStore{data: map[string]string{}}
	first, err := NewRedisLock(store, "billing-cron", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "billing-cron", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, second.Release(context.Background()))
	require.Contains(t, store.data, "lock:billing-cron")

	require.NoError(t, first.Release(context.Background()))
	require.Empty(t, store.data)

	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockKeepsTakenOverLock(t *testing.T) {
	store := &memoryLockStore{data: map[string]string{}}
	lock, err := NewRedisLock(store, "billing-cron", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	store.data["lock:billing-cron"] = "another-replica"
	require.NoError(t, lock.Release(context.Background()))
	require.Equal(t, "another-replica", store.data["lock:billing-cron"])
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "x", time.Minute)
	require.Error(t, err)
	_, err = NewRedisLock(&memoryLockStore{}, "", time.Minute)
	require.Error(t, err)

	lock, err := NewRedisLock(&memoryLockStore{data: map[string]string{}}, "x", 0)
	require.NoError(t, err)
	require.Equal(t, defaultLockTTL, lock.ttl)
}
