package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := EscalationLockKey(uuid.New())

	release, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, key, time.Minute)
	require.True(t, errors.Is(err, ErrLockHeld))

	require.NoError(t, release(ctx))
	require.False(t, mr.Exists(key))

	again, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := EscalationLockKey(uuid.New())

	release, err := locker.Acquire(ctx, key, time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	_, err = locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	require.True(t, mr.Exists(key))
}

func TestRedisLockerRejectsBadTTL(t *testing.T) {
	locker, _ := newTestLocker(t)
	_, err := locker.Acquire(context.Background(), "k", 0)
	require.Error(t, err)
}

func TestAuditRecordValidate(t *testing.T) {
	require.Error(t, AuditRecord{Action: "create"}.Validate())
	require.NoError(t, AuditRecord{Action: "create", ResourceType: "team", ResourceID: "1"}.Validate())
}

func TestPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	require.Equal(t, Pagination{Page: 1, PerPage: 20, Total: 45, TotalPages: 3}, p)
	require.Equal(t, 0, p.Offset())

	p = NewPagination(3, 500, 250)
	require.Equal(t, MaxPerPage, p.PerPage)
	require.Equal(t, 200, p.Offset())
}

type fakeExecer struct {
	keys map[string]time.Time
	sql  []string
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	switch len(args) {
	case 3:
		key := args[0].(string)
		if _, ok := f.keys[key]; ok {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
		}
		f.keys[key] = args[2].(time.Time)
	case 1:
		switch v := args[0].(type) {
		case string:
			delete(f.keys, v)
		case time.Time:
			for k, at := range f.keys {
				if at.Before(v) {
					delete(f.keys, k)
				}
			}
		}
	}
	return pgconn.CommandTag{}, nil
}

func TestIdempotencyStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecer{keys: map[string]time.Time{}}
	store := NewIdempotencyStore(exec)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.CheckAndInsert(ctx, "k1", "documents.submit"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "k1", "documents.submit"), ErrIdempotencyConflict)
	require.Error(t, store.CheckAndInsert(ctx, "", "documents.submit"))
	require.Error(t, store.CheckAndInsert(ctx, "k2", ""))

	require.NoError(t, store.Delete(ctx, "k1"))
	require.NoError(t, store.CheckAndInsert(ctx, "k1", "documents.submit"))

	now = now.Add(96 * time.Hour)
	require.NoError(t, store.CheckAndInsert(ctx, "fresh", "documents.submit"))
	require.NoError(t, store.Cleanup(ctx, 72*time.Hour))
	require.NotContains(t, exec.keys, "k1")
	require.Contains(t, exec.keys, "fresh")

	var nilStore *IdempotencyStore
	require.NoError(t, nilStore.Cleanup(ctx, time.Hour))
}
