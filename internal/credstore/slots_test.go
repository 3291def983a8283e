package credstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/florianilch/zmsession/internal/credstore"
)

// exerciseSlot checks the Slot contract shared by every backend.
func exerciseSlot(t *testing.T, slot credstore.Slot) {
	t.Helper()
	ctx := context.Background()

	_, err := slot.Get(ctx)
	require.ErrorIs(t, err, credstore.ErrNotFound)

	require.NoError(t, slot.Set(ctx, []byte(`{"v":1}`), time.Now().Add(time.Hour)))
	got, err := slot.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, `{"v":1}`, string(got))

	require.NoError(t, slot.Set(ctx, []byte(`{"v":2}`), time.Now().Add(time.Hour)))
	got, err = slot.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, `{"v":2}`, string(got))

	require.NoError(t, slot.Delete(ctx))
	_, err = slot.Get(ctx)
	require.ErrorIs(t, err, credstore.ErrNotFound)

	// Deleting an absent key is not an error
	require.NoError(t, slot.Delete(ctx))
}

func TestMemorySlot(t *testing.T) {
	exerciseSlot(t, credstore.NewMemorySlot())
}

func TestFileSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	slot, err := credstore.NewFileSlot(path)
	require.NoError(t, err)

	exerciseSlot(t, slot)

	t.Run("written with owner-only permissions", func(t *testing.T) {
		require.NoError(t, slot.Set(context.Background(), []byte("x"), time.Time{}))
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0600), info.Mode().Perm())

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		require.Len(t, entries, 1, "temp files must not be left behind")
	})

	t.Run("refuses insecure permissions", func(t *testing.T) {
		require.NoError(t, os.Chmod(path, 0644))
		_, err := slot.Get(context.Background())
		require.Error(t, err)
		require.NotErrorIs(t, err, credstore.ErrNotFound)
	})

	t.Run("honours cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, slot.Set(ctx, []byte("x"), time.Time{}), context.Canceled)
	})

	_, err = credstore.NewFileSlot("")
	require.Error(t, err)
}

func TestKeyringSlot(t *testing.T) {
	keyring.MockInit()

	slot, err := credstore.NewKeyringSlot("zmsession-test", "admin")
	require.NoError(t, err)
	exerciseSlot(t, slot)

	_, err = credstore.NewKeyringSlot("", "admin")
	require.Error(t, err)
	_, err = credstore.NewKeyringSlot("zmsession-test", "")
	require.Error(t, err)
}

func TestRedisSlot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	slot, err := credstore.NewRedisSlot(client, credstore.DefaultKey)
	require.NoError(t, err)
	exerciseSlot(t, slot)

	t.Run("key expires with the session", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, slot.Set(ctx, []byte("x"), time.Now().Add(time.Hour)))
		require.True(t, mr.Exists(credstore.DefaultKey))

		mr.FastForward(61 * time.Minute)
		_, err := slot.Get(ctx)
		require.ErrorIs(t, err, credstore.ErrNotFound)
	})

	t.Run("already expired value is not written", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, slot.Set(ctx, []byte("x"), time.Now().Add(-time.Second)))
		require.False(t, mr.Exists(credstore.DefaultKey))
	})

	t.Run("store round trip", func(t *testing.T) {
		ctx := context.Background()
		store, err := credstore.NewStore(slot)
		require.NoError(t, err)

		record := testRecord()
		record.AccessExpiresAt = time.UnixMilli(time.Now().Add(time.Hour).UnixMilli())
		record.RefreshExpiresAt = time.UnixMilli(time.Now().Add(24 * time.Hour).UnixMilli())
		require.NoError(t, store.Save(ctx, record))

		got, ok := store.Load(ctx)
		require.True(t, ok)
		require.Equal(t, record, got)
		require.Greater(t, mr.TTL(credstore.DefaultKey), 23*time.Hour)
	})

	_, err = credstore.NewRedisSlot(client, "")
	require.Error(t, err)
}
