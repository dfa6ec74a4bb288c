package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/catalog-feed/internal/domain/product"
	"github.com/xenking/catalog-feed/internal/storage/storagetest"
)

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) product.Repository {
		return openTestStore(t, "")
	})
}

func TestStore_InsertDuplicateID(t *testing.T) {
	s := openTestStore(t, "")
	ctx := context.Background()

	p := storagetest.Fixture("gauze")
	require.NoError(t, s.Insert(ctx, p))
	require.Error(t, s.Insert(ctx, p))
}

func TestStore_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	p := storagetest.Fixture("gauze")

	s, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, p))
	require.NoError(t, s.Close())

	s = openTestStore(t, dir)
	got, err := s.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	require.NoError(t, s.Ping(ctx))
}

func TestStore_ListCanceled(t *testing.T) {
	s := openTestStore(t, "")
	require.NoError(t, s.Insert(context.Background(), storagetest.Fixture("a")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.List(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
