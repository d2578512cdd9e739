package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flatwatch/internal/listing"
	"flatwatch/internal/storage"
)

func marker(id int64) *storage.Marker {
	return storage.NewMarker(listing.Listing{ID: id, Title: "Wohnung", Price: "450 €"}, time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))
}

func loadMarker(t *testing.T, dir, name string) storage.Marker {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	var m storage.Marker
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestExistsWithoutBaseDir(t *testing.T) {
	repo, err := NewRepository(filepath.Join(t.TempDir(), "not", "yet"), nil)
	require.NoError(t, err)

	ok, err := repo.Exists(context.Background(), 633)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutCreatesOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	repo, err := NewRepository(dir, nil)
	require.NoError(t, err)
	ctx := context.Background()

	created, err := repo.Put(ctx, marker(633))
	require.NoError(t, err)
	assert.True(t, created)

	ok, err := repo.Exists(ctx, 633)
	require.NoError(t, err)
	assert.True(t, ok)

	second := marker(633)
	second.Listing.Title = "changed"
	created, err = repo.Put(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	m := loadMarker(t, dir, "633.json")
	assert.Equal(t, "Wohnung", m.Listing.Title, "existing marker is never overwritten")
	assert.Len(t, m.CheckSum, 64)

	// временные файлы не остаются
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "633.json", entries[0].Name())
}

func TestConcurrentPutSingleWinner(t *testing.T) {
	repo, err := NewRepository(t.TempDir(), nil)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := repo.Put(context.Background(), marker(7))
			assert.NoError(t, err)
			if created {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestPutWithoutHardLinks(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewRepository(dir, nil)
	require.NoError(t, err)
	repo.link = func(oldname, newname string) error {
		return &os.LinkError{Op: "link", Old: oldname, New: newname, Err: syscall.EPERM}
	}
	ctx := context.Background()

	created, err := repo.Put(ctx, marker(7))
	require.NoError(t, err)
	assert.True(t, created)

	second := marker(7)
	second.Listing.Title = "changed"
	created, err = repo.Put(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, "Wohnung", loadMarker(t, dir, "7.json").Listing.Title)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPutReportsOtherLinkErrors(t *testing.T) {
	repo, err := NewRepository(t.TempDir(), nil)
	require.NoError(t, err)
	cause := errors.New("disk on fire")
	repo.link = func(string, string) error { return cause }

	_, err = repo.Put(context.Background(), marker(8))
	assert.ErrorIs(t, err, cause)
}

func TestPutFailsWhenDirIsFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	repo, err := NewRepository(filepath.Join(blocker, "cache"), nil)
	require.NoError(t, err)

	_, err = repo.Put(context.Background(), marker(1))
	assert.Error(t, err)
}

func TestNewRepositoryRequiresPath(t *testing.T) {
	_, err := NewRepository("", nil)
	assert.Error(t, err)
}
