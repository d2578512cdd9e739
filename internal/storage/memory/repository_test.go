package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flatwatch/internal/listing"
	"flatwatch/internal/storage"
)

func TestRepository(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	ok, err := repo.Exists(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	m := storage.NewMarker(listing.Listing{ID: 1, Title: "a"}, time.Now())
	created, err := repo.Put(ctx, m)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Put(ctx, m)
	require.NoError(t, err)
	assert.False(t, created)

	ok, err = repo.Exists(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, repo.Len())
	assert.NoError(t, repo.Close())
}

func TestValidateTableName(t *testing.T) {
	assert.NoError(t, storage.ValidateTableName("known_listings"))
	for _, bad := range []string{"", "1abc", "a-b", "x; DROP TABLE y", "a.b"} {
		assert.Error(t, storage.ValidateTableName(bad), bad)
	}
}
