package repository_test

import (
	"context"
	"testing"

	"AytoSync/internal/model"
	"AytoSync/internal/repository"
	"AytoSync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetaRepository(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewMetaRepository(db)
	ctx := context.Background()

	_, ok, err := repo.GetValue(ctx, model.MetaKeyDBVersion)
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := repo.Upsert(ctx, model.MetaKeyDBVersion, "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", first.Value)

	second, err := repo.Upsert(ctx, model.MetaKeyDBVersion, "v2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "v2", second.Value)

	value, ok, err := repo.GetValue(ctx, model.MetaKeyDBVersion)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", value)

	assert.EqualValues(t, 1, countRows(t, db, &model.Meta{}))
}

func TestMetaRepository_EmptyKey(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := repository.NewMetaRepository(db)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, model.MetaKeyDataHash, "h1")
	require.NoError(t, err)

	_, ok, err := repo.GetValue(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Upsert(ctx, "", "x")
	assert.Error(t, err)
}
