package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentdesk/internal/dify"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/store"
)

type fakeCatalog struct {
	datasets []dify.Dataset
	err      error
}

func (f fakeCatalog) Datasets(context.Context) ([]dify.Dataset, error) { return f.datasets, f.err }

func catalogOf(ids ...string) []dify.Dataset {
	out := make([]dify.Dataset, len(ids))
	for i, id := range ids {
		out[i] = dify.Dataset{ID: id, Name: "kb " + id}
	}
	return out
}

func TestFilter(t *testing.T) {
	kept, dropped := Filter([]string{"a", "gone", "b", "a"}, catalogOf("a", "b", "c"))
	assert.Equal(t, []string{"a", "b"}, kept)
	assert.Equal(t, []string{"gone"}, dropped)

	kept, dropped = Filter(nil, catalogOf("a"))
	assert.Equal(t, []string{}, kept)
	assert.Nil(t, dropped)
}

func TestDatasetConfig(t *testing.T) {
	cfg := DatasetConfig([]string{"kb-1", "kb-2"}, 0)
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"retrieval_model": "single",
		"datasets": {"datasets": [
			{"dataset": {"enabled": true, "id": "kb-1"}},
			{"dataset": {"enabled": true, "id": "kb-2"}}
		]},
		"top_k": 4,
		"reranking_enable": false
	}`, string(data))

	assert.Equal(t, 8, DatasetConfig(nil, 8).TopK)
	assert.Empty(t, DatasetConfig(nil, 0).Datasets.Datasets)
}

func newService(catalog Catalog) (*Service, *store.SelectionCache) {
	cache := store.NewSelectionCache(store.NewMemoryKV())
	return NewService(catalog, cache, logging.New(nil, "silent")), cache
}

func TestLoad_DropsUnknownAndPersists(t *testing.T) {
	svc, cache := newService(fakeCatalog{datasets: catalogOf("a", "b")})
	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, "agent-1", []string{"a", "deleted", "b"}))

	sel, err := svc.Load(ctx, "agent-1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sel.Selected)
	assert.Equal(t, []string{"deleted"}, sel.Dropped)
	assert.Len(t, sel.Catalog, 2)

	stored, ok, err := cache.Get(ctx, "agent-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, stored)
}

func TestLoad_UsesInitialWhenNothingStored(t *testing.T) {
	svc, cache := newService(fakeCatalog{datasets: catalogOf("a")})
	ctx := context.Background()

	sel, err := svc.Load(ctx, "agent-1", []string{"a", "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, sel.Selected)

	stored, ok, _ := cache.Get(ctx, "agent-1")
	assert.True(t, ok)
	assert.Equal(t, []string{"a"}, stored)
}

func TestLoad_CatalogError(t *testing.T) {
	svc, _ := newService(fakeCatalog{err: errors.New("console down")})
	_, err := svc.Load(context.Background(), "agent-1", nil)
	assert.ErrorContains(t, err, "console down")
}

func TestSave(t *testing.T) {
	svc, cache := newService(fakeCatalog{datasets: catalogOf("a", "b")})
	ctx := context.Background()

	sel, err := svc.Save(ctx, "agent-1", []string{"b", "nope"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, sel.Selected)

	stored, _, _ := cache.Get(ctx, "agent-1")
	assert.Equal(t, []string{"b"}, stored)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal([]string{"a", "b"}, []string{"b", "a"}))
	assert.True(t, Equal(nil, []string{}))
	assert.False(t, Equal([]string{"a"}, []string{"a", "b"}))
}
