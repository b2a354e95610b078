// Package knowledge manages which knowledge bases an agent's chatbot app
// answers from.
package knowledge

import (
	"context"
	"fmt"
	"slices"

	"github.com/soyeahso/agentdesk/internal/dify"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// DefaultTopK is the retrieval depth written with every selection.
const DefaultTopK = 4

// Filter splits selection into ids present in catalog and ids that are
// not. Order follows selection and repeated ids are kept once.
func Filter(selection []string, catalog []dify.Dataset) (kept, dropped []string) {
	known := make(map[string]bool, len(catalog))
	for _, d := range catalog {
		known[d.ID] = true
	}
	seen := make(map[string]bool, len(selection))
	kept = []string{}
	for _, id := range selection {
		if seen[id] {
			continue
		}
		seen[id] = true
		if known[id] {
			kept = append(kept, id)
		} else {
			dropped = append(dropped, id)
		}
	}
	return kept, dropped
}

// DatasetConfig builds the dataset section of a model config enabling ids.
// topK <= 0 means DefaultTopK.
func DatasetConfig(ids []string, topK int) dify.DatasetConfigs {
	cfg := dify.EmptyDatasets()
	if topK > 0 {
		cfg.TopK = topK
	}
	for _, id := range ids {
		cfg.Datasets.Datasets = append(cfg.Datasets.Datasets, dify.DatasetRef{
			Dataset: dify.DatasetToggle{Enabled: true, ID: id},
		})
	}
	return cfg
}

// Catalog lists the knowledge bases that can be selected.
type Catalog interface {
	Datasets(ctx context.Context) ([]dify.Dataset, error)
}

// SelectionStore persists each agent's selection.
type SelectionStore interface {
	Get(ctx context.Context, agentID string) ([]string, bool, error)
	Put(ctx context.Context, agentID string, ids []string) error
}

// Service reconciles stored selections with the live catalog.
type Service struct {
	catalog Catalog
	store   SelectionStore
	log     *logging.Logger
}

// NewService creates a Service.
func NewService(catalog Catalog, store SelectionStore, log *logging.Logger) *Service {
	return &Service{catalog: catalog, store: store, log: log.Sub("knowledge")}
}

// Selection is an agent's cleaned selection alongside the catalog it was
// checked against.
type Selection struct {
	AgentID  string         `json:"agentId"`
	Selected []string       `json:"selected"`
	Dropped  []string       `json:"dropped,omitempty"`
	Catalog  []dify.Dataset `json:"catalog"`
}

// Load reads agentID's stored selection, falling back to initial when
// nothing is stored, and drops ids missing from the catalog. A selection
// that changed is written back.
func (s *Service) Load(ctx context.Context, agentID string, initial []string) (Selection, error) {
	catalog, err := s.catalog.Datasets(ctx)
	if err != nil {
		return Selection{}, fmt.Errorf("listing knowledge bases: %w", err)
	}

	stored, ok, err := s.store.Get(ctx, agentID)
	if err != nil {
		s.log.Warn().Err(err).Str("agent", agentID).Msg("reading stored selection failed")
	}
	if !ok {
		stored = initial
	}

	kept, dropped := Filter(stored, catalog)
	if len(dropped) > 0 || !ok {
		if err := s.store.Put(ctx, agentID, kept); err != nil {
			return Selection{}, fmt.Errorf("saving selection: %w", err)
		}
	}
	if len(dropped) > 0 {
		s.log.Info().Str("agent", agentID).Strs("dropped", dropped).Msg("removed unknown knowledge bases from selection")
	}
	return Selection{AgentID: agentID, Selected: kept, Dropped: dropped, Catalog: catalog}, nil
}

// Save filters ids against the catalog and stores the result.
func (s *Service) Save(ctx context.Context, agentID string, ids []string) (Selection, error) {
	catalog, err := s.catalog.Datasets(ctx)
	if err != nil {
		return Selection{}, fmt.Errorf("listing knowledge bases: %w", err)
	}
	kept, dropped := Filter(ids, catalog)
	if err := s.store.Put(ctx, agentID, kept); err != nil {
		return Selection{}, fmt.Errorf("saving selection: %w", err)
	}
	return Selection{AgentID: agentID, Selected: kept, Dropped: dropped, Catalog: catalog}, nil
}

// Equal reports whether two selections hold the same ids in any order.
func Equal(a, b []string) bool {
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(slices.Compact(x), slices.Compact(y))
}
