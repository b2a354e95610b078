package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// Tiers is the opened pair of persistence tiers.
type Tiers struct {
	Session KV
	Durable KV

	closers []io.Closer
}

// OpenTiers opens the tiers selected by cfg. dbPath is used by the sqlite
// durable tier.
func OpenTiers(ctx context.Context, cfg config.StorageConfig, dbPath string, log *logging.Logger) (*Tiers, error) {
	t := &Tiers{}

	switch cfg.Session {
	case "", "memory":
		t.Session = NewMemoryKV()
	default:
		return nil, fmt.Errorf("unknown session storage %q", cfg.Session)
	}

	switch cfg.Durable {
	case "", "sqlite":
		db, err := Open(dbPath, log)
		if err != nil {
			return nil, err
		}
		t.Durable = db.KV()
		t.closers = append(t.closers, db)
	case "redis":
		r, err := OpenRedis(ctx, cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		t.Durable = r
		t.closers = append(t.closers, r)
	case "memory":
		t.Durable = NewMemoryKV()
	default:
		return nil, fmt.Errorf("unknown durable storage %q", cfg.Durable)
	}

	return t, nil
}

// Bundles returns a bundle store over both tiers.
func (t *Tiers) Bundles() *BundleStore { return NewBundleStore(t.Session, t.Durable) }

// AppIDs returns the app id cache on the durable tier.
func (t *Tiers) AppIDs() *AppIDCache { return NewAppIDCache(t.Durable) }

// Selections returns the knowledge-base selection cache on the durable tier.
func (t *Tiers) Selections() *SelectionCache { return NewSelectionCache(t.Durable) }

// Close closes every opened backend.
func (t *Tiers) Close() error {
	var errs []error
	for _, c := range t.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
