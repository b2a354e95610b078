package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// BundleKey is the tier key for an agent's configuration bundle.
func BundleKey(agentID string) string { return NamespaceBundle + "_" + agentID }

// AppIDKey is the tier key for the app id resolved from an API key. The
// key itself is hashed so secrets never land in storage.
func AppIDKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return NamespaceAppID + "_" + hex.EncodeToString(sum[:16])
}

// SelectionKey is the tier key for an agent's knowledge-base selection.
func SelectionKey(agentID string) string { return NamespaceSelection + "_" + agentID }

// Tier names reported by BundleStore.Load.
const (
	TierSession = "session"
	TierDurable = "durable"
)

// BundleStore mirrors configuration bundles into both tiers.
type BundleStore struct {
	session KV
	durable KV
}

// NewBundleStore creates a bundle store over the two tiers.
func NewBundleStore(session, durable KV) *BundleStore {
	return &BundleStore{session: session, durable: durable}
}

// Save writes b to both tiers. A failure in one tier does not skip the other.
func (s *BundleStore) Save(ctx context.Context, agentID string, b domain.Bundle) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding bundle: %w", err)
	}
	key := BundleKey(agentID)
	return errors.Join(
		s.session.Set(ctx, key, data),
		s.durable.Set(ctx, key, data),
	)
}

// Load reads the session tier, then the durable tier. It reports which
// tier held the bundle, or "" when neither did.
func (s *BundleStore) Load(ctx context.Context, agentID string) (domain.Bundle, string, error) {
	key := BundleKey(agentID)
	for _, tier := range []struct {
		name string
		kv   KV
	}{{TierSession, s.session}, {TierDurable, s.durable}} {
		data, err := tier.kv.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.Bundle{}, "", err
		}
		var b domain.Bundle
		if err := json.Unmarshal(data, &b); err != nil {
			return domain.Bundle{}, "", fmt.Errorf("decoding %s bundle for %s: %w", tier.name, agentID, err)
		}
		return b, tier.name, nil
	}
	return domain.Bundle{}, "", nil
}

// Delete removes the bundle from both tiers.
func (s *BundleStore) Delete(ctx context.Context, agentID string) error {
	key := BundleKey(agentID)
	return errors.Join(s.session.Delete(ctx, key), s.durable.Delete(ctx, key))
}

// AppIDCache maps API keys to resolved app ids.
type AppIDCache struct {
	kv KV
}

// NewAppIDCache creates a cache on kv.
func NewAppIDCache(kv KV) *AppIDCache { return &AppIDCache{kv: kv} }

// Get returns the cached app id for apiKey.
func (c *AppIDCache) Get(ctx context.Context, apiKey string) (string, bool, error) {
	data, err := c.kv.Get(ctx, AppIDKey(apiKey))
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// Put caches appID for apiKey.
func (c *AppIDCache) Put(ctx context.Context, apiKey, appID string) error {
	return c.kv.Set(ctx, AppIDKey(apiKey), []byte(appID))
}

// Forget drops the cached id for apiKey.
func (c *AppIDCache) Forget(ctx context.Context, apiKey string) error {
	return c.kv.Delete(ctx, AppIDKey(apiKey))
}

// SelectionCache stores each agent's knowledge-base selection.
type SelectionCache struct {
	kv KV
}

// NewSelectionCache creates a cache on kv.
func NewSelectionCache(kv KV) *SelectionCache { return &SelectionCache{kv: kv} }

// Get returns the cached selection for agentID.
func (c *SelectionCache) Get(ctx context.Context, agentID string) ([]string, bool, error) {
	data, err := c.kv.Get(ctx, SelectionKey(agentID))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, false, fmt.Errorf("decoding selection for %s: %w", agentID, err)
	}
	return ids, true, nil
}

// Put stores the selection for agentID.
func (c *SelectionCache) Put(ctx context.Context, agentID string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, SelectionKey(agentID), data)
}
