// Package appid resolves the provisioning console's application id for an
// agent from its chatbot API key.
package appid

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/soyeahso/agentdesk/internal/dify"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/metrics"
	"github.com/soyeahso/agentdesk/internal/provider"
)

var (
	// ErrUnresolved means no source produced an application id.
	ErrUnresolved = errors.New("could not determine the app ID for this agent; check that the agent's chatbot API key is configured")
	// ErrInvalidAppID means the id stayed malformed after one corrective search.
	ErrInvalidAppID = errors.New("resolved app ID is not a valid UUID")
	// ErrNoAPIKey means the agent has no chatbot key to resolve from.
	ErrNoAPIKey = errors.New("no chatbot API key configured for this agent")
)

var uuidPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Valid reports whether id has the UUID shape the console uses.
func Valid(id string) bool {
	return uuidPattern.MatchString(id)
}

// Source says where an application id came from.
type Source string

const (
	SourceCache  Source = "cache"
	SourceAgent  Source = "agent"
	SourceSearch Source = "search"
)

// Cache maps API keys to resolved application ids.
type Cache interface {
	Get(ctx context.Context, apiKey string) (string, bool, error)
	Put(ctx context.Context, apiKey, appID string) error
	Forget(ctx context.Context, apiKey string) error
}

// Searcher finds the app that owns an API key.
type Searcher interface {
	FindAppByKey(ctx context.Context, apiKey string) (dify.AppMatch, error)
}

// Resolution is a resolved id and its source.
type Resolution struct {
	AppID  string `json:"appId"`
	Source Source `json:"source"`
}

// Resolver resolves application ids: cache first, then the loaded agent,
// then a by-key search.
type Resolver struct {
	cache   Cache
	search  Searcher
	metrics *metrics.Metrics
	log     *logging.Logger
}

// New creates a Resolver. m may be nil.
func New(cache Cache, search Searcher, m *metrics.Metrics, log *logging.Logger) *Resolver {
	return &Resolver{cache: cache, search: search, metrics: m, log: log.Sub("appid")}
}

// Resolve returns the application id for the agent's chatbot key. agent
// may be nil when no configuration is loaded.
func (r *Resolver) Resolve(ctx context.Context, apiKey string, agent *domain.Agent) (Resolution, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" && agent != nil {
		apiKey = agent.ChatbotKey
	}
	if apiKey == "" {
		return Resolution{}, ErrNoAPIKey
	}
	log := r.log.With("apiKey", provider.MaskKey(apiKey))

	if id, ok, err := r.cache.Get(ctx, apiKey); err != nil {
		log.Warn().Err(err).Msg("app id cache read failed")
	} else if ok {
		if Valid(id) {
			r.metrics.RecordResolution(string(SourceCache))
			return Resolution{AppID: id, Source: SourceCache}, nil
		}
		log.Warn().Str("appId", id).Msg("dropping malformed cached app id")
		if err := r.cache.Forget(ctx, apiKey); err != nil {
			log.Warn().Err(err).Msg("app id cache delete failed")
		}
	}

	res := Resolution{Source: SourceAgent}
	if agent != nil {
		res.AppID = agent.AppID
	}
	if res.AppID == "" {
		id, err := r.lookup(ctx, apiKey)
		if err != nil {
			return Resolution{}, err
		}
		res = Resolution{AppID: id, Source: SourceSearch}
	}

	if !Valid(res.AppID) {
		if res.Source == SourceSearch {
			return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidAppID, res.AppID)
		}
		log.Warn().Str("appId", res.AppID).Msg("agent app id is malformed, searching by key")
		id, err := r.lookup(ctx, apiKey)
		if err != nil {
			return Resolution{}, err
		}
		if !Valid(id) {
			return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidAppID, id)
		}
		res = Resolution{AppID: id, Source: SourceSearch}
	}

	if err := r.cache.Put(ctx, apiKey, res.AppID); err != nil {
		log.Warn().Err(err).Msg("app id cache write failed")
	}
	r.metrics.RecordResolution(string(res.Source))
	log.Debug().Str("appId", res.AppID).Str("source", string(res.Source)).Msg("app id resolved")
	return res, nil
}

func (r *Resolver) lookup(ctx context.Context, apiKey string) (string, error) {
	if r.search == nil {
		return "", ErrUnresolved
	}
	match, err := r.search.FindAppByKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		r.log.Warn().Err(err).Msg("by-key search failed")
		return "", fmt.Errorf("%w: %v", ErrUnresolved, err)
	}
	if match.AppID == "" {
		return "", ErrUnresolved
	}
	return match.AppID, nil
}

// Remember caches an id learned elsewhere, such as from association.
func (r *Resolver) Remember(ctx context.Context, apiKey, appID string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return ErrNoAPIKey
	}
	if !Valid(appID) {
		return fmt.Errorf("%w: %q", ErrInvalidAppID, appID)
	}
	return r.cache.Put(ctx, apiKey, appID)
}

// Forget drops the cached id for apiKey.
func (r *Resolver) Forget(ctx context.Context, apiKey string) error {
	return r.cache.Forget(ctx, strings.TrimSpace(apiKey))
}
