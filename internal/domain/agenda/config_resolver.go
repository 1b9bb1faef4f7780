package agenda

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// ConfigSource fetches the clinic's agenda configuration.
type ConfigSource interface {
	FetchConfig(ctx context.Context) (AgendaConfig, error)
}

// ConfigResolver fetches the agenda configuration at most once per view
// session. A failed fetch is logged and the defaults are kept; it is never
// retried and never reported to the caller.
type ConfigResolver struct {
	source ConfigSource
	logger zerolog.Logger

	mu     sync.Mutex
	loaded bool
	cfg    AgendaConfig
}

// NewConfigResolver creates a resolver that starts from defaults.
func NewConfigResolver(source ConfigSource, defaults AgendaConfig, logger zerolog.Logger) *ConfigResolver {
	return &ConfigResolver{
		source: source,
		logger: logger,
		cfg:    DefaultConfig().merge(defaults),
	}
}

// EnsureLoaded performs the single fetch attempt. Concurrent callers wait
// for the first attempt to finish, so no aggregation runs before the
// configuration is either fetched or defaulted.
func (r *ConfigResolver) EnsureLoaded(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return
	}
	defer func() { r.loaded = true }()

	if r.source == nil {
		return
	}
	fetched, err := r.source.FetchConfig(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("agenda config unavailable, using defaults")
		return
	}
	r.cfg = r.cfg.merge(fetched)
}

// Config returns the current configuration (defaults until loaded).
func (r *ConfigResolver) Config() AgendaConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

func (r *ConfigResolver) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}
