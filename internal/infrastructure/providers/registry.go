// Package providers implements upstream article sources and builds them
// from configuration.
package providers

import (
	"fmt"
	"log/slog"

	"EvidenceLedger/internal/config"
	"EvidenceLedger/internal/infrastructure/httpclient"
	"EvidenceLedger/internal/ports"
)

// Deps are the shared collaborators handed to every builder.
type Deps struct {
	HTTP   *httpclient.Retrying
	Logger *slog.Logger
}

// Builder constructs one provider from its config entry.
type Builder func(cfg config.ProviderConfig, deps Deps) (ports.Provider, error)

// Registry keeps a mapping from provider types to their builders.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry returns a registry with the built-in provider types.
func NewRegistry() *Registry {
	r := &Registry{builders: map[string]Builder{}}
	r.Register(TypeNewsAPI, func(cfg config.ProviderConfig, deps Deps) (ports.Provider, error) {
		return NewNewsAPI(cfg, deps.HTTP, deps.Logger)
	})
	r.Register(TypeListing, func(cfg config.ProviderConfig, deps Deps) (ports.Provider, error) {
		return NewListing(cfg, deps.HTTP, deps.Logger)
	})
	return r
}

// Register adds or replaces a builder.
func (r *Registry) Register(typ string, b Builder) {
	if r.builders == nil {
		r.builders = map[string]Builder{}
	}
	r.builders[typ] = b
}

// Resolve returns a builder by type or an error if it is absent.
func (r *Registry) Resolve(typ string) (Builder, error) {
	if b, ok := r.builders[typ]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("provider type %s is not registered", typ)
}

// Build instantiates every enabled provider entry in order.
func (r *Registry) Build(entries []config.ProviderConfig, deps Deps) ([]ports.Provider, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	providers := make([]ports.Provider, 0, len(entries))
	for _, entry := range entries {
		if entry.Disabled {
			deps.Logger.Debug("provider disabled", "provider", entry.Name)
			continue
		}
		build, err := r.Resolve(entry.Type)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", entry.Name, err)
		}
		p, err := build(entry, Deps{HTTP: deps.HTTP, Logger: deps.Logger.With("provider", entry.Name)})
		if err != nil {
			return nil, fmt.Errorf("build provider %s: %w", entry.Name, err)
		}
		deps.Logger.Debug("provider ready", "provider", entry.Name, "type", entry.Type)
		providers = append(providers, p)
	}
	return providers, nil
}
