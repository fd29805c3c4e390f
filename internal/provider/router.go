package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Router manages the registered generation backends and routes requests to
// them with fallback. Purposes (e.g. "communication_translation",
// "task_breakdown") can be bound to specific providers; everything else
// uses the default.
type Router struct {
	providers map[string]Provider
	bindings  map[string]string   // purpose -> providerID
	fallbacks map[string][]string // purpose -> fallback provider chain
	defaults  string
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates a new provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		bindings:  make(map[string]string),
		fallbacks: make(map[string][]string),
		logger:    logger,
	}
}

// Register adds a provider. The first registered provider becomes the
// default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered generation provider",
		zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault sets the default provider.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

// Bind associates a purpose tag with a specific provider.
func (r *Router) Bind(purpose, providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[purpose] = providerID
}

// SetFallbacks configures the fallback chain for a purpose.
func (r *Router) SetFallbacks(purpose string, providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[purpose] = providerIDs
}

// Generate routes a generation request through the provider bound to the
// purpose, trying fallbacks in order when the primary fails.
func (r *Router) Generate(ctx context.Context, purpose string, req *GenerateRequest) (*GenerateResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary := r.boundProvider(purpose)
	if primary == nil {
		return nil, fmt.Errorf("no generation provider available for %s", purpose)
	}

	resp, err := primary.Generate(ctx, req)
	if err == nil {
		return resp, nil
	}
	r.logger.Warn("primary generation provider failed, trying fallbacks",
		zap.String("purpose", purpose), zap.Error(err))

	for _, fbID := range r.fallbacks[purpose] {
		fb, ok := r.providers[fbID]
		if !ok {
			continue
		}
		resp, err = fb.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		r.logger.Warn("fallback generation provider failed",
			zap.String("provider", fbID), zap.Error(err))
	}

	return nil, fmt.Errorf("all generation providers failed for %s: %w", purpose, err)
}

// GenerateStream routes a streaming request through the bound provider.
// Streaming has no fallback: the caller owns partial-output recovery.
func (r *Router) GenerateStream(ctx context.Context, purpose string, req *GenerateRequest) (<-chan *StreamChunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary := r.boundProvider(purpose)
	if primary == nil {
		return nil, fmt.Errorf("no generation provider available for %s", purpose)
	}
	return primary.GenerateStream(ctx, req)
}

func (r *Router) boundProvider(purpose string) Provider {
	if pid, ok := r.bindings[purpose]; ok {
		if p, ok := r.providers[pid]; ok {
			return p
		}
	}
	if p, ok := r.providers[r.defaults]; ok {
		return p
	}
	return nil
}

// ListProviders returns all registered providers.
func (r *Router) ListProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}
