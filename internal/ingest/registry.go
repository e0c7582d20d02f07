package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

type Registry struct {
	providers map[string]WebhookAdapter
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]WebhookAdapter{}}
}

func (r *Registry) Register(adapter WebhookAdapter) {
	if r == nil || adapter == nil {
		return
	}
	if r.providers == nil {
		r.providers = map[string]WebhookAdapter{}
	}
	r.providers[NormalizeProvider(adapter.Provider())] = adapter
}

func (r *Registry) Adapter(provider string) (WebhookAdapter, error) {
	if r == nil {
		return nil, fmt.Errorf("nil registry")
	}
	p, ok := r.providers[NormalizeProvider(provider)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	return p, nil
}

func (r *Registry) Authenticate(ctx context.Context, provider string, headers HeaderReader, body []byte) (VerifiedEnvelope, error) {
	p, err := r.Adapter(provider)
	if err != nil {
		return VerifiedEnvelope{}, err
	}
	return p.Authenticate(ctx, headers, body)
}

// Dispatch routes env to the adapter that verified it.
func (r *Registry) Dispatch(ctx context.Context, env VerifiedEnvelope) (DispatchResult, error) {
	if !env.Valid() {
		return DispatchResult{}, ErrInvalidSignature
	}
	p, err := r.Adapter(env.Provider())
	if err != nil {
		return DispatchResult{}, err
	}
	return p.Dispatch(ctx, env)
}

func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) MustHaveProviders() error {
	if r == nil {
		return fmt.Errorf("nil registry")
	}
	if len(r.providers) == 0 {
		return fmt.Errorf("empty provider registry")
	}
	return nil
}
