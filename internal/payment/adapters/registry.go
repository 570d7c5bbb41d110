package adapters

import (
	"github.com/smallbiznis/nftcheckout/internal/payment/domain"
)

// Registry resolves adapters by gateway name.
type Registry struct {
	factories map[domain.Gateway]domain.AdapterFactory
	configs   map[domain.Gateway]domain.AdapterConfig
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{
		factories: map[domain.Gateway]domain.AdapterFactory{},
		configs:   map[domain.Gateway]domain.AdapterConfig{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		gateway, err := domain.ParseGateway(string(factory.Gateway()))
		if err != nil {
			continue
		}
		registry.factories[gateway] = factory
	}
	return registry
}

// WithConfig stores the adapter config used by Adapter for a gateway.
func (r *Registry) WithConfig(gateway domain.Gateway, cfg domain.AdapterConfig) *Registry {
	r.configs[gateway] = cfg
	return r
}

func (r *Registry) GatewayExists(gateway string) bool {
	if r == nil {
		return false
	}
	parsed, err := domain.ParseGateway(gateway)
	if err != nil {
		return false
	}
	_, ok := r.factories[parsed]
	return ok
}

func (r *Registry) NewAdapter(gateway string, cfg domain.AdapterConfig) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrUnknownGateway
	}
	parsed, err := domain.ParseGateway(gateway)
	if err != nil {
		return nil, err
	}
	factory, ok := r.factories[parsed]
	if !ok {
		return nil, domain.ErrUnknownGateway
	}
	return factory.NewAdapter(cfg)
}

// Adapter builds an adapter using the config registered for the gateway.
func (r *Registry) Adapter(gateway string) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrUnknownGateway
	}
	parsed, err := domain.ParseGateway(gateway)
	if err != nil {
		return nil, err
	}
	return r.NewAdapter(string(parsed), r.configs[parsed])
}
