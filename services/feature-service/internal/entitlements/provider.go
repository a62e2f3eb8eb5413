package entitlements

import "context"

// Entitlement is a place's subscription tier and status as billing sees it.
type Entitlement struct {
	Tier   string
	Status string
}

// Provider answers entitlement lookups when the local cache has no row,
// typically for places created before the billing event stream was consumed.
type Provider interface {
	Lookup(ctx context.Context, placeID string) (Entitlement, error)
}

type staticProvider struct {
	ent Entitlement
}

func NewStaticProvider(tier, status string) Provider {
	return &staticProvider{ent: Entitlement{Tier: tier, Status: status}}
}

func (p *staticProvider) Lookup(context.Context, string) (Entitlement, error) {
	return p.ent, nil
}
