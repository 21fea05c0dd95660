package api

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

const defaultReferenceTTL = time.Hour

// ReferenceCache memoizes the slow-moving registries (VAT rates,
// handling times) per account so offer publishing does not re-fetch
// them on every batch.
type ReferenceCache struct {
	client *Client
	cache  *gocache.Cache
}

// NewReferenceCache wraps the client with a TTL cache. A zero ttl
// picks one hour.
func NewReferenceCache(client *Client, ttl time.Duration) *ReferenceCache {
	if ttl <= 0 {
		ttl = defaultReferenceTTL
	}
	return &ReferenceCache{
		client: client,
		cache:  gocache.New(ttl, 2*ttl),
	}
}

// VatRates returns the account's VAT registry, cached.
func (r *ReferenceCache) VatRates(ctx context.Context, account shared.Account) ([]VatRate, error) {
	key := "vat/" + string(account)
	if hit, ok := r.cache.Get(key); ok {
		return hit.([]VatRate), nil
	}
	rows, err := r.client.ReadVatRates(ctx, account)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(key, rows)
	return rows, nil
}

// HandlingTimes returns the account's handling-time registry, cached.
func (r *ReferenceCache) HandlingTimes(ctx context.Context, account shared.Account) ([]HandlingTime, error) {
	key := "handling/" + string(account)
	if hit, ok := r.cache.Get(key); ok {
		return hit.([]HandlingTime), nil
	}
	rows, err := r.client.ReadHandlingTimes(ctx, account)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(key, rows)
	return rows, nil
}

// Invalidate drops the account's cached registries.
func (r *ReferenceCache) Invalidate(account shared.Account) {
	r.cache.Delete("vat/" + string(account))
	r.cache.Delete("handling/" + string(account))
}
