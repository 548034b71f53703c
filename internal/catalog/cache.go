package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/giftbasket/giftcart/pkg/backend"
	pkgerrors "github.com/giftbasket/giftcart/pkg/errors"
	"github.com/giftbasket/giftcart/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const (
	KindProduct    = "product"
	KindAdditional = "additional"

	defaultTTL = 10 * time.Minute
)

// Source is the authoritative catalog behind the cache.
type Source interface {
	GetProduct(ctx context.Context, id string) (*backend.Product, error)
	GetAdditional(ctx context.Context, id string) (*backend.Additional, error)
}

type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CatalogKey(kind, id string) string
}

// Key identifies one cached catalog entry.
type Key struct {
	Kind string
	ID   string
}

// ParseKey validates a kind/id pair coming from callers.
func ParseKey(kind, id string) (Key, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	id = strings.TrimSpace(id)
	if kind != KindProduct && kind != KindAdditional {
		return Key{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown catalog kind %q", kind)).WithDetails(map[string]any{"field": "kind"})
	}
	if id == "" {
		return Key{}, pkgerrors.New(pkgerrors.CodeValidation, "catalog id is required").WithDetails(map[string]any{"field": "id"})
	}
	return Key{Kind: kind, ID: id}, nil
}

// CacheParams wires the cache dependencies.
type CacheParams struct {
	Source Source
	Store  kvStore
	TTL    time.Duration
	Logger *logger.Logger
}

// Cache is a read-through catalog cache. A nil Store turns it into a pass-through.
type Cache struct {
	source Source
	store  kvStore
	ttl    time.Duration
	logg   *logger.Logger
	group  singleflight.Group
}

func NewCache(params CacheParams) (*Cache, error) {
	if params.Source == nil {
		return nil, fmt.Errorf("catalog source required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Cache{
		source: params.Source,
		store:  params.Store,
		ttl:    ttl,
		logg:   logg,
	}, nil
}

// GetProduct returns the product, serving from cache when possible.
func (c *Cache) GetProduct(ctx context.Context, id string) (*backend.Product, error) {
	return get(ctx, c, Key{Kind: KindProduct, ID: id}, func(ctx context.Context) (*backend.Product, error) {
		return c.source.GetProduct(ctx, id)
	})
}

// GetAdditional returns the add-on, serving from cache when possible.
func (c *Cache) GetAdditional(ctx context.Context, id string) (*backend.Additional, error) {
	return get(ctx, c, Key{Kind: KindAdditional, ID: id}, func(ctx context.Context) (*backend.Additional, error) {
		return c.source.GetAdditional(ctx, id)
	})
}

// Invalidate drops one cached entry.
func (c *Cache) Invalidate(ctx context.Context, key Key) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Del(ctx, c.store.CatalogKey(key.Kind, key.ID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate catalog entry")
	}
	return nil
}

func get[T any](ctx context.Context, c *Cache, key Key, load func(context.Context) (*T, error)) (*T, error) {
	if c.store == nil {
		return load(ctx)
	}
	storeKey := c.store.CatalogKey(key.Kind, key.ID)

	if raw, err := c.store.Get(ctx, storeKey); err == nil {
		var cached T
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			return &cached, nil
		}
		c.logg.Warn(c.logg.WithField(ctx, "cache_key", storeKey), "discarding undecodable catalog cache entry")
	}

	v, err, _ := c.group.Do(storeKey, func() (any, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if data, marshalErr := json.Marshal(value); marshalErr == nil {
			if setErr := c.store.Set(ctx, storeKey, data, c.ttl); setErr != nil {
				c.logg.Warn(c.logg.WithField(ctx, "cache_key", storeKey), "catalog cache write failed")
			}
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}
