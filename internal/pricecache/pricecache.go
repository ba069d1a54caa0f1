// Package pricecache implements C2: a TTL-bounded cache over C1 quote
// fetches, with per-code single-flight coalescing so N concurrent lookups
// for the same code issue exactly one upstream call.
package pricecache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tradejournal/internal/events"
	"tradejournal/internal/quote"
	"tradejournal/pkg/cache"
)

// Fetcher is the upstream C1 collaborator; *quote.Chain satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, code string) (quote.Quote, error)
}

// Cache is the Price Cache & Batch Fetcher. The TTL is measured from the
// moment a value was written, not from the moment it is read.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	store   *cache.ShardedPriceCache
	flight  singleflight.Group
	bus     *events.Bus // optional; nil means no price_tick publication
}

// New builds a price cache backed by fetcher with the given TTL. bus may be
// nil; when set, every successful upstream refresh publishes EventPriceTick
// for the websocket push surface.
func New(fetcher Fetcher, ttl time.Duration, bus *events.Bus) *Cache {
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		store:   cache.NewShardedPriceCache(),
		bus:     bus,
	}
}

// Result is one code's price-cache read, including its provenance.
type Result struct {
	Code   string
	Price  float64
	Source string
	Age    time.Duration
}

// Get returns the cached value if fresh and force is false; otherwise it
// acquires or joins the in-flight call for code, iterates the provider
// chain, stores the first success, and returns it. On total failure it
// falls back to the stale cached value if any, else a zero-price sentinel
// tagged "unavailable".
func (c *Cache) Get(ctx context.Context, code string, force bool) Result {
	if !force {
		if price, source, age, ok := c.store.GetQuote(code); ok && age <= c.ttl {
			return Result{Code: code, Price: price, Source: source, Age: age}
		}
	}

	v, _, _ := c.flight.Do(code, func() (any, error) {
		q, err := c.fetcher.Fetch(ctx, code)
		if err != nil {
			return nil, err
		}
		c.store.SetQuote(code, q.Price, q.Source)
		if c.bus != nil {
			c.bus.Publish(events.EventPriceTick, events.PriceTickEvent{Code: q.Code, Price: q.Price, Source: q.Source})
		}
		return q, nil
	})

	if v != nil {
		q := v.(quote.Quote)
		return Result{Code: code, Price: q.Price, Source: q.Source}
	}

	// Total failure: fall back to the stale cached value, else a sentinel.
	if price, source, age, ok := c.store.GetQuote(code); ok {
		return Result{Code: code, Price: price, Source: "stale:" + source, Age: age}
	}
	return Result{Code: code, Price: 0, Source: "unavailable"}
}

// Batch fans out Get over codes concurrently and returns results in the
// input order; individual failures do not fail the batch.
func (c *Cache) Batch(ctx context.Context, codes []string, force bool) []Result {
	results := make([]Result, len(codes))
	var wg sync.WaitGroup
	wg.Add(len(codes))
	for i, code := range codes {
		go func(i int, code string) {
			defer wg.Done()
			results[i] = c.Get(ctx, code, force)
		}(i, code)
	}
	wg.Wait()
	return results
}

// Invalidate drops a single code's cache entry.
func (c *Cache) Invalidate(code string) {
	c.store.Delete(code)
}

// InvalidateAll clears the entire cache; administrative use only.
func (c *Cache) InvalidateAll() {
	c.store.CleanupInvalid(nil)
}
