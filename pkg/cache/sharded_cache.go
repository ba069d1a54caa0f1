package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// ShardedPriceCache is a high-performance price cache with sharding.
type ShardedPriceCache struct {
	shards [numShards]*priceShard
}

type priceShard struct {
	mu    sync.RWMutex
	items map[string]priceEntry
}

type priceEntry struct {
	price     float64
	source    string
	updatedAt time.Time
}

// NewShardedPriceCache creates a new sharded cache.
func NewShardedPriceCache() *ShardedPriceCache {
	c := &ShardedPriceCache{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &priceShard{
			items: make(map[string]priceEntry),
		}
	}
	return c
}

// getShard returns the shard for the given key.
func (c *ShardedPriceCache) getShard(key string) *priceShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// SetQuote stores a price and its source tag, writing the TTL clock from the
// moment of the write (not of any later read).
func (c *ShardedPriceCache) SetQuote(symbol string, price float64, source string) {
	shard := c.getShard(symbol)
	shard.mu.Lock()
	shard.items[symbol] = priceEntry{
		price:     price,
		source:    source,
		updatedAt: time.Now(),
	}
	shard.mu.Unlock()
}

// GetQuote retrieves price, source tag and age for a symbol.
func (c *ShardedPriceCache) GetQuote(symbol string) (price float64, source string, age time.Duration, ok bool) {
	shard := c.getShard(symbol)
	shard.mu.RLock()
	entry, found := shard.items[symbol]
	shard.mu.RUnlock()
	if !found {
		return 0, "", 0, false
	}
	return entry.price, entry.source, time.Since(entry.updatedAt), true
}

// Delete removes a symbol from the cache.
func (c *ShardedPriceCache) Delete(symbol string) {
	shard := c.getShard(symbol)
	shard.mu.Lock()
	delete(shard.items, symbol)
	shard.mu.Unlock()
}

// CleanupInvalid removes entries not in validSymbols set.
func (c *ShardedPriceCache) CleanupInvalid(validSymbols []string) int {
	valid := make(map[string]bool, len(validSymbols))
	for _, s := range validSymbols {
		valid[s] = true
	}

	removed := 0
	for _, shard := range c.shards {
		shard.mu.Lock()
		for sym := range shard.items {
			if !valid[sym] {
				delete(shard.items, sym)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}
