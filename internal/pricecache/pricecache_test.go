package pricecache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tradejournal/internal/quote"
)

type countingFetcher struct {
	calls int32
	delay time.Duration
	price float64
}

func (f *countingFetcher) Fetch(ctx context.Context, code string) (quote.Quote, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return quote.Quote{Code: code, Price: f.price, Source: "test"}, nil
}

func TestGetReturnsFreshValueWithoutForce(t *testing.T) {
	fetcher := &countingFetcher{price: 10}
	c := New(fetcher, 30*time.Second, nil)

	first := c.Get(context.Background(), "600000", false)
	if first.Price != 10 {
		t.Fatalf("expected price 10, got %v", first.Price)
	}

	second := c.Get(context.Background(), "600000", false)
	if atomic.LoadInt32(&fetcher.calls) != 1 {
		t.Fatalf("expected exactly one upstream call for a fresh entry, got %d", fetcher.calls)
	}
	if second.Age > 30*time.Second {
		t.Fatalf("expected fresh age, got %v", second.Age)
	}
}

func TestGetAlwaysRefreshesWhenForced(t *testing.T) {
	fetcher := &countingFetcher{price: 10}
	c := New(fetcher, 30*time.Second, nil)

	c.Get(context.Background(), "600000", false)
	c.Get(context.Background(), "600000", true)

	if atomic.LoadInt32(&fetcher.calls) != 2 {
		t.Fatalf("expected force=true to always refresh, got %d calls", fetcher.calls)
	}
}

func TestConcurrentGetsCoalesceIntoOneUpstreamCall(t *testing.T) {
	fetcher := &countingFetcher{price: 10, delay: 50 * time.Millisecond}
	c := New(fetcher, 30*time.Second, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Get(context.Background(), "600000", true)
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&fetcher.calls) != 1 {
		t.Fatalf("expected exactly one upstream call for concurrent lookups of the same code, got %d", fetcher.calls)
	}
}

func TestBatchPreservesInputOrder(t *testing.T) {
	fetcher := &countingFetcher{price: 5}
	c := New(fetcher, 30*time.Second, nil)

	codes := []string{"600000", "000001", "600519", "300750"}
	results := c.Batch(context.Background(), codes, true)
	if len(results) != len(codes) {
		t.Fatalf("expected %d results, got %d", len(codes), len(results))
	}
	for i, code := range codes {
		if results[i].Code != code {
			t.Errorf("expected result[%d] for %s, got %s", i, code, results[i].Code)
		}
	}
}
