package oracle

import (
	"sync"
	"time"
)

// PriceOracle is the boundary to the price-reporting network. The engine
// treats a price as fresh for on-chain rebalancing only if LastUpdated is
// after the off-chain window began.
type PriceOracle interface {
	// Price returns the current price (price scale).
	Price() int64

	// LastUpdated returns when the price was last refreshed.
	LastUpdated() time.Time

	// IsMarketOpen reports whether the tracked asset's market is open.
	// Scheduled-market assets must be settled while the market is closed.
	IsMarketOpen() bool
}

// CachedOracle is a thread-safe oracle updated by an external feed
// (the NATS price subscriber in production, tests directly).
type CachedOracle struct {
	mu          sync.RWMutex
	price       int64
	lastUpdated time.Time
	marketOpen  bool
}

func NewCachedOracle() *CachedOracle {
	return &CachedOracle{}
}

// Update sets the current price observation.
func (o *CachedOracle) Update(price int64, updatedAt time.Time, marketOpen bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.price = price
	o.lastUpdated = updatedAt
	o.marketOpen = marketOpen
}

func (o *CachedOracle) Price() int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.price
}

func (o *CachedOracle) LastUpdated() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastUpdated
}

func (o *CachedOracle) IsMarketOpen() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.marketOpen
}
