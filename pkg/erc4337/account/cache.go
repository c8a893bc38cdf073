package account

import (
	"context"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressCache remembers counterfactual addresses keyed by the factory call
// that produces them. Entries are immutable on chain so the life window only
// bounds memory.
type AddressCache struct {
	cache *bigcache.BigCache
}

func NewAddressCache(ctx context.Context, lifeWindow time.Duration) (*AddressCache, error) {
	if lifeWindow <= 0 {
		lifeWindow = 24 * time.Hour
	}
	cache, err := bigcache.New(ctx, bigcache.Config{
		Shards:             64,
		LifeWindow:         lifeWindow,
		CleanWindow:        5 * time.Minute,
		MaxEntriesInWindow: 10 * 1000,
		MaxEntrySize:       common.AddressLength,
		Verbose:            false,
		HardMaxCacheSize:   64,
		OnRemove:           nil,
		OnRemoveWithReason: nil,
	})
	if err != nil {
		return nil, err
	}
	return &AddressCache{cache: cache}, nil
}

func cacheKey(fp *FactoryParams) string {
	return crypto.Keccak256Hash(fp.Factory.Bytes(), fp.FactoryData).Hex()
}

func (c *AddressCache) Get(fp *FactoryParams) (common.Address, bool) {
	v, err := c.cache.Get(cacheKey(fp))
	if err != nil || len(v) != common.AddressLength {
		return common.Address{}, false
	}
	return common.BytesToAddress(v), true
}

func (c *AddressCache) Set(fp *FactoryParams, addr common.Address) {
	_ = c.cache.Set(cacheKey(fp), addr.Bytes())
}

func (c *AddressCache) Len() int {
	return c.cache.Len()
}

func (c *AddressCache) Close() error {
	return c.cache.Close()
}
