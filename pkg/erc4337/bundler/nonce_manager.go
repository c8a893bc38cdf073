package bundler

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-sdk/pkg/logger"
)

// NonceFetcher reads the on-chain nonce of the sender being built for.
type NonceFetcher func(ctx context.Context) (*big.Int, error)

// NonceManager hands out nonces for operations that are sent before their
// predecessors are mined. It remembers the next nonce per sender and
// reconciles it with the chain on every request.
type NonceManager struct {
	// next nonce to use, keyed by checksummed sender
	pending map[common.Address]*big.Int
	mu      sync.Mutex
	log     logger.Logger
}

func NewNonceManager(log logger.Logger) *NonceManager {
	return &NonceManager{
		pending: make(map[common.Address]*big.Int),
		log:     logger.EnsureLogger(log).With("component", "nonce_manager"),
	}
}

// Next returns max(on-chain nonce, cached pending nonce).
func (nm *NonceManager) Next(ctx context.Context, sender common.Address, fetch NonceFetcher) (*big.Int, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	onChain, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	cached, ok := nm.pending[sender]
	switch {
	case !ok:
		nm.log.Debug("first operation for sender, using on-chain nonce", "sender", sender.Hex(), "nonce", onChain.String())
		return new(big.Int).Set(onChain), nil
	case onChain.Cmp(cached) > 0:
		// pending operations were mined or dropped
		nm.log.Debug("on-chain nonce ahead of cache", "sender", sender.Hex(), "onChain", onChain.String(), "cached", cached.String())
		return new(big.Int).Set(onChain), nil
	default:
		return new(big.Int).Set(cached), nil
	}
}

// Increment records that nonce was submitted so the next call returns nonce+1.
func (nm *NonceManager) Increment(sender common.Address, nonce *big.Int) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.pending[sender] = new(big.Int).Add(nonce, big.NewInt(1))
}

// Reset forgets the sender so the next call trusts the chain. Use it after a
// nonce conflict.
func (nm *NonceManager) Reset(sender common.Address) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	delete(nm.pending, sender)
	nm.log.Info("reset cached nonce", "sender", sender.Hex())
}

func (nm *NonceManager) Set(sender common.Address, nonce *big.Int) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.pending[sender] = new(big.Int).Set(nonce)
}

// Cached returns the pending nonce without touching the chain.
func (nm *NonceManager) Cached(sender common.Address) (*big.Int, bool) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nonce, ok := nm.pending[sender]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(nonce), true
}
