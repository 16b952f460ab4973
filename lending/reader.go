package lending

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openlend/lending-client/solana"
)

// AccountFetcher is the slice of the RPC client the reader needs.
type AccountFetcher interface {
	AccountInfo(ctx context.Context, pubkey string) (data []byte, exists bool, err error)
}

const defaultCacheTTL = 30 * time.Second

type entityKind string

const (
	kindBank entityKind = "bank"
	kindUser entityKind = "user"
)

type cacheKey struct {
	kind    entityKind
	address solana.Pubkey
	cluster string
}

type cacheEntry struct {
	bank      *Bank
	user      *User
	found     bool
	fetchedAt time.Time
}

// Reader provides existence-aware reads of lending accounts with a
// short-lived read-through cache. A (nil, nil) return means the account does
// not exist yet, which is the expected state while bootstrapping; errors are
// transport failures only.
//
// Mutating callers must invalidate affected entries once their transaction
// confirms; the TTL only bounds staleness for passive readers.
type Reader struct {
	fetcher AccountFetcher
	cluster string
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

func NewReader(fetcher AccountFetcher, cluster string) *Reader {
	return &Reader{
		fetcher: fetcher,
		cluster: cluster,
		ttl:     defaultCacheTTL,
		now:     time.Now,
		entries: make(map[cacheKey]cacheEntry),
	}
}

func (r *Reader) lookup(key cacheKey) (cacheEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	if r.now().Sub(e.fetchedAt) > r.ttl {
		delete(r.entries, key)
		return cacheEntry{}, false
	}
	return e, true
}

func (r *Reader) store(key cacheKey, e cacheEntry) {
	e.fetchedAt = r.now()
	r.mu.Lock()
	r.entries[key] = e
	r.mu.Unlock()
}

// FetchBank returns the decoded bank account, or (nil, nil) when the bank has
// not been initialized yet.
func (r *Reader) FetchBank(ctx context.Context, address solana.Pubkey) (*Bank, error) {
	key := cacheKey{kind: kindBank, address: address, cluster: r.cluster}
	if e, ok := r.lookup(key); ok {
		return e.bank, nil
	}

	data, exists, err := r.fetcher.AccountInfo(ctx, address.Base58())
	if err != nil {
		return nil, fmt.Errorf("fetch bank %s: %w", address.Base58(), err)
	}
	if !exists {
		r.store(key, cacheEntry{found: false})
		return nil, nil
	}
	bank, err := DecodeBank(data)
	if err != nil {
		return nil, fmt.Errorf("decode bank %s: %w", address.Base58(), err)
	}
	r.store(key, cacheEntry{bank: &bank, found: true})
	return &bank, nil
}

// FetchUserAccount returns the decoded user account, or (nil, nil) when the
// wallet has no account yet.
func (r *Reader) FetchUserAccount(ctx context.Context, address solana.Pubkey) (*User, error) {
	key := cacheKey{kind: kindUser, address: address, cluster: r.cluster}
	if e, ok := r.lookup(key); ok {
		return e.user, nil
	}

	data, exists, err := r.fetcher.AccountInfo(ctx, address.Base58())
	if err != nil {
		return nil, fmt.Errorf("fetch user account %s: %w", address.Base58(), err)
	}
	if !exists {
		r.store(key, cacheEntry{found: false})
		return nil, nil
	}
	user, err := DecodeUser(data)
	if err != nil {
		return nil, fmt.Errorf("decode user account %s: %w", address.Base58(), err)
	}
	r.store(key, cacheEntry{user: &user, found: true})
	return &user, nil
}

func (r *Reader) InvalidateBank(address solana.Pubkey) {
	r.mu.Lock()
	delete(r.entries, cacheKey{kind: kindBank, address: address, cluster: r.cluster})
	r.mu.Unlock()
}

func (r *Reader) InvalidateUser(address solana.Pubkey) {
	r.mu.Lock()
	delete(r.entries, cacheKey{kind: kindUser, address: address, cluster: r.cluster})
	r.mu.Unlock()
}

func (r *Reader) InvalidateAll() {
	r.mu.Lock()
	r.entries = make(map[cacheKey]cacheEntry)
	r.mu.Unlock()
}
