package jose

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/time/rate"
)

// KeyStore provides the key material used to verify and decrypt tokens.
type KeyStore interface {
	// Keys returns the current key set.
	Keys(ctx context.Context) (jwk.Set, error)

	// Fresh reports whether the current set is recent enough to be
	// authoritative. Verification only retries after a refresh when the
	// set was stale.
	Fresh() bool

	// Refresh replaces the current set with the latest available one.
	Refresh(ctx context.Context) error
}

// StaticKeyStore serves a fixed key set. It is always fresh.
type StaticKeyStore struct {
	set jwk.Set
}

var _ KeyStore = (*StaticKeyStore)(nil)

// NewStaticKeyStore creates a key store over a fixed set.
func NewStaticKeyStore(set jwk.Set) *StaticKeyStore {
	return &StaticKeyStore{set: set}
}

func (s *StaticKeyStore) Keys(context.Context) (jwk.Set, error) { return s.set, nil }

func (s *StaticKeyStore) Fresh() bool { return true }

func (s *StaticKeyStore) Refresh(context.Context) error { return nil }

// DefaultKeyMaxAge is how long a remotely fetched key set counts as
// fresh.
const DefaultKeyMaxAge = 10 * time.Minute

// defaultRefreshInterval is the minimum spacing between remote fetches.
// Verification failures against a stale set cannot hammer the remote
// endpoint faster than this.
const defaultRefreshInterval = 30 * time.Second

// RemoteKeyStore caches a key set fetched from a remote source, such as
// a jwks_uri. Refreshes are rate limited; a throttled refresh keeps
// serving the cached set.
type RemoteKeyStore struct {
	fetch   func(ctx context.Context) (jwk.Set, error)
	maxAge  time.Duration
	limiter *rate.Limiter

	mu        sync.RWMutex
	set       jwk.Set
	fetchedAt time.Time
}

var _ KeyStore = (*RemoteKeyStore)(nil)

// NewRemoteKeyStore creates a key store backed by fetch. A maxAge of
// zero selects DefaultKeyMaxAge.
func NewRemoteKeyStore(fetch func(ctx context.Context) (jwk.Set, error), maxAge time.Duration) *RemoteKeyStore {
	if maxAge <= 0 {
		maxAge = DefaultKeyMaxAge
	}
	return &RemoteKeyStore{
		fetch:   fetch,
		maxAge:  maxAge,
		limiter: rate.NewLimiter(rate.Every(defaultRefreshInterval), 1),
	}
}

func (s *RemoteKeyStore) Keys(ctx context.Context) (jwk.Set, error) {
	s.mu.RLock()
	set := s.set
	s.mu.RUnlock()
	if set != nil {
		return set, nil
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.set == nil {
		return nil, fmt.Errorf("jose: no key set available")
	}
	return s.set, nil
}

func (s *RemoteKeyStore) Fresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set != nil && time.Since(s.fetchedAt) <= s.maxAge
}

// Refresh fetches the latest key set. Throttled refreshes are a no-op
// so repeated verification failures cannot flood the remote endpoint.
func (s *RemoteKeyStore) Refresh(ctx context.Context) error {
	s.mu.RLock()
	initialized := s.set != nil
	s.mu.RUnlock()

	if initialized && !s.limiter.Allow() {
		return nil
	}

	set, err := s.fetch(ctx)
	if err != nil {
		return fmt.Errorf("jose: key set fetch failed: %w", err)
	}

	s.mu.Lock()
	s.set = set
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// selectKeys returns the keys of set matching the wanted algorithm and,
// when non-empty, the key ID. Keys without an alg attribute match any
// algorithm.
func selectKeys(set jwk.Set, alg, kid string) []jwk.Key {
	var candidates []jwk.Key
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		if kid != "" && key.KeyID() != kid {
			continue
		}
		if a := key.Algorithm(); a != nil && a.String() != "" && a.String() != alg {
			continue
		}
		candidates = append(candidates, key)
	}
	return candidates
}

// decryptionAlgorithmName returns the algorithm name keys are matched
// against for decryption. Direct encryption carries the content
// encryption algorithm on the key instead of "dir".
func decryptionAlgorithmName(alg jwa.KeyEncryptionAlgorithm, enc jwa.ContentEncryptionAlgorithm) string {
	if alg == jwa.DIRECT {
		return enc.String()
	}
	return alg.String()
}
