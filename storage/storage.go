package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oidcd/oidcd/instrumentation"
)

// Kind names a record namespace. Keys in the backend are prefixed
// "{kind}:".
type Kind string

// Record kinds managed by the store.
const (
	KindAccessToken                      Kind = "AccessToken"
	KindAuthorizationCode                Kind = "AuthorizationCode"
	KindRefreshToken                     Kind = "RefreshToken"
	KindDeviceCode                       Kind = "DeviceCode"
	KindBackchannelAuthenticationRequest Kind = "BackchannelAuthenticationRequest"
	KindSession                          Kind = "Session"
	KindGrant                            Kind = "Grant"
)

// Secondary index key prefixes.
const (
	grantIDKeyPrefix    = "oidc:grant"
	sessionUIDKeyPrefix = "oidc:sessionUid"
	userCodeKeyPrefix   = "oidc:userCode"
)

// grantable lists the kinds whose records join a grant's revocation
// lineage.
var grantable = map[Kind]bool{
	KindAccessToken:                      true,
	KindAuthorizationCode:                true,
	KindRefreshToken:                     true,
	KindDeviceCode:                       true,
	KindBackchannelAuthenticationRequest: true,
}

// Sentinel errors returned by backends and the store wrapper.
var (
	ErrNotFound = errors.New("storage: record not found")
	ErrConsumed = errors.New("storage: record already consumed")
)

// Backend is the pluggable expiring key/value store everything persists
// through. Implementations must provide per-key atomicity for GetDel and
// Consume: of two concurrent callers, exactly one succeeds.
type Backend interface {
	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value at key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// GetDel atomically returns and removes the value at key, or
	// ErrNotFound. Exactly one of two concurrent callers succeeds.
	GetDel(ctx context.Context, key string) ([]byte, error)

	// Append adds member to the list at key, creating it if needed, and
	// extends the list's expiry to at least ttl when ttl is non-zero.
	Append(ctx context.Context, key, member string, ttl time.Duration) error

	// List returns the members of the list at key, or ErrNotFound.
	List(ctx context.Context, key string) ([]string, error)

	// Consume atomically stamps the record envelope at key with a
	// consumption timestamp. Returns ErrNotFound for a missing key and
	// ErrConsumed if the record was already stamped.
	Consume(ctx context.Context, key string, at time.Time) error
}

// envelope is the stored representation of every record: the caller's
// payload plus the consumption stamp, kept in place so consumed records
// retain audit value.
type envelope struct {
	Payload  json.RawMessage `json:"payload"`
	Consumed int64           `json:"consumed,omitempty"`
}

// MarkConsumed stamps a serialized envelope with a consumption
// timestamp. Backend implementations call this inside their per-key
// critical section to implement Consume.
func MarkConsumed(raw []byte, at time.Time) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Consumed != 0 {
		return nil, ErrConsumed
	}
	env.Consumed = at.Unix()
	return json.Marshal(env)
}

// Entry is a record read back from the store.
type Entry struct {
	Payload    json.RawMessage
	ConsumedAt time.Time
}

// Consumed reports whether the record has been consumed.
func (e *Entry) Consumed() bool {
	return !e.ConsumedAt.IsZero()
}

// Decode unmarshals the record payload into dst.
func (e *Entry) Decode(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}

// payloadProbe extracts the fields that drive secondary indices from an
// arbitrary payload.
type payloadProbe struct {
	UID      string `json:"uid"`
	GrantID  string `json:"grantId"`
	UserCode string `json:"userCode"`
}

// Store is a thin namespacing wrapper binding one record kind to a
// shared backend.
type Store struct {
	kind    Kind
	backend Backend
	metrics *instrumentation.Metrics
}

// New creates a store for kind over backend.
func New(kind Kind, backend Backend) *Store {
	return &Store{kind: kind, backend: backend}
}

// Instrument records operation durations on every store call.
func (s *Store) Instrument(metrics *instrumentation.Metrics) {
	s.metrics = metrics
}

func (s *Store) observe(ctx context.Context, operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordStorageOperation(ctx, string(s.kind), operation, time.Since(start))
	}
}

// Key returns the primary backend key for id.
func (s *Store) Key(id string) string {
	return string(s.kind) + ":" + id
}

func grantIDKey(grantID string) string {
	return grantIDKeyPrefix + ":" + grantID
}

func sessionUIDKey(uid string) string {
	return sessionUIDKeyPrefix + ":" + uid
}

func userCodeKey(userCode string) string {
	return userCodeKeyPrefix + ":" + userCode
}

// Upsert writes the record and every applicable secondary index with
// matching expiry. Sessions index by UID, grantable kinds join their
// grant's member list, and payloads carrying a user code index by it.
func (s *Store) Upsert(ctx context.Context, id string, payload any, ttl time.Duration) error {
	defer s.observe(ctx, "upsert", time.Now())

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var probe payloadProbe
	// Best effort: payloads without the indexed fields simply skip the
	// secondary indices.
	_ = json.Unmarshal(raw, &probe)

	key := s.Key(id)

	if s.kind == KindSession && probe.UID != "" {
		if err := s.backend.Set(ctx, sessionUIDKey(probe.UID), []byte(id), ttl); err != nil {
			return err
		}
	}

	if grantable[s.kind] && probe.GrantID != "" {
		if err := s.backend.Append(ctx, grantIDKey(probe.GrantID), key, ttl); err != nil {
			return err
		}
	}

	if probe.UserCode != "" {
		if err := s.backend.Set(ctx, userCodeKey(probe.UserCode), []byte(id), ttl); err != nil {
			return err
		}
	}

	env, err := json.Marshal(envelope{Payload: raw})
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, key, env, ttl)
}

func decodeEntry(raw []byte) (*Entry, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	entry := &Entry{Payload: env.Payload}
	if env.Consumed != 0 {
		entry.ConsumedAt = time.Unix(env.Consumed, 0)
	}
	return entry, nil
}

// Find returns the record with id, or ErrNotFound.
func (s *Store) Find(ctx context.Context, id string) (*Entry, error) {
	defer s.observe(ctx, "find", time.Now())

	raw, err := s.backend.Get(ctx, s.Key(id))
	if err != nil {
		return nil, err
	}
	return decodeEntry(raw)
}

// FindByUID resolves a session by its UID secondary index.
func (s *Store) FindByUID(ctx context.Context, uid string) (*Entry, error) {
	id, err := s.backend.Get(ctx, sessionUIDKey(uid))
	if err != nil {
		return nil, err
	}
	return s.Find(ctx, string(id))
}

// FindByUserCode resolves a device-flow record by its user code.
func (s *Store) FindByUserCode(ctx context.Context, userCode string) (*Entry, error) {
	id, err := s.backend.Get(ctx, userCodeKey(userCode))
	if err != nil {
		return nil, err
	}
	return s.Find(ctx, string(id))
}

// Consume stamps the record with a consumption timestamp in place,
// preserving the record for audit. Atomic per key: of two concurrent
// consumers exactly one succeeds, the other observes ErrConsumed.
func (s *Store) Consume(ctx context.Context, id string) error {
	defer s.observe(ctx, "consume", time.Now())
	return s.backend.Consume(ctx, s.Key(id), time.Now())
}

// Destroy removes the record.
func (s *Store) Destroy(ctx context.Context, id string) error {
	defer s.observe(ctx, "destroy", time.Now())
	return s.backend.Delete(ctx, s.Key(id))
}

// Revoke atomically removes and returns the record. Of two concurrent
// revokers exactly one receives the entry; the other gets ErrNotFound.
// Single-use enforcement for codes and refresh rotation build on this.
func (s *Store) Revoke(ctx context.Context, id string) (*Entry, error) {
	defer s.observe(ctx, "revoke", time.Now())

	raw, err := s.backend.GetDel(ctx, s.Key(id))
	if err != nil {
		return nil, err
	}
	return decodeEntry(raw)
}

// RevokeByGrantID deletes every member record of the grant's lineage,
// then the index itself. Best-effort cascading: deletion of all members
// completes before the call returns.
func (s *Store) RevokeByGrantID(ctx context.Context, grantID string) error {
	defer s.observe(ctx, "revokeGrant", time.Now())

	key := grantIDKey(grantID)
	members, err := s.backend.List(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	for _, member := range members {
		if err := s.backend.Delete(ctx, member); err != nil {
			return err
		}
	}
	return s.backend.Delete(ctx, key)
}
