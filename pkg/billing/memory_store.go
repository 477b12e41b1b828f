package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-serialized in-memory Store for tests and
// development. It enforces the same uniqueness invariants as the durable
// backends.
type MemoryStore struct {
	mu         sync.RWMutex
	byProvider map[string]*Subscription
	byUser     map[uuid.UUID]string // user id -> provider subscription id
	now        func() time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMemoryStoreClock overrides the store clock for tests.
func WithMemoryStoreClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty in-memory subscription store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		byProvider: make(map[string]*Subscription),
		byUser:     make(map[uuid.UUID]string),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) UpsertByProviderID(_ context.Context, sub *Subscription) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()

	existing, ok := s.byProvider[sub.ProviderSubscriptionID]
	if !ok {
		// One subscription per user: a different provider id for the same
		// user is a duplicate insert, not an update.
		if _, taken := s.byUser[sub.UserID]; taken {
			return nil, ErrSubscriptionAlreadyExists
		}

		stored := sub.clone()
		if stored.ID == uuid.Nil {
			stored.ID = uuid.New()
		}
		stored.CreatedAt = now
		stored.UpdatedAt = now

		s.byProvider[stored.ProviderSubscriptionID] = stored
		s.byUser[stored.UserID] = stored.ProviderSubscriptionID
		return stored.clone(), nil
	}

	stored := sub.clone()
	stored.ID = existing.ID
	stored.UserID = existing.UserID
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = now

	s.byProvider[stored.ProviderSubscriptionID] = stored
	return stored.clone(), nil
}

func (s *MemoryStore) GetByUserID(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	providerID, ok := s.byUser[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return s.byProvider[providerID].clone(), nil
}

func (s *MemoryStore) GetByProviderID(_ context.Context, providerSubscriptionID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.byProvider[providerSubscriptionID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.clone(), nil
}

// Len reports the number of stored subscriptions. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byProvider)
}
