package subscription

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It backs STORE_DRIVER=memory and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*UserSubscription
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*UserSubscription)}
}

func (m *MemoryStore) Get(_ context.Context, userID string) (*UserSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return clone(doc), nil
}

func (m *MemoryStore) Seed(_ context.Context, params SeedParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := m.getOrCreate(params.UserID, params.At)
	mergeIDs(doc, params.Provider, params.CorrelationID, params.CustomerID)
	doc.SubscriptionActive = false
	doc.UpdatedAt = params.At
	return nil
}

func (m *MemoryStore) FindByCorrelationID(_ context.Context, provider Provider, id string) ([]UserSubscription, error) {
	if id == "" {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []UserSubscription
	for _, doc := range m.docs {
		if doc.CorrelationIDs[provider] == id {
			out = append(out, *clone(doc))
		}
	}
	return out, nil
}

func (m *MemoryStore) SetState(_ context.Context, change StateChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc, ok := m.docs[change.UserID]; ok && !doc.Accepts(change.EventAt) {
		return false, nil
	}

	doc := m.getOrCreate(change.UserID, change.UpdatedAt)
	doc.SubscriptionActive = change.Active
	doc.ActiveProvider = change.Provider
	eventAt := change.EventAt
	doc.LastEventAt = &eventAt
	doc.UpdatedAt = change.UpdatedAt
	mergeIDs(doc, change.Provider, change.CorrelationID, change.CustomerID)
	return true, nil
}

// Len returns the number of stored documents.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryStore) getOrCreate(userID string, at time.Time) *UserSubscription {
	doc, ok := m.docs[userID]
	if !ok {
		doc = &UserSubscription{
			UserID:         userID,
			CorrelationIDs: make(map[Provider]string),
			CustomerIDs:    make(map[Provider]string),
			CreatedAt:      at,
			UpdatedAt:      at,
		}
		m.docs[userID] = doc
	}
	return doc
}

func mergeIDs(doc *UserSubscription, p Provider, correlationID, customerID string) {
	if correlationID != "" {
		doc.CorrelationIDs[p] = correlationID
	}
	if customerID != "" {
		doc.CustomerIDs[p] = customerID
	}
}

func clone(doc *UserSubscription) *UserSubscription {
	c := *doc
	c.CorrelationIDs = maps.Clone(doc.CorrelationIDs)
	c.CustomerIDs = maps.Clone(doc.CustomerIDs)
	if doc.LastEventAt != nil {
		t := *doc.LastEventAt
		c.LastEventAt = &t
	}
	return &c
}
