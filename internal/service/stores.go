package service

import (
	"context"
	"sync"
)

// Stores hands out one loaded Store per owner.
type Stores struct {
	persist   TaskPersistence
	reminders ReminderScheduler
	opts      []StoreOption

	mu     sync.Mutex
	stores map[uint]*Store
}

func NewStores(persist TaskPersistence, reminders ReminderScheduler, opts ...StoreOption) *Stores {
	return &Stores{
		persist:   persist,
		reminders: reminders,
		opts:      opts,
		stores:    make(map[uint]*Store),
	}
}

// For returns the owner's store, loading it on first use.
// A failed first load is not cached, so the next call retries. Loading happens
// outside the registry lock; when two first loads race, the earlier insert wins.
func (r *Stores) For(ctx context.Context, owner uint) (*Store, error) {
	if store, ok := r.cached(owner); ok {
		return store, nil
	}
	store := NewStore(owner, r.persist, r.reminders, r.opts...)
	if err := store.Load(ctx); err != nil {
		return nil, err
	}
	return r.insert(store), nil
}

// Reload refreshes the owner's store from persistence, creating it when absent.
func (r *Stores) Reload(ctx context.Context, owner uint) (*Store, error) {
	if store, ok := r.cached(owner); ok {
		return store, store.Reload(ctx)
	}
	store := NewStore(owner, r.persist, r.reminders, r.opts...)
	if err := store.Reload(ctx); err != nil {
		return nil, err
	}
	return r.insert(store), nil
}

func (r *Stores) cached(owner uint) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	store, ok := r.stores[owner]
	return store, ok
}

func (r *Stores) insert(store *Store) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.stores[store.Owner()]; ok {
		return existing
	}
	r.stores[store.Owner()] = store
	return store
}
