package core

import (
	"slices"

	"github.com/google/uuid"
)

// Observer is told which records changed when a transaction commits.
type Observer interface {
	OnChanged(ids []uuid.UUID)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ids []uuid.UUID)

// OnChanged implements Observer.
func (f ObserverFunc) OnChanged(ids []uuid.UUID) { f(ids) }

// Subscription is the handle returned when an observer is registered.
type Subscription struct {
	subs *subscriptions
	id   uint64
}

// Cancel unregisters the observer. It is safe to call more than once and from
// inside a notification.
func (s *Subscription) Cancel() {
	if s == nil || s.subs == nil {
		return
	}
	s.subs.remove(s.id)
	s.subs = nil
}

type subscriber struct {
	id  uint64
	obs Observer
	// items is nil for observers of every commit.
	items     []uuid.UUID
	cancelled bool
}

// subscriptions keeps observers in registration order so notification order
// is deterministic.
type subscriptions struct {
	next uint64
	list []*subscriber
}

func (s *subscriptions) add(items []uuid.UUID, o Observer) *Subscription {
	s.next++
	s.list = append(s.list, &subscriber{id: s.next, obs: o, items: items})
	return &Subscription{subs: s, id: s.next}
}

func (s *subscriptions) remove(id uint64) {
	s.list = slices.DeleteFunc(s.list, func(sub *subscriber) bool {
		if sub.id == id {
			sub.cancelled = true
			return true
		}
		return false
	})
}

// notify fans a commit out: item and list observers get the records that
// touched their items, global observers get every record of the batch.
func (s *subscriptions) notify(all []uuid.UUID, touched map[uuid.UUID][]uuid.UUID) {
	for _, sub := range slices.Clone(s.list) {
		// Cancelled by an earlier observer of this same commit.
		if sub.cancelled {
			continue
		}
		if sub.items == nil {
			if len(all) > 0 {
				sub.obs.OnChanged(slices.Clone(all))
			}
			continue
		}
		var ids []uuid.UUID
		seen := make(map[uuid.UUID]struct{})
		for _, item := range sub.items {
			for _, id := range touched[item] {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			sub.obs.OnChanged(ids)
		}
	}
}

// Observe registers o for every committed transaction. It receives the IDs of
// all records in the batch.
func (w *World) Observe(o Observer) *Subscription {
	return w.subs.add(nil, o)
}

// ObserveList registers o for commits touching any of items, as a list view
// would.
func (w *World) ObserveList(items []uuid.UUID, o Observer) *Subscription {
	if items == nil {
		items = []uuid.UUID{}
	}
	return w.subs.add(slices.Clone(items), o)
}
