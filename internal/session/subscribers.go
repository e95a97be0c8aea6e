package session

import (
	"slices"
	"sync/atomic"

	"portal/internal/session/models"
)

type subscription struct {
	id      uint64
	handler func(models.ChangeEvent)
	active  atomic.Bool
}

// Subscribe registers handler for every change event, local or external.
// Handlers run in registration order, one event at a time, outside the
// manager lock, so they may call back into the manager. The returned
// function unregisters the handler and is safe to call more than once.
func (m *Manager) Subscribe(handler func(models.ChangeEvent)) (unsubscribe func()) {
	if handler == nil {
		return func() {}
	}
	m.mu.Lock()
	m.nextSubID++
	sub := &subscription{id: m.nextSubID, handler: handler}
	sub.active.Store(true)
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	return func() {
		if !sub.active.CompareAndSwap(true, false) {
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.subs = slices.DeleteFunc(m.subs, func(s *subscription) bool { return s.id == sub.id })
	}
}

// dispatch delivers queued events. Only one goroutine delivers at a time;
// events queued meanwhile (including from inside a handler) are picked up
// by the goroutine already delivering, which keeps delivery in state order.
func (m *Manager) dispatch() {
	m.mu.Lock()
	if m.dispatching {
		m.mu.Unlock()
		return
	}
	m.dispatching = true
	for len(m.pending) > 0 {
		events := m.pending
		m.pending = nil
		subs := slices.Clone(m.subs)
		m.mu.Unlock()

		for _, event := range events {
			for _, sub := range subs {
				m.deliver(sub, event)
			}
		}

		m.mu.Lock()
	}
	m.dispatching = false
	m.mu.Unlock()
}

func (m *Manager) deliver(sub *subscription, event models.ChangeEvent) {
	if !sub.active.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("session subscriber panicked",
				"subscriber", sub.id,
				"state", event.State.String(),
				"panic", r,
			)
		}
	}()
	sub.handler(event)
}
