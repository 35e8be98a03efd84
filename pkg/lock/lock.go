// Package lock implements the per-slot lock engine (C4): every value slot
// pairs a current entity with a lock of {held, tx_id, waiters}. Tx-id 0
// means unheld. Acquisition and the entity it guards are kept in the same
// mutex's critical section so that "observe unheld, then clone the current
// value into the write-set" is a single atomic step, never two.
package lock

import (
	"sync"

	"github.com/basalt-db/basalt/pkg/entity"
)

// Mode selects the acquisition discipline: Pessimistic blocks until the
// slot is free, Optimistic fails fast against a held slot.
type Mode int

const (
	Pessimistic Mode = iota
	Optimistic
)

// Slot is the data model's "value slot": a current entity plus the lock
// that arbitrates access to it. Zero tx-id means the slot is unheld.
type Slot struct {
	mu    sync.Mutex
	cond  *sync.Cond
	held  bool
	txID  uint32
	value *entity.Entity
}

// NewSlot creates a slot holding the given current value, initially
// unheld.
func NewSlot(value *entity.Entity) *Slot {
	s := &Slot{value: value}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire attempts to take the slot's lock on behalf of txID. If the slot
// is already held by txID, acquisition is re-entrant (reentrant=true). If
// the slot is held by another transaction, an optimistic caller fails
// immediately (acquired=false); a pessimistic caller blocks until the slot
// is released and retries. On success, current is a clone of the entity as
// it stood at the moment the lock was taken, suitable for staging into a
// write-set.
func (s *Slot) Acquire(txID uint32, mode Mode) (reentrant, acquired bool, current *entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held && s.txID == txID {
		return true, true, s.value.Clone()
	}
	for s.held {
		if mode == Optimistic {
			return false, false, nil
		}
		s.cond.Wait()
	}
	s.held = true
	s.txID = txID
	return false, true, s.value.Clone()
}

// Release clears ownership and wakes exactly one waiter. Idempotent
// against spurious wake-ups: releasing an already-unheld slot is a no-op
// beyond the (harmless) signal.
func (s *Slot) Release(txID uint32) {
	s.mu.Lock()
	if s.held && s.txID == txID {
		s.held = false
		s.txID = 0
	}
	s.mu.Unlock()
	s.cond.Signal()
}

// Publish overwrites the slot's current value. Callers must hold the lock
// (i.e. have successfully Acquired it) before calling Publish.
func (s *Slot) Publish(value *entity.Entity) {
	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
}

// Current returns a clone of the slot's present value without taking the
// lock; used by table-store scans that want a consistent snapshot without
// participating in transaction arbitration.
func (s *Slot) Current() *entity.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value.Clone()
}

// HeldBy reports whether the slot is currently held, and by which tx-id
// (0 if unheld). Used for diagnostics only.
func (s *Slot) HeldBy() (held bool, txID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held, s.txID
}
