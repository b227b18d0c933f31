package session

import (
	"errors"
	"fmt"
	"time"
)

// Capacity is the number of identity slots; ids fit in one byte.
const Capacity = 255

// ErrFull is returned when every slot is occupied.
var ErrFull = errors.New("session: no free slot")

// SlotTable maps stable small-integer ids to live sessions.
type SlotTable struct {
	slots [Capacity]*Session
	count int
}

// Acquire binds a new session to the first free slot. The address is suffixed
// with " (n)" when another live session already uses it.
func (t *SlotTable) Acquire(address string, now time.Time) (*Session, error) {
	for i := range t.slots {
		if t.slots[i] != nil {
			continue
		}
		s := &Session{
			ID:        i,
			Address:   t.dedupe(address),
			Pointer:   NoPointer,
			idleSince: now,
		}
		t.slots[i] = s
		t.count++
		return s, nil
	}
	return nil, ErrFull
}

// Release frees slot id. Releasing a free or out-of-range slot is a no-op.
func (t *SlotTable) Release(id int) {
	if id < 0 || id >= Capacity || t.slots[id] == nil {
		return
	}
	t.slots[id] = nil
	t.count--
}

// Get returns the session bound to id.
func (t *SlotTable) Get(id int) (*Session, bool) {
	if id < 0 || id >= Capacity {
		return nil, false
	}
	s := t.slots[id]
	return s, s != nil
}

// Len reports the number of occupied slots.
func (t *SlotTable) Len() int {
	return t.count
}

func (t *SlotTable) dedupe(address string) string {
	candidate := address
	for n := 1; t.inUse(candidate); {
		n++
		candidate = fmt.Sprintf("%s (%d)", address, n)
	}
	return candidate
}

func (t *SlotTable) inUse(address string) bool {
	for _, s := range t.slots {
		if s != nil && s.Address == address {
			return true
		}
	}
	return false
}
