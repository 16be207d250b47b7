package queue

import (
	"sync"

	"github.com/juju/loggo"
	"gopkg.in/errgo.v1"
)

var logger = loggo.GetLogger("queue.cache")

// Cache holds the live, mutex-guarded BakeryState for every bakery this
// process serves, backed by a Journal for durability across restarts: an
// in-memory map guarded by a single mutex, with a pluggable Journal for
// the durable layer, and a Clock for testable time-based logic.
type Cache struct {
	clock   Clock
	journal Journal

	mu     sync.Mutex
	states map[int]*BakeryState
}

// NewCache returns a Cache backed by journal. If clock is nil, WallClock is
// used.
func NewCache(journal Journal, clock Clock) *Cache {
	if clock == nil {
		clock = WallClock
	}
	return &Cache{
		clock:   clock,
		journal: journal,
		states:  make(map[int]*BakeryState),
	}
}

// Update performs a compound atomic read-modify-write against bakeryID's
// state: it loads the state (from the in-memory cache, or through the
// journal on a cold miss), runs fn against a private copy of it, and -
// unless fn returns an error - persists the copy to the journal and then
// makes it the cached state, all before releasing the lock. If fn or the
// journal save fails, the cached state is left as it was. fn must not
// retain the *BakeryState pointer beyond its own call.
func (c *Cache) Update(bakeryID int, fn func(*BakeryState) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.lockedGet(bakeryID)
	if err != nil {
		return errgo.Mask(err)
	}
	work := cloneState(state)
	if err := fn(work); err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	if err := c.journal.Save(bakeryID, work); err != nil {
		return wrapTransient(err, "save state for bakery %d", bakeryID)
	}
	c.states[bakeryID] = work
	return nil
}

// View performs a read-only compound operation against bakeryID's state.
// fn must not mutate the state it is given.
func (c *Cache) View(bakeryID int, fn func(*BakeryState) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.lockedGet(bakeryID)
	if err != nil {
		return errgo.Mask(err)
	}
	return fn(state)
}

// lockedGet returns bakeryID's state, reading through the journal on a
// cache miss. Callers must hold c.mu.
func (c *Cache) lockedGet(bakeryID int) (*BakeryState, error) {
	if s, ok := c.states[bakeryID]; ok {
		return s, nil
	}
	s, err := c.journal.Load(bakeryID)
	if err != nil {
		logger.Warningf("loading state for bakery %d: %v", bakeryID, err)
		return nil, wrapTransient(err, "load state for bakery %d", bakeryID)
	}
	c.states[bakeryID] = s
	return s, nil
}

// Purge drops bakeryID's in-memory entry and its durable snapshot. Used by
// the daily lifecycle reset once local midnight has passed.
func (c *Cache) Purge(bakeryID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, bakeryID)
	if err := c.journal.Reset(bakeryID); err != nil {
		return wrapTransient(err, "reset state for bakery %d", bakeryID)
	}
	return nil
}

// Evict drops bakeryID's in-memory entry without touching the durable
// copy, forcing the next access to read through the journal.
func (c *Cache) Evict(bakeryID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, bakeryID)
}

func cloneState(s *BakeryState) *BakeryState {
	if s == nil {
		return NewBakeryState()
	}
	out := &BakeryState{
		Tickets:         make(map[int]*Ticket, len(s.Tickets)),
		Order:           append([]int(nil), s.Order...),
		Reservations:    make(map[int]Reservation, len(s.Reservations)),
		NextNumber:      s.NextNumber,
		CurrentServed:   s.CurrentServed,
		SlotsForMultis:  make(map[int]bool, len(s.SlotsForMultis)),
		SlotsForSingles: make(map[int]bool, len(s.SlotsForSingles)),
		Prep:            s.Prep,
		Breads:          append([]Bread(nil), s.Breads...),
		NextBreadIndex:  s.NextBreadIndex,
		LastBreadTime:   s.LastBreadTime,
		BreadTimeDiffs:  append([]int64(nil), s.BreadTimeDiffs...),
		WaitList:        make(map[int]Reservation, len(s.WaitList)),
		Served:          make(map[int]bool, len(s.Served)),
		Display:         s.Display,
	}
	for k, v := range s.Tickets {
		t := *v
		out.Tickets[k] = &t
	}
	for k, v := range s.Reservations {
		out.Reservations[k] = v.Clone()
	}
	for k := range s.SlotsForMultis {
		out.SlotsForMultis[k] = true
	}
	for k := range s.SlotsForSingles {
		out.SlotsForSingles[k] = true
	}
	for k, v := range s.WaitList {
		out.WaitList[k] = v.Clone()
	}
	for k := range s.Served {
		out.Served[k] = true
	}
	return out
}
