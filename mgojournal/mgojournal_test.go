package mgojournal

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/juju/mgotest"

	"github.com/bakeryqueue/core/queue"
)

func testColl(t *testing.T) (*Store, func()) {
	db, err := mgotest.New()
	qt.New(t).Assert(err, qt.Equals, nil)
	coll := db.C("bakerysnapshots")
	qt.New(t).Assert(EnsureIndex(coll), qt.IsNil)
	store := New(Params{Collection: coll, Timezone: time.UTC})
	return store, func() { db.Close() }
}

func TestLoadMissingReturnsFreshState(t *testing.T) {
	c := qt.New(t)
	store, cleanup := testColl(t)
	defer cleanup()

	state, err := store.Load(1)
	c.Assert(err, qt.IsNil)
	c.Assert(state.NextNumber, qt.Equals, 1)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := qt.New(t)
	store, cleanup := testColl(t)
	defer cleanup()

	state := queue.NewBakeryState()
	ticket, err := state.IssueSingle(func() int64 { return 1700000000 })
	c.Assert(err, qt.IsNil)
	state.Reservations[ticket.Number] = queue.Reservation{2, 1}
	state.Order = []int{ticket.Number}
	state.SlotsForMultis[9] = true

	c.Assert(store.Save(3, state), qt.IsNil)

	loaded, err := store.Load(3)
	c.Assert(err, qt.IsNil)
	c.Assert(loaded.Tickets[ticket.Number].Kind, qt.Equals, queue.Single)
	c.Assert(loaded.Reservations[ticket.Number], qt.DeepEquals, queue.Reservation{2, 1})
	c.Assert(loaded.SlotsForMultis[9], qt.Equals, true)
}

func TestResetClearsSnapshot(t *testing.T) {
	c := qt.New(t)
	store, cleanup := testColl(t)
	defer cleanup()

	c.Assert(store.Save(5, queue.NewBakeryState()), qt.IsNil)
	c.Assert(store.Reset(5), qt.IsNil)

	loaded, err := store.Load(5)
	c.Assert(err, qt.IsNil)
	c.Assert(loaded.NextNumber, qt.Equals, 1)
}
