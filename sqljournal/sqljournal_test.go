package sqljournal

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/juju/postgrestest"

	"github.com/bakeryqueue/core/queue"
)

func newTestStore(t *testing.T) (*Store, func()) {
	db, err := postgrestest.New()
	if err == postgrestest.ErrDisabled {
		t.Skip("postgres testing is disabled")
	}
	qt.New(t).Assert(err, qt.IsNil)
	store := New(Params{DB: db.DB, Table: "testsnapshot", Timezone: time.UTC})
	return store, func() {
		store.Close()
		db.Close()
	}
}

func TestLoadMissingReturnsFreshState(t *testing.T) {
	c := qt.New(t)
	store, cleanup := newTestStore(t)
	defer cleanup()

	state, err := store.Load(1)
	c.Assert(err, qt.IsNil)
	c.Assert(state.NextNumber, qt.Equals, 1)
	c.Assert(state.Tickets, qt.HasLen, 0)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := qt.New(t)
	store, cleanup := newTestStore(t)
	defer cleanup()

	state := queue.NewBakeryState()
	ticket, err := state.IssueSingle(func() int64 { return 1700000000 })
	c.Assert(err, qt.IsNil)
	state.Reservations[ticket.Number] = queue.Reservation{1}
	state.Order = []int{ticket.Number}

	c.Assert(store.Save(42, state), qt.IsNil)

	loaded, err := store.Load(42)
	c.Assert(err, qt.IsNil)
	c.Assert(loaded.NextNumber, qt.Equals, state.NextNumber)
	c.Assert(loaded.Tickets, qt.HasLen, 1)
	c.Assert(loaded.Tickets[ticket.Number].Kind, qt.Equals, queue.Single)
}

func TestResetClearsSnapshot(t *testing.T) {
	c := qt.New(t)
	store, cleanup := newTestStore(t)
	defer cleanup()

	state := queue.NewBakeryState()
	c.Assert(store.Save(7, state), qt.IsNil)
	c.Assert(store.Reset(7), qt.IsNil)

	loaded, err := store.Load(7)
	c.Assert(err, qt.IsNil)
	c.Assert(loaded.NextNumber, qt.Equals, 1)
	c.Assert(loaded.Tickets, qt.HasLen, 0)
}
