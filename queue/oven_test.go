package queue

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func singleBreadConfig() Config {
	return Config{
		BakeryID:         1,
		BreadTypeIDs:     []int{1},
		PrepTimePerBread: []int{30},
		BakingTimeS:      60,
	}
}

func TestNewBreadCompletesSingleTicket(t *testing.T) {
	c := qt.New(t)
	s := NewBakeryState()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	now := nowFunc(clock)

	ticket, err := s.IssueSingle(now)
	c.Assert(err, qt.IsNil)
	s.Reservations[ticket.Number] = Reservation{1}
	s.Order = insertSorted(s.Order, ticket.Number)
	s.Display = false

	oven := NewOven(singleBreadConfig())
	result := oven.NewBread(s, clock)

	c.Assert(result.HasCustomer, qt.Equals, true)
	c.Assert(result.CustomerID, qt.Equals, ticket.Number)
	c.Assert(result.CustomerBreads, qt.Equals, 1)
	c.Assert(s.Prep.BreadsMade, qt.Equals, 1)
	c.Assert(s.Display, qt.Equals, true)
	c.Assert(len(s.Breads), qt.Equals, 1)
	c.Assert(s.Breads[0].OwningTicket, qt.Equals, ticket.Number)
}

func TestNewBreadAdvancesToNextIncompleteTicket(t *testing.T) {
	c := qt.New(t)
	s := NewBakeryState()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	now := nowFunc(clock)

	t1, err := s.IssueSingle(now)
	c.Assert(err, qt.IsNil)
	s.Reservations[t1.Number] = Reservation{1}
	s.Order = insertSorted(s.Order, t1.Number)

	t2, err := s.IssueSingle(now)
	c.Assert(err, qt.IsNil)
	s.Reservations[t2.Number] = Reservation{1}
	s.Order = insertSorted(s.Order, t2.Number)

	// Simulate that new_ticket already consumed the one-shot display flag.
	s.Display = false

	oven := NewOven(singleBreadConfig())

	r1 := oven.NewBread(s, clock)
	c.Assert(r1.CustomerID, qt.Equals, t1.Number)
	c.Assert(r1.NextHasCustomer, qt.Equals, true)
	c.Assert(r1.NextCustomer, qt.Equals, t2.Number)
	c.Assert(s.Prep.CurrentTicket, qt.Equals, t2.Number)
	c.Assert(s.Display, qt.Equals, false)

	r2 := oven.NewBread(s, clock)
	c.Assert(r2.CustomerID, qt.Equals, t2.Number)
	c.Assert(s.Display, qt.Equals, true)
}

func TestNewBreadNoActiveTicketUsesSentinel(t *testing.T) {
	c := qt.New(t)
	s := NewBakeryState()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}

	oven := NewOven(singleBreadConfig())
	result := oven.NewBread(s, clock)

	c.Assert(result.HasCustomer, qt.Equals, false)
	c.Assert(s.Breads[0].OwningTicket, qt.Equals, NoOwner)
}

func TestRebuildPrepStatePinsToLastWhenAllComplete(t *testing.T) {
	c := qt.New(t)
	s := NewBakeryState()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	now := nowFunc(clock)

	t1, err := s.IssueSingle(now)
	c.Assert(err, qt.IsNil)
	s.Reservations[t1.Number] = Reservation{1}
	s.Order = insertSorted(s.Order, t1.Number)

	oven := NewOven(singleBreadConfig())
	oven.NewBread(s, clock)

	// Simulate a cold restart: prep_state is rebuilt from scratch.
	s.Prep = PrepState{}
	oven.RebuildPrepState(s)
	c.Assert(s.Prep.CurrentTicket, qt.Equals, t1.Number)
	c.Assert(s.Prep.BreadsMade, qt.Equals, 1)
}

func TestRebuildPrepStateFindsIncompleteTicket(t *testing.T) {
	c := qt.New(t)
	s := NewBakeryState()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	now := nowFunc(clock)

	t1, err := s.IssueSingle(now)
	c.Assert(err, qt.IsNil)
	s.Reservations[t1.Number] = Reservation{1}
	s.Order = insertSorted(s.Order, t1.Number)

	t2, err := s.IssueMulti(2, now)
	c.Assert(err, qt.IsNil)
	s.Reservations[t2.Number] = Reservation{2}
	s.Order = insertSorted(s.Order, t2.Number)

	oven := NewOven(singleBreadConfig())
	oven.NewBread(s, clock) // completes t1

	s.Prep = PrepState{}
	oven.RebuildPrepState(s)
	c.Assert(s.Prep.CurrentTicket, qt.Equals, t2.Number)
	c.Assert(s.Prep.BreadsMade, qt.Equals, 0)

	if diff := cmp.Diff(s.Prep, PrepState{CurrentTicket: t2.Number, BreadsMade: 0}); diff != "" {
		t.Fatalf("rebuilt prep state mismatch (-got +want):\n%s", diff)
	}
}
