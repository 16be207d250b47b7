package queue

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestReadinessNoBreadsAtAll(t *testing.T) {
	c := qt.New(t)
	s := NewBakeryState()
	cfg := singleBreadConfig()
	now := time.Unix(1700000000, 0)

	s.Tickets[1] = &Ticket{Number: 1, Kind: Single, Quantity: 1, Status: Waiting}
	s.Reservations[1] = Reservation{1}
	s.Order = []int{1}

	r := Readiness(s, cfg, 1, now)
	c.Assert(r.Ready, qt.Equals, false)
	c.Assert(r.Precise, qt.Equals, false)
	c.Assert(r.HasWaitS, qt.Equals, true)
	c.Assert(r.WaitS, qt.Equals, 90) // baking_time_s(60) + prep_time(1*30)
}

func TestReadinessCompleteAndReady(t *testing.T) {
	c := qt.New(t)
	s := NewBakeryState()
	cfg := singleBreadConfig()
	stampedAt := time.Unix(1700000000, 0)

	s.Reservations[1] = Reservation{1}
	s.Order = []int{1}
	s.Breads = []Bread{{Index: 0, CookReadyAt: stampedAt.Add(60 * time.Second), OwningTicket: 1}}

	before := stampedAt.Add(30 * time.Second)
	r := Readiness(s, cfg, 1, before)
	c.Assert(r.Ready, qt.Equals, false)
	c.Assert(r.Precise, qt.Equals, true)
	c.Assert(r.WaitS, qt.Equals, 30)

	after := stampedAt.Add(61 * time.Second)
	r2 := Readiness(s, cfg, 1, after)
	c.Assert(r2.Ready, qt.Equals, true)
	c.Assert(r2.Precise, qt.Equals, true)
}

func TestReadinessPartiallyFilled(t *testing.T) {
	c := qt.New(t)
	s := NewBakeryState()
	cfg := Config{
		BreadTypeIDs:     []int{1, 2},
		PrepTimePerBread: []int{20, 40},
		BakingTimeS:      60,
	}
	now := time.Unix(1700000000, 0)

	s.Reservations[1] = Reservation{2, 0}
	s.Order = []int{1}
	s.Breads = []Bread{{Index: 0, CookReadyAt: now.Add(60 * time.Second), OwningTicket: 1}}

	r := Readiness(s, cfg, 1, now)
	c.Assert(r.Ready, qt.Equals, false)
	c.Assert(r.Precise, qt.Equals, false)
	// remaining 1 bread of type index0 (prep=20) + baking_time_s
	c.Assert(r.WaitS, qt.Equals, 80)
}

func TestReadinessBreadsMadeZeroWithNonEmptyLog(t *testing.T) {
	c := qt.New(t)
	s := NewBakeryState()
	cfg := singleBreadConfig()
	now := time.Unix(1700000000, 0)

	s.Reservations[1] = Reservation{1}
	s.Reservations[2] = Reservation{1}
	s.Order = []int{1, 2}
	// ticket 1 untouched in the log but some unrelated bread exists
	s.Breads = []Bread{{Index: 0, CookReadyAt: now.Add(60 * time.Second), OwningTicket: NoOwner}}

	r := Readiness(s, cfg, 2, now)
	c.Assert(r.Ready, qt.Equals, false)
	c.Assert(r.Precise, qt.Equals, false)
	// ticket 1 untouched contributes prep_time(30) + own prep_time(30) + baking(60)
	c.Assert(r.WaitS, qt.Equals, 120)
}

func TestEmptySlotPaddingClamped(t *testing.T) {
	c := qt.New(t)
	s := NewBakeryState()
	cfg := Config{PrepTimePerBread: []int{200}}

	s.Order = []int{1, 2, 3, 4}
	s.Reservations[1] = Reservation{1}
	s.Reservations[2] = Reservation{1}
	s.Reservations[3] = Reservation{1}
	s.Reservations[4] = Reservation{1}

	padding := EmptySlotPadding(s, cfg, 4)
	c.Assert(padding, qt.Equals, maxEmptySlotPaddingS)
}

func TestInQueueCustomersTime(t *testing.T) {
	c := qt.New(t)
	s := NewBakeryState()
	cfg := singleBreadConfig()
	cfg.TimeoutS = 15

	s.Order = []int{1}
	s.Reservations[1] = Reservation{1}

	wait := InQueueCustomersTime(s, cfg, Reservation{1})
	// baking(60) + existing ticket prep(30) + new order prep(30) + timeout(15)
	c.Assert(wait, qt.Equals, 135)
}
