package queue

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func threeBreadConfig() Config {
	return Config{
		BakeryID:         7,
		BreadTypeIDs:     []int{1, 2, 3},
		PrepTimePerBread: []int{60, 80, 20},
		BakingTimeS:      60,
	}
}

func TestQueueSingleOrderEndToEnd(t *testing.T) {
	c := qt.New(t)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	q := NewQueue(QueueParams{Clock: clock, Timezone: time.UTC})
	cfg := singleBreadConfig()

	res, err := q.NewTicket(1, cfg, Reservation{1})
	c.Assert(err, qt.IsNil)
	c.Assert(res.Ticket.Number, qt.Equals, 1)
	c.Assert(res.ShowOnDisplay, qt.Equals, true)

	status, err := q.CurrentTicket(1, cfg, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(status.Readiness.Ready, qt.Equals, false)
	c.Assert(status.Readiness.WaitS, qt.Equals, 90)

	_, err = q.NewBread(1, cfg)
	c.Assert(err, qt.IsNil)

	clock.t = clock.t.Add(61 * time.Second)
	status2, err := q.CurrentTicket(1, cfg, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(status2.Readiness.Ready, qt.Equals, true)
}

func TestQueueInterleavingScheduler(t *testing.T) {
	c := qt.New(t)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	q := NewQueue(QueueParams{Clock: clock, Timezone: time.UTC})
	cfg := threeBreadConfig()

	r1, err := q.NewTicket(7, cfg, Reservation{1, 0, 0})
	c.Assert(err, qt.IsNil)
	c.Assert(r1.Ticket.Number, qt.Equals, 1)

	r2, err := q.NewTicket(7, cfg, Reservation{0, 0, 1})
	c.Assert(err, qt.IsNil)
	c.Assert(r2.Ticket.Number, qt.Equals, 3)

	status, err := q.QueueStatus(7)
	c.Assert(err, qt.IsNil)
	c.Assert(status.ActiveCount, qt.Equals, 2)
}

func TestQueueWaitListServeFlow(t *testing.T) {
	c := qt.New(t)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	q := NewQueue(QueueParams{Clock: clock, Timezone: time.UTC})
	cfg := singleBreadConfig()

	_, err := q.NewTicket(1, cfg, Reservation{1})
	c.Assert(err, qt.IsNil)
	_, err = q.NewTicket(1, cfg, Reservation{1})
	c.Assert(err, qt.IsNil)

	err = q.SendCurrentToWaitList(1, 1)
	c.Assert(err, qt.IsNil)

	_, err = q.CurrentTicket(1, cfg, 1)
	c.Assert(Cause(err), qt.Equals, ErrTicketInWaitList)

	status, err := q.QueueStatus(1)
	c.Assert(err, qt.IsNil)
	c.Assert(status.ActiveCount, qt.Equals, 1)
	c.Assert(status.WaitListCount, qt.Equals, 1)

	err = q.ServeWaitList(1, 1)
	c.Assert(err, qt.IsNil)

	_, err = q.CurrentTicket(1, cfg, 1)
	c.Assert(Cause(err), qt.Equals, ErrTicketServed)
}

func TestQueueNewTicketRejectsBadReservation(t *testing.T) {
	c := qt.New(t)
	q := NewQueue(QueueParams{Timezone: time.UTC})
	cfg := singleBreadConfig()

	_, err := q.NewTicket(1, cfg, Reservation{0})
	c.Assert(Cause(err), qt.Equals, ErrInvalidRequest)

	_, err = q.NewTicket(1, cfg, Reservation{1, 1})
	c.Assert(Cause(err), qt.Equals, ErrInvalidRequest)
}

func TestQueueRecoverRebuildsPrepState(t *testing.T) {
	c := qt.New(t)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	journal := NewMemJournal()
	q := NewQueue(QueueParams{Clock: clock, Journal: journal, Timezone: time.UTC})
	cfg := singleBreadConfig()

	_, err := q.NewTicket(1, cfg, Reservation{1})
	c.Assert(err, qt.IsNil)
	_, err = q.NewBread(1, cfg)
	c.Assert(err, qt.IsNil)

	// Cold restart against the same journal.
	q2 := NewQueue(QueueParams{Clock: clock, Journal: journal, Timezone: time.UTC})
	err = q2.Recover(1, cfg)
	c.Assert(err, qt.IsNil)

	status, err := q2.QueueStatus(1)
	c.Assert(err, qt.IsNil)
	c.Assert(status.Prep.CurrentTicket, qt.Equals, 1)
	c.Assert(status.Prep.BreadsMade, qt.Equals, 1)
}
