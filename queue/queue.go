package queue

import (
	"context"
	"time"

	"gopkg.in/errgo.v1"
)

// Notifier is the fire-and-forget delivery boundary Queue calls out to
// after a mutation worth telling collaborators about (new ticket, fresh
// bread, a ticket moving to the wait list). Queue never waits on it: a
// Notify call is expected to enqueue and return immediately, matching
// notify.Pool's contract.
type Notifier interface {
	Notify(ctx context.Context, kind string, bakeryID int, payload interface{})
}

// QueueParams configures a Queue. Journal and Clock are optional: a nil
// Journal defaults to an in-memory-only store, a nil Clock defaults to
// WallClock. Timezone defaults to Asia/Tehran, matching the reference
// deployment's local-midnight reset. Notifier is optional; a nil Notifier
// disables notification fan-out entirely.
type QueueParams struct {
	Journal  Journal
	Clock    Clock
	Timezone *time.Location
	Notifier Notifier
}

// Queue composes the state store (C1), scheduler (C2), oven (C3) and
// readiness calculator (C4) into the compound, per-bakery atomic
// operations that the rest of the system calls.
type Queue struct {
	cache    *Cache
	clock    Clock
	timezone *time.Location
	notifier Notifier
}

// NewQueue returns a Queue built from p, filling in defaults for any
// zero-valued field.
func NewQueue(p QueueParams) *Queue {
	clock := p.Clock
	if clock == nil {
		clock = WallClock
	}
	journal := p.Journal
	if journal == nil {
		journal = NewMemJournal()
	}
	tz := p.Timezone
	if tz == nil {
		var err error
		tz, err = time.LoadLocation("Asia/Tehran")
		if err != nil {
			tz = time.UTC
		}
	}
	return &Queue{
		cache:    NewCache(journal, clock),
		clock:    clock,
		timezone: tz,
		notifier: p.Notifier,
	}
}

// notify fires e to the configured Notifier, if any. It never blocks the
// caller on delivery.
func (q *Queue) notify(kind string, bakeryID int, payload interface{}) {
	if q.notifier == nil {
		return
	}
	q.notifier.Notify(context.Background(), kind, bakeryID, payload)
}

// NewTicketResult is returned by NewTicket.
type NewTicketResult struct {
	Ticket         Ticket
	Token          string
	ShowOnDisplay  bool
	EstimatedWaitS int
	HasEstimate    bool
}

// NewTicket issues a new ticket for bakeryID against reservation, which
// must have length cfg.BreadTypeIDs and a positive total. reservation.Total()
// == 1 issues a single ticket; >= 2 issues a multi ticket.
func (q *Queue) NewTicket(bakeryID int, cfg Config, reservation Reservation) (NewTicketResult, error) {
	if len(reservation) != len(cfg.BreadTypeIDs) {
		return NewTicketResult{}, errgo.WithCausef(nil, ErrInvalidRequest,
			"reservation has %d entries, want %d", len(reservation), len(cfg.BreadTypeIDs))
	}
	for i, n := range reservation {
		if n < 0 {
			return NewTicketResult{}, errgo.WithCausef(nil, ErrInvalidRequest,
				"reservation entry %d is negative (%d)", i, n)
		}
	}
	total := reservation.Total()
	if total <= 0 {
		return NewTicketResult{}, errgo.WithCausef(nil, ErrInvalidRequest, "reservation total must be positive")
	}

	var result NewTicketResult
	err := q.cache.Update(bakeryID, func(s *BakeryState) error {
		now := nowFunc(q.clock)
		var t *Ticket
		var err error
		if total == 1 {
			t, err = s.IssueSingle(now)
		} else {
			t, err = s.IssueMulti(total, now)
		}
		if err != nil {
			return errgo.Mask(err, errgo.Any)
		}
		s.Reservations[t.Number] = reservation.Clone()
		s.Order = insertSorted(s.Order, t.Number)

		show := s.Display
		s.Display = false

		result = NewTicketResult{
			Ticket:        *t,
			Token:         DailyToken(bakeryID, t.Number, q.clock.Now(), q.timezone),
			ShowOnDisplay: show,
		}
		if wait := Readiness(s, cfg, t.Number, q.clock.Now()); wait.HasWaitS {
			result.EstimatedWaitS = wait.WaitS
			result.HasEstimate = true
		}
		return nil
	})
	if err == nil {
		q.notify("ticket_issued", bakeryID, result)
	}
	return result, err
}

// NewBreadResponse is returned by NewBread.
type NewBreadResponse struct {
	NewBreadResult
	CorrelationID string
}

// NewBread stamps one freshly baked bread, advancing the oven's working
// ticket as described by C3.
func (q *Queue) NewBread(bakeryID int, cfg Config) (NewBreadResponse, error) {
	oven := NewOven(cfg)
	var resp NewBreadResponse
	err := q.cache.Update(bakeryID, func(s *BakeryState) error {
		resp.NewBreadResult = oven.NewBread(s, q.clock)
		resp.CorrelationID = BreadCorrelationID()
		return nil
	})
	if err != nil {
		return NewBreadResponse{}, err
	}
	logger.Infof("bakery %d: new bread [%s] owner=%d", bakeryID, resp.CorrelationID, resp.NewBreadResult.CustomerID)
	q.notify("bread_ready", bakeryID, resp)
	return resp, nil
}

// TicketStatus is the outcome of querying one ticket's current state.
type TicketStatus struct {
	Ticket    Ticket
	Readiness Readiness
}

// CurrentTicket reports the live status of ticketNumber: its stored
// record plus a freshly computed readiness estimate. If the ticket is not
// active it returns ErrTicketInWaitList or ErrTicketServed when one of
// those applies, and ErrNotFound otherwise.
func (q *Queue) CurrentTicket(bakeryID int, cfg Config, ticketNumber int) (TicketStatus, error) {
	var result TicketStatus
	err := q.cache.View(bakeryID, func(s *BakeryState) error {
		t, ok := s.Tickets[ticketNumber]
		if !ok || t.Status != Waiting {
			if _, waiting := s.WaitList[ticketNumber]; waiting {
				return errgo.WithCausef(nil, ErrTicketInWaitList, "ticket %d is in the wait list", ticketNumber)
			}
			if s.Served[ticketNumber] {
				return errgo.WithCausef(nil, ErrTicketServed, "ticket %d already served", ticketNumber)
			}
			return errgo.WithCausef(nil, ErrNotFound, "ticket %d not found", ticketNumber)
		}
		result = TicketStatus{
			Ticket:    *t,
			Readiness: Readiness(s, cfg, ticketNumber, q.clock.Now()),
		}
		return nil
	})
	return result, err
}

// SendCurrentToWaitList removes ticketNumber from the active schedule and
// files it on the wait list, addressable until ServeWaitList is called for
// it. It does not touch CurrentServed: the scheduler continues to treat the
// slot as taken until expireOldSlots naturally reclaims it.
func (q *Queue) SendCurrentToWaitList(bakeryID int, ticketNumber int) error {
	err := q.cache.Update(bakeryID, func(s *BakeryState) error {
		res, ok := s.Reservations[ticketNumber]
		if !ok {
			return errgo.WithCausef(nil, ErrNotFound, "ticket %d not found", ticketNumber)
		}
		s.WaitList[ticketNumber] = res
		delete(s.Reservations, ticketNumber)
		s.Order = removeFromOrder(s.Order, ticketNumber)
		if t, ok := s.Tickets[ticketNumber]; ok {
			t.Status = WaitListed
		}
		return nil
	})
	if err == nil {
		q.notify("ticket_wait_listed", bakeryID, ticketNumber)
	}
	return err
}

// ServeWaitList marks ticketNumber (previously filed via
// SendCurrentToWaitList) as served and removes it from the wait list. It
// advances CurrentServed the same way oven completion does, then
// re-expires any reserved slots that fall behind the new high-water mark.
func (q *Queue) ServeWaitList(bakeryID int, ticketNumber int) error {
	err := q.cache.Update(bakeryID, func(s *BakeryState) error {
		if _, ok := s.WaitList[ticketNumber]; !ok {
			return errgo.WithCausef(nil, ErrNotFound, "ticket %d is not in the wait list", ticketNumber)
		}
		delete(s.WaitList, ticketNumber)
		s.Served[ticketNumber] = true
		if t, ok := s.Tickets[ticketNumber]; ok {
			t.Status = Served
			t.ServedAt = q.clock.Now()
		}
		if ticketNumber > s.CurrentServed {
			s.CurrentServed = ticketNumber
		}
		s.expireOldSlots()
		return nil
	})
	if err == nil {
		q.notify("ticket_served", bakeryID, ticketNumber)
	}
	return err
}

// QueueStatusResult summarizes the overall state of one bakery's queue.
type QueueStatusResult struct {
	CurrentServed int
	ActiveCount   int
	WaitListCount int
	Prep          PrepState
}

// QueueStatus reports a snapshot summary for bakeryID.
func (q *Queue) QueueStatus(bakeryID int) (QueueStatusResult, error) {
	var result QueueStatusResult
	err := q.cache.View(bakeryID, func(s *BakeryState) error {
		result = QueueStatusResult{
			CurrentServed: s.CurrentServed,
			ActiveCount:   len(s.Order),
			WaitListCount: len(s.WaitList),
			Prep:          s.Prep,
		}
		return nil
	})
	return result, err
}

// CurrentTicketNumber returns the lowest active ticket number for
// bakeryID - the head of the queue - and whether the active order is
// non-empty. This is distinct from the oven's working ticket
// (QueueStatus(...).Prep.CurrentTicket): a ticket can sit at the head of
// the queue for a while after its bread finishes baking, before it is
// served or sent to the wait list.
func (q *Queue) CurrentTicketNumber(bakeryID int) (int, bool, error) {
	var (
		n  int
		ok bool
	)
	err := q.cache.View(bakeryID, func(s *BakeryState) error {
		if len(s.Order) > 0 {
			n = s.Order[0]
			ok = true
		}
		return nil
	})
	return n, ok, err
}

// InQueueEstimate estimates the wait for a brand-new order of reservation
// without issuing a ticket for it.
func (q *Queue) InQueueEstimate(bakeryID int, cfg Config, reservation Reservation) (int, error) {
	var waitS int
	err := q.cache.View(bakeryID, func(s *BakeryState) error {
		waitS = InQueueCustomersTime(s, cfg, reservation)
		return nil
	})
	return waitS, err
}

// IsTicketInWaitList reports whether ticketNumber is presently filed on the
// wait list for bakeryID.
func (q *Queue) IsTicketInWaitList(bakeryID int, ticketNumber int) (bool, error) {
	var in bool
	err := q.cache.View(bakeryID, func(s *BakeryState) error {
		_, in = s.WaitList[ticketNumber]
		return nil
	})
	return in, err
}

// ServeTicketByToken looks up the wait-listed ticket for bakeryID whose
// daily token equals token and marks it served, the token-addressed
// counterpart to ServeWaitList. A matching ticket that is not on the wait
// list is rejected with ErrNotFound. It advances CurrentServed and
// re-expires reserved slots exactly as ServeWaitList does.
func (q *Queue) ServeTicketByToken(bakeryID int, token string) (Ticket, error) {
	var result Ticket
	err := q.cache.Update(bakeryID, func(s *BakeryState) error {
		now := q.clock.Now()
		n, ok := q.findByToken(s, bakeryID, token, now)
		if !ok {
			return errgo.WithCausef(nil, ErrNotFound, "no ticket matches token %q", token)
		}
		if _, waiting := s.WaitList[n]; !waiting {
			return errgo.WithCausef(nil, ErrNotFound, "ticket %d is not in the wait list", n)
		}
		delete(s.WaitList, n)
		s.Served[n] = true
		t, ok := s.Tickets[n]
		if !ok {
			return errgo.WithCausef(nil, ErrNotFound, "ticket %d not found", n)
		}
		t.Status = Served
		t.ServedAt = now
		if n > s.CurrentServed {
			s.CurrentServed = n
		}
		s.expireOldSlots()
		result = *t
		return nil
	})
	if err == nil {
		q.notify("ticket_served", bakeryID, result.Number)
	}
	return result, err
}

// findByToken scans every ticket on file for bakeryID - active,
// wait-listed and served alike - for the one whose daily token equals
// token. Tokens are derived, not stored, so lookup is necessarily a scan
// rather than an index hit.
func (q *Queue) findByToken(s *BakeryState, bakeryID int, token string, now time.Time) (int, bool) {
	for n := range s.Reservations {
		if DailyToken(bakeryID, n, now, q.timezone) == token {
			return n, true
		}
	}
	for n := range s.WaitList {
		if DailyToken(bakeryID, n, now, q.timezone) == token {
			return n, true
		}
	}
	for n := range s.Served {
		if DailyToken(bakeryID, n, now, q.timezone) == token {
			return n, true
		}
	}
	return 0, false
}

// CustomerView is the customer-facing summary returned by LookupByToken, the
// composition of the ticket's readiness with the wider queue picture a
// customer-facing client displays alongside it.
type CustomerView struct {
	TicketNumber         int
	Readiness            Readiness
	PeopleInQueue        int
	EmptySlotTimeAvgS    int
	InQueueCustomersTimeS int
	UserBreads           Reservation
}

// LookupByToken resolves token against bakeryID's active, wait-listed and
// served tickets and returns the customer-facing view of an active one. Returns ErrTicketInWaitList or
// ErrTicketServed if the matching ticket left the active queue, ErrNotFound
// if no ticket matches token at all.
func (q *Queue) LookupByToken(bakeryID int, cfg Config, token string) (CustomerView, error) {
	var result CustomerView
	err := q.cache.View(bakeryID, func(s *BakeryState) error {
		now := q.clock.Now()
		n, ok := q.findByToken(s, bakeryID, token, now)
		if !ok {
			return errgo.WithCausef(nil, ErrNotFound, "no ticket matches token %q", token)
		}
		if s.Served[n] {
			return errgo.WithCausef(nil, ErrTicketServed, "ticket %d already served", n)
		}
		if _, waiting := s.WaitList[n]; waiting {
			return errgo.WithCausef(nil, ErrTicketInWaitList, "ticket %d is in the wait list", n)
		}
		res := s.Reservations[n]
		result = CustomerView{
			TicketNumber:          n,
			Readiness:             Readiness(s, cfg, n, now),
			PeopleInQueue:         len(s.Order),
			EmptySlotTimeAvgS:     EmptySlotPadding(s, cfg, n),
			InQueueCustomersTimeS: InQueueCustomersTime(s, cfg, res),
			UserBreads:            res.Clone(),
		}
		return nil
	})
	return result, err
}

// TicketBreadCount names one active ticket's reservation for the summary
// QueueUntilTicketSummary returns.
type TicketBreadCount struct {
	TicketNumber int
	Breads       Reservation
}

// UntilTicketSummary is the result of QueueUntilTicketSummary.
type UntilTicketSummary struct {
	PeopleInQueueUntilTicket int
	TicketsAndBreadCounts    []TicketBreadCount
}

// QueueUntilTicketSummary reports, for the ticket matching token, how many
// active tickets are scheduled up to and including it and what each of
// them ordered.
func (q *Queue) QueueUntilTicketSummary(bakeryID int, token string) (UntilTicketSummary, error) {
	var result UntilTicketSummary
	err := q.cache.View(bakeryID, func(s *BakeryState) error {
		now := q.clock.Now()
		n, ok := q.findByToken(s, bakeryID, token, now)
		if !ok {
			return errgo.WithCausef(nil, ErrNotFound, "no ticket matches token %q", token)
		}
		for _, k := range s.Order {
			if k > n {
				break
			}
			result.TicketsAndBreadCounts = append(result.TicketsAndBreadCounts, TicketBreadCount{
				TicketNumber: k,
				Breads:       s.Reservations[k].Clone(),
			})
		}
		result.PeopleInQueueUntilTicket = len(result.TicketsAndBreadCounts)
		return nil
	})
	return result, err
}

func insertSorted(order []int, n int) []int {
	i := 0
	for i < len(order) && order[i] < n {
		i++
	}
	if i < len(order) && order[i] == n {
		return order
	}
	order = append(order, 0)
	copy(order[i+1:], order[i:])
	order[i] = n
	return order
}

func removeFromOrder(order []int, n int) []int {
	for i, v := range order {
		if v == n {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
