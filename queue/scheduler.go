package queue

import "gopkg.in/errgo.v1"

// BakeryState is the full per-bakery compound state held by the cache (C1)
// and mutated exclusively through the scheduler (C2), the oven (C3) and the
// queue operations (C5) that compose them.
type BakeryState struct {
	Tickets map[int]*Ticket

	// Order holds active (waiting) ticket numbers in ascending order.
	// It is kept in lockstep with Tickets and Reservations by the queue
	// operations layer.
	Order []int

	Reservations map[int]Reservation

	NextNumber    int
	CurrentServed int

	SlotsForMultis  map[int]bool
	SlotsForSingles map[int]bool

	Prep PrepState

	Breads         []Bread
	NextBreadIndex int

	LastBreadTime  int64 // unix seconds, 0 if never
	BreadTimeDiffs []int64

	// WaitList maps ticket number to its reservation for tickets set
	// aside by the operator; they stay addressable by number or by
	// daily token until explicitly served.
	WaitList map[int]Reservation

	// Served is the set of ticket numbers that completed via the
	// wait-list serve step.
	Served map[int]bool

	// Display is the one-shot flag: the next new_ticket call should
	// report show_on_display=true, then it is cleared.
	Display bool
}

// NewBakeryState returns a freshly initialized, empty state with
// NextNumber seeded to 1.
func NewBakeryState() *BakeryState {
	return &BakeryState{
		Tickets:         make(map[int]*Ticket),
		Reservations:    make(map[int]Reservation),
		SlotsForMultis:  make(map[int]bool),
		SlotsForSingles: make(map[int]bool),
		WaitList:        make(map[int]Reservation),
		Served:          make(map[int]bool),
		NextNumber:      1,
		Display:         true,
	}
}

// expireOldSlots drops every reserved slot at or below CurrentServed and
// advances NextNumber past CurrentServed if it has fallen behind.
func (s *BakeryState) expireOldSlots() {
	for n := range s.SlotsForMultis {
		if n <= s.CurrentServed {
			delete(s.SlotsForMultis, n)
		}
	}
	for n := range s.SlotsForSingles {
		if n <= s.CurrentServed {
			delete(s.SlotsForSingles, n)
		}
	}
	if s.NextNumber <= s.CurrentServed {
		s.NextNumber = s.CurrentServed + 1
	}
}

// smallestAbove returns the smallest key in set that is > current served,
// and whether one was found.
func smallestAbove(set map[int]bool, floor int) (int, bool) {
	found := false
	best := 0
	for n := range set {
		if n <= floor {
			continue
		}
		if !found || n < best {
			best = n
			found = true
		}
	}
	return best, found
}

// sortedAbove returns the members of set greater than floor, ascending.
func sortedAbove(set map[int]bool, floor int) []int {
	out := make([]int, 0, len(set))
	for n := range set {
		if n > floor {
			out = append(out, n)
		}
	}
	// insertion sort is fine; slot sets are tiny in practice
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// lastTicketOfKind returns the highest-numbered ticket of the given kind,
// and whether one exists.
func (s *BakeryState) lastTicketOfKind(kind Kind) (int, bool) {
	found := false
	best := 0
	for n, t := range s.Tickets {
		if t.Kind != kind {
			continue
		}
		if !found || n > best {
			best = n
			found = true
		}
	}
	return best, found
}

// IssueSingle assigns a ticket number for a single-bread order, following
// the bread-interleave policy: a single ticket fills the smallest reserved
// single-slot left by a multi before falling back to the next free number.
func (s *BakeryState) IssueSingle(now func() int64) (*Ticket, error) {
	s.expireOldSlots()

	if slot, ok := smallestAbove(s.SlotsForSingles, s.CurrentServed); ok {
		delete(s.SlotsForSingles, slot)
		return s.place(slot, Single, 1, now)
	}

	candidate := s.NextNumber
	if prev, ok := s.lastTicketOfKind(Single); ok && prev == candidate-1 {
		if _, exists := s.Tickets[candidate]; !exists {
			s.SlotsForMultis[candidate] = true
		}
		assigned := candidate + 1
		s.NextNumber = assigned + 1
		return s.place(assigned, Single, 1, now)
	}

	s.NextNumber = candidate + 1
	return s.place(candidate, Single, 1, now)
}

// IssueMulti assigns a ticket number for a multi-bread order of the given
// quantity (>= 2), following the same bread-interleave policy. It returns
// the multi ticket; any
// consumed placeholders it absorbed are left in s.Tickets but are not
// returned (callers wanting them can look them up by ParentTicket).
func (s *BakeryState) IssueMulti(quantity int, now func() int64) (*Ticket, error) {
	if quantity < 2 {
		return nil, errgo.WithCausef(nil, ErrInvalidRequest, "multi ticket quantity must be >= 2, got %d", quantity)
	}
	s.expireOldSlots()

	available := sortedAbove(s.SlotsForMultis, s.CurrentServed)
	if len(available) >= quantity {
		chosen := available[:quantity]
		for _, slot := range chosen {
			delete(s.SlotsForMultis, slot)
		}
		ticketNumber := chosen[len(chosen)-1]
		for _, slot := range chosen[:len(chosen)-1] {
			if err := s.placeConsumed(slot, ticketNumber, now); err != nil {
				return nil, err
			}
		}
		return s.place(ticketNumber, Multi, quantity, now)
	}

	candidate := s.NextNumber
	if prev, ok := s.lastTicketOfKind(Multi); ok && prev == candidate-1 {
		if _, exists := s.Tickets[candidate]; !exists {
			s.SlotsForSingles[candidate] = true
		}
		assigned := candidate + 1
		s.NextNumber = assigned + 1
		return s.place(assigned, Multi, quantity, now)
	}

	s.NextNumber = candidate + 1
	return s.place(candidate, Multi, quantity, now)
}

func (s *BakeryState) place(number int, kind Kind, quantity int, now func() int64) (*Ticket, error) {
	if _, exists := s.Tickets[number]; exists {
		return nil, errgo.WithCausef(nil, ErrConflict, "ticket %d already assigned", number)
	}
	t := &Ticket{
		Number:    number,
		Kind:      kind,
		Quantity:  quantity,
		Status:    Waiting,
		Timestamp: unixToTime(now()),
	}
	s.Tickets[number] = t
	return t, nil
}

func (s *BakeryState) placeConsumed(number, parent int, now func() int64) error {
	if _, exists := s.Tickets[number]; exists {
		return errgo.WithCausef(nil, ErrConflict, "ticket %d already assigned", number)
	}
	s.Tickets[number] = &Ticket{
		Number:       number,
		Kind:         Consumed,
		Quantity:     0,
		Status:       StatusConsumed,
		ParentTicket: parent,
		Timestamp:    unixToTime(now()),
	}
	return nil
}
