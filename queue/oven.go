package queue

import (
	"github.com/rogpeppe/fastuuid"
)

var breadUUIDGen = fastuuid.MustNewGenerator()

// Oven tracks which ticket the physical oven is currently filling and
// stamps each newly baked bread with its owning ticket: breads emerge one
// at a time and must be associated with exactly one customer before they
// can be handed out.
type Oven struct {
	cfg Config
}

// NewOven returns an Oven for the given bakery configuration.
func NewOven(cfg Config) *Oven {
	return &Oven{cfg: cfg}
}

// BreadCorrelationID returns a fresh, process-unique correlation id to
// attach to a stamped bread record for structured logging. It is not part
// of the persisted bread log; it appears in the log lines new_bread emits
// and in the NewBreadResponse returned to the caller.
func BreadCorrelationID() string {
	id := breadUUIDGen.Next()
	return fastuuidHex(id[:8])
}

func fastuuidHex(b []byte) string {
	const hex = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hex[c>>4]
		out[i*2+1] = hex[c&0xf]
	}
	return string(out)
}

// breadsPerTicket scans the bread log and counts, per ticket number, how
// many breads have been stamped to it (NoOwner breads are excluded).
func breadsPerTicket(log []Bread) map[int]int {
	counts := make(map[int]int)
	for _, b := range log {
		if b.OwningTicket == NoOwner {
			continue
		}
		counts[b.OwningTicket]++
	}
	return counts
}

// NewBreadResult describes the outcome of stamping one bread.
type NewBreadResult struct {
	HasCustomer   bool
	CustomerID    int
	CustomerBreads int
	// NextCustomer is set when the working ticket just completed and a
	// new one became the oven's target.
	NextCustomer    int
	NextHasCustomer bool
}

// NewBread implements the C3 algorithm: it determines the working ticket,
// increments its bread count, stamps a bread record, and advances
// prep_state when the working ticket completes.
func (o *Oven) NewBread(s *BakeryState, clock Clock) NewBreadResult {
	counts := breadsPerTicket(s.Breads)

	working, workingCount, ok := o.workingTicket(s, counts)
	if !ok {
		// No incomplete ticket anywhere: stamp with the sentinel owner.
		s.Breads = append(s.Breads, Bread{
			Index:        s.NextBreadIndex,
			CookReadyAt:  clock.Now().Add(secondsDuration(o.cfg.BakingTimeS)),
			OwningTicket: NoOwner,
		})
		s.NextBreadIndex++
		o.recordBreadTiming(s, clock)
		return NewBreadResult{HasCustomer: false}
	}

	workingCount++
	s.Breads = append(s.Breads, Bread{
		Index:        s.NextBreadIndex,
		CookReadyAt:  clock.Now().Add(secondsDuration(o.cfg.BakingTimeS)),
		OwningTicket: working,
	})
	s.NextBreadIndex++
	o.recordBreadTiming(s, clock)

	result := NewBreadResult{
		HasCustomer:    true,
		CustomerID:     working,
		CustomerBreads: workingCount,
	}

	total := s.Reservations[working].Total()
	if workingCount >= total {
		// Working ticket just completed: find the next incomplete
		// ticket in order.
		next, hasNext := o.nextIncomplete(s, breadsPerTicket(s.Breads), working)
		if hasNext {
			s.Prep = PrepState{CurrentTicket: next, BreadsMade: breadsPerTicket(s.Breads)[next]}
			if next > s.CurrentServed {
				s.CurrentServed = next
			}
			result.NextCustomer = next
			result.NextHasCustomer = true
		} else {
			s.Prep = PrepState{CurrentTicket: working, BreadsMade: workingCount}
			s.Display = true
		}
	} else {
		s.Prep = PrepState{CurrentTicket: working, BreadsMade: workingCount}
	}
	return result
}

// workingTicket determines which ticket the oven is presently filling: the
// ticket named by prep_state if it is still active and incomplete,
// otherwise the first incomplete ticket in ascending order.
func (o *Oven) workingTicket(s *BakeryState, counts map[int]int) (ticket, madeCount int, ok bool) {
	if s.Prep.CurrentTicket != 0 {
		if res, active := s.Reservations[s.Prep.CurrentTicket]; active && isActive(s, s.Prep.CurrentTicket) {
			made := counts[s.Prep.CurrentTicket]
			if made < res.Total() {
				return s.Prep.CurrentTicket, made, true
			}
		}
	}
	return o.nextIncomplete(s, counts, 0)
}

// nextIncomplete scans s.Order ascending for the first ticket whose
// breads-made is below its reservation total, skipping a given ticket
// number (0 to skip nothing).
func (o *Oven) nextIncomplete(s *BakeryState, counts map[int]int, skip int) (ticket, made int, ok bool) {
	for _, n := range s.Order {
		if n == skip {
			continue
		}
		res, present := s.Reservations[n]
		if !present {
			continue
		}
		c := counts[n]
		if c < res.Total() {
			return n, c, true
		}
	}
	return 0, 0, false
}

func isActive(s *BakeryState, number int) bool {
	for _, n := range s.Order {
		if n == number {
			return true
		}
	}
	return false
}

func (o *Oven) recordBreadTiming(s *BakeryState, clock Clock) {
	now := clock.Now().Unix()
	if s.LastBreadTime != 0 {
		diff := now - s.LastBreadTime
		s.BreadTimeDiffs = append(s.BreadTimeDiffs, diff)
		if len(s.BreadTimeDiffs) > 50 {
			s.BreadTimeDiffs = s.BreadTimeDiffs[len(s.BreadTimeDiffs)-50:]
		}
	}
	s.LastBreadTime = now
}

// RebuildPrepState recomputes prep_state from the current reservations,
// order and bread log. Used by recovery (C6) after a restart: it never
// restarts the ticket that was already in progress.
func (o *Oven) RebuildPrepState(s *BakeryState) {
	counts := breadsPerTicket(s.Breads)
	if next, made, ok := o.nextIncomplete(s, counts, 0); ok {
		s.Prep = PrepState{CurrentTicket: next, BreadsMade: made}
		s.Display = len(s.Breads) == 0
		return
	}
	if len(s.Order) > 0 {
		last := s.Order[len(s.Order)-1]
		s.Prep = PrepState{CurrentTicket: last, BreadsMade: s.Reservations[last].Total()}
	} else {
		s.Prep = PrepState{}
	}
	s.Display = len(s.Breads) == 0
}
