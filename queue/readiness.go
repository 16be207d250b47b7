package queue

import "time"

// maxEmptySlotPaddingS caps the empty-slot padding so a long run of
// same-category neighboring tickets never dominates a wait estimate.
const maxEmptySlotPaddingS = 300

// Readiness computes whether ticket is ready to be handed out and, if not,
// an estimate of remaining wait seconds, as of now. It implements the
// four-branch decision tree: no breads baked at all, breads_made(ticket) ==
// 0 with a non-empty log, partially filled, and fully filled - the last of
// those gated on the oven actually finishing baking the ticket's last
// bread, not merely on it having been stamped.
func Readiness(s *BakeryState, cfg Config, ticket int, now time.Time) Readiness {
	res, ok := s.Reservations[ticket]
	if !ok {
		return Readiness{}
	}
	total := res.Total()
	if total == 0 {
		return Readiness{Ready: true, Precise: true}
	}

	counts := breadsPerTicket(s.Breads)
	made := counts[ticket]

	if made >= total {
		readyAt := lastCookReadyAt(s, ticket)
		if !readyAt.After(now) {
			return Readiness{Ready: true, Precise: true}
		}
		remaining := int(readyAt.Sub(now) / time.Second)
		return Readiness{Ready: false, Precise: true, WaitS: remaining, HasWaitS: true}
	}

	if len(s.Breads) == 0 {
		wait := cfg.BakingTimeS
		for _, k := range s.Order {
			if k > ticket {
				break
			}
			wait += cfg.PrepTime(s.Reservations[k])
		}
		return Readiness{Ready: false, Precise: false, WaitS: wait, HasWaitS: true}
	}

	if made == 0 {
		wait := 0
		for _, k := range s.Order {
			if k >= ticket {
				break
			}
			kTotal := s.Reservations[k].Total()
			kMade := counts[k]
			switch {
			case kMade >= kTotal:
				// complete, contributes nothing
			case kMade > 0:
				wait += (kTotal - kMade) * cfg.AvgPrepTime()
			default:
				wait += cfg.PrepTime(s.Reservations[k])
			}
		}
		wait += cfg.PrepTime(res) + cfg.BakingTimeS
		return Readiness{Ready: false, Precise: false, WaitS: wait, HasWaitS: true}
	}

	// Partially filled: the oven is actively working on this ticket.
	avgSelf := avgPrepTimeForReservation(cfg, res)
	wait := (total-made)*avgSelf + cfg.BakingTimeS
	return Readiness{Ready: false, Precise: false, WaitS: wait, HasWaitS: true}
}

// avgPrepTimeForReservation returns the mean prep time per bread over only
// the bread types this reservation actually contains.
func avgPrepTimeForReservation(cfg Config, res Reservation) int {
	sum, count := 0, 0
	for i, n := range res {
		if n <= 0 || i >= len(cfg.PrepTimePerBread) {
			continue
		}
		sum += cfg.PrepTimePerBread[i]
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / count
}

// lastCookReadyAt returns the latest CookReadyAt among breads stamped to
// ticket, or the zero time if it has none.
func lastCookReadyAt(s *BakeryState, ticket int) time.Time {
	var latest time.Time
	for _, b := range s.Breads {
		if b.OwningTicket != ticket {
			continue
		}
		if b.CookReadyAt.After(latest) {
			latest = b.CookReadyAt
		}
	}
	return latest
}

// EmptySlotPadding scans the sorted active ticket keys at or before t and
// counts consecutive pairs that are both single-bread ("empty-empty") or
// both multi-bread ("full-full"); the padding is that count times the
// largest per-bread prep time, clamped to maxEmptySlotPaddingS. It feeds
// the empty_slot_time_avg report field, a distinct quantity from the
// per-ticket readiness estimate.
func EmptySlotPadding(s *BakeryState, cfg Config, t int) int {
	count := 0
	for i := 0; i+1 < len(s.Order); i++ {
		a, b := s.Order[i], s.Order[i+1]
		if a > t {
			break
		}
		if b > t {
			break
		}
		ta := s.Reservations[a].Total()
		tb := s.Reservations[b].Total()
		if (ta == 1 && tb == 1) || (ta > 1 && tb > 1) {
			count++
		}
	}
	padding := count * cfg.MaxPrepTime()
	if padding > maxEmptySlotPaddingS {
		return maxEmptySlotPaddingS
	}
	return padding
}

// InQueueCustomersTime estimates how long a brand-new walk-in customer
// ordering reservation would wait, given the bakery's current schedule:
// the sum of prep_time for every active reservation plus this one, plus
// baking_time_s for the oven cycle, plus the bakery's configured timeout
// padding.
func InQueueCustomersTime(s *BakeryState, cfg Config, reservation Reservation) int {
	wait := cfg.BakingTimeS
	for _, n := range s.Order {
		wait += cfg.PrepTime(s.Reservations[n])
	}
	wait += cfg.PrepTime(reservation)
	return wait + cfg.TimeoutS
}
