package queue

import "gopkg.in/errgo.v1"

// Recover brings bakeryID's in-memory cache entry back into a consistent
// state after a cold start: it reads the durable snapshot through the
// journal and rebuilds prep_state from the bread log and reservations,
// never resuming a ticket that had already completed. It is idempotent
// and safe to call on a bakery that already has a populated snapshot.
func (q *Queue) Recover(bakeryID int, cfg Config) error {
	return q.cache.Update(bakeryID, func(s *BakeryState) error {
		oven := NewOven(cfg)
		oven.RebuildPrepState(s)
		// Reserved slot sets are part of the snapshot saved by every
		// mutating operation, so - unlike prep_state, which a
		// concurrent writer could leave pointing at a ticket that
		// completed a moment before the crash - they never need
		// independent reconstruction here.
		return nil
	})
}

// ErrSnapshotCorrupt wraps a decode failure from a Journal implementation
// with ErrCorruptSnapshot so a caller can log it and choose to start the
// bakery fresh instead of refusing to serve it.
func ErrSnapshotCorrupt(err error) error {
	return errgo.WithCausef(err, ErrCorruptSnapshot, "corrupt snapshot")
}
