package queue

import (
	"sync"

	"gopkg.in/errgo.v1"
)

// Journal is the narrow interface a durable backing store must satisfy so
// that Cache can read a bakery's state through on a cold start and persist
// it after every mutation. Concrete implementations (sqljournal, mgojournal)
// hold the actual database handle; Cache never touches the underlying
// engine directly.
type Journal interface {
	// Load reads the saved snapshot for bakeryID (the durable journals
	// keep one per local day and read only today's). If there is none, it
	// returns a fresh zero state with a nil error - that is not
	// ErrNotFound, since "never baked anything today" is a normal starting
	// condition.
	Load(bakeryID int) (*BakeryState, error)

	// Save durably persists state for bakeryID. Implementations should
	// make this atomic with respect to concurrent Load calls for the
	// same bakeryID, but Cache guarantees only one Save is in flight per
	// bakery at a time.
	Save(bakeryID int, state *BakeryState) error

	// Reset clears any durably stored state for bakeryID, used by the
	// daily lifecycle purge.
	Reset(bakeryID int) error
}

// memJournal is a process-local Journal used when no durable backend is
// configured - tests, and any deployment happy to lose state across a
// restart. It is deliberately the simplest possible Journal: a single
// mutex-guarded map.
type memJournal struct {
	mu     sync.Mutex
	states map[int]*BakeryState
}

// NewMemJournal returns a Journal that only ever lives in process memory.
func NewMemJournal() Journal {
	return &memJournal{states: make(map[int]*BakeryState)}
}

func (j *memJournal) Load(bakeryID int) (*BakeryState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if s, ok := j.states[bakeryID]; ok {
		return cloneState(s), nil
	}
	return NewBakeryState(), nil
}

func (j *memJournal) Save(bakeryID int, state *BakeryState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.states[bakeryID] = cloneState(state)
	return nil
}

func (j *memJournal) Reset(bakeryID int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.states, bakeryID)
	return nil
}

// ErrCorruptSnapshot classifies a snapshot that failed to decode.
// sqljournal's Load logs such an error and starts the day fresh rather than
// failing.
const ErrCorruptSnapshot = ErrorCode("corrupt snapshot")

func wrapTransient(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errgo.WithCausef(err, ErrTransient, format, args...)
}
