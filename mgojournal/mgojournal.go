// Package mgojournal provides a queue.Journal implementation backed by
// MongoDB. The authoritative document is one per bakery per local date in
// the configured collection; alongside it, Save maintains four sibling
// collections - customer, customer_bread, wait_list and bread, each named
// by suffixing the configured collection - mirroring the rows named in the
// system's journal contract so an operator can query today's tickets
// without decoding the snapshot document. Those four are a queryable
// projection of the snapshot, rewritten in full on every Save; Load never
// reads them back.
package mgojournal

import (
	"strconv"
	"time"

	"github.com/juju/mgo/v2"
	"github.com/juju/mgo/v2/bson"
	"gopkg.in/errgo.v1"

	"github.com/bakeryqueue/core/queue"
)

// indexes ensures lookups by (bakery_id, day) are cheap and that stale
// snapshots are reclaimed automatically a day after the day field passes,
// via a TTL index on the day field. It is applied to the snapshot
// collection; the four row collections use rowIndexes.
var indexes = []mgo.Index{
	{Key: []string{"bakeryid", "day"}, Unique: true},
	{Key: []string{"day"}, ExpireAfter: 48 * time.Hour},
}

// rowIndexes differs only in dropping uniqueness: a bakery/day can have
// several customer, customer_bread, wait_list and bread rows.
var rowIndexes = []mgo.Index{
	{Key: []string{"bakeryid", "day"}},
	{Key: []string{"day"}, ExpireAfter: 48 * time.Hour},
}

// Store is a MongoDB-backed queue.Journal.
type Store struct {
	coll     *mgo.Collection
	customer *mgo.Collection
	bread    *mgo.Collection
	waitList *mgo.Collection
	breads   *mgo.Collection

	timezone *time.Location
	clock    queue.Clock
}

// Params configures a Store.
type Params struct {
	Collection *mgo.Collection
	Timezone   *time.Location
	Clock      queue.Clock
}

// New returns a Store using the given collection for snapshots, plus four
// sibling collections (coll.Name suffixed with _customer, _customer_bread,
// _wait_list and _bread) for the per-row projections. Call EnsureIndex once
// before first use.
func New(p Params) *Store {
	tz := p.Timezone
	if tz == nil {
		tz = time.UTC
	}
	clock := p.Clock
	if clock == nil {
		clock = queue.WallClock
	}
	db := p.Collection.Database
	return &Store{
		coll:     p.Collection,
		customer: db.C(p.Collection.Name + "_customer"),
		bread:    db.C(p.Collection.Name + "_customer_bread"),
		waitList: db.C(p.Collection.Name + "_wait_list"),
		breads:   db.C(p.Collection.Name + "_bread"),
		timezone: tz,
		clock:    clock,
	}
}

// EnsureIndex ensures the indexes this store relies on exist on coll and
// its four sibling row collections.
func EnsureIndex(coll *mgo.Collection) error {
	for _, idx := range indexes {
		if err := coll.EnsureIndex(idx); err != nil {
			return errgo.Notef(err, "cannot ensure index for %q on %q", idx.Key, coll.Name)
		}
	}
	db := coll.Database
	rowColls := []*mgo.Collection{
		db.C(coll.Name + "_customer"),
		db.C(coll.Name + "_customer_bread"),
		db.C(coll.Name + "_wait_list"),
		db.C(coll.Name + "_bread"),
	}
	for _, rc := range rowColls {
		for _, idx := range rowIndexes {
			if err := rc.EnsureIndex(idx); err != nil {
				return errgo.Notef(err, "cannot ensure index for %q on %q", idx.Key, rc.Name)
			}
		}
	}
	return nil
}

type doc struct {
	BakeryID int       `bson:"bakeryid"`
	Day      time.Time `bson:"day"`
	State    stateDoc  `bson:"state"`
	Updated  time.Time `bson:"updated"`
}

// stateDoc mirrors queue.BakeryState in a bson-tagged shape; bson map keys
// must be strings, so the int-keyed maps and sets are re-declared here as
// string-keyed maps and slices rather than embedding queue.BakeryState
// directly.
type stateDoc struct {
	Tickets         map[string]*queue.Ticket     `bson:"tickets"`
	Order           []int                        `bson:"order"`
	Reservations    map[string]queue.Reservation `bson:"reservations"`
	NextNumber      int                          `bson:"nextnumber"`
	CurrentServed   int                          `bson:"currentserved"`
	SlotsForMultis  []int                        `bson:"slotsformultis"`
	SlotsForSingles []int                        `bson:"slotsforsingles"`
	Prep            queue.PrepState              `bson:"prep"`
	Breads          []queue.Bread                `bson:"breads"`
	NextBreadIndex  int                          `bson:"nextbreadindex"`
	LastBreadTime   int64                        `bson:"lastbreadtime"`
	BreadTimeDiffs  []int64                      `bson:"breadtimediffs"`
	WaitList        map[string]queue.Reservation `bson:"waitlist"`
	Served          []int                        `bson:"served"`
	Display         bool                         `bson:"display"`
}

// customerDoc is one row of the customer projection: one per ticket.
type customerDoc struct {
	BakeryID     int       `bson:"bakeryid"`
	Day          time.Time `bson:"day"`
	ID           int       `bson:"id"`
	TicketID     int       `bson:"ticketid"`
	IsInQueue    bool      `bson:"isinqueue"`
	RegisterDate time.Time `bson:"registerdate"`
	Token        string    `bson:"token"`
}

// customerBreadDoc is one (ticket, bread position) count.
type customerBreadDoc struct {
	BakeryID    int       `bson:"bakeryid"`
	Day         time.Time `bson:"day"`
	CustomerID  int       `bson:"customerid"`
	BreadTypeID int       `bson:"breadtypeid"`
	Count       int       `bson:"count"`
}

// waitListDoc is one ticket set aside on the wait list.
type waitListDoc struct {
	BakeryID     int       `bson:"bakeryid"`
	Day          time.Time `bson:"day"`
	CustomerID   int       `bson:"customerid"`
	IsInQueue    bool      `bson:"isinqueue"`
	RegisterDate time.Time `bson:"registerdate"`
}

// breadDoc is one stamped bread record.
type breadDoc struct {
	BakeryID   int       `bson:"bakeryid"`
	Day        time.Time `bson:"day"`
	ID         int       `bson:"id"`
	BelongsTo  int       `bson:"belongsto"`
	BakedAt    time.Time `bson:"bakedat"`
	Consumed   bool      `bson:"consumed"`
}

func toStateDoc(s *queue.BakeryState) stateDoc {
	d := stateDoc{
		Tickets:         make(map[string]*queue.Ticket, len(s.Tickets)),
		Order:           s.Order,
		Reservations:    make(map[string]queue.Reservation, len(s.Reservations)),
		NextNumber:      s.NextNumber,
		CurrentServed:   s.CurrentServed,
		SlotsForMultis:  keys(s.SlotsForMultis),
		SlotsForSingles: keys(s.SlotsForSingles),
		Prep:            s.Prep,
		Breads:          s.Breads,
		NextBreadIndex:  s.NextBreadIndex,
		LastBreadTime:   s.LastBreadTime,
		BreadTimeDiffs:  s.BreadTimeDiffs,
		WaitList:        make(map[string]queue.Reservation, len(s.WaitList)),
		Served:          keys(s.Served),
		Display:         s.Display,
	}
	// bson map keys must be strings; re-key by decimal ticket number.
	for k, v := range s.Tickets {
		d.Tickets[strconv.Itoa(k)] = v
	}
	for k, v := range s.Reservations {
		d.Reservations[strconv.Itoa(k)] = v
	}
	for k, v := range s.WaitList {
		d.WaitList[strconv.Itoa(k)] = v
	}
	return d
}

func fromStateDoc(d stateDoc) *queue.BakeryState {
	s := queue.NewBakeryState()
	s.Order = d.Order
	s.NextNumber = d.NextNumber
	s.CurrentServed = d.CurrentServed
	s.Prep = d.Prep
	s.Breads = d.Breads
	s.NextBreadIndex = d.NextBreadIndex
	s.LastBreadTime = d.LastBreadTime
	s.BreadTimeDiffs = d.BreadTimeDiffs
	s.Display = d.Display
	for _, n := range d.SlotsForMultis {
		s.SlotsForMultis[n] = true
	}
	for _, n := range d.SlotsForSingles {
		s.SlotsForSingles[n] = true
	}
	for _, n := range d.Served {
		s.Served[n] = true
	}
	for k, v := range d.Tickets {
		n, _ := strconv.Atoi(k)
		s.Tickets[n] = v
	}
	for k, v := range d.Reservations {
		n, _ := strconv.Atoi(k)
		s.Reservations[n] = v
	}
	for k, v := range d.WaitList {
		n, _ := strconv.Atoi(k)
		s.WaitList[n] = v
	}
	return s
}

func keys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (s *Store) today() time.Time {
	now := s.clock.Now().In(s.timezone)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.timezone)
}

// Load implements queue.Journal.
func (s *Store) Load(bakeryID int) (*queue.BakeryState, error) {
	var d doc
	err := s.coll.Find(bson.M{"bakeryid": bakeryID, "day": s.today()}).One(&d)
	switch {
	case err == mgo.ErrNotFound:
		return queue.NewBakeryState(), nil
	case err != nil:
		return nil, errgo.Notef(err, "cannot load snapshot for bakery %d", bakeryID)
	}
	return fromStateDoc(d.State), nil
}

// Save implements queue.Journal. It upserts the authoritative snapshot
// document and rewrites the customer, customer_bread, wait_list and bread
// projections for the day.
func (s *Store) Save(bakeryID int, state *queue.BakeryState) error {
	day := s.today()
	d := doc{
		BakeryID: bakeryID,
		Day:      day,
		State:    toStateDoc(state),
		Updated:  s.clock.Now(),
	}
	if _, err := s.coll.Upsert(bson.M{"bakeryid": bakeryID, "day": day}, d); err != nil {
		return errgo.Notef(err, "cannot save snapshot for bakery %d", bakeryID)
	}
	if err := s.saveRows(bakeryID, day, state); err != nil {
		return errgo.Mask(err)
	}
	return nil
}

// saveRows replaces the customer, customer_bread, wait_list and bread rows
// for (bakeryID, day) with the current contents of state.
func (s *Store) saveRows(bakeryID int, day time.Time, state *queue.BakeryState) error {
	sel := bson.M{"bakeryid": bakeryID, "day": day}

	if _, err := s.customer.RemoveAll(sel); err != nil && err != mgo.ErrNotFound {
		return errgo.Notef(err, "cannot clear customer rows for bakery %d", bakeryID)
	}
	for n, t := range state.Tickets {
		cd := customerDoc{
			BakeryID:     bakeryID,
			Day:          day,
			ID:           n,
			TicketID:     n,
			IsInQueue:    t.Status == queue.Waiting,
			RegisterDate: t.Timestamp,
			Token:        queue.DailyToken(bakeryID, n, s.clock.Now(), s.timezone),
		}
		if err := s.customer.Insert(cd); err != nil {
			return errgo.Notef(err, "cannot journal customer %d for bakery %d", n, bakeryID)
		}
	}

	if _, err := s.bread.RemoveAll(sel); err != nil && err != mgo.ErrNotFound {
		return errgo.Notef(err, "cannot clear customer_bread rows for bakery %d", bakeryID)
	}
	for n, r := range breadByTicket(state) {
		for position, count := range r {
			cb := customerBreadDoc{
				BakeryID:    bakeryID,
				Day:         day,
				CustomerID:  n,
				BreadTypeID: position,
				Count:       count,
			}
			if err := s.bread.Insert(cb); err != nil {
				return errgo.Notef(err, "cannot journal customer_bread for ticket %d, bakery %d", n, bakeryID)
			}
		}
	}

	if _, err := s.waitList.RemoveAll(sel); err != nil && err != mgo.ErrNotFound {
		return errgo.Notef(err, "cannot clear wait_list rows for bakery %d", bakeryID)
	}
	for n := range state.WaitList {
		registered := time.Time{}
		if t, ok := state.Tickets[n]; ok {
			registered = t.Timestamp
		}
		wl := waitListDoc{
			BakeryID:     bakeryID,
			Day:          day,
			CustomerID:   n,
			IsInQueue:    false,
			RegisterDate: registered,
		}
		if err := s.waitList.Insert(wl); err != nil {
			return errgo.Notef(err, "cannot journal wait_list entry %d for bakery %d", n, bakeryID)
		}
	}

	if _, err := s.breads.RemoveAll(sel); err != nil && err != mgo.ErrNotFound {
		return errgo.Notef(err, "cannot clear bread rows for bakery %d", bakeryID)
	}
	for _, b := range state.Breads {
		bd := breadDoc{
			BakeryID:  bakeryID,
			Day:       day,
			ID:        b.Index,
			BelongsTo: b.OwningTicket,
			BakedAt:   b.CookReadyAt,
			Consumed:  b.OwningTicket != queue.NoOwner,
		}
		if err := s.breads.Insert(bd); err != nil {
			return errgo.Notef(err, "cannot journal bread %d for bakery %d", b.Index, bakeryID)
		}
	}
	return nil
}

// breadByTicket merges active reservations and wait-listed reservations
// into one ticket-number-keyed map, the set of per-bread counts
// customer_bread needs to cover.
func breadByTicket(state *queue.BakeryState) map[int]queue.Reservation {
	out := make(map[int]queue.Reservation, len(state.Reservations)+len(state.WaitList))
	for n, r := range state.Reservations {
		out[n] = r
	}
	for n, r := range state.WaitList {
		out[n] = r
	}
	return out
}

// Reset implements queue.Journal.
func (s *Store) Reset(bakeryID int) error {
	day := s.today()
	sel := bson.M{"bakeryid": bakeryID, "day": day}

	if err := s.coll.Remove(sel); err != nil && err != mgo.ErrNotFound {
		return errgo.Notef(err, "cannot reset snapshot for bakery %d", bakeryID)
	}
	for _, rc := range []*mgo.Collection{s.customer, s.bread, s.waitList, s.breads} {
		if _, err := rc.RemoveAll(sel); err != nil && err != mgo.ErrNotFound {
			return errgo.Notef(err, "cannot reset rows in %q for bakery %d", rc.Name, bakeryID)
		}
	}
	return nil
}
