// Package sqljournal provides a queue.Journal implementation backed by
// Postgres. The authoritative row is one JSON snapshot per bakery per
// local date; alongside it, Save maintains four normalized tables -
// customer, customer_bread, wait_list and bread - mirroring the rows
// named in the system's journal contract, so an operator can query today's
// tickets without decoding the snapshot JSON. Those four are a queryable
// projection of the snapshot, rewritten in full on every Save; Load never
// reads them back.
package sqljournal

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"sync"
	"text/template"
	"time"

	"github.com/juju/loggo"
	_ "github.com/lib/pq"
	"gopkg.in/errgo.v1"

	"github.com/bakeryqueue/core/queue"
)

var logger = loggo.GetLogger("sqljournal")

type stmtId int

const (
	findSnapshotStmt stmtId = iota
	upsertSnapshotStmt
	deleteSnapshotStmt
	deleteCustomersStmt
	insertCustomerStmt
	deleteCustomerBreadStmt
	insertCustomerBreadStmt
	deleteWaitListStmt
	insertWaitListStmt
	deleteBreadStmt
	insertBreadStmt
	numStmts
)

var initStatements = `
CREATE TABLE IF NOT EXISTS {{.Table}} (
	bakery_id INTEGER NOT NULL,
	day       DATE NOT NULL,
	state     JSONB NOT NULL,
	updated   TIMESTAMP WITH TIME ZONE NOT NULL,
	PRIMARY KEY (bakery_id, day)
);

CREATE INDEX IF NOT EXISTS {{.DayIndex}} ON {{.Table}} (day);

CREATE TABLE IF NOT EXISTS {{.CustomerTable}} (
	id            INTEGER NOT NULL,
	ticket_id     INTEGER NOT NULL,
	bakery_id     INTEGER NOT NULL,
	day           DATE NOT NULL,
	is_in_queue   BOOLEAN NOT NULL,
	register_date TIMESTAMP WITH TIME ZONE NOT NULL,
	token         TEXT NOT NULL,
	PRIMARY KEY (bakery_id, day, id)
);

CREATE TABLE IF NOT EXISTS {{.CustomerBreadTable}} (
	customer_id   INTEGER NOT NULL,
	bakery_id     INTEGER NOT NULL,
	day           DATE NOT NULL,
	bread_type_id INTEGER NOT NULL,
	count         INTEGER NOT NULL,
	PRIMARY KEY (bakery_id, day, customer_id, bread_type_id)
);

CREATE TABLE IF NOT EXISTS {{.WaitListTable}} (
	customer_id   INTEGER NOT NULL,
	bakery_id     INTEGER NOT NULL,
	day           DATE NOT NULL,
	is_in_queue   BOOLEAN NOT NULL,
	register_date TIMESTAMP WITH TIME ZONE NOT NULL,
	PRIMARY KEY (bakery_id, day, customer_id)
);

CREATE TABLE IF NOT EXISTS {{.BreadTable}} (
	id          INTEGER NOT NULL,
	belongs_to  INTEGER NOT NULL,
	bakery_id   INTEGER NOT NULL,
	day         DATE NOT NULL,
	baked_at    TIMESTAMP WITH TIME ZONE NOT NULL,
	consumed    BOOLEAN NOT NULL,
	PRIMARY KEY (bakery_id, day, id)
);
`

type templateParams struct {
	Table              string
	DayIndex           string
	CustomerTable      string
	CustomerBreadTable string
	WaitListTable      string
	BreadTable         string
}

// Store is a Postgres-backed queue.Journal. The zero value is not usable;
// construct with New.
type Store struct {
	db    *sql.DB
	stmts [numStmts]*sql.Stmt

	table              string
	customerTable      string
	customerBreadTable string
	waitListTable      string
	breadTable         string

	initOnce sync.Once
	initErr  error

	timezone *time.Location
	clock    queue.Clock
}

// Params configures a Store.
type Params struct {
	DB       *sql.DB
	Table    string
	Timezone *time.Location
	Clock    queue.Clock
}

// New returns a Store using the given Postgres handle and table name. The
// tables are created lazily, on first use, if they do not already exist.
func New(p Params) *Store {
	tz := p.Timezone
	if tz == nil {
		tz = time.UTC
	}
	clock := p.Clock
	if clock == nil {
		clock = queue.WallClock
	}
	table := p.Table
	if table == "" {
		table = "bakery_queue_snapshot"
	}
	return &Store{
		db:                 p.DB,
		table:              table,
		customerTable:      table + "_customer",
		customerBreadTable: table + "_customer_bread",
		waitListTable:      table + "_wait_list",
		breadTable:         table + "_bread",
		timezone:           tz,
		clock:              clock,
	}
}

// Close releases the prepared statements held by the Store.
func (s *Store) Close() error {
	var retErr error
	for _, stmt := range s.stmts {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}
	return errgo.Mask(retErr)
}

func (s *Store) initDB() error {
	s.initOnce.Do(func() {
		s.initErr = s.init()
	})
	if s.initErr != nil {
		return errgo.Notef(s.initErr, "cannot initialize sqljournal tables")
	}
	return nil
}

func (s *Store) init() error {
	p := &templateParams{
		Table:              s.table,
		DayIndex:           s.table + "_day_idx",
		CustomerTable:      s.customerTable,
		CustomerBreadTable: s.customerBreadTable,
		WaitListTable:      s.waitListTable,
		BreadTable:         s.breadTable,
	}
	ddl, err := renderTemplate(initStatements, p)
	if err != nil {
		return errgo.Mask(err)
	}
	if _, err := s.db.Exec(ddl); err != nil {
		return errgo.Notef(err, "cannot create tables for %s", s.table)
	}
	if err := s.prepareAll(); err != nil {
		return errgo.Notef(err, "cannot prepare statements")
	}
	return nil
}

func (s *Store) prepareAll() error {
	queries := [numStmts]string{
		findSnapshotStmt:   `SELECT state FROM ` + s.table + ` WHERE bakery_id=$1 AND day=$2`,
		upsertSnapshotStmt: `INSERT INTO ` + s.table + ` (bakery_id, day, state, updated) VALUES ($1, $2, $3, $4) ON CONFLICT (bakery_id, day) DO UPDATE SET state=$3, updated=$4`,
		deleteSnapshotStmt: `DELETE FROM ` + s.table + ` WHERE bakery_id=$1 AND day=$2`,

		deleteCustomersStmt: `DELETE FROM ` + s.customerTable + ` WHERE bakery_id=$1 AND day=$2`,
		insertCustomerStmt:  `INSERT INTO ` + s.customerTable + ` (id, ticket_id, bakery_id, day, is_in_queue, register_date, token) VALUES ($1, $1, $2, $3, $4, $5, $6)`,

		deleteCustomerBreadStmt: `DELETE FROM ` + s.customerBreadTable + ` WHERE bakery_id=$1 AND day=$2`,
		insertCustomerBreadStmt: `INSERT INTO ` + s.customerBreadTable + ` (customer_id, bakery_id, day, bread_type_id, count) VALUES ($1, $2, $3, $4, $5)`,

		deleteWaitListStmt: `DELETE FROM ` + s.waitListTable + ` WHERE bakery_id=$1 AND day=$2`,
		insertWaitListStmt: `INSERT INTO ` + s.waitListTable + ` (customer_id, bakery_id, day, is_in_queue, register_date) VALUES ($1, $2, $3, $4, $5)`,

		deleteBreadStmt: `DELETE FROM ` + s.breadTable + ` WHERE bakery_id=$1 AND day=$2`,
		insertBreadStmt: `INSERT INTO ` + s.breadTable + ` (id, belongs_to, bakery_id, day, baked_at, consumed) VALUES ($1, $2, $3, $4, $5, $6)`,
	}
	for id, q := range queries {
		stmt, err := s.db.Prepare(q)
		if err != nil {
			return errgo.Notef(err, "cannot prepare statement %d", id)
		}
		s.stmts[id] = stmt
	}
	return nil
}

func renderTemplate(text string, p *templateParams) (string, error) {
	t, err := template.New("sqljournal").Parse(text)
	if err != nil {
		return "", errgo.Mask(err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, p); err != nil {
		return "", errgo.Mask(err)
	}
	return buf.String(), nil
}

func (s *Store) today() time.Time {
	now := s.clock.Now().In(s.timezone)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.timezone)
}

// Load implements queue.Journal.
func (s *Store) Load(bakeryID int) (*queue.BakeryState, error) {
	if err := s.initDB(); err != nil {
		return nil, errgo.Mask(err)
	}
	var raw []byte
	err := s.stmts[findSnapshotStmt].QueryRow(bakeryID, s.today()).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		return queue.NewBakeryState(), nil
	case err != nil:
		return nil, errgo.Notef(err, "cannot load snapshot for bakery %d", bakeryID)
	}
	state := queue.NewBakeryState()
	if err := json.Unmarshal(raw, state); err != nil {
		logger.Errorf("%v", queue.ErrSnapshotCorrupt(err))
		return queue.NewBakeryState(), nil
	}
	return state, nil
}

// Save implements queue.Journal. It upserts the authoritative snapshot row
// and rewrites the customer, customer_bread, wait_list and bread
// projections for the day, all inside one transaction.
func (s *Store) Save(bakeryID int, state *queue.BakeryState) error {
	if err := s.initDB(); err != nil {
		return errgo.Mask(err)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return errgo.Notef(err, "cannot encode snapshot for bakery %d", bakeryID)
	}
	day := s.today()

	tx, err := s.db.Begin()
	if err != nil {
		return errgo.Notef(err, "cannot begin transaction for bakery %d", bakeryID)
	}
	defer tx.Rollback()

	if _, err := tx.Stmt(s.stmts[upsertSnapshotStmt]).Exec(bakeryID, day, raw, s.clock.Now()); err != nil {
		return errgo.Notef(err, "cannot save snapshot for bakery %d", bakeryID)
	}
	if err := s.saveRows(tx, bakeryID, day, state); err != nil {
		return errgo.Mask(err)
	}
	return errgo.Mask(tx.Commit())
}

// saveRows replaces the customer, customer_bread, wait_list and bread rows
// for (bakeryID, day) with the current contents of state. bread_type_id is
// the position in the bakery's canonical bread ordering, the only
// identifier a BakeryState carries for a bread slot - the journal has no
// visibility into the bread-type catalog that maps positions to ids.
func (s *Store) saveRows(tx *sql.Tx, bakeryID int, day time.Time, state *queue.BakeryState) error {
	if _, err := tx.Stmt(s.stmts[deleteCustomersStmt]).Exec(bakeryID, day); err != nil {
		return errgo.Notef(err, "cannot clear customer rows for bakery %d", bakeryID)
	}
	for _, t := range state.Tickets {
		inQueue := t.Status == queue.Waiting
		token := queue.DailyToken(bakeryID, t.Number, s.clock.Now(), s.timezone)
		if _, err := tx.Stmt(s.stmts[insertCustomerStmt]).Exec(t.Number, bakeryID, day, inQueue, t.Timestamp, token); err != nil {
			return errgo.Notef(err, "cannot journal customer %d for bakery %d", t.Number, bakeryID)
		}
	}

	if _, err := tx.Stmt(s.stmts[deleteCustomerBreadStmt]).Exec(bakeryID, day); err != nil {
		return errgo.Notef(err, "cannot clear customer_bread rows for bakery %d", bakeryID)
	}
	for n, r := range breadByTicket(state) {
		for position, count := range r {
			if _, err := tx.Stmt(s.stmts[insertCustomerBreadStmt]).Exec(n, bakeryID, day, position, count); err != nil {
				return errgo.Notef(err, "cannot journal customer_bread for ticket %d, bakery %d", n, bakeryID)
			}
		}
	}

	if _, err := tx.Stmt(s.stmts[deleteWaitListStmt]).Exec(bakeryID, day); err != nil {
		return errgo.Notef(err, "cannot clear wait_list rows for bakery %d", bakeryID)
	}
	for n := range state.WaitList {
		registered := time.Time{}
		if t, ok := state.Tickets[n]; ok {
			registered = t.Timestamp
		}
		if _, err := tx.Stmt(s.stmts[insertWaitListStmt]).Exec(n, bakeryID, day, false, registered); err != nil {
			return errgo.Notef(err, "cannot journal wait_list entry %d for bakery %d", n, bakeryID)
		}
	}

	if _, err := tx.Stmt(s.stmts[deleteBreadStmt]).Exec(bakeryID, day); err != nil {
		return errgo.Notef(err, "cannot clear bread rows for bakery %d", bakeryID)
	}
	for _, b := range state.Breads {
		consumed := b.OwningTicket != queue.NoOwner
		if _, err := tx.Stmt(s.stmts[insertBreadStmt]).Exec(b.Index, b.OwningTicket, bakeryID, day, b.CookReadyAt, consumed); err != nil {
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
	if err := s.initDB(); err != nil {
		return errgo.Mask(err)
	}
	day := s.today()

	tx, err := s.db.Begin()
	if err != nil {
		return errgo.Notef(err, "cannot begin transaction for bakery %d", bakeryID)
	}
	defer tx.Rollback()

	for _, id := range []stmtId{deleteSnapshotStmt, deleteCustomersStmt, deleteCustomerBreadStmt, deleteWaitListStmt, deleteBreadStmt} {
		if _, err := tx.Stmt(s.stmts[id]).Exec(bakeryID, day); err != nil {
			return errgo.Notef(err, "cannot reset bakery %d", bakeryID)
		}
	}
	return errgo.Mask(tx.Commit())
}
