package queue

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestDailyTokenStableWithinDay(t *testing.T) {
	c := qt.New(t)
	day := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	tok1 := DailyToken(1, 42, day, time.UTC)
	tok2 := DailyToken(1, 42, day.Add(2*time.Hour), time.UTC)
	c.Assert(tok1, qt.Equals, tok2)
	c.Assert(len(tok1) > 0, qt.Equals, true)
	c.Assert(len(tok1) <= 5, qt.Equals, true)
}

func TestDailyTokenChangesNextDay(t *testing.T) {
	c := qt.New(t)
	day := time.Date(2026, 7, 30, 23, 59, 0, 0, time.UTC)
	tomorrow := day.Add(2 * time.Minute)
	tok1 := DailyToken(1, 42, day, time.UTC)
	tok2 := DailyToken(1, 42, tomorrow, time.UTC)
	c.Assert(tok1 == tok2, qt.Equals, false)
}

func TestDailyTokenDiffersByBakeryAndTicket(t *testing.T) {
	c := qt.New(t)
	day := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	tokA := DailyToken(1, 42, day, time.UTC)
	tokB := DailyToken(2, 42, day, time.UTC)
	tokC := DailyToken(1, 43, day, time.UTC)
	c.Assert(tokA == tokB, qt.Equals, false)
	c.Assert(tokA == tokC, qt.Equals, false)
}

func TestToBase36Zero(t *testing.T) {
	c := qt.New(t)
	c.Assert(toBase36(0), qt.Equals, "0")
}
