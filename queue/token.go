package queue

import (
	"crypto/sha1"
	"fmt"
	"strings"
	"time"
)

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// DailyToken derives the short customer-facing token for a ticket: a
// base-36 rendering of the first four bytes of
// sha1("{bakeryID}-{ticketNumber}-{YYYY-MM-DD}"), left-padded with zeros
// and cut to its last five characters, with leading zeros then stripped
// (falling back to "0" if that empties the string). It changes every local
// day without any extra state. The bakery ID is part of the hashed key, but
// the five-character result is a truncated hash, so two tickets can still
// share a token.
func DailyToken(bakeryID, ticketNumber int, day time.Time, loc *time.Location) string {
	d := day.In(loc)
	key := fmt.Sprintf("%d-%d-%s", bakeryID, ticketNumber, d.Format("2006-01-02"))
	sum := sha1.Sum([]byte(key))

	n := uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])
	encoded := toBase36(n)

	for len(encoded) < 5 {
		encoded = "0" + encoded
	}
	encoded = encoded[len(encoded)-5:]

	trimmed := strings.TrimLeft(encoded, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

func toBase36(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [32]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = base36Alphabet[n%36]
		n /= 36
	}
	return string(buf[i:])
}
