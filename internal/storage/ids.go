package storage

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newLocalID returns a timestamp-prefixed id with a random suffix.
func newLocalID(now time.Time) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 36))
	b.WriteByte('-')
	for range 7 {
		b.WriteByte(idAlphabet[rand.IntN(len(idAlphabet))])
	}
	return b.String()
}

// newNumericID returns a digits-only id so rows stay compatible with remote
// backends whose row keys are integers.
func newNumericID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + strconv.Itoa(100+rand.IntN(900))
}
