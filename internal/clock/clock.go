// Package clock is the "boundary glue" of spec.md §2 component G: wall-clock
// windowing for handshake timestamp validation, and a thin wrapper over
// time.Now for the time readings the rest of the module takes.
package clock

import "time"

// Now returns the current time, so callers never need to touch time.Now()
// directly outside this package. Comparisons between two values returned
// by Now (such as pending-handshake expiry) use their monotonic reading.
// A Connection's last_activity is stored as Unix nanoseconds, which carry
// no monotonic reading, so idle time is measured on the wall clock.
// Handshake and receive timeouts run on time.Timer, not on Now.
func Now() time.Time { return time.Now() }

// WithinSkew reports whether ts (a Unix-seconds timestamp received from a
// peer) is within window of Now() in either direction, implementing
// spec.md §4.F step 3's "validates |now - t_I| ≤ 30s" check.
func WithinSkew(ts uint64, window time.Duration) bool {
	now := uint64(Now().Unix())
	var diff int64
	if now >= ts {
		diff = int64(now - ts)
	} else {
		diff = int64(ts - now)
	}
	return time.Duration(diff)*time.Second <= window
}

// DefaultHandshakeSkew is the 30-second window spec.md §4.F names.
const DefaultHandshakeSkew = 30 * time.Second
