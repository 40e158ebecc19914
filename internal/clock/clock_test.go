package clock

import "testing"

func TestWithinSkewAcceptsCurrentTimestamp(t *testing.T) {
	now := uint64(Now().Unix())
	if !WithinSkew(now, DefaultHandshakeSkew) {
		t.Fatal("expected current timestamp to be within skew")
	}
}

func TestWithinSkewAcceptsBoundary(t *testing.T) {
	now := uint64(Now().Unix())
	if !WithinSkew(now-29, DefaultHandshakeSkew) {
		t.Fatal("expected 29s in the past to be within a 30s skew window")
	}
	if !WithinSkew(now+29, DefaultHandshakeSkew) {
		t.Fatal("expected 29s in the future to be within a 30s skew window")
	}
}

func TestWithinSkewRejectsStaleTimestamp(t *testing.T) {
	now := uint64(Now().Unix())
	if WithinSkew(now-300, DefaultHandshakeSkew) {
		t.Fatal("expected a 5-minute-old timestamp to be rejected")
	}
}

func TestWithinSkewRejectsFutureTimestamp(t *testing.T) {
	now := uint64(Now().Unix())
	if WithinSkew(now+300, DefaultHandshakeSkew) {
		t.Fatal("expected a timestamp 5 minutes in the future to be rejected")
	}
}
