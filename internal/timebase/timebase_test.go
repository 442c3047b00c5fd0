package timebase

import "testing"

func newCFR30() *Map {
	// 30fps CFR, stream/codec time bases both 1/30000, no start offset.
	return New(0, Rational{1, 30000}, Rational{1, 30000}, Rational{30, 1})
}

func TestFrameTimeRoundTrip(t *testing.T) {
	t.Parallel()
	m := newCFR30()
	for i := int64(0); i < 19034; i += 37 {
		ts := m.FrameToTime(i)
		got := m.TimeToFrame(ts)
		if got != i {
			t.Fatalf("frame %d: FrameToTime=%d TimeToFrame=%d, want %d", i, ts, got, i)
		}
	}
}

func TestFrameToTimeScenario(t *testing.T) {
	t.Parallel()
	m := newCFR30()
	got := m.FrameToTime(80)
	want := divRoundAwayZero(80*1_000_000, 30)
	if got != want {
		t.Fatalf("FrameToTime(80) = %d, want %d", got, want)
	}
}

func TestRescaleIdentity(t *testing.T) {
	t.Parallel()
	m := New(0, Rational{1, 90000}, Rational{1, 48000}, Rational{30, 1})
	ts := int64(90000) // 1 second in stream timebase
	us := m.StreamTSToTime(ts)
	if us != 1_000_000 {
		t.Fatalf("StreamTSToTime(90000) = %d, want 1_000_000", us)
	}
	back := m.TimeToStreamTS(us)
	if back != ts {
		t.Fatalf("TimeToStreamTS(1_000_000) = %d, want %d", back, ts)
	}
}

func TestStreamStartOffset(t *testing.T) {
	t.Parallel()
	// stream starts at ts=1000 in a 1/1000 timebase => 1,000,000us offset.
	m := New(1000, Rational{1, 1000}, Rational{1, 1000}, Rational{25, 1})
	if got := m.FrameToTime(0); got != 1_000_000 {
		t.Fatalf("FrameToTime(0) = %d, want 1_000_000", got)
	}
	if got := m.TimeToFrame(1_000_000); got != 0 {
		t.Fatalf("TimeToFrame(1_000_000) = %d, want 0", got)
	}
}

func TestDivRoundAwayZeroTies(t *testing.T) {
	t.Parallel()
	cases := []struct{ num, den, want int64 }{
		{1, 2, 1},
		{-1, 2, -1},
		{3, 2, 2},
		{-3, 2, -2},
		{5, 2, 3},
		{0, 7, 0},
	}
	for _, c := range cases {
		got := divRoundAwayZero(c.num, c.den)
		if got != c.want {
			t.Errorf("divRoundAwayZero(%d,%d) = %d, want %d", c.num, c.den, got, c.want)
		}
	}
}
