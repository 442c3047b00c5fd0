// Package timebase implements the spec's TimeMap component: total,
// pure conversions between presentation microseconds, the container's
// stream time base, the codec's time base, and zero-based frame index.
//
// All rescaling is done with exact integer arithmetic (cross-multiply,
// then a single division with nearest/ties-away-from-zero rounding) to
// avoid drift over long files; no float64 ever appears in a conversion
// path.
package timebase

// Rational is an exact fraction, shaped after astiav.Rational (Num/Den
// accessors) so values can be carried to and from the ffmpeg binding
// without an adapter struct.
type Rational struct {
	Num, Den int64
}

// Microsecond is the canonical external time base: 1/1,000,000.
var Microsecond = Rational{Num: 1, Den: 1_000_000}

// Map holds everything needed to convert between the three time bases
// and frame index for one opened stream. It is immutable after
// construction, per spec.md's "all conversions are pure."
type Map struct {
	streamStartTS  int64    // in stream timebase
	streamTimeBase Rational
	codecTimeBase  Rational
	frameRateNum   int64
	frameRateDen   int64
}

// New builds a Map. frameRate is the nominal rational frame rate
// (e.g. 30000/1001 for 29.97fps); streamStartTS is captured once at
// open time, in the stream's time base.
func New(streamStartTS int64, streamTimeBase, codecTimeBase Rational, frameRate Rational) *Map {
	return &Map{
		streamStartTS:  streamStartTS,
		streamTimeBase: streamTimeBase,
		codecTimeBase:  codecTimeBase,
		frameRateNum:   frameRate.Num,
		frameRateDen:   frameRate.Den,
	}
}

// streamStartTimeUS is stream_start_time expressed in microseconds.
func (m *Map) streamStartTimeUS() int64 {
	return rescale(m.streamStartTS, m.streamTimeBase, Microsecond)
}

// FrameToTime implements frame→time(i) = stream_start_time + i / frame_rate, in µs.
func (m *Map) FrameToTime(index int64) int64 {
	// i / frame_rate seconds = i * frameRateDen / frameRateNum seconds
	// in microseconds: i * frameRateDen * 1_000_000 / frameRateNum
	offsetUS := divRoundAwayZero(index*m.frameRateDen*1_000_000, m.frameRateNum)
	return m.streamStartTimeUS() + offsetUS
}

// TimeToFrame implements time→frame(t) = round((t - stream_start_time_us) * frame_rate).
func (m *Map) TimeToFrame(timeUS int64) int64 {
	delta := timeUS - m.streamStartTimeUS()
	return divRoundAwayZero(delta*m.frameRateNum, m.frameRateDen*1_000_000)
}

// TimeToStreamTS converts absolute presentation microseconds into the
// container's stream time base.
func (m *Map) TimeToStreamTS(timeUS int64) int64 {
	return rescale(timeUS, Microsecond, m.streamTimeBase)
}

// StreamTSToTime converts a stream-time-base timestamp into absolute
// presentation microseconds.
func (m *Map) StreamTSToTime(ts int64) int64 {
	return rescale(ts, m.streamTimeBase, Microsecond)
}

// TimeToCodecTS converts absolute presentation microseconds into the
// decoder's time base.
func (m *Map) TimeToCodecTS(timeUS int64) int64 {
	return rescale(timeUS, Microsecond, m.codecTimeBase)
}

// CodecTSToTime converts a codec-time-base timestamp into absolute
// presentation microseconds.
func (m *Map) CodecTSToTime(ts int64) int64 {
	return rescale(ts, m.codecTimeBase, Microsecond)
}

// StreamTSToCodecTS directly rescales between the two container/codec
// rationals without an intermediate microsecond hop.
func (m *Map) StreamTSToCodecTS(ts int64) int64 {
	return rescale(ts, m.streamTimeBase, m.codecTimeBase)
}

// CodecTSToStreamTS is the inverse of StreamTSToCodecTS.
func (m *Map) CodecTSToStreamTS(ts int64) int64 {
	return rescale(ts, m.codecTimeBase, m.streamTimeBase)
}

// FrameRate returns the nominal frame rate as a float64, for reporting
// only (e.g. Stream.FrameRate()) — never used internally for a
// conversion.
func (m *Map) FrameRate() float64 {
	return float64(m.frameRateNum) / float64(m.frameRateDen)
}

// rescale converts a timestamp from one rational time base to another
// using exact cross-multiplication: ts * from.Num * to.Den / (from.Den * to.Num).
func rescale(ts int64, from, to Rational) int64 {
	if from.Num == to.Num && from.Den == to.Den {
		return ts
	}
	num := ts * from.Num * to.Den
	den := from.Den * to.Num
	return divRoundAwayZero(num, den)
}

// divRoundAwayZero implements "nearest, ties away from zero" integer
// division, the rounding rule spec.md §4.1 mandates for every
// conversion in this package.
func divRoundAwayZero(num, den int64) int64 {
	if den < 0 {
		num, den = -num, -den
	}
	q := num / den
	r := num % den
	if r == 0 {
		return q
	}
	if num >= 0 {
		if 2*r >= den {
			q++
		}
	} else if 2*(-r) >= den {
		q--
	}
	return q
}
