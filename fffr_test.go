package fffr

import (
	"testing"

	"github.com/asticode/go-astiav"

	"github.com/pulsejet/fffr/internal/decode"
	"github.com/pulsejet/fffr/internal/filter"
	"github.com/pulsejet/fffr/internal/logging"
	"github.com/pulsejet/fffr/internal/ring"
	"github.com/pulsejet/fffr/internal/timebase"
)

// Synthetic CFR fixture: 19034 frames at 30fps, matching the scenario
// spec.md §8 walks through end to end. The fake packet source and fake
// decoder below stand in for a real container/codec, per the "fake
// Demuxer/Decoder harness" this module's tests are built on — no real
// media file or codec library is touched.
const (
	testTotalFrames   = 19034
	testTimeBaseDen   = 30000
	testTicksPerFrame = testTimeBaseDen / 30 // 1000 codec ticks per frame at exactly 30fps
)

// fakePacketSource hands out one packet per frame in [0, total) and
// supports a best-effort seek that repositions its cursor to the
// nearest frame at or before the requested stream timestamp. The
// packet itself carries the frame's intended presentation timestamp
// (in codec ticks) via SetPts, the same way a real demuxed packet
// would, so fakeDecoder can read it back out.
type fakePacketSource struct {
	pkt    *astiav.Packet
	cursor int64
	total  int64
}

func newFakePacketSource(total int64) *fakePacketSource {
	return &fakePacketSource{pkt: astiav.AllocPacket(), total: total}
}

func (f *fakePacketSource) ReadPacket() (*astiav.Packet, error) {
	if f.cursor >= f.total {
		return nil, errEndOfFile
	}
	f.pkt.SetPts(f.cursor * testTicksPerFrame)
	f.cursor++
	return f.pkt, nil
}

func (f *fakePacketSource) Seek(targetStreamTS int64) bool {
	idx := targetStreamTS / testTicksPerFrame
	if idx < 0 {
		idx = 0
	}
	if idx > f.total {
		idx = f.total
	}
	f.cursor = idx
	return true
}

// fakeDecoder is a zero-codec-delay decoder: every SendPacket call is
// answered by exactly one ReceiveFrame call carrying that packet's
// pts straight through, until SendFlush is seen, at which point the
// next ReceiveFrame reports Drained.
type fakeDecoder struct {
	pendingTS  int64
	hasPending bool
	flushed    bool
}

func (d *fakeDecoder) SendPacket(pkt *astiav.Packet) error {
	d.pendingTS = pkt.Pts()
	d.hasPending = true
	return nil
}

func (d *fakeDecoder) SendFlush() error {
	d.flushed = true
	return nil
}

func (d *fakeDecoder) ReceiveFrame(dst *astiav.Frame) (decode.Outcome, error) {
	if d.hasPending {
		dst.SetPts(d.pendingTS)
		d.hasPending = false
		return decode.OutcomeFrame, nil
	}
	if d.flushed {
		d.flushed = false
		return decode.OutcomeDrained, nil
	}
	return decode.OutcomeNeedMore, nil
}

func (d *fakeDecoder) CodecDelay() int32 { return 0 }
func (d *fakeDecoder) Reset()            { d.hasPending, d.flushed = false, false }
func (d *fakeDecoder) Close()            {}

func (d *fakeDecoder) Width() int                     { return 64 }
func (d *fakeDecoder) Height() int                    { return 48 }
func (d *fakeDecoder) PixelFormat() astiav.PixelFormat { return astiav.PixelFormatYuv420P }
func (d *fakeDecoder) TimeBase() astiav.Rational       { return astiav.NewRational(1, testTimeBaseDen) }

// newTestStream wires a fakePacketSource and fakeDecoder into a Stream
// through a real (trivial, pass-through) filter.Chain, bypassing Open
// so no actual container or codec is ever touched.
func newTestStream(t *testing.T, bufferLength int, totalFrames int64) *Stream {
	t.Helper()

	if bufferLength <= 0 {
		bufferLength = 10
	}

	log := logging.New(logging.Quiet)
	ps := newFakePacketSource(totalFrames)
	dec := &fakeDecoder{}

	tb := timebase.Rational{Num: 1, Den: testTimeBaseDen}
	tmap := timebase.New(0, tb, tb, timebase.Rational{Num: 30, Den: 1})

	desc := filter.InputDescriptor{
		Width:       64,
		Height:      48,
		PixelFormat: astiav.PixelFormatYuv420P,
		TimeBase:    astiav.NewRational(1, testTimeBaseDen),
		AspectRatio: astiav.NewRational(1, 1),
	}
	chain, err := filter.New(filter.Crop{}, filter.Scale{}, 0, true, desc, log)
	if err != nil {
		t.Fatalf("filter.New: %v", err)
	}

	s := &Stream{
		log:           log,
		demuxer:       ps,
		decoder:       dec,
		chain:         chain,
		tmap:          tmap,
		buf:           ring.New[*Frame](),
		bufferLength:  bufferLength,
		seekThreshold: int64(bufferLength),
		maxFrames:     totalFrames,
		haveMaxFrames: true,
		durationUS:    tmap.FrameToTime(totalFrames),
		haveDuration:  true,
		decFrame:      astiav.AllocFrame(),
		filtFrame:     astiav.AllocFrame(),
	}
	s.handles = &codecHandles{release: func() {
		s.decFrame.Free()
		s.filtFrame.Free()
		chain.Close()
		ps.pkt.Free()
	}}
	s.handles.ref()
	t.Cleanup(s.Close)
	return s
}

func TestTotalsMatchFixture(t *testing.T) {
	t.Parallel()
	s := newTestStream(t, 10, testTotalFrames)

	if mf, ok := s.MaxFrames(); !ok || mf != testTotalFrames {
		t.Fatalf("MaxFrames() = (%d, %v), want (%d, true)", mf, ok, testTotalFrames)
	}
	if fr := s.FrameRate(); fr != 30 {
		t.Fatalf("FrameRate() = %v, want 30", fr)
	}
	wantDuration := s.tmap.FrameToTime(testTotalFrames)
	if du, ok := s.DurationUS(); !ok || du != wantDuration {
		t.Fatalf("DurationUS() = (%d, %v), want (%d, true)", du, ok, wantDuration)
	}
}

func TestGetNextWalksEntireFixtureThenEOF(t *testing.T) {
	t.Parallel()
	s := newTestStream(t, 10, testTotalFrames)

	var lastPTS int64 = -1
	for i := int64(0); i < testTotalFrames; i++ {
		fr, err := s.GetNext()
		if err != nil {
			t.Fatalf("GetNext() at frame %d: unexpected error %v", i, err)
		}
		if fr == nil {
			t.Fatalf("GetNext() at frame %d: got nil, want a frame", i)
		}
		if fr.Index != i {
			t.Fatalf("GetNext() at frame %d: Index = %d, want %d", i, fr.Index, i)
		}
		if fr.PTS <= lastPTS {
			t.Fatalf("GetNext() at frame %d: PTS %d not strictly increasing after %d", i, fr.PTS, lastPTS)
		}
		lastPTS = fr.PTS
	}

	fr, err := s.GetNext()
	if err != nil || fr != nil {
		t.Fatalf("GetNext() past end of file = (%v, %v), want (nil, nil)", fr, err)
	}
	if !s.IsEndOfFile() {
		t.Fatalf("IsEndOfFile() = false after exhausting the fixture")
	}
}

func TestSeekToFrameThenBackToStart(t *testing.T) {
	t.Parallel()
	s := newTestStream(t, 10, testTotalFrames)

	if !s.SeekFrame(80) {
		t.Fatalf("SeekFrame(80) = false, want true")
	}
	fr, err := s.PeekNext()
	if err != nil || fr == nil {
		t.Fatalf("PeekNext() after SeekFrame(80) = (%v, %v)", fr, err)
	}
	if fr.Index != 80 {
		t.Fatalf("PeekNext().Index after SeekFrame(80) = %d, want 80", fr.Index)
	}

	if !s.SeekFrame(0) {
		t.Fatalf("SeekFrame(0) = false, want true")
	}
	fr, err = s.PeekNext()
	if err != nil || fr == nil {
		t.Fatalf("PeekNext() after SeekFrame(0) = (%v, %v)", fr, err)
	}
	if fr.Index != 0 {
		t.Fatalf("PeekNext().Index after SeekFrame(0) = %d, want 0", fr.Index)
	}
}

func TestGetFramesByIndexTruncatesAtBufferLength(t *testing.T) {
	t.Parallel()
	s := newTestStream(t, 1, testTotalFrames)

	got := s.GetFramesByIndex([]int64{0, 1, 2, 3, 4, 5})
	if len(got) != 1 {
		t.Fatalf("GetFramesByIndex with bufferLength=1 returned %d frames, want 1", len(got))
	}
	if got[0].Index != 0 {
		t.Fatalf("GetFramesByIndex with bufferLength=1: Index = %d, want 0", got[0].Index)
	}
}

func TestGetFramesByIndexReturnsFullRunWithinBufferLength(t *testing.T) {
	t.Parallel()
	s := newTestStream(t, 10, testTotalFrames)

	want := []int64{0, 1, 2, 3, 4, 5}
	got := s.GetFramesByIndex(want)
	if len(got) != len(want) {
		t.Fatalf("GetFramesByIndex returned %d frames, want %d", len(got), len(want))
	}
	for i, fr := range got {
		if fr.Index != want[i] {
			t.Fatalf("frame %d: Index = %d, want %d", i, fr.Index, want[i])
		}
	}
}

func TestGetFramesByIndexRejectsNonMonotonicRequest(t *testing.T) {
	t.Parallel()
	s := newTestStream(t, 10, testTotalFrames)

	got := s.GetFramesByIndex([]int64{5, 2, 8})
	if len(got) != 0 {
		t.Fatalf("GetFramesByIndex with non-monotonic indices returned %d frames, want 0", len(got))
	}
}

func TestSeekOutOfRangeThenRecovers(t *testing.T) {
	t.Parallel()
	s := newTestStream(t, 10, testTotalFrames)

	duration, _ := s.DurationUS()
	if s.Seek(duration) {
		t.Fatalf("Seek(duration) = true, want false (t >= duration is invalid)")
	}
	if s.Seek(duration + 300000) {
		t.Fatalf("Seek(duration+300000) = true, want false")
	}

	target := s.FrameToTime(2)
	if !s.Seek(target) {
		t.Fatalf("Seek(frame_to_time(2)) = false, want true after prior invalid seeks")
	}
	fr, err := s.PeekNext()
	if err != nil || fr == nil {
		t.Fatalf("PeekNext() after recovery seek = (%v, %v)", fr, err)
	}
	if fr.Index != 2 {
		t.Fatalf("PeekNext().Index after recovery seek = %d, want 2", fr.Index)
	}
}
