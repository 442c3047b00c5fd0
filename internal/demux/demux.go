// Package demux wraps astiav's format-context API into the spec's
// Demuxer component: container open, primary-video-stream selection,
// total-frame/duration resolution (with fallback scan), packet
// reading, and best-effort seeking.
package demux

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/pulsejet/fffr/internal/logging"
	"github.com/pulsejet/fffr/internal/timebase"
)

// ErrEndOfFile is yielded by ReadPacket once the container is
// exhausted; it is not a failure.
var ErrEndOfFile = errors.New("demux: end of file")

// Demuxer owns one opened container and its selected video stream.
type Demuxer struct {
	log *logging.Logger

	path        string
	ffprobePath string
	formatCtx   *astiav.FormatContext
	videoStream *astiav.Stream
	videoIndex  int
	streamTB    astiav.Rational
	avgFrameRate astiav.Rational
	sampleAspect astiav.Rational

	pkt *astiav.Packet

	totalFrames   int64
	totalFramesOK bool
	totalDurUS    int64
	totalDurOK    bool
	startTS       int64
	startTSOK     bool
}

// Open opens path, finds stream info, and selects the first video
// stream in container order; video streams are not ranked against each
// other. It never returns a partially valid
// Demuxer: on any failure the returned *Demuxer is nil. ffprobePath, if
// non-empty, is consulted by resolveTotals as a degraded fallback when
// neither the container nor the stream report usable totals; pass ""
// to disable it and fall straight to scanToEnd (spec.md §4.2).
func Open(path, ffprobePath string, log *logging.Logger) (*Demuxer, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("demux: AllocFormatContext failed")
	}

	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("demux: open %q: %w", path, err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("demux: find stream info %q: %w", path, err)
	}

	videoIndex := -1
	var videoStream *astiav.Stream
	for i, st := range fc.Streams() {
		if st.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			videoIndex = i
			videoStream = st
			break
		}
	}
	if videoIndex < 0 {
		fc.CloseInput()
		fc.Free()
		return nil, errors.New("demux: no video stream found")
	}

	d := &Demuxer{
		log:          log.With("component", "demuxer"),
		path:         path,
		ffprobePath:  ffprobePath,
		formatCtx:    fc,
		videoStream:  videoStream,
		videoIndex:   videoIndex,
		streamTB:     videoStream.TimeBase(),
		avgFrameRate: videoStream.AvgFrameRate(),
		sampleAspect: videoStream.SampleAspectRatio(),
		pkt:          astiav.AllocPacket(),
	}
	d.resolveTotals()
	d.resolveStartTS()
	return d, nil
}

// Close releases the underlying format context. Any Frame derived
// from packets produced by this Demuxer keeps its own shared
// reference and remains valid after Close (spec.md §3 lifecycle).
func (d *Demuxer) Close() {
	if d.pkt != nil {
		d.pkt.Free()
		d.pkt = nil
	}
	if d.formatCtx != nil {
		d.formatCtx.CloseInput()
		d.formatCtx.Free()
		d.formatCtx = nil
	}
}

// VideoStreamIndex returns the selected stream's index.
func (d *Demuxer) VideoStreamIndex() int { return d.videoIndex }

// VideoCodecParameters exposes the selected stream's codec
// parameters, used to construct a decode.Decoder.
func (d *Demuxer) VideoCodecParameters() *astiav.CodecParameters {
	return d.videoStream.CodecParameters()
}

// StreamTimeBase returns the video stream's time base.
func (d *Demuxer) StreamTimeBase() timebase.Rational {
	return timebase.Rational{Num: int64(d.streamTB.Num()), Den: int64(d.streamTB.Den())}
}

// AverageFrameRate returns the stream's reported average frame rate.
func (d *Demuxer) AverageFrameRate() timebase.Rational {
	return timebase.Rational{Num: int64(d.avgFrameRate.Num()), Den: int64(d.avgFrameRate.Den())}
}

// SampleAspectRatio returns the stream's sample (pixel) aspect ratio.
func (d *Demuxer) SampleAspectRatio() timebase.Rational {
	return timebase.Rational{Num: int64(d.sampleAspect.Num()), Den: int64(d.sampleAspect.Den())}
}

// TotalFrames implements spec.md §4.2's resolution order.
func (d *Demuxer) TotalFrames() (int64, bool) { return d.totalFrames, d.totalFramesOK }

// TotalDurationUS implements spec.md §4.2's resolution order, in µs.
func (d *Demuxer) TotalDurationUS() (int64, bool) { return d.totalDurUS, d.totalDurOK }

// StreamStartTS returns the stream-timebase start offset, per
// spec.md §4.2.
func (d *Demuxer) StreamStartTS() (int64, bool) { return d.startTS, d.startTSOK }

// ReadPacket returns the next compressed packet for the selected
// video stream, discarding packets from other streams internally.
// The returned Packet is owned by the Demuxer until the next
// ReadPacket/Close call; callers that need it to outlive that must
// ref it themselves (handled internally by decode.Decoder.SendPacket).
func (d *Demuxer) ReadPacket() (*astiav.Packet, error) {
	for {
		if err := d.formatCtx.ReadFrame(d.pkt); err != nil {
			if astiav.ErrIsEOF(err) {
				return nil, ErrEndOfFile
			}
			return nil, fmt.Errorf("demux: read frame: %w", err)
		}
		if d.pkt.StreamIndex() != d.videoIndex {
			d.pkt.Unref()
			continue
		}
		return d.pkt, nil
	}
}

// Seek performs a best-effort jump to the nearest preceding keyframe
// at or before targetTS (stream time base), per spec.md §4.2.
func (d *Demuxer) Seek(targetTS int64) bool {
	if err := d.formatCtx.SeekFrame(d.videoIndex, targetTS, astiav.SeekFlagBackward); err != nil {
		d.log.Warningf("seek to %d failed: %v", targetTS, err)
		return false
	}
	return true
}

// resolveTotals implements the §4.2 priority chain for total_frames
// and total_duration, falling back to a scan-to-end when the
// container and stream both fail to report usable values.
func (d *Demuxer) resolveTotals() {
	streamFrames := d.videoStream.NbFrames()
	containerDurUS := d.formatCtx.Duration() // AV_TIME_BASE (microseconds)

	fr := d.avgFrameRate
	haveFR := fr.Num() > 0 && fr.Den() > 0

	var containerFrames int64
	haveContainerFrames := false
	if containerDurUS > 0 && haveFR {
		containerFrames = int64(float64(containerDurUS) / 1_000_000 * (float64(fr.Num()) / float64(fr.Den())))
		haveContainerFrames = true
	}

	switch {
	case haveContainerFrames && streamFrames > 0 && abs64(containerFrames-streamFrames) <= 1:
		d.totalFrames, d.totalFramesOK = containerFrames, true
	case haveContainerFrames:
		d.totalFrames, d.totalFramesOK = containerFrames, true
	case streamFrames > 0:
		d.totalFrames, d.totalFramesOK = streamFrames, true
	case d.videoStream.Duration() > 0 && haveFR:
		tb := d.streamTB
		durSeconds := float64(d.videoStream.Duration()) * float64(tb.Num()) / float64(tb.Den())
		d.totalFrames = int64(durSeconds * float64(fr.Num()) / float64(fr.Den()))
		d.totalFramesOK = true
	default:
		if pr, ok := d.probeFallback(); ok {
			d.applyProbeResult(pr)
		}
		if !d.totalFramesOK {
			d.scanToEnd()
		}
	}

	if !d.totalDurOK && containerDurUS > 0 {
		d.totalDurUS, d.totalDurOK = containerDurUS, true
	} else if !d.totalDurOK && d.videoStream.Duration() > 0 {
		tb := d.streamTB
		d.totalDurUS = rescaleToUS(d.videoStream.Duration(), tb)
		d.totalDurOK = true
	} else if !d.totalDurOK && d.totalFramesOK && haveFR {
		d.totalDurUS = int64(float64(d.totalFrames) / (float64(fr.Num()) / float64(fr.Den())) * 1_000_000)
		d.totalDurOK = true
	}
}

// probeFallback shells out to ffprobe when container and stream
// metadata both failed to yield usable totals, per spec.md §4.2's
// degraded fallback. It is a no-op (ok=false) when no ffprobe binary
// was configured, grounded on the teacher's Manager.ffprobe being
// consulted only once astiav's own metadata is exhausted.
func (d *Demuxer) probeFallback() (*ProbeResult, bool) {
	if d.ffprobePath == "" {
		return nil, false
	}
	pr, err := Probe(d.ffprobePath, d.path)
	if err != nil {
		d.log.Warningf("ffprobe fallback failed: %v", err)
		return nil, false
	}
	return pr, true
}

// applyProbeResult folds a second-opinion ffprobe result into the
// totals resolveTotals otherwise couldn't determine.
func (d *Demuxer) applyProbeResult(pr *ProbeResult) {
	if pr.DurationUS <= 0 {
		return
	}
	d.totalDurUS, d.totalDurOK = pr.DurationUS, true
	if pr.FrameRateNum > 0 && pr.FrameRateDen > 0 {
		d.totalFrames = int64(float64(pr.DurationUS) / 1_000_000 * (float64(pr.FrameRateNum) / float64(pr.FrameRateDen)))
		d.totalFramesOK = true
	}
}

// scanToEnd is the fallback of last resort: seek to a very large
// timestamp, read packets to EOF tracking max(dts, pts), then seek the
// demuxer back to the start. It does not flush a decoder: it runs from
// Open, before any decoder has been constructed for this Demuxer.
func (d *Demuxer) scanToEnd() {
	const farFuture = int64(1) << 60
	if err := d.formatCtx.SeekFrame(d.videoIndex, farFuture, astiav.SeekFlagAny); err != nil {
		d.log.Warningf("scanToEnd: seek failed: %v", err)
		return
	}

	var maxTS int64 = -1
	haveTS := false
	for {
		if err := d.formatCtx.ReadFrame(d.pkt); err != nil {
			break
		}
		if d.pkt.StreamIndex() == d.videoIndex {
			ts := d.pkt.Pts()
			if ts == astiav.NoPtsValue {
				ts = d.pkt.Dts()
			}
			if ts != astiav.NoPtsValue {
				if !haveTS || ts > maxTS {
					maxTS = ts
					haveTS = true
				}
			}
		}
		d.pkt.Unref()
	}

	// Restore demuxer state: flush is the Decoder's job (spec.md §4.2
	// "must restore decoder state by flushing after the scan"); here we
	// only restore our own read position back to the start so the next
	// fillPong begins from frame 0.
	_ = d.formatCtx.SeekFrame(d.videoIndex, 0, astiav.SeekFlagBackward)

	if !haveTS {
		d.totalFramesOK = false
		return
	}
	tb := d.streamTB
	tm := timebase.New(0, timebase.Rational{Num: int64(tb.Num()), Den: int64(tb.Den())},
		timebase.Rational{Num: int64(tb.Num()), Den: int64(tb.Den())},
		timebase.Rational{Num: int64(d.avgFrameRate.Num()), Den: int64(d.avgFrameRate.Den())})
	d.totalFrames = 1 + tm.TimeToFrame(tm.StreamTSToTime(maxTS))
	d.totalFramesOK = true
}

func (d *Demuxer) resolveStartTS() {
	if sd := d.formatCtx.StartTime(); sd != astiav.NoPtsValue {
		// The container reports its start time in AV_TIME_BASE
		// (microseconds); startTS is kept in the stream time base.
		tb := d.StreamTimeBase()
		d.startTS, d.startTSOK = timebase.New(0, tb, tb, timebase.Rational{Num: 1, Den: 1}).TimeToStreamTS(sd), true
		return
	}

	if err := d.formatCtx.SeekFrame(d.videoIndex, 0, astiav.SeekFlagBackward); err != nil {
		d.startTSOK = false
		return
	}

	for {
		if err := d.formatCtx.ReadFrame(d.pkt); err != nil {
			d.startTSOK = false
			return
		}
		if d.pkt.StreamIndex() != d.videoIndex {
			d.pkt.Unref()
			continue
		}
		pts, dts := d.pkt.Pts(), d.pkt.Dts()
		d.pkt.Unref()
		if pts != astiav.NoPtsValue {
			d.startTS, d.startTSOK = pts, true
			return
		}
		if dts != astiav.NoPtsValue {
			d.startTS, d.startTSOK = dts, true
			return
		}
	}
}

func rescaleToUS(ts int64, tb astiav.Rational) int64 {
	return ts * int64(tb.Num()) * 1_000_000 / int64(tb.Den())
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
