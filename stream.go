// Package fffr implements a random-access video frame reader: open a
// container once, then pull decoded frames by presentation time or
// frame index without re-opening the file for every seek. The public
// surface is the Stream type; everything under internal/ is the
// demux→decode→filter pipeline and the look-ahead buffer it drives.
package fffr

import (
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/pulsejet/fffr/internal/config"
	"github.com/pulsejet/fffr/internal/decode"
	"github.com/pulsejet/fffr/internal/demux"
	"github.com/pulsejet/fffr/internal/filter"
	"github.com/pulsejet/fffr/internal/hwpool"
	"github.com/pulsejet/fffr/internal/logging"
	"github.com/pulsejet/fffr/internal/ring"
	"github.com/pulsejet/fffr/internal/timebase"
)

// decodeStallSlack is the floor for the packets-without-a-frame bound
// (spec.md §4.5 "more than D + slack packets"): the seek threshold
// already equals codec delay plus buffer length, but a degenerate
// zero/near-zero buffer length must not make the stall detector
// trigger-happy.
const decodeStallSlack = 8

// packetSource is the subset of *demux.Demuxer the pipeline actually
// drives; factoring it out as an interface lets tests substitute a
// synthetic packet source without depending on a real container file
// (spec.md §8's "fake Demuxer/Decoder harness").
type packetSource interface {
	ReadPacket() (*astiav.Packet, error)
	Seek(targetTS int64) bool
}

// Stream is the public StreamCore: a demux→decode→filter pipeline
// fronted by a ping/pong look-ahead buffer and a seek policy that
// picks between continued forward decoding and a hard seek.
//
// All operations on one Stream must be serialised; mu is held for the
// duration of every exported call. Internal recursion (Seek calling
// into the peek/fill logic) goes through the unexported *Locked
// methods instead of a real recursive mutex, per spec.md §9's resolved
// Open Question on re-entrancy.
type Stream struct {
	mu sync.Mutex

	log *logging.Logger

	demuxer packetSource
	decoder decode.Decoder
	chain   *filter.Chain
	tmap    *timebase.Map

	hwHandle *hwpool.Handle

	buf *ring.Buffer[*Frame]

	bufferLength  int
	seekThreshold int64
	noBufferFlush bool

	maxFrames     int64
	haveMaxFrames bool
	durationUS    int64
	haveDuration  bool

	hardware bool // true when frames emerging from decoder are device-resident

	eofDemux   bool // demuxer has returned end-of-file and the flush has been sent
	eofDrained bool // decoder/chain have also reported Drained after the flush

	decFrame  *astiav.Frame
	filtFrame *astiav.Frame

	handles *codecHandles

	closed bool
}

// Open constructs a Stream for path per cfg. On any failure the
// returned *Stream is nil and every resource already acquired
// (demuxer, decoder, hardware device reference) is released before
// returning, so a failed Open never leaks a partial Stream.
func Open(path string, cfg config.Config, log *logging.Logger, pool *hwpool.Pool) (*Stream, error) {
	log = log.With("component", "stream", "path", path)

	dmx, err := demux.Open(path, cfg.FFprobePath, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	var dec decode.Decoder
	var hwHandle *hwpool.Handle
	params := dmx.VideoCodecParameters()

	if cfg.HWType == config.HardwareCUDA {
		hwHandle, err = pool.Acquire(cfg.HardwareDeviceType(), cfg.DeviceIndex)
		if err != nil {
			dmx.Close()
			return nil, fmt.Errorf("%w: acquiring hardware device: %v", ErrOpenFailed, err)
		}
		hwDec, err := decode.NewHardware(params, cfg.HardwareDeviceType(), hwHandle.Ctx, log)
		if err != nil {
			hwHandle.Release()
			dmx.Close()
			return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
		}
		dec = hwDec
	} else {
		swDec, err := decode.NewSoftware(params, log)
		if err != nil {
			dmx.Close()
			return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
		}
		dec = swDec
	}

	streamTB := dmx.StreamTimeBase()
	codecTB := timebase.Rational{Num: int64(dec.TimeBase().Num()), Den: int64(dec.TimeBase().Den())}
	if codecTB.Num == 0 || codecTB.Den == 0 {
		// Some decoders never populate a codec time base until the
		// first frame; fall back to the container's, which is always
		// a valid rational.
		codecTB = streamTB
	}

	startTS, _ := dmx.StreamStartTS()
	frameRate := dmx.AverageFrameRate()
	tmap := timebase.New(startTS, streamTB, codecTB, frameRate)

	hw := cfg.HWType == config.HardwareCUDA
	desc := filter.InputDescriptor{
		Width:       dec.Width(),
		Height:      dec.Height(),
		PixelFormat: dec.PixelFormat(),
		TimeBase:    dec.TimeBase(),
		AspectRatio: astiav.NewRational(int(dmx.SampleAspectRatio().Num), int(dmx.SampleAspectRatio().Den)),
		Hardware:    hw,
	}
	if hw {
		if hwDec, ok := dec.(*decode.HardwareDecoder); ok {
			desc.HWFramesCtx = hwDec.HWFramesContext()
		}
	}

	targetFormat, autoFormat := configPixelFormat(cfg)
	chain, err := filter.New(configCrop(cfg), configScale(cfg), targetFormat, autoFormat, desc, log)
	if err != nil {
		dec.Close()
		if hwHandle != nil {
			hwHandle.Release()
		}
		dmx.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	effectiveBufferLength := cfg.BufferLength
	if effectiveBufferLength <= 0 {
		effectiveBufferLength = config.DefaultBufferLength
	}
	effectiveCfg := cfg
	effectiveCfg.BufferLength = effectiveBufferLength

	s := &Stream{
		log:           log,
		demuxer:       dmx,
		decoder:       dec,
		chain:         chain,
		tmap:          tmap,
		hwHandle:      hwHandle,
		buf:           ring.New[*Frame](),
		bufferLength:  effectiveBufferLength,
		seekThreshold: effectiveCfg.EffectiveSeekThreshold(dec.CodecDelay()),
		noBufferFlush: cfg.NoBufferFlush,
		hardware:      hw,
		decFrame:      astiav.AllocFrame(),
		filtFrame:     astiav.AllocFrame(),
	}

	if mf, ok := dmx.TotalFrames(); ok {
		s.maxFrames, s.haveMaxFrames = mf, true
	}
	if du, ok := dmx.TotalDurationUS(); ok {
		s.durationUS, s.haveDuration = du, true
	}

	release := func() {
		s.decFrame.Free()
		s.filtFrame.Free()
		chain.Close()
		dec.Close()
		if hwHandle != nil {
			hwHandle.Release()
		}
		dmx.Close()
	}
	s.handles = &codecHandles{release: release}
	s.handles.ref() // the Stream itself holds one reference

	return s, nil
}

// configPixelFormat and configCrop/configScale adapt the config
// package's surface vocabulary to internal/filter's, kept in this file
// rather than internal/filter so that package stays independent of
// internal/config.
func configPixelFormat(cfg config.Config) (astiav.PixelFormat, bool) {
	if cfg.Format == config.FormatAuto {
		return 0, true
	}
	return pixelFormatFromConfig(cfg.Format), false
}

func configCrop(cfg config.Config) filter.Crop {
	return filter.Crop{Top: cfg.Crop.Top, Bottom: cfg.Crop.Bottom, Left: cfg.Crop.Left, Right: cfg.Crop.Right}
}

func configScale(cfg config.Config) filter.Scale {
	return filter.Scale{Width: cfg.Scale.Width, Height: cfg.Scale.Height}
}

// pixelFormatFromConfig maps the config's closed pixel-format
// enumeration onto astiav's, per spec.md §6.
func pixelFormatFromConfig(f config.PixelFormat) astiav.PixelFormat {
	switch f {
	case config.FormatYUV420P:
		return astiav.PixelFormatYuv420P
	case config.FormatYUV422P:
		return astiav.PixelFormatYuv422P
	case config.FormatYUV444P:
		return astiav.PixelFormatYuv444P
	case config.FormatNV12:
		return astiav.PixelFormatNv12
	case config.FormatRGB8:
		return astiav.PixelFormatRgb24
	case config.FormatBGR8:
		return astiav.PixelFormatBgr24
	case config.FormatGBR8P:
		return astiav.PixelFormatGbrp
	case config.FormatRGB8P:
		return astiav.PixelFormatGbrp
	case config.FormatRGB32FP:
		return astiav.PixelFormatGbrpf32Le
	default:
		return astiav.PixelFormatYuv420P
	}
}

// Close releases this Stream's reference to the underlying
// codec/demuxer handles. Frames already handed to a caller keep their
// own shared reference and remain valid after Close (spec.md §3).
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.buf.Clear()
	s.handles.unref()
}

// IsEndOfFile reports whether the demuxer has been fully drained and
// the look-ahead buffer holds nothing left to return.
func (s *Stream) IsEndOfFile() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eofDrained && s.buf.Len() == 0
}

// MaxFrames returns the resolved total frame count, if known.
func (s *Stream) MaxFrames() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxFrames, s.haveMaxFrames
}

// DurationUS returns the resolved total duration in microseconds, if known.
func (s *Stream) DurationUS() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationUS, s.haveDuration
}

// FrameRate returns the container's nominal frame rate.
func (s *Stream) FrameRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tmap.FrameRate()
}

// FrameToTime and TimeToFrame delegate directly to the TimeMap built
// at Open time (spec.md §4.5: "Delegates to TimeMap").
func (s *Stream) FrameToTime(index int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tmap.FrameToTime(index)
}

func (s *Stream) TimeToFrame(timeUS int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tmap.TimeToFrame(timeUS)
}

// Width, Height, PixelFormat, and AspectRatio report the output shape
// after any configured crop/scale/format conversion, from the filter
// chain's sink (spec.md §4.4, §9).
func (s *Stream) Width() int  { s.mu.Lock(); defer s.mu.Unlock(); return s.chain.Width() }
func (s *Stream) Height() int { s.mu.Lock(); defer s.mu.Unlock(); return s.chain.Height() }
func (s *Stream) PixelFormat() astiav.PixelFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain.PixelFormat()
}
func (s *Stream) AspectRatio() Rational {
	s.mu.Lock()
	defer s.mu.Unlock()
	ar := s.chain.AspectRatio()
	return Rational{Num: int64(ar.Num()), Den: int64(ar.Den())}
}

// FrameSizeBytes reports the size in bytes of one decoded frame at the
// stream's output dimensions/format, for callers sizing their own
// buffers ahead of a GetNext/GetFramesByIndex call.
func (s *Stream) FrameSizeBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain.FrameSizeBytes()
}
