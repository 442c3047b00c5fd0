// Package decode implements the spec's Decoder component as a sum
// type (SoftwareDecoder, HardwareDecoder) behind one Decoder
// interface, per spec.md §9's "rather than deep inheritance, express
// decoding as a sum type" design note.
package decode

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/pulsejet/fffr/internal/logging"
)

// Outcome is the three-way result of ReceiveFrame, shared with
// filter.Chain.Retrieve (filter.Chain.Submit returns only an error).
type Outcome int

const (
	// OutcomeFrame: a decoded frame is available.
	OutcomeFrame Outcome = iota
	// OutcomeNeedMore: feed another packet before retrying.
	OutcomeNeedMore
	// OutcomeDrained: end of stream, no more frames will ever come.
	OutcomeDrained
)

// ErrConstructionFailed covers every reason a Decoder could not be
// built: unsupported codec, hardware device unavailable, or (for
// hardware decode) pixel-format negotiation failure.
var ErrConstructionFailed = errors.New("decode: construction failed")

// Decoder is the common interface for software- and hardware-backed
// decoding.
type Decoder interface {
	SendPacket(pkt *astiav.Packet) error
	SendFlush() error
	ReceiveFrame(dst *astiav.Frame) (Outcome, error)
	// CodecDelay is an upper bound on packets that may be accepted
	// before the first frame emerges.
	CodecDelay() int32
	// Reset discards all pending decoder state, required after a
	// seek that flushes (spec.md §4.3).
	Reset()
	Close()

	// Width, Height, PixelFormat, and TimeBase report the codec
	// context's configured output shape, available before any frame
	// has been decoded, so a filter.InputDescriptor can be built at
	// Stream construction time.
	Width() int
	Height() int
	PixelFormat() astiav.PixelFormat
	TimeBase() astiav.Rational
}

type baseDecoder struct {
	log        *logging.Logger
	codecCtx   *astiav.CodecContext
	codecDelay int32
}

func (b *baseDecoder) SendPacket(pkt *astiav.Packet) error {
	if err := b.codecCtx.SendPacket(pkt); err != nil {
		if astiav.ErrIsAgain(err) {
			return nil // backpressure, not a transient error
		}
		return fmt.Errorf("decode: send packet: %w", err)
	}
	return nil
}

func (b *baseDecoder) SendFlush() error {
	// A nil/empty packet signals end-of-stream to the codec, per
	// ffmpeg's avcodec_send_packet(ctx, NULL) convention.
	if err := b.codecCtx.SendPacket(nil); err != nil && !astiav.ErrIsEOF(err) {
		return fmt.Errorf("decode: send flush: %w", err)
	}
	return nil
}

func (b *baseDecoder) ReceiveFrame(dst *astiav.Frame) (Outcome, error) {
	if err := b.codecCtx.ReceiveFrame(dst); err != nil {
		switch {
		case astiav.ErrIsAgain(err):
			return OutcomeNeedMore, nil
		case astiav.ErrIsEOF(err):
			return OutcomeDrained, nil
		default:
			return OutcomeNeedMore, fmt.Errorf("decode: receive frame: %w", err)
		}
	}
	return OutcomeFrame, nil
}

func (b *baseDecoder) CodecDelay() int32 { return b.codecDelay }

// Width, Height, and PixelFormat report the codec context's
// configured output shape, used to build a filter.InputDescriptor
// before the first frame has been decoded.
func (b *baseDecoder) Width() int                     { return b.codecCtx.Width() }
func (b *baseDecoder) Height() int                    { return b.codecCtx.Height() }
func (b *baseDecoder) PixelFormat() astiav.PixelFormat { return b.codecCtx.PixelFormat() }
func (b *baseDecoder) TimeBase() astiav.Rational       { return b.codecCtx.TimeBase() }

func (b *baseDecoder) Reset() {
	b.codecCtx.FlushBuffers()
}

func (b *baseDecoder) Close() {
	if b.codecCtx != nil {
		b.codecCtx.Free()
		b.codecCtx = nil
	}
}

// SoftwareDecoder decodes entirely in host memory.
type SoftwareDecoder struct{ baseDecoder }

// NewSoftware constructs a CPU-backed decoder for the given stream
// codec parameters.
func NewSoftware(params *astiav.CodecParameters, log *logging.Logger) (*SoftwareDecoder, error) {
	codec := astiav.FindDecoder(params.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("%w: no decoder for codec id %v", ErrConstructionFailed, params.CodecID())
	}
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return nil, fmt.Errorf("%w: AllocCodecContext", ErrConstructionFailed)
	}
	if err := params.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("%w: ToCodecContext: %v", ErrConstructionFailed, err)
	}
	if err := ctx.Open(codec, nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("%w: open: %v", ErrConstructionFailed, err)
	}

	return &SoftwareDecoder{baseDecoder{
		log:        log.With("component", "decoder", "kind", "software"),
		codecCtx:   ctx,
		codecDelay: codecDelayOf(ctx),
	}}, nil
}

// HardwareDecoder decodes via an attached hardware device context
// (e.g. CUDA); the emitted Frame is device-resident and the decoder
// never copies bytes between host and device, per spec.md §4.3.
type HardwareDecoder struct {
	baseDecoder
	hwDeviceCtx   *astiav.HardwareDeviceContext
	hwPixelFormat astiav.PixelFormat
}

// NewHardware constructs a hardware-backed decoder, negotiating the
// codec's offered hardware pixel format against deviceType. If no
// offered format matches, construction fails and is reported to the
// caller (spec.md §4.3) rather than silently falling back to
// software decode.
func NewHardware(params *astiav.CodecParameters, deviceType astiav.HardwareDeviceType, deviceCtx *astiav.HardwareDeviceContext, log *logging.Logger) (*HardwareDecoder, error) {
	codec := astiav.FindDecoder(params.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("%w: no decoder for codec id %v", ErrConstructionFailed, params.CodecID())
	}

	hwFormat, ok := negotiateHWFormat(codec, deviceType)
	if !ok {
		return nil, fmt.Errorf("%w: codec %s offers no %s hardware pixel format", ErrConstructionFailed, codec.Name(), deviceType)
	}

	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return nil, fmt.Errorf("%w: AllocCodecContext", ErrConstructionFailed)
	}
	if err := params.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("%w: ToCodecContext: %v", ErrConstructionFailed, err)
	}

	ctx.SetHardwareDeviceContext(deviceCtx)
	ctx.SetPixelFormat(hwFormat)

	if err := ctx.Open(codec, nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("%w: open: %v", ErrConstructionFailed, err)
	}

	return &HardwareDecoder{
		baseDecoder: baseDecoder{
			log:        log.With("component", "decoder", "kind", "hardware", "device", deviceType),
			codecCtx:   ctx,
			codecDelay: codecDelayOf(ctx),
		},
		hwDeviceCtx:   deviceCtx,
		hwPixelFormat: hwFormat,
	}, nil
}

// HWFramesContext returns the decoder's hardware-frames context, which
// must outlive every Frame derived from this decoder's output
// (spec.md §5).
func (h *HardwareDecoder) HWFramesContext() *astiav.HardwareFramesContext {
	return h.codecCtx.HardwareFramesContext()
}

// negotiateHWFormat picks the hardware-native pixel format from the
// codec's offered list, per spec.md §4.3 "choosing the hardware-native
// format from the codec's offered list."
func negotiateHWFormat(codec *astiav.Codec, deviceType astiav.HardwareDeviceType) (astiav.PixelFormat, bool) {
	for _, cfg := range codec.HardwareConfigs() {
		if cfg.DeviceType() == deviceType && cfg.IsHardwareDeviceContextRequired() {
			return cfg.PixelFormat(), true
		}
	}
	return 0, false
}

// codecDelayOf returns an upper bound on packets acceptable before
// the first frame emerges, driven by B-frames/lookahead/pipelining
// (spec.md glossary: Codec delay).
func codecDelayOf(ctx *astiav.CodecContext) int32 {
	delay := ctx.Delay()
	if delay < 0 {
		return 0
	}
	return int32(delay)
}
