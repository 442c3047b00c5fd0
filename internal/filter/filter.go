// Package filter implements the spec's FilterChain component: an
// optional crop → scale → pixel-format conversion applied to each
// decoded frame before it is buffered.
package filter

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/pulsejet/fffr/internal/decode"
	"github.com/pulsejet/fffr/internal/logging"
)

// Crop is the spec's {top,bottom,left,right} crop border tuple.
type Crop struct{ Top, Bottom, Left, Right int }

func (c Crop) isZero() bool { return c == Crop{} }

// Scale is the target {w,h}; a zero value means "no scale requested."
type Scale struct{ Width, Height int }

func (s Scale) isZero() bool { return s == Scale{} }

// InputDescriptor captures everything the chain needs to know about
// the source, per spec.md §4.4.
type InputDescriptor struct {
	Width, Height int
	PixelFormat   astiav.PixelFormat
	TimeBase      astiav.Rational
	AspectRatio   astiav.Rational
	Hardware      bool
	HWFramesCtx   *astiav.HardwareFramesContext // only if Hardware
}

// ErrUnsupportedHardwareFilter is returned at construction time when
// a non-pass-through chain is requested for hardware-resident input;
// spec.md §9 leaves this explicitly out of scope rather than silently
// degrading.
var ErrUnsupportedHardwareFilter = errors.New("filter: non-pass-through hardware filter chains are not supported")

// Chain is the constructed crop→scale→format pipeline, which may be
// a trivial pass-through.
type Chain struct {
	log *logging.Logger

	passThrough bool
	input       InputDescriptor

	graph       *astiav.FilterGraph
	buffersrc   *astiav.FilterContext
	buffersink  *astiav.FilterContext

	sinkWidth, sinkHeight int
	sinkFormat            astiav.PixelFormat
	sinkAspect            astiav.Rational
}

// New builds a Chain from the (crop, scale, targetFormat, input)
// tuple, per spec.md §4.4's construction logic.
func New(crop Crop, scale Scale, targetFormat astiav.PixelFormat, autoFormat bool, input InputDescriptor, log *logging.Logger) (*Chain, error) {
	log = log.With("component", "filter")

	postCropW, postCropH := input.Width-crop.Left-crop.Right, input.Height-crop.Top-crop.Bottom

	wantScale := !scale.isZero() && (scale.Width != postCropW || scale.Height != postCropH)
	wantCrop := !crop.isZero()
	wantFormat := !autoFormat && targetFormat != input.PixelFormat

	trivial := !wantCrop && !wantScale && !wantFormat
	if trivial {
		return &Chain{
			log:         log,
			passThrough: true,
			input:       input,
			sinkWidth:   input.Width,
			sinkHeight:  input.Height,
			sinkFormat:  input.PixelFormat,
			sinkAspect:  input.AspectRatio,
		}, nil
	}

	if input.Hardware {
		return nil, ErrUnsupportedHardwareFilter
	}

	outW, outH := postCropW, postCropH
	if wantScale {
		outW, outH = scale.Width, scale.Height
	}
	outFormat := input.PixelFormat
	if wantFormat {
		outFormat = targetFormat
	}

	graph := astiav.AllocFilterGraph()
	if graph == nil {
		return nil, errors.New("filter: AllocFilterGraph failed")
	}

	bufferArgs := fmt.Sprintf(
		"video_size=%dx%d:pix_fmt=%d:time_base=%d/%d:pixel_aspect=%d/%d",
		input.Width, input.Height, int(input.PixelFormat),
		input.TimeBase.Num(), input.TimeBase.Den(),
		input.AspectRatio.Num(), input.AspectRatio.Den(),
	)
	src, err := graph.NewFilterContext(astiav.FindFilterByName("buffer"), "in", bufferArgs)
	if err != nil {
		graph.Free()
		return nil, fmt.Errorf("filter: buffer src: %w", err)
	}

	last := src
	if wantCrop {
		args := fmt.Sprintf("out_w=iw-%d-%d:out_h=ih-%d-%d:x=%d:y=%d",
			crop.Left, crop.Right, crop.Top, crop.Bottom, crop.Left, crop.Top)
		cropCtx, err := graph.NewFilterContext(astiav.FindFilterByName("crop"), "crop", args)
		if err != nil {
			graph.Free()
			return nil, fmt.Errorf("filter: crop stage: %w", err)
		}
		if err := last.Link(0, cropCtx, 0); err != nil {
			graph.Free()
			return nil, fmt.Errorf("filter: link crop: %w", err)
		}
		last = cropCtx
	}

	if wantScale {
		args := fmt.Sprintf("w=%d:h=%d", scale.Width, scale.Height)
		scaleCtx, err := graph.NewFilterContext(astiav.FindFilterByName("scale"), "scale", args)
		if err != nil {
			graph.Free()
			return nil, fmt.Errorf("filter: scale stage: %w", err)
		}
		if err := last.Link(0, scaleCtx, 0); err != nil {
			graph.Free()
			return nil, fmt.Errorf("filter: link scale: %w", err)
		}
		last = scaleCtx
	}

	if wantFormat {
		args := fmt.Sprintf("pix_fmts=%d", int(outFormat))
		fmtCtx, err := graph.NewFilterContext(astiav.FindFilterByName("format"), "format", args)
		if err != nil {
			graph.Free()
			return nil, fmt.Errorf("filter: format stage: %w", err)
		}
		if err := last.Link(0, fmtCtx, 0); err != nil {
			graph.Free()
			return nil, fmt.Errorf("filter: link format: %w", err)
		}
		last = fmtCtx
	}

	sink, err := graph.NewFilterContext(astiav.FindFilterByName("buffersink"), "out", "")
	if err != nil {
		graph.Free()
		return nil, fmt.Errorf("filter: buffer sink: %w", err)
	}
	if err := last.Link(0, sink, 0); err != nil {
		graph.Free()
		return nil, fmt.Errorf("filter: link sink: %w", err)
	}

	if err := graph.Configure(); err != nil {
		graph.Free()
		return nil, fmt.Errorf("filter: configure: %w", err)
	}

	return &Chain{
		log:         log,
		passThrough: false,
		input:       input,
		graph:       graph,
		buffersrc:   src,
		buffersink:  sink,
		sinkWidth:   outW,
		sinkHeight:  outH,
		sinkFormat:  outFormat,
		sinkAspect:  input.AspectRatio,
	}, nil
}

// Submit feeds a decoded frame into the chain (a no-op copy-through
// for pass-through chains).
func (c *Chain) Submit(frame *astiav.Frame) error {
	if c.passThrough {
		return nil
	}
	if err := c.buffersrc.BuffersrcAddFrame(frame, astiav.NewBuffersrcFlags()); err != nil {
		return fmt.Errorf("filter: submit: %w", err)
	}
	return nil
}

// Retrieve drains the chain using the same three-outcome convention
// as decode.Decoder.
func (c *Chain) Retrieve(dst *astiav.Frame) (decode.Outcome, error) {
	if c.passThrough {
		return decode.OutcomeDrained, nil
	}
	if err := c.buffersink.BuffersinkGetFrame(dst, astiav.NewBuffersinkFlags()); err != nil {
		switch {
		case astiav.ErrIsAgain(err):
			return decode.OutcomeNeedMore, nil
		case astiav.ErrIsEOF(err):
			return decode.OutcomeDrained, nil
		default:
			return decode.OutcomeNeedMore, fmt.Errorf("filter: retrieve: %w", err)
		}
	}
	return decode.OutcomeFrame, nil
}

// IsPassThrough reports whether this chain forwards frames unmodified.
func (c *Chain) IsPassThrough() bool { return c.passThrough }

// Width, Height, PixelFormat, AspectRatio are derived properties
// reported from the sink of the chain, per spec.md §4.4. Per the
// resolved Open Question in spec.md §9, PixelFormat always reports
// the sink's format when a (non-trivial) chain exists, rather than a
// possibly-stale codec-reported format.
func (c *Chain) Width() int                     { return c.sinkWidth }
func (c *Chain) Height() int                    { return c.sinkHeight }
func (c *Chain) PixelFormat() astiav.PixelFormat { return c.sinkFormat }
func (c *Chain) AspectRatio() astiav.Rational    { return c.sinkAspect }

// FrameSizeBytes returns the size in bytes of one decoded frame at
// the chain's output dimensions/format, used by callers sizing output
// buffers.
func (c *Chain) FrameSizeBytes() int {
	return astiav.ImageBufferSize(c.sinkFormat, c.sinkWidth, c.sinkHeight, 1)
}

// Close releases the filter graph, if any.
func (c *Chain) Close() {
	if c.graph != nil {
		c.graph.Free()
		c.graph = nil
	}
}
