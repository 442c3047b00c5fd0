package fffr

import (
	"sync/atomic"

	"github.com/asticode/go-astiav"

	"github.com/pulsejet/fffr/internal/demux"
)

// Residency is the spec's frame memory-residency tag: whether a
// Frame's pixel bytes live in host memory or in a hardware
// accelerator's memory space (spec.md §3, §6).
type Residency int

const (
	ResidencySoftware Residency = iota
	ResidencyCUDA
)

// PixelFormat is the spec's closed pixel-format set (spec.md §6).
type PixelFormat = astiav.PixelFormat

// Rational is an exact fraction (display aspect ratio, etc.).
type Rational struct{ Num, Den int64 }

// Plane is a (data, stride) pair for one image plane. For
// device-resident frames, Data is nil and the address lives in the
// Frame's DevicePointers instead.
type Plane struct {
	Data   []byte
	Stride int
}

// codecHandles holds the shared, reference-counted references to the
// demuxer/decoder (and, for hardware frames, the hardware-frames
// context) that must outlive every Frame derived from them, per
// spec.md §3 "Codec/format handles" and §9's "cyclic ownership" note:
// Frame never holds a back-pointer to Stream, only to this handle set.
type codecHandles struct {
	refCount int32
	release  func()
}

func (h *codecHandles) ref() {
	if h != nil {
		atomic.AddInt32(&h.refCount, 1)
	}
}

func (h *codecHandles) unref() {
	if h == nil {
		return
	}
	if atomic.AddInt32(&h.refCount, -1) == 0 && h.release != nil {
		h.release()
	}
}

// Frame is an immutable decoded image, per spec.md §3.
type Frame struct {
	PTS           int64 // microseconds, canonical external unit
	Index         int64 // zero-based
	Width, Height int
	AspectRatio   Rational
	Format        PixelFormat
	Residency     Residency
	Planes        []Plane
	DevicePointers []uintptr

	handles *codecHandles
}

// PresentationTS implements ring.Entry so Frame can be stored directly
// in an internal/ring.Buffer.
func (f *Frame) PresentationTS() int64 { return f.PTS }

// Close releases this Frame's shared reference to its originating
// codec/demuxer handles. Frames outlive Stream references held
// elsewhere (spec.md §3 lifecycle): calling Close is only required
// once a caller is done with a Frame it retained past the Stream's
// own lifetime; Frames obtained and discarded in the ordinary
// GetNext/PeekNext flow are released automatically when overwritten
// in the ring buffer.
func (f *Frame) Close() {
	if f == nil {
		return
	}
	f.handles.unref()
	f.handles = nil
}

// maxPlanes bounds the plane-copy loop; ffmpeg frames never exceed
// AV_NUM_DATA_POINTERS (8) planes.
const maxPlanes = 8

// newHostFrame copies the pixel bytes of a host-resident astiav.Frame
// out into freshly allocated Go-owned buffers, decoupling the Frame
// from ffmpeg's own buffer pool so the source astiav.Frame can be
// reused/unreffed immediately after.
func newHostFrame(af *astiav.Frame, pts, index int64, handles *codecHandles) *Frame {
	planes := make([]Plane, 0, maxPlanes)
	for i := 0; i < maxPlanes; i++ {
		data := af.Data(i)
		if len(data) == 0 {
			break
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		planes = append(planes, Plane{Data: cp, Stride: af.Linesize(i)})
	}

	sar := af.SampleAspectRatio()
	handles.ref()
	return &Frame{
		PTS:         pts,
		Index:       index,
		Width:       af.Width(),
		Height:      af.Height(),
		AspectRatio: Rational{Num: int64(sar.Num()), Den: int64(sar.Den())},
		Format:      af.PixelFormat(),
		Residency:   ResidencySoftware,
		Planes:      planes,
		handles:     handles,
	}
}

// newDeviceFrame wraps a hardware-resident astiav.Frame without
// copying pixel bytes: the Frame carries device addresses, and must
// only be dereferenced by a caller that has activated the originating
// device context first (spec.md §3: "a frame in device residency must
// only be dereferenced after activating its originating device
// context; the core never touches the pixel bytes itself").
func newDeviceFrame(af *astiav.Frame, pts, index int64, handles *codecHandles) *Frame {
	pointers := make([]uintptr, 0, maxPlanes)
	for i := 0; i < maxPlanes; i++ {
		addr := af.DataPointer(i)
		if addr == 0 {
			break
		}
		pointers = append(pointers, addr)
	}

	sar := af.SampleAspectRatio()
	handles.ref()
	return &Frame{
		PTS:            pts,
		Index:          index,
		Width:          af.Width(),
		Height:         af.Height(),
		AspectRatio:    Rational{Num: int64(sar.Num()), Den: int64(sar.Den())},
		Format:         af.PixelFormat(),
		Residency:      ResidencyCUDA,
		DevicePointers: pointers,
		handles:        handles,
	}
}

// errEndOfFile aliases demux.ErrEndOfFile for this package's own use
// (fill.go and the tests' fake packet source); it is not exported.
var errEndOfFile = demux.ErrEndOfFile
