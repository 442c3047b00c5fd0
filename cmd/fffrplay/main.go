// Command fffrplay is a minimal demo player: it walks a Stream at its
// own frame rate and blits each decoded frame into an SDL2 window,
// grounded on the windowing/update-loop shape of the UI layer's
// mpeg.Player, but driven by the frame-reader core instead of a
// one-shot cgo decode loop.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/pulsejet/fffr"
	"github.com/pulsejet/fffr/internal/config"
	"github.com/pulsejet/fffr/internal/hwpool"
	"github.com/pulsejet/fffr/internal/logging"
	"github.com/pulsejet/fffr/internal/source"
)

// resolveInput downloads arg to a local temp file first when it names
// an s3://bucket/key object, per internal/source's pre-open adapter;
// otherwise arg is already a local path.
func resolveInput(arg string, log *logging.Logger) (string, error) {
	const prefix = "s3://"
	if !strings.HasPrefix(arg, prefix) {
		return arg, nil
	}
	rest := strings.SplitN(strings.TrimPrefix(arg, prefix), "/", 2)
	if len(rest) != 2 || rest[0] == "" || rest[1] == "" {
		return "", fmt.Errorf("invalid s3 path %q, want s3://bucket/key", arg)
	}
	region := os.Getenv("AWS_DEFAULT_REGION")
	if region == "" {
		region = "us-east-1"
	}
	dir, err := os.MkdirTemp("", "fffrplay-s3-*")
	if err != nil {
		return "", fmt.Errorf("creating s3 download dir: %w", err)
	}
	return source.FetchToTemp(source.S3Object{Region: region, Bucket: rest[0], Key: rest[1]}, dir, log)
}

func main() {
	loop := flag.Bool("loop", true, "restart from the beginning at end of file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <path>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	logger := logging.New(logging.Warning)

	path, err := resolveInput(flag.Arg(0), logger)
	if err != nil {
		log.Fatalf("fffrplay: resolving input: %v", err)
	}

	cfg := config.Default()
	cfg.Format = config.FormatRGB8 // RGB24 planes, directly SDL-blittable

	pool := hwpool.New()
	stream, err := fffr.Open(path, cfg, logger, pool)
	if err != nil {
		log.Fatalf("fffrplay: opening %q: %v", path, err)
	}
	defer stream.Close()

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		log.Fatalf("fffrplay: sdl.Init: %v", err)
	}
	defer sdl.Quit()

	width, height := int32(stream.Width()), int32(stream.Height())
	window, err := sdl.CreateWindow("fffrplay", sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		width, height, sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		log.Fatalf("fffrplay: CreateWindow: %v", err)
	}
	defer window.Destroy()

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		log.Fatalf("fffrplay: CreateRenderer: %v", err)
	}
	defer renderer.Destroy()

	texture, err := renderer.CreateTexture(uint32(sdl.PIXELFORMAT_RGB24), sdl.TEXTUREACCESS_STREAMING, width, height)
	if err != nil {
		log.Fatalf("fffrplay: CreateTexture: %v", err)
	}
	defer texture.Destroy()

	player := &demoPlayer{
		stream:   stream,
		window:   window,
		renderer: renderer,
		texture:  texture,
		width:    width,
		height:   height,
		frameDur: time.Duration(float64(time.Second) / stream.FrameRate()),
		loop:     *loop,
	}
	player.run()
}

// demoPlayer paces frame delivery at the stream's nominal rate and
// uploads each one to the SDL texture, looping back to the start on
// end of file when loop is set.
type demoPlayer struct {
	stream   *fffr.Stream
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	width    int32
	height   int32
	frameDur time.Duration
	loop     bool
}

func (p *demoPlayer) run() {
	ticker := time.NewTicker(p.frameDur)
	defer ticker.Stop()

	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			if _, ok := event.(*sdl.QuitEvent); ok {
				return
			}
		}

		if !p.advanceOne() {
			return
		}

		p.renderer.Clear()
		p.renderer.Copy(p.texture, nil, nil)
		p.renderer.Present()

		<-ticker.C
	}
}

// advanceOne pulls the next frame and uploads it, restarting the
// stream at end of file when p.loop is set. It reports false once
// playback should stop for good.
func (p *demoPlayer) advanceOne() bool {
	fr, err := p.stream.GetNext()
	if err != nil {
		log.Printf("fffrplay: decode error: %v", err)
		return false
	}
	if fr == nil {
		if p.loop && p.stream.SeekFrame(0) {
			fr, err = p.stream.GetNext()
			if err != nil || fr == nil {
				return false
			}
		} else {
			return false
		}
	}

	if fr.Residency != fffr.ResidencySoftware || len(fr.Planes) == 0 {
		log.Printf("fffrplay: frame %d is not host-resident RGB, skipping", fr.Index)
		return true
	}

	plane := fr.Planes[0]
	if err := p.texture.Update(nil, plane.Data, plane.Stride); err != nil {
		log.Printf("fffrplay: texture update: %v", err)
	}
	return true
}
