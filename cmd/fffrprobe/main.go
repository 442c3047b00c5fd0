// Command fffrprobe opens a media file with the frame-reader core and
// prints the totals a caller would otherwise have to decode a stream
// to discover: frame count, duration, frame rate, and output shape.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

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
	dir, err := os.MkdirTemp("", "fffrprobe-s3-*")
	if err != nil {
		return "", fmt.Errorf("creating s3 download dir: %w", err)
	}
	return source.FetchToTemp(source.S3Object{Region: region, Bucket: rest[0], Key: rest[1]}, dir, log)
}

func main() {
	var (
		hardware  = flag.Bool("hw", false, "decode on CUDA instead of software")
		device    = flag.Int("device", 0, "CUDA device index, when -hw is set")
		verbosity = flag.Int("v", int(logging.Info), "log verbosity (0=Quiet .. 7=Debug)")
		envFile   = flag.String("env", "", "optional .env file with FFFR_* overrides")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <path>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	log := logging.New(logging.Level(*verbosity))

	cfg := config.Default()
	if *hardware {
		cfg.HWType = config.HardwareCUDA
		cfg.DeviceIndex = *device
	}
	if err := cfg.LoadEnv(*envFile); err != nil {
		log.Fatalf("fffrprobe: %v", err)
	}
	cfg.AutoDetectFFprobe(log)

	path, err := resolveInput(flag.Arg(0), log)
	if err != nil {
		log.Fatalf("fffrprobe: resolving input: %v", err)
	}

	pool := hwpool.New()
	stream, err := fffr.Open(path, cfg, log, pool)
	if err != nil {
		log.Fatalf("fffrprobe: opening %q: %v", path, err)
	}
	defer stream.Close()

	fmt.Printf("path:          %s\n", path)
	fmt.Printf("width:         %d\n", stream.Width())
	fmt.Printf("height:        %d\n", stream.Height())
	fmt.Printf("pixel format:  %v\n", stream.PixelFormat())
	fmt.Printf("frame rate:    %g\n", stream.FrameRate())
	fmt.Printf("frame size:    %d bytes\n", stream.FrameSizeBytes())

	if mf, ok := stream.MaxFrames(); ok {
		fmt.Printf("total frames:  %d\n", mf)
	} else {
		fmt.Printf("total frames:  unknown\n")
	}

	if du, ok := stream.DurationUS(); ok {
		fmt.Printf("duration:      %.3fs\n", float64(du)/1e6)
	} else {
		fmt.Printf("duration:      unknown\n")
	}

	first, err := stream.PeekNext()
	if err != nil {
		log.Errorf("fffrprobe: reading first frame: %v", err)
		os.Exit(1)
	}
	if first != nil {
		fmt.Printf("first frame:   index=%d pts=%dus\n", first.Index, first.PTS)
	}
}
