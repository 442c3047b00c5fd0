// Package config implements the spec's "Configuration for opening a
// stream" struct (spec.md §6), JSON file loading in the teacher's
// Config.FromFile/AutoDetect style, and environment-variable
// overrides loaded via godotenv, grounded on
// Luminate-Inc-flow-frame's .env-driven settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/joho/godotenv"

	"github.com/asticode/go-astiav"
	"github.com/pulsejet/fffr/internal/logging"
)

// HardwareType selects the decode backend, per spec.md §6's
// hw_type ∈ {Software, Cuda}.
type HardwareType int

const (
	HardwareSoftware HardwareType = iota
	HardwareCUDA
)

func (h HardwareType) astiavDeviceType() astiav.HardwareDeviceType {
	if h == HardwareCUDA {
		return astiav.HardwareDeviceTypeCUDA
	}
	return astiav.HardwareDeviceTypeNone
}

// Crop mirrors filter.Crop at the config-surface level so this
// package doesn't need to import internal/filter.
type Crop struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
	Right  int `json:"right"`
}

// Scale is the target {w,h}; zero means "no scale requested."
type Scale struct {
	Width, Height int
}

// PixelFormat is the spec's closed pixel-format set (spec.md §6).
type PixelFormat int

const (
	FormatAuto PixelFormat = iota
	FormatYUV420P
	FormatYUV422P
	FormatYUV444P
	FormatNV12
	FormatRGB8
	FormatBGR8
	FormatGBR8P
	FormatRGB8P
	FormatRGB32FP
)

// DefaultBufferLength is the spec's default buffer_length.
const DefaultBufferLength = 10

// Config is the spec.md §6 "Configuration for opening a stream."
type Config struct {
	HWType         HardwareType `json:"hwType"`
	Crop           Crop         `json:"crop"`
	Scale          Scale        `json:"scale"`
	Format         PixelFormat  `json:"format"`
	BufferLength   int          `json:"bufferLength"`
	SeekThreshold  int64        `json:"seekThreshold"` // 0 => derive from codec delay + buffer length
	NoBufferFlush  bool         `json:"noBufferFlush"`
	DeviceIndex    int          `json:"deviceIndex"`
	OutputToHost   bool         `json:"outputToHost"`

	// DeviceContext is an opaque, caller-supplied (or factory-pooled)
	// hardware device handle; nil means "create/borrow one from the
	// pool for DeviceIndex." Never created by this package itself
	// (spec.md §1: "the core consumes an opaque device context but
	// does not create the device").
	DeviceContext *astiav.HardwareDeviceContext `json:"-"`

	// FFprobePath is used only by the demux fallback probe.
	FFprobePath string `json:"ffprobePath"`
}

// Default returns the spec's defaults: software decode, no crop/scale,
// auto format, buffer_length=10, host output, derived seek threshold.
func Default() Config {
	return Config{
		HWType:       HardwareSoftware,
		Format:       FormatAuto,
		BufferLength: DefaultBufferLength,
		OutputToHost: true,
	}
}

// HardwareDeviceType exposes the astiav device type for internal/decode.
func (c Config) HardwareDeviceType() astiav.HardwareDeviceType {
	return c.HWType.astiavDeviceType()
}

// FromFile loads JSON config from path, overlaying it onto the
// receiver's current values — mirroring the teacher's
// Config.FromFile(path) (log.Fatal on read/parse failure, since a
// malformed startup config file is an operator error, not a
// recoverable runtime condition).
func (c *Config) FromFile(path string, log *logging.Logger) {
	content, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("config: reading %q: %v", path, err)
	}
	if err := json.Unmarshal(content, c); err != nil {
		log.Fatalf("config: parsing %q: %v", path, err)
	}
}

// LoadEnv loads a .env file (if present) and applies environment
// overrides for fields operators typically inject at deploy time
// rather than check into a config file, grounded on
// Luminate-Inc-flow-frame's AWS-credential .env pattern. An empty
// envFile loads no file; a named file that cannot be loaded (including
// one that does not exist) is returned as an error. Missing individual
// env vars simply leave the existing value.
func (c *Config) LoadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("config: loading %q: %w", envFile, err)
		}
	}
	if v := os.Getenv("FFFR_FFPROBE_PATH"); v != "" {
		c.FFprobePath = v
	}
	return nil
}

// AutoDetectFFprobe locates ffprobe on PATH if FFprobePath wasn't set
// explicitly, mirroring the teacher's Config.AutoDetect for ffmpeg/ffprobe.
func (c *Config) AutoDetectFFprobe(log *logging.Logger) {
	if c.FFprobePath != "" {
		return
	}
	path, err := exec.LookPath("ffprobe")
	if err != nil {
		log.Warningf("config: ffprobe not found on PATH, fallback probing disabled: %v", err)
		return
	}
	c.FFprobePath = path
}

// EffectiveSeekThreshold derives the seek threshold from codec delay
// and buffer length when SeekThreshold is unset (0), per spec.md §4.5's
// "default: derived from codec delay and buffer length."
func (c Config) EffectiveSeekThreshold(codecDelay int32) int64 {
	if c.SeekThreshold > 0 {
		return c.SeekThreshold
	}
	return int64(codecDelay) + int64(c.BufferLength)
}
