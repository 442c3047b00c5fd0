package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pulsejet/fffr/internal/logging"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	c := Default()

	if c.HWType != HardwareSoftware {
		t.Errorf("Default().HWType = %v, want HardwareSoftware", c.HWType)
	}
	if c.Format != FormatAuto {
		t.Errorf("Default().Format = %v, want FormatAuto", c.Format)
	}
	if c.BufferLength != DefaultBufferLength {
		t.Errorf("Default().BufferLength = %d, want %d", c.BufferLength, DefaultBufferLength)
	}
	if !c.OutputToHost {
		t.Errorf("Default().OutputToHost = false, want true")
	}
}

func TestEffectiveSeekThreshold(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		seekThreshold int64
		bufferLength  int
		codecDelay    int32
		want          int64
	}{
		{"explicit threshold wins", 50, 10, 4, 50},
		{"derived from delay plus buffer", 0, 10, 4, 14},
		{"derived with zero delay", 0, 10, 0, 10},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Config{SeekThreshold: tt.seekThreshold, BufferLength: tt.bufferLength}
			if got := c.EffectiveSeekThreshold(tt.codecDelay); got != tt.want {
				t.Errorf("EffectiveSeekThreshold() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHardwareDeviceType(t *testing.T) {
	t.Parallel()
	sw := Config{HWType: HardwareSoftware}
	hw := Config{HWType: HardwareCUDA}

	if sw.HardwareDeviceType() == hw.HardwareDeviceType() {
		t.Errorf("software and CUDA configs must resolve to different astiav device types")
	}
}

func TestFromFileOverlaysJSON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	if err := os.WriteFile(path, []byte(`{"bufferLength": 25, "noBufferFlush": true}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := Default()
	c.FromFile(path, logging.New(logging.Quiet))

	if c.BufferLength != 25 {
		t.Errorf("BufferLength after FromFile = %d, want 25", c.BufferLength)
	}
	if !c.NoBufferFlush {
		t.Errorf("NoBufferFlush after FromFile = false, want true")
	}
	// Fields absent from the JSON overlay must survive untouched.
	if c.Format != FormatAuto {
		t.Errorf("Format after FromFile = %v, want untouched FormatAuto", c.Format)
	}
}

func TestLoadEnvEmptyPathIsNotAnError(t *testing.T) {
	t.Parallel()
	c := Default()
	if err := c.LoadEnv(""); err != nil {
		t.Errorf("LoadEnv(\"\") = %v, want nil", err)
	}
}

func TestLoadEnvAppliesFFprobePathOverride(t *testing.T) {
	t.Setenv("FFFR_FFPROBE_PATH", "/usr/local/bin/ffprobe")
	c := Default()
	if err := c.LoadEnv(""); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if c.FFprobePath != "/usr/local/bin/ffprobe" {
		t.Errorf("FFprobePath = %q, want /usr/local/bin/ffprobe", c.FFprobePath)
	}
}
