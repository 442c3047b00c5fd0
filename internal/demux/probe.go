package demux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult is the subset of ffprobe's JSON output this package uses
// to fill in Demuxer.TotalFrames/TotalDurationUS when astiav's own
// metadata yields neither, grounded on the teacher's Manager.ffprobe.
type ProbeResult struct {
	Width, Height int
	DurationUS    int64
	FrameRateNum  int64
	FrameRateDen  int64
	CodecName     string
	BitRate       int64
}

// Probe shells out to ffprobe, exactly like the teacher's
// Manager.ffprobe, for cases where astiav's own metadata is
// insufficient. This is never the primary path (see
// Demuxer.resolveTotals); it exists only to supply a second opinion
// when the container and stream both fail to report anything usable.
func Probe(ffprobePath, path string) (*ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format:stream",
		"-select_streams", "v",
		"-of", "json",
		path,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errors.New("demux: ffprobe failed: " + stderr.String())
	}

	var out struct {
		Streams []struct {
			Width     int    `json:"width"`
			Height    int    `json:"height"`
			Duration  string `json:"duration"`
			FrameRate string `json:"avg_frame_rate"`
			CodecName string `json:"codec_name"`
			BitRate   string `json:"bit_rate"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, err
	}
	if len(out.Streams) == 0 {
		return nil, errors.New("demux: ffprobe found no video streams")
	}

	s := out.Streams[0]
	var durationSeconds float64
	if s.Duration != "" {
		durationSeconds, _ = strconv.ParseFloat(s.Duration, 64)
	} else if out.Format.Duration != "" {
		durationSeconds, _ = strconv.ParseFloat(out.Format.Duration, 64)
	}

	num, den := int64(30), int64(1)
	if parts := strings.Split(s.FrameRate, "/"); len(parts) == 2 {
		if n, err := strconv.ParseInt(parts[0], 10, 64); err == nil {
			if d, err := strconv.ParseInt(parts[1], 10, 64); err == nil && d != 0 {
				num, den = n, d
			}
		}
	}

	bitRate, _ := strconv.ParseInt(s.BitRate, 10, 64)

	return &ProbeResult{
		Width:        s.Width,
		Height:       s.Height,
		DurationUS:   int64(durationSeconds * 1_000_000),
		FrameRateNum: num,
		FrameRateDen: den,
		CodecName:    s.CodecName,
		BitRate:      bitRate,
	}, nil
}
