package encode

import "testing"

func TestPresetString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		preset Preset
		want   string
	}{
		{PresetUltrafast, "ultrafast"},
		{PresetMedium, "medium"},
		{PresetPlacebo, "placebo"},
		{Preset(-1), "medium"},
		{Preset(100), "medium"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			if got := tt.preset.String(); got != tt.want {
				t.Errorf("Preset(%d).String() = %q, want %q", tt.preset, got, tt.want)
			}
		})
	}
}

func TestCRFClampsToRangeAndScalesInversely(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		codec   Codec
		quality int
		want    int
	}{
		{"max quality maps to crf 0", CodecH264, 255, 0},
		{"min quality maps to top crf", CodecH264, 0, 51},
		{"below-range quality clamps to 0", CodecH264, -10, 51},
		{"above-range quality clamps to 255", CodecH264, 9000, 0},
		{"h265 shares h264's range", CodecH265, 255, 0},
		{"midpoint quality", CodecH264, 130, (255 - 130) / 5},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CRF(tt.codec, tt.quality); got != tt.want {
				t.Errorf("CRF(%v, %d) = %d, want %d", tt.codec, tt.quality, got, tt.want)
			}
		})
	}
}
