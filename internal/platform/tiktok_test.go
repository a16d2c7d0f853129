package platform

import (
	"testing"

	"github.com/reelfetch/backend/internal/extractor"
)

func TestPickSingleFile(t *testing.T) {
	formats := []extractor.Format{
		{FormatID: "h264_540p_1-0", Ext: "mp4", VCodec: "h264", ACodec: "aac", Height: 1024, TBR: 1200},
		{FormatID: "download_addr-0", FormatNote: "watermarked", Ext: "mp4", VCodec: "h264", ACodec: "aac", Height: 720, TBR: 900},
		{FormatID: "play_addr-0", FormatNote: "No watermark", Ext: "mp4", VCodec: "h264", ACodec: "aac", Height: 576, TBR: 800},
		{FormatID: "audio", Ext: "m4a", VCodec: "none", ACodec: "aac"},
		{FormatID: "hls-1080", Ext: "ts", VCodec: "h264", ACodec: "aac", Height: 1080},
	}

	tests := []struct {
		name            string
		preferNoWM      bool
		wantID          string
		wantFound       bool
		formatsOverride []extractor.Format
	}{
		{name: "prefers download renditions", preferNoWM: true, wantID: "download_addr-0", wantFound: true},
		{name: "highest mp4 when watermark kept", preferNoWM: false, wantID: "h264_540p_1-0", wantFound: true},
		{name: "audio only has nothing to pick", formatsOverride: []extractor.Format{{FormatID: "a", ACodec: "aac", VCodec: "none"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := formats
			if tt.formatsOverride != nil {
				in = tt.formatsOverride
			}
			got, found := PickSingleFile(in, tt.preferNoWM)
			if found != tt.wantFound {
				t.Fatalf("found = %v, want %v", found, tt.wantFound)
			}
			if found && got.FormatID != tt.wantID {
				t.Errorf("picked %q, want %q", got.FormatID, tt.wantID)
			}
		})
	}
}

func TestTikTokSelector(t *testing.T) {
	if got := TikTokSelector(false); got != "best[ext=mp4]/best" {
		t.Errorf("TikTokSelector(false) = %q", got)
	}
	if got := TikTokSelector(true); got != NoWatermarkSelector {
		t.Errorf("TikTokSelector(true) = %q", got)
	}
}
