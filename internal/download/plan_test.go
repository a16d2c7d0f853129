package download

import (
	"strings"
	"testing"

	"github.com/reelfetch/backend/internal/extractor"
	"github.com/reelfetch/backend/internal/platform"
)

func youtubeInfo() *extractor.Info {
	return &extractor.Info{
		Title:    "My Video!",
		Duration: 60,
		Formats: []extractor.Format{
			{FormatID: "18", Ext: "mp4", VCodec: "avc1", ACodec: "mp4a", Height: 360, TBR: 500},
			{FormatID: "136", Ext: "mp4", VCodec: "avc1", ACodec: "none", Height: 720, TBR: 1500},
			{FormatID: "248", Ext: "webm", VCodec: "vp9", ACodec: "none", Height: 1080, TBR: 2500},
			{FormatID: "139", Ext: "m4a", VCodec: "none", ACodec: "mp4a", ABR: 48},
			{FormatID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a", ABR: 128},
		},
	}
}

func TestBuildPlan(t *testing.T) {
	yt := platform.YouTubePolicy()
	tt := platform.TikTokPolicy()
	direct := platform.DirectPolicy()

	noAudio := youtubeInfo()
	noAudio.Formats = noAudio.Formats[:3]

	tests := []struct {
		name string
		info *extractor.Info
		pol  *platform.Policy
		sel  Selection
		want plan
	}{
		{
			name: "combined format is a single fetch",
			info: youtubeInfo(), pol: yt,
			sel:  Selection{FormatID: "18", MergeAudio: true},
			want: plan{mode: ModeSingle, selector: "18", ext: "mp4"},
		},
		{
			name: "video only with merge uses best audio",
			info: youtubeInfo(), pol: yt,
			sel:  Selection{FormatID: "136", MergeAudio: true},
			want: plan{mode: ModeDual, videoID: "136", videoExt: "mp4", audioID: "140", audioExt: "m4a", ext: "mp4"},
		},
		{
			name: "explicit audio format wins",
			info: youtubeInfo(), pol: yt,
			sel:  Selection{FormatID: "248", AudioFormatID: "139", MergeAudio: true},
			want: plan{mode: ModeDual, videoID: "248", videoExt: "webm", audioID: "139", audioExt: "m4a", ext: "mp4"},
		},
		{
			name: "no audio variant falls back to a combined selector",
			info: noAudio, pol: yt,
			sel:  Selection{FormatID: "136", MergeAudio: true},
			want: plan{mode: ModeSingle, selector: "136+bestaudio", merge: "mp4", ext: "mp4"},
		},
		{
			name: "video only without merge",
			info: youtubeInfo(), pol: yt,
			sel:  Selection{FormatID: "136"},
			want: plan{mode: ModeSingle, selector: "136", ext: "mp4"},
		},
		{
			name: "convert picks best audio",
			info: youtubeInfo(), pol: yt,
			sel:  Selection{ConvertTo: "mp3", BitrateKbps: 320},
			want: plan{mode: ModeConvert, audioID: "140", audioExt: "m4a", ext: "mp3", convertTo: "mp3", bitrate: 320},
		},
		{
			name: "convert uses an audio formatId",
			info: youtubeInfo(), pol: yt,
			sel:  Selection{FormatID: "139", ConvertTo: "mp3"},
			want: plan{mode: ModeConvert, audioID: "139", audioExt: "m4a", ext: "mp3", convertTo: "mp3", bitrate: 192},
		},
		{
			name: "unknown selector with merge",
			info: youtubeInfo(), pol: yt,
			sel:  Selection{FormatID: "bestvideo[height<=720]", MergeAudio: true},
			want: plan{mode: ModeSingle, selector: "bestvideo[height<=720]+bestaudio/bestvideo[height<=720]", merge: "mp4", ext: "mp4"},
		},
		{
			name: "tiktok keeps watermark on request",
			info: &extractor.Info{}, pol: tt,
			sel:  Selection{RemoveWatermark: false},
			want: plan{mode: ModeSingle, selector: "best[ext=mp4]/best", merge: "mp4", ext: "mp4"},
		},
		{
			name: "direct custom filename keeps extension",
			info: &extractor.Info{}, pol: direct,
			sel:  Selection{Filename: "lecture.webm"},
			want: plan{mode: ModeSingle, selector: "best", ext: "webm"},
		},
		{
			name: "direct custom container differs from source",
			info: &extractor.Info{Ext: "mp4"}, pol: direct,
			sel:  Selection{Filename: "lecture.mkv"},
			want: plan{mode: ModeSingle, selector: "best", ext: "mkv", rewrapFrom: "mp4"},
		},
		{
			name: "direct custom container matches source",
			info: &extractor.Info{Ext: "mp4"}, pol: direct,
			sel:  Selection{Filename: "lecture.mp4"},
			want: plan{mode: ModeSingle, selector: "best", ext: "mp4"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := buildPlan(tc.info, tc.pol, tc.sel)
			if got != tc.want {
				t.Errorf("buildPlan() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestBuildPlan_TikTokDefaultPrefersNoWatermark(t *testing.T) {
	got := buildPlan(&extractor.Info{}, platform.TikTokPolicy(), Selection{RemoveWatermark: true})
	if !strings.HasPrefix(got.selector, "download_addr-0") {
		t.Errorf("selector = %q", got.selector)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"My Video!", 100, "My_Video"},
		{"  Café   del  Mar  ", 100, "Cafe_del_Mar"},
		{"a/b\\c:d*e?f", 100, "abcdef"},
		{"日本語", 100, ""},
		{"one-two_three", 100, "one-two_three"},
		{strings.Repeat("x", 150), 100, strings.Repeat("x", 100)},
		{"abc def", 5, "abc_d"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in, tt.limit); got != tt.want {
			t.Errorf("Sanitize(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		name   string
		n      naming
		pol    *platform.Policy
		custom string
		want   string
	}{
		{"title", naming{Title: "Hello World"}, platform.YouTubePolicy(), "", "Hello_World"},
		{"fallback", naming{Title: "!!!"}, platform.FacebookPolicy(), "", "facebook_video"},
		{"tiktok", naming{Author: "dancer", Description: "my new dance #fyp"}, platform.TikTokPolicy(), "", "dancer_my_new_dance_fyp"},
		{"tiktok caps", naming{Author: strings.Repeat("a", 40), Description: strings.Repeat("b", 60)}, platform.TikTokPolicy(), "", strings.Repeat("a", 30) + "_" + strings.Repeat("b", 50)},
		{"direct custom", naming{Title: "stream"}, platform.DirectPolicy(), "My Lecture.mp4", "My_Lecture"},
		{"custom ignored elsewhere", naming{Title: "Real"}, platform.YouTubePolicy(), "Other.mp4", "Real"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := baseName(tt.n, tt.pol, tt.custom); got != tt.want {
				t.Errorf("baseName() = %q, want %q", got, tt.want)
			}
		})
	}
}
