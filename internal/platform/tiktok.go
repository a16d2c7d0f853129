package platform

import (
	"strings"

	"github.com/reelfetch/backend/internal/extractor"
)

// NoWatermarkSelector asks for TikTok's direct download renditions, which
// come without the overlay, before falling back to the best mp4.
const NoWatermarkSelector = "download_addr-0/download_addr-1/download_addr-2/download_addr-3/" +
	"download-0/download-1/download-2/download/" +
	"best[ext=mp4]/bestvideo[ext=mp4]+bestaudio/best"

// WatermarkedSelector is used when the caller keeps the watermark.
const WatermarkedSelector = "best[ext=mp4]/best"

const tiktokExtractorArgs = "tiktok:api_hostname=api16-normal-c-useast1a.tiktokv.com;tiktok:app_version=34.1.2"

// TikTokSelector returns the format selector for the watermark choice.
func TikTokSelector(removeWatermark bool) string {
	if removeWatermark {
		return NoWatermarkSelector
	}
	return WatermarkedSelector
}

// isNoWatermark matches TikTok's labels for download renditions. The
// labels come from upstream and may change; callers fall back to the
// selector chain when nothing matches.
func isNoWatermark(f extractor.Format) bool {
	note := strings.ToLower(f.FormatNote)
	id := strings.ToLower(f.FormatID)
	return strings.Contains(note, "no watermark") ||
		strings.Contains(note, "download") ||
		strings.Contains(id, "download")
}

// PickSingleFile chooses the recommended progressive mp4 among formats.
// When preferNoWatermark is set, download renditions win over
// higher-resolution watermarked ones.
func PickSingleFile(formats []extractor.Format, preferNoWatermark bool) (extractor.Format, bool) {
	var best extractor.Format
	found := false
	bestClean := false

	for _, f := range formats {
		if !f.HasVideo() || f.ACodec == "none" {
			continue
		}
		if f.Ext != "" && f.Ext != "mp4" {
			continue
		}
		clean := preferNoWatermark && isNoWatermark(f)
		switch {
		case !found:
		case clean && !bestClean:
		case clean == bestClean && better(f, best):
		default:
			continue
		}
		best, found, bestClean = f, true, clean
	}
	return best, found
}

func better(a, b extractor.Format) bool {
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	return a.TBR > b.TBR
}
