package download

import (
	"strings"

	"github.com/reelfetch/backend/internal/extractor"
	"github.com/reelfetch/backend/internal/metadata"
	"github.com/reelfetch/backend/internal/platform"
	"github.com/reelfetch/backend/internal/transcoder"
)

// plan is the fetch strategy for one job
type plan struct {
	mode Mode

	// single: selector handed to the extractor and, for combined
	// selectors, the container it muxes into.
	selector string
	merge    string

	// dual and convert
	videoID  string
	videoExt string
	audioID  string
	audioExt string

	// ext is the artifact extension.
	ext string
	// rewrapFrom is the container a single fetch produces when it differs
	// from a client chosen ext; the streams are then copied into ext.
	rewrapFrom string

	convertTo string
	bitrate   int
}

func findFormat(formats []extractor.Format, id string) (extractor.Format, bool) {
	for _, f := range formats {
		if f.FormatID == id {
			return f, true
		}
	}
	return extractor.Format{}, false
}

func extOr(ext, fallback string) string {
	if ext == "" {
		return fallback
	}
	return ext
}

// buildPlan decides how the selection is fetched.
func buildPlan(info *extractor.Info, pol *platform.Policy, sel Selection) plan {
	formats := info.Formats
	formatID := strings.TrimSpace(sel.FormatID)
	mergeExt := extOr(pol.MergeOutputFormat, "mp4")

	if sel.ConvertTo != "" {
		return convertPlan(formats, pol, sel, formatID)
	}

	if formatID == "" {
		selector := pol.DefaultFormat
		if pol.Platform == platform.TikTok {
			selector = platform.TikTokSelector(sel.RemoveWatermark)
		}
		if selector == "" {
			selector = "best"
		}
		return withCustomExt(plan{mode: ModeSingle, selector: selector, merge: pol.MergeOutputFormat, ext: mergeExt}, info.Ext, pol, sel)
	}

	f, known := findFormat(formats, formatID)
	if !known {
		// A selector expression or an id the listing did not include.
		p := plan{mode: ModeSingle, selector: formatID, ext: mergeExt}
		switch {
		case strings.Contains(formatID, "+"):
			p.merge = mergeExt
		case sel.MergeAudio:
			p.selector = formatID + "+bestaudio/" + formatID
			p.merge = mergeExt
		}
		return withCustomExt(p, info.Ext, pol, sel)
	}

	if f.IsVideoOnly() && sel.MergeAudio {
		audioID := strings.TrimSpace(sel.AudioFormatID)
		if audioID == "" {
			audioID = metadata.Normalize(formats, pol).BestAudioFormat
		}
		a, ok := findFormat(formats, audioID)
		if audioID == "" || (ok && !a.HasAudio()) {
			// No usable audio-only variant: let the extractor pair the
			// video with whatever audio it can find.
			return plan{
				mode:     ModeSingle,
				selector: formatID + "+bestaudio",
				merge:    "mp4",
				ext:      "mp4",
			}
		}
		return plan{
			mode:     ModeDual,
			videoID:  formatID,
			videoExt: extOr(f.Ext, "mp4"),
			audioID:  audioID,
			audioExt: extOr(a.Ext, "m4a"),
			ext:      "mp4",
		}
	}

	return withCustomExt(plan{mode: ModeSingle, selector: formatID, ext: extOr(f.Ext, "mp4")}, f.Ext, pol, sel)
}

func convertPlan(formats []extractor.Format, pol *platform.Policy, sel Selection, formatID string) plan {
	audioID := strings.TrimSpace(sel.AudioFormatID)
	if audioID == "" && formatID != "" {
		if f, ok := findFormat(formats, formatID); ok && f.HasAudio() {
			audioID = formatID
		}
	}
	if audioID == "" {
		audioID = metadata.Normalize(formats, pol).BestAudioFormat
	}
	audioExt := "m4a"
	if a, ok := findFormat(formats, audioID); ok {
		audioExt = extOr(a.Ext, audioExt)
	}
	if audioID == "" {
		audioID = "bestaudio/best"
	}

	bitrate := sel.BitrateKbps
	if bitrate <= 0 {
		bitrate = transcoder.DefaultAudioBitrate
	}
	return plan{
		mode:      ModeConvert,
		audioID:   audioID,
		audioExt:  audioExt,
		ext:       sel.ConvertTo,
		convertTo: sel.ConvertTo,
		bitrate:   bitrate,
	}
}

// withCustomExt keeps the extension of a custom direct-download filename.
// srcExt is the container the extractor reports for the selection.
func withCustomExt(p plan, srcExt string, pol *platform.Policy, sel Selection) plan {
	if pol.Platform != platform.Direct {
		return p
	}
	ext := customExt(sel.Filename)
	if ext == "" {
		return p
	}
	if src := strings.ToLower(srcExt); src != "" && src != ext {
		p.rewrapFrom = src
	}
	p.ext = ext
	return p
}
