package metadata

import (
	"fmt"
	"sort"

	"github.com/reelfetch/backend/internal/extractor"
	"github.com/reelfetch/backend/internal/platform"
)

// FormatDescriptor is one normalized stream variant offered to clients.
type FormatDescriptor struct {
	FormatID string `json:"formatId"`
	// Itag duplicates FormatID for older clients.
	Itag      string  `json:"itag"`
	Quality   string  `json:"quality"`
	Container string  `json:"container"`
	HasVideo  bool    `json:"hasVideo"`
	HasAudio  bool    `json:"hasAudio"`
	Filesize  int64   `json:"filesize,omitempty"`
	Type      string  `json:"type"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	FPS       float64 `json:"fps,omitempty"`
	VCodec    string  `json:"vcodec,omitempty"`
	ACodec    string  `json:"acodec,omitempty"`
	Bitrate   int     `json:"audioBitrate,omitempty"`
}

// Recommended is the single file suggested for platforms that serve
// progressive mp4s.
type Recommended struct {
	FormatID string `json:"formatId"`
	Quality  string `json:"quality"`
	Filesize int64  `json:"filesize,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// Normalized is the outcome of Normalize.
type Normalized struct {
	Formats         []FormatDescriptor
	BestAudioFormat string
}

// Normalize partitions raw variants into video and audio buckets, orders
// and deduplicates each, and caps them per the platform policy. Video
// entries end up with unique labels and strictly descending heights.
func Normalize(raw []extractor.Format, pol *platform.Policy) Normalized {
	var video, audio []extractor.Format
	for _, f := range raw {
		switch {
		case f.HasVideo():
			video = append(video, f)
		case f.IsAudioOnly():
			audio = append(audio, f)
		}
	}

	sort.SliceStable(video, func(i, j int) bool {
		a, b := video[i], video[j]
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		if a.FPS != b.FPS {
			return a.FPS > b.FPS
		}
		return a.TBR > b.TBR
	})
	sort.SliceStable(audio, func(i, j int) bool {
		return audio[i].Bitrate() > audio[j].Bitrate()
	})

	var out Normalized
	seen := make(map[string]bool)
	for _, f := range video {
		if countType(out.Formats, "video") >= pol.VideoCap {
			break
		}
		label := pol.QualityLabel(f.Height)
		if seen[label] {
			continue
		}
		seen[label] = true
		out.Formats = append(out.Formats, videoDescriptor(f, label))
	}

	if len(out.Formats) == 0 {
		if f, ok := firstWithVideoCodec(raw); ok {
			out.Formats = append(out.Formats, videoDescriptor(f, "Best Available"))
		}
	}

	seenAudio := make(map[string]bool)
	for _, f := range audio {
		if countType(out.Formats, "audio") >= pol.AudioCap {
			break
		}
		label := audioLabel(f)
		key := label + "|" + f.Ext
		if seenAudio[key] {
			continue
		}
		seenAudio[key] = true
		out.Formats = append(out.Formats, FormatDescriptor{
			FormatID:  f.FormatID,
			Itag:      f.FormatID,
			Quality:   label,
			Container: f.Ext,
			HasAudio:  true,
			Filesize:  f.Size(),
			Type:      "audio",
			ACodec:    f.ACodec,
			Bitrate:   f.RoundedBitrate(),
		})
	}

	// Picked from the whole bucket so it survives the cap.
	if len(audio) > 0 {
		out.BestAudioFormat = audio[0].FormatID
	}
	return out
}

// Recommend picks the single progressive file for platforms that prefer
// one. TikTok favors renditions without the watermark.
func Recommend(raw []extractor.Format, pol *platform.Policy) *Recommended {
	if !pol.PreferSingleFile {
		return nil
	}
	f, ok := platform.PickSingleFile(raw, pol.Platform == platform.TikTok)
	if !ok {
		if len(raw) == 0 {
			return &Recommended{FormatID: "best", Quality: "Best Quality"}
		}
		f = raw[len(raw)-1]
	}
	rec := &Recommended{
		FormatID: f.FormatID,
		Quality:  "Best Quality",
		Filesize: f.Size(),
		Width:    f.Width,
		Height:   f.Height,
	}
	if f.Height > 0 {
		rec.Quality = pol.QualityLabel(f.Height)
	}
	return rec
}

func videoDescriptor(f extractor.Format, label string) FormatDescriptor {
	container := f.Ext
	if container == "" {
		container = "mp4"
	}
	return FormatDescriptor{
		FormatID:  f.FormatID,
		Itag:      f.FormatID,
		Quality:   label,
		Container: container,
		HasVideo:  true,
		HasAudio:  f.HasAudio(),
		Filesize:  f.Size(),
		Type:      "video",
		Width:     f.Width,
		Height:    f.Height,
		FPS:       f.FPS,
		VCodec:    f.VCodec,
		ACodec:    f.ACodec,
	}
}

func audioLabel(f extractor.Format) string {
	if br := f.RoundedBitrate(); br > 0 {
		return fmt.Sprintf("%dkbps", br)
	}
	return "audio"
}

func firstWithVideoCodec(raw []extractor.Format) (extractor.Format, bool) {
	for _, f := range raw {
		if f.VCodec != "none" && !f.IsAudioOnly() {
			return f, true
		}
	}
	return extractor.Format{}, false
}

func countType(formats []FormatDescriptor, typ string) int {
	n := 0
	for _, f := range formats {
		if f.Type == typ {
			n++
		}
	}
	return n
}
