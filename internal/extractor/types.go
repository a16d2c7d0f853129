package extractor

import "math"

// Info is the subset of yt-dlp's --dump-single-json output the service reads.
type Info struct {
	Type         string      `json:"_type"`
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	FullTitle    string      `json:"fulltitle"`
	Description  string      `json:"description"`
	Uploader     string      `json:"uploader"`
	UploaderID   string      `json:"uploader_id"`
	Channel      string      `json:"channel"`
	Creator      string      `json:"creator"`
	Duration     float64     `json:"duration"`
	Thumbnail    string      `json:"thumbnail"`
	Thumbnails   []Thumbnail `json:"thumbnails"`
	ViewCount    int64       `json:"view_count"`
	LikeCount    int64       `json:"like_count"`
	CommentCount int64       `json:"comment_count"`
	UploadDate   string      `json:"upload_date"`
	IsLive       bool        `json:"is_live"`
	LiveStatus   string      `json:"live_status"`
	WebpageURL   string      `json:"webpage_url"`
	ExtractorKey string      `json:"extractor_key"`
	Ext          string      `json:"ext"`
	Formats      []Format    `json:"formats"`
	Entries      []Info      `json:"entries"`
}

// Thumbnail represents a thumbnail entry
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Format is one raw stream variant as reported by yt-dlp.
type Format struct {
	FormatID       string  `json:"format_id"`
	FormatNote     string  `json:"format_note"`
	Ext            string  `json:"ext"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	TBR            float64 `json:"tbr"`
	ABR            float64 `json:"abr"`
	VBR            float64 `json:"vbr"`
	Filesize       float64 `json:"filesize"`
	FilesizeApprox float64 `json:"filesize_approx"`
	Protocol       string  `json:"protocol"`
	URL            string  `json:"url"`
}

// Primary returns the item a single-item request resolved to. Carousels
// and multi-video posts come back as playlists; the first entry is the
// one that would be fetched.
func (i *Info) Primary() *Info {
	if i.Type == "playlist" && len(i.Entries) > 0 {
		p := i.Entries[0]
		if p.Title == "" {
			p.Title = i.Title
		}
		if p.Uploader == "" {
			p.Uploader = i.Uploader
		}
		if p.Description == "" {
			p.Description = i.Description
		}
		return &p
	}
	return i
}

// Author returns the best available uploader name.
func (i *Info) Author() string {
	for _, v := range []string{i.Uploader, i.Channel, i.Creator, i.UploaderID} {
		if v != "" {
			return v
		}
	}
	return ""
}

// BestThumbnail prefers the top-level thumbnail and falls back to the
// last (largest) entry of the list.
func (i *Info) BestThumbnail() string {
	if i.Thumbnail != "" {
		return i.Thumbnail
	}
	if n := len(i.Thumbnails); n > 0 {
		return i.Thumbnails[n-1].URL
	}
	return ""
}

// Live reports whether the item is a stream that is currently live.
func (i *Info) Live() bool {
	return i.IsLive || i.LiveStatus == "is_live"
}

// HasVideo reports whether any format carries a video stream. Entries
// with no format list at all are single-file posts and count as video
// when yt-dlp reports a video extension.
func (i *Info) HasVideo() bool {
	if len(i.Formats) == 0 {
		switch i.Ext {
		case "mp4", "webm", "mkv", "mov", "m4v":
			return true
		}
		return false
	}
	for _, f := range i.Formats {
		if f.HasVideo() {
			return true
		}
	}
	return false
}

func codecPresent(c string) bool {
	return c != "" && c != "none"
}

// HasVideo reports whether the variant has a picture.
func (f Format) HasVideo() bool {
	return f.Height > 0 && f.VCodec != "none"
}

// HasAudio reports whether the variant carries sound.
func (f Format) HasAudio() bool {
	return codecPresent(f.ACodec)
}

// IsAudioOnly reports whether the variant is an audio stream without picture.
func (f Format) IsAudioOnly() bool {
	return f.HasAudio() && (!codecPresent(f.VCodec) || f.Height == 0)
}

// IsVideoOnly reports whether the variant needs a separate audio stream.
func (f Format) IsVideoOnly() bool {
	return f.HasVideo() && f.ACodec == "none"
}

// Size returns the exact filesize if known, else the approximation.
func (f Format) Size() int64 {
	if f.Filesize > 0 {
		return int64(f.Filesize)
	}
	return int64(f.FilesizeApprox)
}

// Bitrate returns the audio bitrate in kbps, falling back to the total bitrate.
func (f Format) Bitrate() float64 {
	if f.ABR > 0 {
		return f.ABR
	}
	return f.TBR
}

// RoundedBitrate is Bitrate rounded to a whole kbps figure.
func (f Format) RoundedBitrate() int {
	return int(math.Round(f.Bitrate()))
}
