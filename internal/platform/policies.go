package platform

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/reelfetch/backend/internal/extractor"
)

const mib = 1 << 20

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// YouTubePolicy covers youtube.com (any subdomain), youtu.be and the
// privacy-enhanced embed domain.
func YouTubePolicy() *Policy {
	return &Policy{
		Platform:    YouTube,
		DisplayName: "YouTube",
		Patterns: patterns(
			`^([a-z0-9-]+\.)*youtube\.com(:\d+)?/`,
			`^([a-z0-9-]+\.)*youtube-nocookie\.com(:\d+)?/`,
			`^youtu\.be(:\d+)?/[\w-]+`,
		),
		VideoCap:          5,
		AudioCap:          5,
		DefaultEstimate:   500 * mib,
		Timeout:           5 * time.Minute,
		DefaultFormat:     "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
		RequiresFormat:    true,
		MergeOutputFormat: "mp4",
		FallbackTitle:     "YouTube Video",
		FilenameFallback:  "video",
		contentType: func(u *url.URL) string {
			path := strings.ToLower(u.Path)
			switch {
			case strings.HasPrefix(path, "/shorts/"):
				return "short"
			case strings.HasPrefix(path, "/live/"):
				return "live"
			default:
				return "video"
			}
		},
		decline: func(c Content) string {
			if c.IsLive {
				return "Live streams cannot be downloaded while they are live. Try again after the stream ends."
			}
			return ""
		},
		messages: map[error]Message{
			extractor.ErrPrivate:       {"This video is private", http.StatusForbidden},
			extractor.ErrAgeRestricted: {"This video is age-restricted. Valid login cookies are required.", http.StatusForbidden},
			extractor.ErrLoginRequired: {"YouTube requires sign-in for this video. Please refresh cookies.txt.", http.StatusUnauthorized},
		},
	}
}

// FacebookPolicy covers facebook.com, fb.com and fb.watch share links.
func FacebookPolicy() *Policy {
	return &Policy{
		Platform:    Facebook,
		DisplayName: "Facebook",
		Patterns: patterns(
			`^([a-z0-9-]+\.)*facebook\.com/`,
			`^([a-z0-9-]+\.)*fb\.com/`,
			`^fb\.watch/[\w-]+`,
		),
		VideoCap:          5,
		AudioCap:          3,
		DefaultEstimate:   300 * mib,
		Timeout:           5 * time.Minute,
		DefaultFormat:     "best[ext=mp4]/best",
		RequiresFormat:    true,
		MergeOutputFormat: "mp4",
		FallbackTitle:     "Facebook Video",
		FilenameFallback:  "facebook_video",
		contentType: func(u *url.URL) string {
			if strings.Contains(strings.ToLower(u.Path), "/reel") {
				return "reel"
			}
			return "video"
		},
		qualityLabel: func(height int) string {
			switch {
			case height >= 1080:
				return fmt.Sprintf("%dp (Full HD)", height)
			case height >= 720:
				return fmt.Sprintf("%dp (HD)", height)
			case height >= 480:
				return fmt.Sprintf("%dp (SD)", height)
			default:
				return fmt.Sprintf("%dp", height)
			}
		},
		decline: func(c Content) string {
			if !c.HasVideo {
				return "No downloadable video found in this Facebook post"
			}
			return ""
		},
		messages: map[error]Message{
			extractor.ErrPrivate:       {"This video is private or requires login", http.StatusForbidden},
			extractor.ErrLoginRequired: {"This video is private or requires login", http.StatusForbidden},
			extractor.ErrUnavailable:   {"Video unavailable or removed", http.StatusNotFound},
			extractor.ErrGeoRestricted: {"This video is not available in your region", http.StatusForbidden},
			extractor.ErrAgeRestricted: {"This video has age restrictions", http.StatusForbidden},
		},
	}
}

// InstagramPolicy covers posts, reels, IGTV and stories.
func InstagramPolicy() *Policy {
	return &Policy{
		Platform:    Instagram,
		DisplayName: "Instagram",
		Patterns: patterns(
			`^([a-z0-9-]+\.)*instagram\.com/(p|reel|reels|tv|stories)/`,
			`^([a-z0-9-]+\.)*instagram\.com/[\w.]+/(p|reel)/`,
			`^(www\.)?instagr\.am/(p|reel)/`,
		),
		VideoCap:          5,
		AudioCap:          3,
		DefaultEstimate:   150 * mib,
		Timeout:           3 * time.Minute,
		DefaultFormat:     "best[ext=mp4]/best",
		PreferSingleFile:  true,
		MergeOutputFormat: "mp4",
		FallbackTitle:     "Instagram Post",
		FilenameFallback:  "instagram_video",
		contentType: func(u *url.URL) string {
			path := strings.ToLower(u.Path)
			switch {
			case strings.Contains(path, "/reel/"), strings.Contains(path, "/reels/"):
				return "reel"
			case strings.Contains(path, "/tv/"):
				return "igtv"
			case strings.Contains(path, "/stories/"):
				return "story"
			default:
				return "post"
			}
		},
		decline: func(c Content) string {
			if c.ContentType == "story" && !c.Authenticated {
				return "Instagram stories require login cookies. Please add cookies.txt for authentication."
			}
			if !c.HasVideo {
				return "This Instagram post contains only images. Only video posts can be downloaded."
			}
			return ""
		},
		messages: map[error]Message{
			extractor.ErrPrivate:       {"This is a private Instagram post. Login cookies required.", http.StatusForbidden},
			extractor.ErrLoginRequired: {"Instagram requires login. Please add cookies.txt for authentication.", http.StatusUnauthorized},
			extractor.ErrNoVideo:       {"This Instagram post contains only images. Only video posts can be downloaded.", http.StatusUnprocessableEntity},
		},
	}
}

// TikTokPolicy covers full video links and the vm./vt. share shorteners.
func TikTokPolicy() *Policy {
	return &Policy{
		Platform:    TikTok,
		DisplayName: "TikTok",
		Patterns: patterns(
			`^([a-z0-9-]+\.)*tiktok\.com/@[\w.-]+/video/\d+`,
			`^(vm|vt)\.tiktok\.com/[\w-]+`,
			`^([a-z0-9-]+\.)*tiktok\.com/t/[\w-]+`,
			`^([a-z0-9-]+\.)*tiktok\.com/.*video/\d+`,
		),
		VideoCap:          5,
		AudioCap:          3,
		DefaultEstimate:   100 * mib,
		Timeout:           2 * time.Minute,
		DefaultFormat:     NoWatermarkSelector,
		PreferSingleFile:  true,
		MergeOutputFormat: "mp4",
		ExtractorArgs:     tiktokExtractorArgs,
		FallbackTitle:     "TikTok Video",
		FilenameFallback:  "tiktok_video",
		qualityLabel: func(height int) string {
			if height >= 720 {
				return fmt.Sprintf("%dp HD", height)
			}
			return fmt.Sprintf("%dp", height)
		},
		decline: func(c Content) string {
			if !c.HasVideo {
				return "This TikTok is a photo slideshow, which is not supported."
			}
			return ""
		},
		messages: map[error]Message{
			extractor.ErrPrivate:       {"This TikTok video is private or restricted.", http.StatusForbidden},
			extractor.ErrLoginRequired: {"This TikTok video is private or restricted.", http.StatusForbidden},
			extractor.ErrUnavailable:   {"This TikTok video is unavailable or has been removed.", http.StatusNotFound},
			extractor.ErrGeoRestricted: {"This video is not available in your region.", http.StatusForbidden},
			extractor.ErrRateLimited:   {"Too many requests. Please wait a moment and try again.", http.StatusTooManyRequests},
		},
	}
}

// TwitterPolicy covers twitter.com and x.com status links.
func TwitterPolicy() *Policy {
	return &Policy{
		Platform:    Twitter,
		DisplayName: "Twitter",
		Patterns: patterns(
			`^([a-z0-9-]+\.)*(twitter|x)\.com/\w+/status(es)?/\d+`,
			`^([a-z0-9-]+\.)*(twitter|x)\.com/i/status/\d+`,
		),
		VideoCap:          5,
		AudioCap:          4,
		DefaultEstimate:   200 * mib,
		Timeout:           3 * time.Minute,
		DefaultFormat:     "best[ext=mp4]/best",
		PreferSingleFile:  true,
		MergeOutputFormat: "mp4",
		FallbackTitle:     "Twitter Video",
		FilenameFallback:  "twitter_video",
		contentType: func(u *url.URL) string {
			return "post"
		},
		decline: func(c Content) string {
			if !c.HasVideo {
				return "This post does not contain a video."
			}
			return ""
		},
		messages: map[error]Message{
			extractor.ErrPrivate:       {"This post is protected or requires login.", http.StatusForbidden},
			extractor.ErrLoginRequired: {"This post is protected or requires login.", http.StatusForbidden},
			extractor.ErrUnavailable:   {"This post is unavailable or has been deleted.", http.StatusNotFound},
			extractor.ErrNoVideo:       {"This post does not contain a video.", http.StatusUnprocessableEntity},
		},
	}
}

// DirectPolicy covers raw stream URLs. It is always checked last.
func DirectPolicy() *Policy {
	return &Policy{
		Platform:    Direct,
		DisplayName: "Direct",
		Patterns: patterns(
			`^([a-z0-9-]+\.)*googlevideo\.com(:\d+)?/`,
			`^([a-z0-9-]+\.)*ytimg\.com(:\d+)?/`,
			`\.(mp4|webm|mkv|mov|m4v|m3u8)$`,
		),
		VideoCap:          5,
		AudioCap:          3,
		DefaultEstimate:   500 * mib,
		Timeout:           10 * time.Minute,
		DefaultFormat:     "best",
		PreferSingleFile:  true,
		MergeOutputFormat: "",
		FallbackTitle:     "Direct Download",
		FilenameFallback:  "download",
		contentType: func(u *url.URL) string {
			return "stream"
		},
	}
}
