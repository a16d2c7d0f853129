package platform

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/reelfetch/backend/internal/extractor"
)

// Platform identifies the site a URL belongs to
type Platform string

const (
	YouTube   Platform = "youtube"
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	TikTok    Platform = "tiktok"
	Twitter   Platform = "twitter"
	Direct    Platform = "direct"
	Unknown   Platform = "unknown"
)

// Parse maps a path segment such as "tiktok" to a Platform.
func Parse(s string) (Platform, bool) {
	switch p := Platform(strings.ToLower(s)); p {
	case YouTube, Facebook, Instagram, TikTok, Twitter, Direct:
		return p, true
	}
	return Unknown, false
}

// Content is what the resolver learned about an item, used to decide
// whether a platform integration handles it.
type Content struct {
	ContentType   string
	IsLive        bool
	HasVideo      bool
	Authenticated bool
}

// Message is a user facing error text with the HTTP status it is served with.
type Message struct {
	Text   string
	Status int
}

// Policy holds everything that differs between platforms. One generic
// resolver and orchestrator are parameterized by it.
type Policy struct {
	Platform    Platform
	DisplayName string
	Patterns    []*regexp.Regexp

	VideoCap        int
	AudioCap        int
	DefaultEstimate int64
	Timeout         time.Duration

	// DefaultFormat is used when the client does not pick a format.
	DefaultFormat  string
	RequiresFormat bool
	// PreferSingleFile marks platforms that serve progressive mp4s; the
	// resolver recommends one file instead of a merge.
	PreferSingleFile  bool
	MergeOutputFormat string
	ExtractorArgs     string

	FallbackTitle    string
	FilenameFallback string

	contentType  func(u *url.URL) string
	qualityLabel func(height int) string
	decline      func(c Content) string
	messages     map[error]Message
}

// Matches reports whether the URL belongs to this platform. The subject
// is the lowercased host followed by the path.
func (p *Policy) Matches(u *url.URL) bool {
	subject := strings.ToLower(u.Host) + u.EscapedPath()
	for _, re := range p.Patterns {
		if re.MatchString(subject) {
			return true
		}
	}
	return false
}

// ContentType classifies the URL path (video, short, reel, story, ...).
func (p *Policy) ContentType(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || p.contentType == nil {
		return "video"
	}
	return p.contentType(u)
}

// QualityLabel renders a height as the label shown to users.
func (p *Policy) QualityLabel(height int) string {
	if p.qualityLabel != nil {
		return p.qualityLabel(height)
	}
	return fmt.Sprintf("%dp", height)
}

// Decline returns a non-empty reason when the platform integration does
// not handle this content.
func (p *Policy) Decline(c Content) string {
	if p.decline == nil {
		return ""
	}
	return p.decline(c)
}

// Describe translates an extractor failure into a short, platform
// specific message and HTTP status.
func (p *Policy) Describe(err error) Message {
	for sentinel, msg := range p.messages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	for sentinel, msg := range defaultMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return Message{Text: fmt.Sprintf("Failed to fetch %s video information", p.DisplayName), Status: http.StatusBadGateway}
}

var defaultMessages = map[error]Message{
	extractor.ErrNotInstalled:    {"Video extractor is not installed on the server", http.StatusServiceUnavailable},
	extractor.ErrUnsupportedURL:  {"This URL is not supported", http.StatusBadRequest},
	extractor.ErrUnavailable:     {"Video unavailable or removed", http.StatusNotFound},
	extractor.ErrPrivate:         {"This video is private", http.StatusForbidden},
	extractor.ErrAgeRestricted:   {"This video has age restrictions", http.StatusForbidden},
	extractor.ErrGeoRestricted:   {"This video is not available in your region", http.StatusForbidden},
	extractor.ErrLoginRequired:   {"This video requires login. Please refresh cookies.txt.", http.StatusUnauthorized},
	extractor.ErrRateLimited:     {"Too many requests. Please wait a moment and try again.", http.StatusTooManyRequests},
	extractor.ErrNoVideo:         {"No downloadable video found at this URL", http.StatusUnprocessableEntity},
	extractor.ErrNetwork:         {"Network error while contacting the platform", http.StatusBadGateway},
	extractor.ErrMalformedOutput: {"Received malformed data from the video extractor", http.StatusBadGateway},
}

// ValidURL reports whether raw is an absolute http(s) URL with a host.
func ValidURL(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if u.Hostname() == "" {
		return nil, false
	}
	return u, true
}
