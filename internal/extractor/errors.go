package extractor

import (
	"errors"
	"io/fs"
	"os/exec"
	"strings"
)

var (
	ErrNotInstalled     = errors.New("yt-dlp not found")
	ErrUnsupportedURL   = errors.New("url not supported")
	ErrUnavailable      = errors.New("video unavailable")
	ErrPrivate          = errors.New("video is private")
	ErrAgeRestricted    = errors.New("content is age-restricted")
	ErrGeoRestricted    = errors.New("content is not available in this region")
	ErrLoginRequired    = errors.New("login required")
	ErrRateLimited      = errors.New("rate limited by platform")
	ErrNoVideo          = errors.New("no video in post")
	ErrNetwork          = errors.New("network error")
	ErrNoSpace          = errors.New("no space left on device")
	ErrMalformedOutput  = errors.New("malformed extractor output")
	ErrExtractionFailed = errors.New("extraction failed")
)

// Error wraps a failed yt-dlp invocation with its URL and stderr.
type Error struct {
	URL     string
	Message string
	Stderr  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

type errorRule struct {
	needles []string
	err     error
	message string
}

// Order matters: "rate-limit reached or login required" must land on
// rate limiting before the login rule sees it.
var errorRules = []errorRule{
	{[]string{"no space left on device", "errno 28"}, ErrNoSpace, "no space left on device"},
	{[]string{"unsupported url", "no suitable extractor", "is not a valid url"}, ErrUnsupportedURL, "url not supported"},
	{[]string{"http error 429", "too many requests", "rate-limit reached", "rate limit"}, ErrRateLimited, "rate limited"},
	{[]string{"sign in to confirm your age", "age-restricted", "age restricted", "inappropriate for some users"}, ErrAgeRestricted, "content is age-restricted"},
	{[]string{"private video", "is private", "account is private", "this post is private", "protected tweets"}, ErrPrivate, "video is private"},
	{[]string{"available in your country", "not available in your region", "geo restrict", "geo-restrict", "geoblocked"}, ErrGeoRestricted, "geo restricted"},
	{[]string{"login required", "requires login", "login_required", "sign in", "log in", "use --cookies", "authentication"}, ErrLoginRequired, "login required"},
	{[]string{"no video formats found", "there's no video in this", "no video could be found", "does not contain a video"}, ErrNoVideo, "no video in post"},
	{[]string{"video unavailable", "this video is unavailable", "has been removed", "been deleted", "does not exist", "http error 404", "not found", "no longer available"}, ErrUnavailable, "video unavailable"},
	{[]string{"unable to download", "connection", "network", "timed out", "name resolution", "ssl"}, ErrNetwork, "network error"},
}

// categorizeError maps yt-dlp stderr text onto a sentinel error.
func categorizeError(sourceURL string, err error, stderr string) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return &Error{URL: sourceURL, Message: "yt-dlp is not installed", Err: ErrNotInstalled}
	}

	lower := strings.ToLower(stderr)
	for _, rule := range errorRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return &Error{URL: sourceURL, Message: rule.message, Stderr: stderr, Err: rule.err}
			}
		}
	}

	msg := lastErrorLine(stderr)
	if msg == "" && err != nil {
		msg = err.Error()
	}
	return &Error{URL: sourceURL, Message: msg, Stderr: stderr, Err: ErrExtractionFailed}
}

// lastErrorLine returns the final "ERROR:" line, which is the one yt-dlp
// prints for the failure that ended the run.
func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	if len(lines) > 0 {
		return strings.TrimSpace(lines[len(lines)-1])
	}
	return ""
}
