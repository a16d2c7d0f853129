// Package metadata resolves a URL into display metadata and a normalized
// list of downloadable variants.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/reelfetch/backend/internal/errors"
	"github.com/reelfetch/backend/internal/extractor"
	"github.com/reelfetch/backend/internal/logger"
	"github.com/reelfetch/backend/internal/platform"
)

// Source runs the extractor in metadata-only mode.
type Source interface {
	Metadata(ctx context.Context, req extractor.MetadataRequest) (*extractor.Info, error)
}

// Credentials hands out the cookie file when it is usable.
type Credentials interface {
	CredentialPath() (string, bool)
}

// Cache stores raw extractor output between requests.
type Cache interface {
	Key(namespace string, parts ...string) string
	GetJSON(ctx context.Context, key string, dst interface{}) bool
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Result is what the metadata endpoints return.
type Result struct {
	Title             string             `json:"title"`
	Thumbnail         string             `json:"thumbnail,omitempty"`
	Duration          float64            `json:"duration"`
	Author            string             `json:"author,omitempty"`
	ViewCount         int64              `json:"viewCount"`
	LikeCount         int64              `json:"likeCount,omitempty"`
	CommentCount      int64              `json:"commentCount,omitempty"`
	UploadDate        string             `json:"uploadDate,omitempty"`
	Description       string             `json:"description,omitempty"`
	IsLive            bool               `json:"isLive"`
	Platform          platform.Platform  `json:"platform"`
	ContentType       string             `json:"contentType"`
	Formats           []FormatDescriptor `json:"formats"`
	BestAudioFormat   string             `json:"bestAudioFormat,omitempty"`
	RecommendedFormat *Recommended       `json:"recommendedFormat,omitempty"`

	// Info is the raw extractor output the result was built from.
	Info *extractor.Info `json:"-"`
}

const descriptionLimit = 200

// Config configures a Resolver. Cache and Credentials are optional.
type Config struct {
	Router      *platform.Router
	Source      Source
	Credentials Credentials
	Cache       Cache
	CacheTTL    time.Duration
	Timeout     time.Duration
	Logger      *logger.Logger
}

// Resolver turns URLs into Results.
type Resolver struct {
	router  *platform.Router
	source  Source
	creds   Credentials
	cache   Cache
	ttl     time.Duration
	timeout time.Duration
	log     *logger.Logger
}

// NewResolver creates a Resolver
func NewResolver(cfg Config) *Resolver {
	r := &Resolver{
		router:  cfg.Router,
		source:  cfg.Source,
		creds:   cfg.Credentials,
		cache:   cfg.Cache,
		ttl:     cfg.CacheTTL,
		timeout: cfg.Timeout,
		log:     cfg.Logger,
	}
	if r.router == nil {
		r.router = platform.DefaultRouter()
	}
	if r.timeout <= 0 {
		r.timeout = 60 * time.Second
	}
	if r.log == nil {
		r.log = logger.Default()
	}
	r.log = r.log.WithComponent("metadata")
	return r
}

// Classify validates rawURL and returns the policy that handles it. Invalid
// and unrecognized URLs fail before any subprocess runs.
func (r *Resolver) Classify(rawURL string) (*platform.Policy, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, apperrors.ValidationError("URL is required")
	}
	if _, ok := platform.ValidURL(rawURL); !ok {
		return nil, apperrors.ValidationError("Please enter a valid URL")
	}
	pol := r.router.Match(rawURL)
	if pol == nil {
		return nil, apperrors.UnsupportedURL(rawURL)
	}
	return pol, nil
}

// Resolve fetches and normalizes metadata for rawURL.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Result, error) {
	pol, err := r.Classify(rawURL)
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, pol, strings.TrimSpace(rawURL))
}

// ClassifyFor is Classify restricted to one platform.
func (r *Resolver) ClassifyFor(rawURL string, want platform.Platform) (*platform.Policy, error) {
	pol, err := r.Classify(rawURL)
	if err != nil && !isUnsupported(err) {
		return nil, err
	}
	if pol == nil || pol.Platform != want {
		name := string(want)
		if p, ok := r.router.Policy(want); ok {
			name = p.DisplayName
		}
		return nil, apperrors.ValidationError(fmt.Sprintf("Not a valid %s URL", name))
	}
	return pol, nil
}

// ResolveFor is Resolve restricted to one platform.
func (r *Resolver) ResolveFor(ctx context.Context, rawURL string, want platform.Platform) (*Result, error) {
	pol, err := r.ClassifyFor(rawURL, want)
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, pol, strings.TrimSpace(rawURL))
}

func (r *Resolver) resolve(ctx context.Context, pol *platform.Policy, rawURL string) (*Result, error) {
	credPath, authenticated := "", false
	if r.creds != nil {
		credPath, authenticated = r.creds.CredentialPath()
	}

	info, err := r.fetch(ctx, pol, rawURL, credPath)
	if err != nil {
		return nil, r.translate(ctx, pol, rawURL, err)
	}
	item := info.Primary()

	content := platform.Content{
		ContentType:   pol.ContentType(rawURL),
		IsLive:        item.Live(),
		HasVideo:      item.HasVideo(),
		Authenticated: authenticated,
	}
	if reason := pol.Decline(content); reason != "" {
		r.log.Info(ctx, "content declined", map[string]interface{}{
			"platform":     string(pol.Platform),
			"content_type": content.ContentType,
			"reason":       reason,
		})
		return nil, apperrors.UnsupportedContent(reason)
	}

	return build(item, pol, content.ContentType), nil
}

// fetch consults the cache before running the extractor.
func (r *Resolver) fetch(ctx context.Context, pol *platform.Policy, rawURL, credPath string) (*extractor.Info, error) {
	var key string
	if r.cache != nil {
		key = r.cache.Key("metadata", string(pol.Platform), rawURL)
		var cached extractor.Info
		if r.cache.GetJSON(ctx, key, &cached) {
			return &cached, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	info, err := r.source.Metadata(ctx, extractor.MetadataRequest{
		URL:           rawURL,
		CookiesPath:   credPath,
		ExtractorArgs: pol.ExtractorArgs,
	})
	if err != nil {
		return nil, err
	}
	r.log.Debug(ctx, "metadata fetched", map[string]interface{}{
		"platform":    string(pol.Platform),
		"formats":     len(info.Formats),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if r.cache != nil && r.ttl > 0 && !info.Primary().Live() {
		if err := r.cache.SetJSON(ctx, key, info, r.ttl); err != nil {
			r.log.Warn(ctx, "metadata cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return info, nil
}

func (r *Resolver) translate(ctx context.Context, pol *platform.Policy, rawURL string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.ExternalTimeout("Metadata").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	msg := pol.Describe(err)
	r.log.Warn(ctx, "metadata extraction failed", map[string]interface{}{
		"platform": string(pol.Platform),
		"url":      rawURL,
		"error":    err.Error(),
	})
	if errors.Is(err, extractor.ErrNoVideo) {
		return apperrors.UnsupportedContent(msg.Text).WithCause(err)
	}
	return apperrors.ExtractionFailed(msg.Text).WithStatus(msg.Status).WithCause(err)
}

func build(item *extractor.Info, pol *platform.Policy, contentType string) *Result {
	norm := Normalize(item.Formats, pol)

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = truncate(strings.TrimSpace(item.Description), 100)
	}
	if title == "" {
		title = pol.FallbackTitle
	}

	return &Result{
		Title:             title,
		Thumbnail:         item.BestThumbnail(),
		Duration:          item.Duration,
		Author:            item.Author(),
		ViewCount:         item.ViewCount,
		LikeCount:         item.LikeCount,
		CommentCount:      item.CommentCount,
		UploadDate:        item.UploadDate,
		Description:       truncate(item.Description, descriptionLimit),
		IsLive:            item.Live(),
		Platform:          pol.Platform,
		ContentType:       contentType,
		Formats:           norm.Formats,
		BestAudioFormat:   norm.BestAudioFormat,
		RecommendedFormat: Recommend(item.Formats, pol),
		Info:              item,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func isUnsupported(err error) bool {
	var appErr *apperrors.AppError
	return errors.As(err, &appErr) && appErr.Code == apperrors.CodeUnsupportedURL
}
