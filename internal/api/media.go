package api

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/reelfetch/backend/internal/errors"
	"github.com/reelfetch/backend/internal/metadata"
	"github.com/reelfetch/backend/internal/platform"
)

// Resolver classifies URLs and fetches their metadata.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (*metadata.Result, error)
	ResolveFor(ctx context.Context, rawURL string, want platform.Platform) (*metadata.Result, error)
}

// MediaHandlers contains handlers for platform detection and metadata.
type MediaHandlers struct {
	platforms *platform.Router
	resolver  Resolver
}

// NewMediaHandlers creates a new MediaHandlers instance
func NewMediaHandlers(platforms *platform.Router, resolver Resolver) *MediaHandlers {
	if platforms == nil {
		platforms = platform.DefaultRouter()
	}
	return &MediaHandlers{platforms: platforms, resolver: resolver}
}

type urlRequest struct {
	URL string `json:"url"`
}

// DetectResponse is the platform classification of a URL.
type DetectResponse struct {
	Platform    platform.Platform `json:"platform"`
	URL         string            `json:"url"`
	ContentType string            `json:"contentType,omitempty"`
}

// MetadataResponse is the first step of the two-step flow: the item
// without its formats.
type MetadataResponse struct {
	Title       string            `json:"title"`
	Thumbnail   string            `json:"thumbnail,omitempty"`
	Duration    float64           `json:"duration"`
	Author      string            `json:"author,omitempty"`
	ViewCount   int64             `json:"viewCount"`
	IsLive      bool              `json:"isLive"`
	Platform    platform.Platform `json:"platform"`
	ContentType string            `json:"contentType"`
}

// FormatsResponse is the second step of the two-step flow.
type FormatsResponse struct {
	Formats           []metadata.FormatDescriptor `json:"formats"`
	BestAudioFormat   string                      `json:"bestAudioFormat,omitempty"`
	RecommendedFormat *metadata.Recommended       `json:"recommendedFormat,omitempty"`
}

func readURL(w http.ResponseWriter, r *http.Request) (string, error) {
	var req urlRequest
	if err := decodeBody(w, r, &req); err != nil {
		return "", err
	}
	u := strings.TrimSpace(req.URL)
	if u == "" {
		return "", apperrors.ValidationError("URL is required")
	}
	return u, nil
}

// DetectPlatform handles POST /api/detect-platform. Unrecognized URLs are
// reported as "unknown" rather than rejected.
func (h *MediaHandlers) DetectPlatform(w http.ResponseWriter, r *http.Request) error {
	u, err := readURL(w, r)
	if err != nil {
		return err
	}

	resp := DetectResponse{Platform: platform.Unknown, URL: u}
	if _, ok := platform.ValidURL(u); ok {
		if pol := h.platforms.Match(u); pol != nil {
			resp.Platform = pol.Platform
			resp.ContentType = pol.ContentType(u)
		}
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, resp)
	return nil
}

// Info handles POST /api/metadata and POST /api/video-info
func (h *MediaHandlers) Info(w http.ResponseWriter, r *http.Request) error {
	res, err := h.resolve(w, r)
	if err != nil {
		return err
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, res)
	return nil
}

// PlatformInfo handles POST /api/{platform}/video-info
func (h *MediaHandlers) PlatformInfo(w http.ResponseWriter, r *http.Request) error {
	return h.Info(w, r)
}

// Metadata handles POST /api/video-metadata
func (h *MediaHandlers) Metadata(w http.ResponseWriter, r *http.Request) error {
	res, err := h.resolve(w, r)
	if err != nil {
		return err
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, MetadataResponse{
		Title:       res.Title,
		Thumbnail:   res.Thumbnail,
		Duration:    res.Duration,
		Author:      res.Author,
		ViewCount:   res.ViewCount,
		IsLive:      res.IsLive,
		Platform:    res.Platform,
		ContentType: res.ContentType,
	})
	return nil
}

// Formats handles POST /api/video-formats
func (h *MediaHandlers) Formats(w http.ResponseWriter, r *http.Request) error {
	res, err := h.resolve(w, r)
	if err != nil {
		return err
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, FormatsResponse{
		Formats:           res.Formats,
		BestAudioFormat:   res.BestAudioFormat,
		RecommendedFormat: res.RecommendedFormat,
	})
	return nil
}

func (h *MediaHandlers) resolve(w http.ResponseWriter, r *http.Request) (*metadata.Result, error) {
	want, err := platformParam(r)
	if err != nil {
		return nil, err
	}
	u, err := readURL(w, r)
	if err != nil {
		return nil, err
	}
	if want != "" {
		return h.resolver.ResolveFor(r.Context(), u, want)
	}
	return h.resolver.Resolve(r.Context(), u)
}
