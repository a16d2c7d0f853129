package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/reelfetch/backend/internal/download"
	apperrors "github.com/reelfetch/backend/internal/errors"
)

// Downloader admits jobs and reports their state.
type Downloader interface {
	Submit(ctx context.Context, req download.Request) (*download.Accepted, error)
	Status(ctx context.Context, id string) (*download.Snapshot, error)
}

// FileServer streams finished artifacts.
type FileServer interface {
	Serve(w http.ResponseWriter, r *http.Request, id, filename string) error
}

type DownloadHandlers struct {
	downloads Downloader
	files     FileServer
	baseURL   string
}

func NewDownloadHandlers(downloads Downloader, files FileServer, baseURL string) *DownloadHandlers {
	return &DownloadHandlers{
		downloads: downloads,
		files:     files,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// StartRequest represents the request body for starting a download.
// FormatID and Itag are synonyms; ConvertToMP3 selects the mp3 pipeline.
type StartRequest struct {
	URL             string     `json:"url"`
	FormatID        flexString `json:"formatId"`
	Itag            flexString `json:"itag"`
	AudioFormatID   flexString `json:"audioFormatId"`
	ConvertToMP3    bool       `json:"convertToMp3"`
	MP3Bitrate      flexString `json:"mp3Bitrate"`
	MergeAudio      bool       `json:"mergeAudio"`
	EstimatedSize   int64      `json:"estimatedSize"`
	RemoveWatermark bool       `json:"removeWatermark"`
	Filename        string     `json:"filename"`
}

// StartResponse is returned with 202 once a job is admitted.
type StartResponse struct {
	*download.Accepted
	ProgressURL string `json:"progressUrl"`
	FileURL     string `json:"fileUrl"`
}

func (req StartRequest) selection() (download.Selection, error) {
	format := req.FormatID
	if format == "" {
		format = req.Itag
	}
	bitrate, err := req.MP3Bitrate.Int()
	if err != nil {
		return download.Selection{}, apperrors.ValidationError("Invalid mp3 bitrate")
	}
	sel := download.Selection{
		FormatID:        format.String(),
		AudioFormatID:   req.AudioFormatID.String(),
		BitrateKbps:     bitrate,
		MergeAudio:      req.MergeAudio,
		RemoveWatermark: req.RemoveWatermark,
		Filename:        strings.TrimSpace(req.Filename),
	}
	if req.ConvertToMP3 {
		sel.ConvertTo = "mp3"
	}
	return sel, nil
}

// Start handles POST /api/download-start and POST /api/{platform}/download-start
func (h *DownloadHandlers) Start(w http.ResponseWriter, r *http.Request) error {
	want, err := platformParam(r)
	if err != nil {
		return err
	}

	var req StartRequest
	if err := decodeBody(w, r, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.URL) == "" {
		return apperrors.ValidationError("URL is required")
	}
	if req.EstimatedSize < 0 {
		return apperrors.ValidationError("Invalid estimated size")
	}
	sel, err := req.selection()
	if err != nil {
		return err
	}

	accepted, err := h.downloads.Submit(r.Context(), download.Request{
		URL:           req.URL,
		Platform:      want,
		Selection:     sel,
		EstimatedSize: req.EstimatedSize,
	})
	if err != nil {
		return err
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusAccepted, StartResponse{
		Accepted:    accepted,
		ProgressURL: h.baseURL + "/api/download-progress/" + accepted.DownloadID,
		FileURL:     h.baseURL + "/api/download-file/" + accepted.DownloadID,
	})
	return nil
}

// Status handles GET /api/download-status/{id}
func (h *DownloadHandlers) Status(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	if id == "" {
		return apperrors.ValidationError("download ID is required")
	}

	snap, err := h.downloads.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, download.ErrJobNotFound) {
			return apperrors.DownloadNotFound()
		}
		return apperrors.InternalError("Failed to read download status").WithCause(err)
	}

	w.Header().Set("Cache-Control", "no-store")
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, snap)
	return nil
}

// File handles GET /api/download-file/{id}?filename=
func (h *DownloadHandlers) File(w http.ResponseWriter, r *http.Request) error {
	return h.files.Serve(w, r, r.PathValue("id"), r.URL.Query().Get("filename"))
}
