package extractor

import (
	"errors"
	"strings"
)

// acceleratorArgs are handed to aria2c when it is available: 16
// connections, 16 splits, 1 MiB pieces and no preallocation.
const acceleratorArgs = "aria2c:-x 16 -s 16 -k 1M --file-allocation=none"

// MetadataRequest describes an info-only extractor run.
type MetadataRequest struct {
	URL string
	// CookiesPath is passed through as an opaque credential file. Empty
	// means anonymous access.
	CookiesPath   string
	ExtractorArgs string
}

// Args returns the yt-dlp argument list for the request.
func (r MetadataRequest) Args() []string {
	args := []string{
		"--dump-single-json",
		"--no-check-certificates",
		"--no-warnings",
		"--skip-download",
		"--no-playlist",
		"--playlist-items", "1",
	}
	if r.CookiesPath != "" {
		args = append(args, "--cookies", r.CookiesPath)
	}
	if r.ExtractorArgs != "" {
		args = append(args, "--extractor-args", r.ExtractorArgs)
	}
	return append(args, "--", r.URL)
}

// FetchRequest describes a byte download of one format selector to one file.
type FetchRequest struct {
	URL        string
	FormatID   string
	OutputPath string
	// CookiesPath is passed through as an opaque credential file.
	CookiesPath string
	// MergeOutputFormat is set when the selector itself combines streams
	// ("137+bestaudio"), so yt-dlp muxes into the expected container.
	MergeOutputFormat string
	ExtractorArgs     string
	// Accelerator is the path to aria2c. Empty uses the built-in downloader.
	Accelerator string
}

// Validate checks the fields yt-dlp cannot do without.
func (r FetchRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.URL) == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if strings.TrimSpace(r.FormatID) == "" {
		errs = append(errs, errors.New("format is required"))
	}
	if strings.TrimSpace(r.OutputPath) == "" {
		errs = append(errs, errors.New("output path is required"))
	}
	return errors.Join(errs...)
}

// Args returns the yt-dlp argument list for the request.
func (r FetchRequest) Args() []string {
	args := []string{
		"-f", r.FormatID,
		"-o", r.OutputPath,
		"--newline",
		"--progress",
		"--no-warnings",
		"--no-check-certificates",
		"--no-playlist",
		"--no-mtime",
	}
	if r.CookiesPath != "" {
		args = append(args, "--cookies", r.CookiesPath)
	}
	if r.MergeOutputFormat != "" {
		args = append(args, "--merge-output-format", r.MergeOutputFormat)
	}
	if r.ExtractorArgs != "" {
		args = append(args, "--extractor-args", r.ExtractorArgs)
	}
	if r.Accelerator != "" {
		args = append(args, "--downloader", r.Accelerator, "--downloader-args", acceleratorArgs)
	}
	return append(args, "--", r.URL)
}
