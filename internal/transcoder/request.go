package transcoder

import (
	"errors"
	"fmt"
	"strings"
)

// Directive selects what ffmpeg does with the inputs.
type Directive string

const (
	// Remux copies the video stream and re-encodes audio to AAC so any
	// player can open the result.
	Remux Directive = "remux"
	// ExtractAudio drops video and encodes audio to the requested codec.
	ExtractAudio Directive = "audio"
	// Copy changes the container without touching any stream.
	Copy Directive = "copy"
)

// DefaultAudioBitrate is the bitrate for remuxed audio and conversions
// that do not ask for one.
const DefaultAudioBitrate = 192

// TranscodeRequest describes one ffmpeg run.
type TranscodeRequest struct {
	Inputs     []string
	Directive  Directive
	OutputPath string
	// AudioFormat is the target for ExtractAudio: mp3, m4a, aac, opus, ogg, wav, flac.
	AudioFormat      string
	AudioBitrateKbps int
	// DurationSeconds scales progress. Zero means probe the first input.
	DurationSeconds float64
}

var audioEncoders = map[string]string{
	"mp3":  "libmp3lame",
	"m4a":  "aac",
	"aac":  "aac",
	"opus": "libopus",
	"ogg":  "libvorbis",
	"wav":  "pcm_s16le",
	"flac": "flac",
}

// AudioEncoder returns the ffmpeg encoder for an audio format.
func AudioEncoder(format string) (string, bool) {
	enc, ok := audioEncoders[strings.ToLower(format)]
	return enc, ok
}

// Validate checks the request shape for its directive.
func (r TranscodeRequest) Validate() error {
	if r.OutputPath == "" {
		return errors.New("output path is required")
	}
	switch r.Directive {
	case Remux:
		if len(r.Inputs) < 1 || len(r.Inputs) > 2 {
			return fmt.Errorf("remux takes one or two inputs, got %d", len(r.Inputs))
		}
	case ExtractAudio:
		if len(r.Inputs) != 1 {
			return fmt.Errorf("audio conversion takes one input, got %d", len(r.Inputs))
		}
		if _, ok := AudioEncoder(r.AudioFormat); !ok {
			return fmt.Errorf("unsupported audio format %q", r.AudioFormat)
		}
	case Copy:
		if len(r.Inputs) != 1 {
			return fmt.Errorf("copy takes one input, got %d", len(r.Inputs))
		}
	default:
		return fmt.Errorf("unknown directive %q", r.Directive)
	}
	for _, in := range r.Inputs {
		if in == "" {
			return errors.New("input path must not be empty")
		}
	}
	return nil
}

func (r TranscodeRequest) bitrate() int {
	if r.AudioBitrateKbps > 0 {
		return r.AudioBitrateKbps
	}
	return DefaultAudioBitrate
}

// Args returns the ffmpeg argument list. Progress is written as key=value
// lines to stdout.
func (r TranscodeRequest) Args() []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	for _, in := range r.Inputs {
		args = append(args, "-i", in)
	}

	switch r.Directive {
	case Remux:
		if len(r.Inputs) == 2 {
			args = append(args, "-map", "0:v:0", "-map", "1:a:0")
		}
		args = append(args,
			"-c:v", "copy",
			"-c:a", "aac",
			"-b:a", fmt.Sprintf("%dk", r.bitrate()),
			"-movflags", "+faststart",
		)
	case ExtractAudio:
		enc, _ := AudioEncoder(r.AudioFormat)
		args = append(args, "-vn", "-c:a", enc)
		switch enc {
		case "pcm_s16le", "flac":
		default:
			args = append(args, "-b:a", fmt.Sprintf("%dk", r.bitrate()))
		}
	case Copy:
		args = append(args, "-c", "copy")
	}

	return append(args, "-progress", "pipe:1", "-nostats", r.OutputPath)
}
