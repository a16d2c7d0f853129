package download

import (
	"fmt"
	"sync"
	"time"

	"github.com/reelfetch/backend/internal/platform"
)

// State is a step in a download's lifecycle
type State string

const (
	StateCreated    State = "created"
	StateAdmitted   State = "admitted"
	StateFetching   State = "fetching"
	StateMerging    State = "merging"
	StateConverting State = "converting"
	StateFinalizing State = "finalizing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// transitions lists the forward edges. Any non-terminal state may also
// move to failed.
var transitions = map[State][]State{
	StateCreated:    {StateAdmitted},
	StateAdmitted:   {StateFetching},
	StateFetching:   {StateFinalizing, StateMerging, StateConverting},
	StateMerging:    {StateFinalizing},
	StateConverting: {StateFinalizing},
	StateFinalizing: {StateCompleted},
}

// Terminal returns true for completed and failed
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Mode is how the bytes of a download are obtained
type Mode string

const (
	// ModeSingle fetches one format that is already playable as is.
	ModeSingle Mode = "single"
	// ModeDual fetches a video-only and an audio-only format concurrently
	// and remuxes them.
	ModeDual Mode = "dual"
	// ModeConvert fetches audio and re-encodes it.
	ModeConvert Mode = "convert"
)

// Selection is what the client picked
type Selection struct {
	FormatID        string `json:"formatId,omitempty"`
	AudioFormatID   string `json:"audioFormatId,omitempty"`
	ConvertTo       string `json:"convertTo,omitempty"`
	BitrateKbps     int    `json:"bitrateKbps,omitempty"`
	MergeAudio      bool   `json:"mergeAudio"`
	RemoveWatermark bool   `json:"removeWatermark"`
	Filename        string `json:"filename,omitempty"`
}

// ErrorKind classifies background failures
type ErrorKind string

const (
	KindDiskSpace      ErrorKind = "disk-space"
	KindTimeout        ErrorKind = "timeout"
	KindExtraction     ErrorKind = "extraction"
	KindTranscode      ErrorKind = "transcode"
	KindConnectionLost ErrorKind = "connection-lost"
)

// JobError is the terminal failure of a job. Message is safe to show to
// users; Err keeps the underlying cause for logs.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *JobError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Snapshot is a point-in-time copy of a job, safe to serialize.
type Snapshot struct {
	ID          string            `json:"downloadId"`
	URL         string            `json:"url"`
	Platform    platform.Platform `json:"platform"`
	State       State             `json:"state"`
	Mode        Mode              `json:"mode,omitempty"`
	Progress    int               `json:"progress"`
	Stage       string            `json:"stage,omitempty"`
	Filename    string            `json:"filename,omitempty"`
	Size        int64             `json:"size,omitempty"`
	Selection   Selection         `json:"selection"`
	Error       *JobError         `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// IsTerminal returns true if the snapshot is in a terminal state
func (s Snapshot) IsTerminal() bool {
	return s.State.Terminal()
}

// Job is the live record of one download. All access goes through its
// methods.
type Job struct {
	mu   sync.Mutex
	snap Snapshot
	now  func() time.Time
}

func newJob(id, rawURL string, p platform.Platform, sel Selection, now func() time.Time) *Job {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &Job{
		now: now,
		snap: Snapshot{
			ID:        id,
			URL:       rawURL,
			Platform:  p,
			State:     StateCreated,
			Selection: sel,
			CreatedAt: t,
			UpdatedAt: t,
		},
	}
}

// ID returns the download id
func (j *Job) ID() string {
	return j.snap.ID
}

// Snapshot returns a copy of the current record.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := j.snap
	if s.Error != nil {
		e := *s.Error
		s.Error = &e
	}
	return s
}

// State returns the current state
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap.State
}

// transition moves the job to next. Staying in the same state is a no-op.
func (j *Job) transition(next State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	cur := j.snap.State
	if cur == next {
		return nil
	}
	if !CanTransition(cur, next) {
		return fmt.Errorf("illegal job transition %s -> %s", cur, next)
	}

	t := j.now()
	j.snap.State = next
	j.snap.UpdatedAt = t
	if next == StateFetching && j.snap.StartedAt == nil {
		j.snap.StartedAt = &t
	}
	if next.Terminal() {
		j.snap.CompletedAt = &t
	}
	return nil
}

func (j *Job) setProgress(progress int, stage string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snap.Progress = progress
	if stage != "" {
		j.snap.Stage = stage
	}
	j.snap.UpdatedAt = j.now()
}

func (j *Job) setMode(m Mode) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snap.Mode = m
}

func (j *Job) setArtifact(filename string, size int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snap.Filename = filename
	j.snap.Size = size
}

func (j *Job) fail(jerr *JobError) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snap.Error = jerr
}
