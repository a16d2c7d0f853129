package download

import (
	"errors"
	"testing"
	"time"

	"github.com/reelfetch/backend/internal/platform"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateCreated, StateAdmitted, true},
		{StateCreated, StateFetching, false},
		{StateAdmitted, StateFetching, true},
		{StateFetching, StateFinalizing, true},
		{StateFetching, StateMerging, true},
		{StateFetching, StateConverting, true},
		{StateMerging, StateConverting, false},
		{StateMerging, StateFinalizing, true},
		{StateConverting, StateFinalizing, true},
		{StateFinalizing, StateCompleted, true},
		{StateFetching, StateCompleted, false},
		{StateCreated, StateFailed, true},
		{StateMerging, StateFailed, true},
		{StateCompleted, StateFailed, false},
		{StateFailed, StateFailed, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestJob_Lifecycle(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	j := newJob("id-1", "https://youtu.be/abc", platform.YouTube, Selection{FormatID: "22"}, now)
	if j.State() != StateCreated {
		t.Fatalf("initial state = %s", j.State())
	}

	for _, s := range []State{StateAdmitted, StateFetching, StateFinalizing, StateCompleted} {
		if err := j.transition(s); err != nil {
			t.Fatalf("transition(%s) error = %v", s, err)
		}
	}
	snap := j.Snapshot()
	if !snap.IsTerminal() || snap.StartedAt == nil || snap.CompletedAt == nil {
		t.Errorf("snapshot = %+v", snap)
	}

	if err := j.transition(StateFailed); err == nil {
		t.Error("transition out of a terminal state should fail")
	}
	// Same state is a no-op.
	if err := j.transition(StateCompleted); err != nil {
		t.Errorf("transition to current state error = %v", err)
	}
}

func TestJob_SnapshotCopiesError(t *testing.T) {
	j := newJob("id-1", "u", platform.YouTube, Selection{}, nil)
	j.fail(&JobError{Kind: KindTimeout, Message: "slow"})

	snap := j.Snapshot()
	snap.Error.Message = "changed"
	if j.Snapshot().Error.Message != "slow" {
		t.Error("Snapshot() should not share the error value")
	}
}

func TestJobError(t *testing.T) {
	cause := errors.New("boom")
	err := &JobError{Kind: KindTranscode, Message: "Failed", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("JobError should unwrap to its cause")
	}
	if err.Error() != "transcode: Failed: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestEventStatus(t *testing.T) {
	tests := map[State]string{
		StateAdmitted:   "downloading",
		StateFetching:   "downloading",
		StateMerging:    "processing",
		StateConverting: "processing",
		StateFinalizing: "processing",
		StateCompleted:  "completed",
		StateFailed:     "error",
	}
	for state, want := range tests {
		if got := eventStatus(state); got != want {
			t.Errorf("eventStatus(%s) = %q, want %q", state, got, want)
		}
	}
}

func TestRepository_ReleaseAfterLinger(t *testing.T) {
	r := NewRepository(30 * time.Millisecond)
	defer r.Close()

	j := newJob("id-1", "u", platform.YouTube, Selection{}, nil)
	r.Insert(j)
	if r.Active() != 1 {
		t.Errorf("Active() = %d, want 1", r.Active())
	}

	j.transition(StateFailed)
	if r.Active() != 0 {
		t.Errorf("Active() = %d after failure, want 0", r.Active())
	}

	r.Release("id-1")
	r.Release("id-1")
	if _, ok := r.Get("id-1"); !ok {
		t.Fatal("job should linger after Release")
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("job not removed after linger")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRepository_ZeroLingerRemovesImmediately(t *testing.T) {
	r := NewRepository(0)
	r.Insert(newJob("id-1", "u", platform.YouTube, Selection{}, nil))
	r.Release("id-1")
	if _, ok := r.Snapshot("id-1"); ok {
		t.Error("job should be removed immediately")
	}
}
