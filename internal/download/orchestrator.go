// Package download admits download requests and runs them as background
// jobs: fetch through the extractor, remux or convert through the
// transcoder, and report progress to the job's viewer.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/reelfetch/backend/internal/admission"
	apperrors "github.com/reelfetch/backend/internal/errors"
	"github.com/reelfetch/backend/internal/extractor"
	"github.com/reelfetch/backend/internal/logger"
	"github.com/reelfetch/backend/internal/metadata"
	"github.com/reelfetch/backend/internal/platform"
	"github.com/reelfetch/backend/internal/progress"
	"github.com/reelfetch/backend/internal/retrieval"
	"github.com/reelfetch/backend/internal/transcoder"
)

// Resolver classifies URLs and resolves their metadata.
type Resolver interface {
	Classify(rawURL string) (*platform.Policy, error)
	ClassifyFor(rawURL string, want platform.Platform) (*platform.Policy, error)
	Resolve(ctx context.Context, rawURL string) (*metadata.Result, error)
}

// Fetcher downloads bytes through the extractor.
type Fetcher interface {
	Fetch(ctx context.Context, req extractor.FetchRequest, progress extractor.ProgressFunc) error
}

// Transcoder remuxes and converts local files.
type Transcoder interface {
	Run(ctx context.Context, req transcoder.TranscodeRequest, progress transcoder.ProgressFunc) error
}

// Admission gates new jobs on free disk space.
type Admission interface {
	Check(ctx context.Context, estimatedBytes uint64) admission.Result
}

// Credentials hands out the cookie file when it is usable.
type Credentials interface {
	CredentialPath() (string, bool)
}

// Notifier is the progress channel keyed by download id.
type Notifier interface {
	Register(id string)
	WaitForSubscriber(ctx context.Context, id string, timeout time.Duration) bool
	Publish(id string, ev progress.Event) bool
	Close(id string)
}

// Recorder keeps a history of finished jobs.
type Recorder interface {
	Record(ctx context.Context, s Snapshot) error
}

// Mirror copies finished artifacts to object storage.
type Mirror interface {
	Upload(ctx context.Context, key, path string) error
}

// Counter receives job outcome counts.
type Counter interface {
	IncCounter(name string)
}

// durationObserver is implemented by counters that also keep job
// duration histograms.
type durationObserver interface {
	ObserveDuration(name string, d time.Duration)
}

// Config wires an Orchestrator. Resolver, Fetcher, Transcoder, Admission,
// Notifier and Runner are required.
type Config struct {
	Resolver    Resolver
	Fetcher     Fetcher
	Transcoder  Transcoder
	Admission   Admission
	Credentials Credentials
	Notifier    Notifier
	Runner      *Runner
	Repository  *Repository
	Store       SnapshotStore
	Recorder    Recorder
	Mirror      Mirror
	Counter     Counter

	DownloadsDir     string
	Accelerator      string
	HandshakeTimeout time.Duration
	Logger           *logger.Logger
}

// Request is one download submission.
type Request struct {
	URL string
	// Platform restricts the URL to one platform; empty accepts any.
	Platform      platform.Platform
	Selection     Selection
	EstimatedSize int64
}

// Accepted is returned when a job was admitted.
type Accepted struct {
	DownloadID string            `json:"downloadId"`
	Status     string            `json:"status"`
	Platform   platform.Platform `json:"platform"`
	DiskSpace  admission.Result  `json:"diskSpace"`
}

// Orchestrator owns the jobs.
type Orchestrator struct {
	resolver    Resolver
	fetcher     Fetcher
	transcoder  Transcoder
	admission   Admission
	creds       Credentials
	notifier    Notifier
	runner      *Runner
	repo        *Repository
	store       SnapshotStore
	recorder    Recorder
	mirror      Mirror
	counter     Counter
	dir         string
	accelerator string
	handshake   time.Duration
	log         *logger.Logger
	now         func() time.Time
}

// New creates an Orchestrator
func New(cfg Config) (*Orchestrator, error) {
	var missing []string
	if cfg.Resolver == nil {
		missing = append(missing, "resolver")
	}
	if cfg.Fetcher == nil {
		missing = append(missing, "fetcher")
	}
	if cfg.Transcoder == nil {
		missing = append(missing, "transcoder")
	}
	if cfg.Admission == nil {
		missing = append(missing, "admission")
	}
	if cfg.Notifier == nil {
		missing = append(missing, "notifier")
	}
	if cfg.Runner == nil {
		missing = append(missing, "runner")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("download orchestrator: missing %s", strings.Join(missing, ", "))
	}

	o := &Orchestrator{
		resolver:    cfg.Resolver,
		fetcher:     cfg.Fetcher,
		transcoder:  cfg.Transcoder,
		admission:   cfg.Admission,
		creds:       cfg.Credentials,
		notifier:    cfg.Notifier,
		runner:      cfg.Runner,
		repo:        cfg.Repository,
		store:       cfg.Store,
		recorder:    cfg.Recorder,
		mirror:      cfg.Mirror,
		counter:     cfg.Counter,
		dir:         cfg.DownloadsDir,
		accelerator: cfg.Accelerator,
		handshake:   cfg.HandshakeTimeout,
		log:         cfg.Logger,
		now:         time.Now,
	}
	if o.repo == nil {
		o.repo = NewRepository(0)
	}
	if o.dir == "" {
		o.dir = "downloads"
	}
	if o.handshake <= 0 {
		o.handshake = 5 * time.Second
	}
	if o.log == nil {
		o.log = logger.Default()
	}
	o.log = o.log.WithComponent("download")
	return o, nil
}

// Repository returns the in-memory job set
func (o *Orchestrator) Repository() *Repository {
	return o.repo
}

// Submit validates and admits a request, then starts it in the
// background. Nothing is created when validation or admission fails.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Accepted, error) {
	var (
		pol *platform.Policy
		err error
	)
	if req.Platform != "" {
		pol, err = o.resolver.ClassifyFor(req.URL, req.Platform)
	} else {
		pol, err = o.resolver.Classify(req.URL)
	}
	if err != nil {
		return nil, err
	}

	sel, err := normalizeSelection(pol, req.Selection)
	if err != nil {
		return nil, err
	}

	estimate := req.EstimatedSize
	if estimate <= 0 {
		estimate = pol.DefaultEstimate
	}
	disk := o.admission.Check(ctx, uint64(estimate))
	if !disk.Sufficient {
		o.count("admission_rejected")
		o.log.Warn(ctx, "download rejected: insufficient disk space", map[string]interface{}{
			"platform":       string(pol.Platform),
			"free_gb":        disk.FreeGB,
			"required_bytes": disk.RequiredBytes,
		})
		return nil, apperrors.InsufficientStorage(disk.Message, disk.FreeGB)
	}

	id := uuid.NewString()
	job := newJob(id, strings.TrimSpace(req.URL), pol.Platform, sel, o.now)
	if err := job.transition(StateAdmitted); err != nil {
		return nil, apperrors.InternalError("Failed to start download").WithCause(err)
	}
	o.repo.Insert(job)
	o.notifier.Register(id)

	origin := ctx
	err = o.runner.Go(
		func(ctx context.Context) { o.awaitViewer(apperrors.CarryRequestID(ctx, origin), job) },
		func(ctx context.Context) { o.run(apperrors.CarryRequestID(ctx, origin), job, pol) },
	)
	if err != nil {
		o.repo.Remove(id)
		o.notifier.Close(id)
		return nil, apperrors.Unavailable("Server is shutting down, please try again shortly").WithCause(err)
	}

	o.log.Info(ctx, "download admitted", map[string]interface{}{
		"download_id": id,
		"platform":    string(pol.Platform),
		"format":      sel.FormatID,
		"convert_to":  sel.ConvertTo,
		"merge_audio": sel.MergeAudio,
	})
	return &Accepted{
		DownloadID: id,
		Status:     "started",
		Platform:   pol.Platform,
		DiskSpace:  disk,
	}, nil
}

// Status returns a job snapshot, falling back to the snapshot store once
// the in-memory record is gone.
func (o *Orchestrator) Status(ctx context.Context, id string) (*Snapshot, error) {
	if s, ok := o.repo.Snapshot(id); ok {
		return &s, nil
	}
	if o.store == nil {
		return nil, ErrJobNotFound
	}
	return o.store.Load(ctx, id)
}

// Active returns the number of unfinished jobs
func (o *Orchestrator) Active() int {
	return o.repo.Active()
}

// Stop waits for running jobs, canceling them when ctx ends first.
func (o *Orchestrator) Stop(ctx context.Context) error {
	err := o.runner.Stop(ctx)
	o.repo.Close()
	return err
}

func normalizeSelection(pol *platform.Policy, sel Selection) (Selection, error) {
	sel.FormatID = strings.TrimSpace(sel.FormatID)
	sel.AudioFormatID = strings.TrimSpace(sel.AudioFormatID)
	sel.ConvertTo = strings.ToLower(strings.TrimSpace(sel.ConvertTo))
	sel.Filename = strings.TrimSpace(sel.Filename)

	if sel.ConvertTo != "" {
		if _, ok := transcoder.AudioEncoder(sel.ConvertTo); !ok {
			return sel, apperrors.ValidationError(fmt.Sprintf("Unsupported audio format: %s", sel.ConvertTo))
		}
		if sel.BitrateKbps == 0 {
			sel.BitrateKbps = transcoder.DefaultAudioBitrate
		}
		if sel.BitrateKbps < 64 || sel.BitrateKbps > 320 {
			return sel, apperrors.ValidationError("Audio bitrate must be between 64 and 320 kbps")
		}
		return sel, nil
	}
	sel.BitrateKbps = 0

	if pol.RequiresFormat && sel.FormatID == "" {
		return sel, apperrors.ValidationError("URL and format are required")
	}
	return sel, nil
}

// awaitViewer holds the job until its viewer attaches or the handshake
// times out, so the first events are not published into the void.
func (o *Orchestrator) awaitViewer(ctx context.Context, job *Job) {
	start := time.Now()
	attached := o.notifier.WaitForSubscriber(ctx, job.ID(), o.handshake)
	o.log.Debug(ctx, "progress handshake finished", map[string]interface{}{
		"download_id": job.ID(),
		"attached":    attached,
		"waited_ms":   time.Since(start).Milliseconds(),
	})
}

func (o *Orchestrator) run(ctx context.Context, job *Job, pol *platform.Policy) {
	id := job.ID()
	ctx = logger.WithTraceID(ctx, id)
	rep := newReporter(job, o.notifier, o.store, o.log)
	start := time.Now()
	o.count("jobs_started")

	jobCtx, cancel := context.WithTimeout(ctx, pol.Timeout)
	defer cancel()

	err := o.execute(jobCtx, job, pol, rep)
	if err != nil {
		jerr := classify(jobCtx, err, pol)
		rep.fail(jerr)
		o.count("jobs_failed_" + string(jerr.Kind))
		o.observe("failed_"+string(jerr.Kind), time.Since(start))
		o.log.Error(ctx, "download failed", err, map[string]interface{}{
			"download_id": id,
			"platform":    string(pol.Platform),
			"kind":        string(jerr.Kind),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	} else {
		snap := job.Snapshot()
		rep.complete(snap.Filename)
		o.count("jobs_completed")
		o.observe("completed", time.Since(start))
		o.log.Info(ctx, "download completed", map[string]interface{}{
			"download_id": id,
			"platform":    string(pol.Platform),
			"mode":        string(snap.Mode),
			"filename":    snap.Filename,
			"size":        snap.Size,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}

	o.finish(job)
}

// execute runs one job to its artifact. Temp files are removed on every
// return path, and so is the artifact when the job fails.
func (o *Orchestrator) execute(ctx context.Context, job *Job, pol *platform.Policy, rep *reporter) (err error) {
	snap := job.Snapshot()
	if err := rep.advance(StateFetching, 0, "Preparing download..."); err != nil {
		return err
	}

	res, err := o.resolver.Resolve(ctx, snap.URL)
	if err != nil {
		return err
	}
	if res.Info == nil {
		return extractor.ErrMalformedOutput
	}

	p := buildPlan(res.Info, pol, snap.Selection)
	job.setMode(p.mode)

	ws := &workspace{dir: o.dir, id: snap.ID, log: o.log}
	name := baseName(naming{Title: res.Title, Author: res.Author, Description: res.Info.Description}, pol, snap.Selection.Filename)
	final := ws.artifact(name + "." + p.ext)
	defer func() {
		ws.cleanup(ctx)
		if err != nil {
			ws.discard(ctx, final)
		}
	}()

	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}

	credPath := ""
	if o.creds != nil {
		credPath, _ = o.creds.CredentialPath()
	}
	f := fetchInput{url: snap.URL, pol: pol, plan: p, credPath: credPath, duration: res.Duration}

	switch p.mode {
	case ModeDual:
		err = o.fetchDual(ctx, ws, f, final, rep)
	case ModeConvert:
		err = o.fetchConvert(ctx, ws, f, final, rep)
	default:
		err = o.fetchSingle(ctx, ws, f, final, rep)
	}
	if err != nil {
		return err
	}

	artifact, size, err := ws.locate(final)
	if err != nil {
		return err
	}
	final = artifact
	job.setArtifact(strings.TrimPrefix(filepath.Base(artifact), snap.ID+"_"), size)
	return rep.advance(StateFinalizing, 100, "Finalizing...")
}

type fetchInput struct {
	url      string
	pol      *platform.Policy
	plan     plan
	credPath string
	duration float64
}

func (f fetchInput) request(format, output, merge, accelerator string) extractor.FetchRequest {
	return extractor.FetchRequest{
		URL:               f.url,
		FormatID:          format,
		OutputPath:        output,
		CookiesPath:       f.credPath,
		MergeOutputFormat: merge,
		ExtractorArgs:     f.pol.ExtractorArgs,
		Accelerator:       accelerator,
	}
}

// fetchSingle downloads one selector straight to the artifact, 0 to 90.
// When the client picked another container the fetch lands in a temp
// file and its streams are copied into the artifact from 90 to 100.
func (o *Orchestrator) fetchSingle(ctx context.Context, ws *workspace, f fetchInput, final string, rep *reporter) error {
	target := final
	if f.plan.rewrapFrom != "" {
		target = ws.temp("source", f.plan.rewrapFrom)
	}
	req := f.request(f.plan.selector, target, f.plan.merge, o.accelerator)
	stage := fmt.Sprintf("Downloading %s video...", f.pol.DisplayName)
	err := o.fetcher.Fetch(ctx, req, func(pct float64) {
		rep.advance(StateFetching, pct*0.9, stage)
	})
	if err != nil || target == final {
		return err
	}

	const rewrapStage = "Converting container..."
	if err := rep.advance(StateMerging, 90, rewrapStage); err != nil {
		return err
	}
	out := ws.temp("output", f.plan.ext)
	err = o.transcoder.Run(ctx, transcoder.TranscodeRequest{
		Inputs:          []string{target},
		Directive:       transcoder.Copy,
		OutputPath:      out,
		DurationSeconds: f.duration,
	}, func(frac float64) {
		rep.advance(StateMerging, 90+frac*10, rewrapStage)
	})
	if err != nil {
		return err
	}
	if err := os.Rename(out, final); err != nil {
		return err
	}
	ws.cleanup(ctx)
	return nil
}

// fetchDual downloads video and audio concurrently, blending progress up
// to 90, then remuxes from 90 to 100.
func (o *Orchestrator) fetchDual(ctx context.Context, ws *workspace, f fetchInput, final string, rep *reporter) error {
	videoPath := ws.temp("video", f.plan.videoExt)
	audioPath := ws.temp("audio", f.plan.audioExt)
	const stage = "Downloading video + audio..."

	var (
		mu       sync.Mutex
		videoPct float64
		audioPct float64
		wg       sync.WaitGroup
		videoErr error
		audioErr error
	)
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	blend := func(video bool, pct float64) {
		mu.Lock()
		if video {
			videoPct = pct
		} else {
			audioPct = pct
		}
		blended := min(videoPct*0.7+audioPct*0.2, 90)
		mu.Unlock()
		rep.advance(StateFetching, blended, stage)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		videoErr = o.fetcher.Fetch(fetchCtx, f.request(f.plan.videoID, videoPath, "", o.accelerator), func(pct float64) { blend(true, pct) })
		if videoErr != nil {
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		audioErr = o.fetcher.Fetch(fetchCtx, f.request(f.plan.audioID, audioPath, "", o.accelerator), func(pct float64) { blend(false, pct) })
		if audioErr != nil {
			cancel()
		}
	}()
	wg.Wait()

	if err := firstCause(videoErr, audioErr); err != nil {
		return err
	}
	if err := rep.advance(StateFetching, 90, stage); err != nil {
		return err
	}

	const mergeStage = "Merging video + audio..."
	if err := rep.advance(StateMerging, 90, mergeStage); err != nil {
		return err
	}
	out := ws.temp("output", f.plan.ext)
	err := o.transcoder.Run(ctx, transcoder.TranscodeRequest{
		Inputs:          []string{videoPath, audioPath},
		Directive:       transcoder.Remux,
		OutputPath:      out,
		DurationSeconds: f.duration,
	}, func(frac float64) {
		rep.advance(StateMerging, 90+frac*10, mergeStage)
	})
	if err != nil {
		return err
	}
	if err := os.Rename(out, final); err != nil {
		return err
	}
	ws.cleanup(ctx)
	return nil
}

// fetchConvert downloads audio to 60 and re-encodes it from 60 to 100.
func (o *Orchestrator) fetchConvert(ctx context.Context, ws *workspace, f fetchInput, final string, rep *reporter) error {
	audioPath := ws.temp("audio", f.plan.audioExt)
	const stage = "Downloading audio..."

	// The accelerator is not used for conversion fetches.
	err := o.fetcher.Fetch(ctx, f.request(f.plan.audioID, audioPath, "", ""), func(pct float64) {
		rep.advance(StateFetching, pct*0.6, stage)
	})
	if err != nil {
		return err
	}

	convertStage := fmt.Sprintf("Converting to %s...", strings.ToUpper(f.plan.convertTo))
	if err := rep.advance(StateConverting, 60, convertStage); err != nil {
		return err
	}
	out := ws.temp("output", f.plan.ext)
	err = o.transcoder.Run(ctx, transcoder.TranscodeRequest{
		Inputs:           []string{audioPath},
		Directive:        transcoder.ExtractAudio,
		OutputPath:       out,
		AudioFormat:      f.plan.convertTo,
		AudioBitrateKbps: f.plan.bitrate,
		DurationSeconds:  f.duration,
	}, func(frac float64) {
		rep.advance(StateConverting, 60+frac*40, convertStage)
	})
	if err != nil {
		return err
	}
	if err := os.Rename(out, final); err != nil {
		return err
	}
	ws.cleanup(ctx)
	return nil
}

// firstCause prefers a real failure over the cancellation it caused in
// the sibling fetch.
func firstCause(errs ...error) error {
	var canceled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			if canceled == nil {
				canceled = err
			}
			continue
		}
		return err
	}
	return canceled
}

// classify maps a background failure to its kind and user message.
func classify(ctx context.Context, err error, pol *platform.Policy) *JobError {
	var jerr *JobError
	if errors.As(err, &jerr) {
		return jerr
	}

	switch {
	case errors.Is(err, extractor.ErrNoSpace), errors.Is(err, syscall.ENOSPC):
		return &JobError{Kind: KindDiskSpace, Message: "Not enough disk space to finish the download", Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &JobError{Kind: KindTimeout, Message: "Download timeout - please try again", Err: err}
	case errors.Is(err, context.Canceled):
		return &JobError{Kind: KindTimeout, Message: "Download interrupted by a server restart - please try again", Err: err}
	case errors.Is(err, transcoder.ErrNotFound):
		return &JobError{Kind: KindTranscode, Message: "FFmpeg is not available on the server", Err: err}
	case errors.Is(err, transcoder.ErrTranscodeFailed):
		return &JobError{Kind: KindTranscode, Message: "Failed to process the downloaded media", Err: err}
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return &JobError{Kind: KindExtraction, Message: appErr.Message, Err: err}
	}
	return &JobError{Kind: KindExtraction, Message: pol.Describe(err).Text, Err: err}
}

// finish ends the progress channel and hands the outcome to history and
// the mirror.
func (o *Orchestrator) finish(job *Job) {
	snap := job.Snapshot()
	o.notifier.Close(snap.ID)
	o.repo.Release(snap.ID)

	if o.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.recorder.Record(ctx, snap); err != nil {
			o.log.Warn(ctx, "failed to record download history", map[string]interface{}{
				"download_id": snap.ID,
				"error":       err.Error(),
			})
		}
		cancel()
	}

	if o.mirror != nil && snap.State == StateCompleted {
		err := o.runner.Background(func(ctx context.Context) { o.mirrorArtifact(ctx, snap) })
		if err != nil {
			o.log.Warn(context.Background(), "artifact mirror skipped", map[string]interface{}{"download_id": snap.ID})
		}
	}
}

func (o *Orchestrator) mirrorArtifact(ctx context.Context, snap Snapshot) {
	local := filepath.Join(o.dir, snap.ID+"_"+snap.Filename)
	key := path.Join(string(snap.Platform), snap.ID, snap.Filename)

	retry := apperrors.MirrorRetryConfig()
	retry.OnRetry = func(attempt int, err error, wait time.Duration) {
		o.log.Debug(ctx, "artifact mirror attempt failed", map[string]interface{}{
			"download_id": snap.ID,
			"attempt":     attempt,
			"wait_ms":     wait.Milliseconds(),
			"error":       err.Error(),
		})
	}
	err := apperrors.Retry(ctx, retry, func(ctx context.Context) error {
		return o.mirror.Upload(ctx, key, local)
	})
	if err != nil {
		o.log.Warn(ctx, "artifact mirror failed", map[string]interface{}{
			"download_id": snap.ID,
			"key":         key,
			"error":       err.Error(),
		})
		return
	}
	o.log.Info(ctx, "artifact mirrored", map[string]interface{}{"download_id": snap.ID, "key": key})
}

func (o *Orchestrator) count(name string) {
	if o.counter != nil {
		o.counter.IncCounter(name)
	}
}

func (o *Orchestrator) observe(outcome string, d time.Duration) {
	if obs, ok := o.counter.(durationObserver); ok {
		obs.ObserveDuration(outcome, d)
	}
}

// workspace names the files of one job and removes the temporary ones.
type workspace struct {
	dir   string
	id    string
	log   *logger.Logger
	mu    sync.Mutex
	temps []string
}

func (w *workspace) artifact(name string) string {
	return filepath.Join(w.dir, w.id+"_"+name)
}

// temp returns <id>_<kind>_temp.<ext> and remembers it for cleanup.
func (w *workspace) temp(kind, ext string) string {
	p := filepath.Join(w.dir, fmt.Sprintf("%s_%s_temp.%s", w.id, kind, ext))
	w.mu.Lock()
	w.temps = append(w.temps, p)
	w.mu.Unlock()
	return p
}

// cleanup removes temp files and extractor leftovers. Safe to call more
// than once.
func (w *workspace) cleanup(ctx context.Context) {
	w.mu.Lock()
	temps := append([]string(nil), w.temps...)
	w.mu.Unlock()

	for _, p := range temps {
		for _, candidate := range []string{p, p + ".part", p + ".ytdl"} {
			if err := retrieval.RemoveQuietly(candidate); err != nil {
				w.log.Warn(ctx, "failed to remove temp file", map[string]interface{}{"path": candidate, "error": err.Error()})
			}
		}
	}
}

// discard removes a partial artifact and anything else the job left behind.
func (w *workspace) discard(ctx context.Context, final string) {
	matches, _ := filepath.Glob(filepath.Join(w.dir, globEscape(w.id)+"_*"))
	matches = append(matches, final)
	for _, p := range matches {
		if err := retrieval.RemoveQuietly(p); err != nil {
			w.log.Warn(ctx, "failed to remove partial file", map[string]interface{}{"path": p, "error": err.Error()})
		}
	}
}

// locate returns the artifact path and size. The extractor may pick a
// different extension than requested, so any "<id>_<name>.*" file counts.
func (w *workspace) locate(final string) (string, int64, error) {
	if info, err := os.Stat(final); err == nil {
		return final, info.Size(), nil
	}
	base := strings.TrimSuffix(final, filepath.Ext(final))
	matches, _ := filepath.Glob(globEscape(base) + ".*")
	for _, m := range matches {
		name := filepath.Base(m)
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			return m, info.Size(), nil
		}
	}
	return "", 0, fmt.Errorf("download finished but no file was written: %w", extractor.ErrExtractionFailed)
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}
