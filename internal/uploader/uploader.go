// Package uploader accepts one file at a time and runs it through the
// recognition pipeline. A job-state enum, switched by compare-and-swap before
// the job is scheduled, rejects submissions while a job is running. onResult
// fires exactly once per accepted job.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/joseph-ayodele/ocr-web/constants"
	"github.com/joseph-ayodele/ocr-web/internal/common"
	"github.com/joseph-ayodele/ocr-web/internal/pipeline"
)

// ErrClosed is returned by SubmitCheck after Shutdown.
var ErrClosed = errors.New("uploader is shut down")

// Recognizer is the pipeline as seen by the uploader.
type Recognizer interface {
	Recognize(ctx context.Context, f pipeline.UploadedFile, progress pipeline.Progress) (string, error)
}

// Job is a snapshot of the current (or last) recognition job.
type Job struct {
	ID         string             `json:"id,omitempty"`
	FileName   string             `json:"file_name,omitempty"`
	MIMEType   string             `json:"mime_type,omitempty"`
	State      constants.JobState `json:"state"`
	Progress   int                `json:"progress"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at,omitzero"`
	FinishedAt time.Time          `json:"finished_at,omitzero"`
}

// Listener observes job snapshots. It is called from the job goroutine and
// must not block.
type Listener func(Job)

type Uploader struct {
	rec       Recognizer
	onResult  func(text string)
	allow     AllowList
	listeners []Listener
	logger    *slog.Logger

	pool   *ants.Pool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	state    atomic.Int32
	progress atomic.Int32

	notifyMu sync.Mutex // orders snapshot publication
	mu       sync.Mutex
	current  Job
}

type Option func(*Uploader)

// WithAllowList replaces the default image-only allow-list.
func WithAllowList(a AllowList) Option {
	return func(u *Uploader) { u.allow = a }
}

// WithListener registers a job snapshot observer.
func WithListener(l Listener) Option {
	return func(u *Uploader) {
		if l != nil {
			u.listeners = append(u.listeners, l)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}

// New builds an uploader. onResult receives the recognized text, or
// constants.ErrorFallbackText when a job fails.
func New(rec Recognizer, onResult func(text string), opts ...Option) (*Uploader, error) {
	if rec == nil {
		return nil, fmt.Errorf("recognizer is required")
	}
	if onResult == nil {
		onResult = func(string) {}
	}
	u := &Uploader{rec: rec, onResult: onResult, logger: slog.Default()}
	for _, o := range opts {
		o(u)
	}
	// The state guard admits one job at a time; the second worker covers the
	// previous task while it is still returning from onResult.
	pool, err := ants.NewPool(2, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create job pool: %w", err)
	}
	u.pool = pool
	u.ctx, u.cancel = context.WithCancel(context.Background())
	return u, nil
}

// Submit starts a job for f and reports whether it was accepted. Files of the
// wrong type and submissions while a job is running are dropped.
func (u *Uploader) Submit(f pipeline.UploadedFile) bool {
	_, err := u.SubmitCheck(f)
	return err == nil
}

// SubmitCheck is Submit with the rejection reason: ErrUnsupportedType,
// ErrBusy or ErrClosed.
func (u *Uploader) SubmitCheck(f pipeline.UploadedFile) (Job, error) {
	if u.closed.Load() {
		return Job{}, ErrClosed
	}
	if err := u.allow.Check(f); err != nil {
		u.logger.Debug("upload rejected", "file", f.Name, "mime", f.MIMEType, "reason", "type")
		return Job{}, err
	}

	prev := constants.JobState(u.state.Load())
	for {
		if prev.Running() {
			u.logger.Debug("upload rejected", "file", f.Name, "reason", "busy")
			return Job{}, common.ErrBusy
		}
		if u.state.CompareAndSwap(int32(prev), int32(constants.JobInitializing)) {
			break
		}
		prev = constants.JobState(u.state.Load())
	}
	u.progress.Store(0)

	job := Job{
		ID:        uuid.NewString(),
		FileName:  f.Name,
		MIMEType:  f.MIMEType,
		State:     constants.JobInitializing,
		StartedAt: time.Now().UTC(),
	}
	u.publish(job, false)

	u.wg.Add(1)
	if err := u.pool.Submit(func() {
		defer u.wg.Done()
		u.run(job, f)
	}); err != nil {
		u.wg.Done()
		u.state.Store(int32(prev))
		u.logger.Error("failed to schedule recognition job", "job_id", job.ID, "error", err)
		if errors.Is(err, ants.ErrPoolClosed) {
			return Job{}, ErrClosed
		}
		return Job{}, common.ErrBusy
	}
	u.logger.Info("recognition job accepted", "job_id", job.ID, "file", f.Name, "bytes", len(f.Data))
	return job, nil
}

func (u *Uploader) run(job Job, f pipeline.UploadedFile) {
	ctx := common.WithJobID(u.ctx, job.ID)
	start := time.Now()

	text, err := u.recognize(ctx, f, func(pct int) {
		if pct >= pipeline.ProgressRecognizing {
			u.state.CompareAndSwap(int32(constants.JobInitializing), int32(constants.JobRecognizing))
		}
		u.progress.Store(int32(pct))
		job.State = constants.JobState(u.state.Load())
		job.Progress = pct
		u.publish(job, false)
	})

	job.Progress = 0
	job.FinishedAt = time.Now().UTC()
	if err != nil {
		u.logger.Error("recognition job failed",
			"job_id", job.ID, "code", common.ErrorCode(err), "error", err,
			"duration_ms", time.Since(start).Milliseconds())
		job.State = constants.JobFailed
		job.Error = err.Error()
		text = constants.ErrorFallbackText
	} else {
		job.State = constants.JobComplete
	}
	u.progress.Store(0)
	u.publish(job, true)

	u.onResult(text)
}

// recognize converts panics into errors so a job always reaches a terminal state.
func (u *Uploader) recognize(ctx context.Context, f pipeline.UploadedFile, progress pipeline.Progress) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recognition panicked: %v", r)
		}
	}()
	return u.rec.Recognize(ctx, f, progress)
}

// publish records the snapshot and notifies listeners. For the terminal
// snapshot the state is released in the same critical section, so a new job
// can never be overwritten by the previous one.
func (u *Uploader) publish(job Job, terminal bool) {
	u.notifyMu.Lock()
	defer u.notifyMu.Unlock()
	u.mu.Lock()
	u.current = job
	if terminal {
		u.state.Store(int32(job.State))
	}
	u.mu.Unlock()
	for _, l := range u.listeners {
		l(job)
	}
}

// State is the state of the current or last job; JobIdle before the first.
func (u *Uploader) State() constants.JobState {
	return constants.JobState(u.state.Load())
}

// IsProcessing reports whether a job is running.
func (u *Uploader) IsProcessing() bool {
	return u.State().Running()
}

// Progress is the advisory percentage of the running job, 0 otherwise.
func (u *Uploader) Progress() int {
	return int(u.progress.Load())
}

// Current returns a snapshot of the current or last job.
func (u *Uploader) Current() Job {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.current
}

// AllowList returns the configured allow-list.
func (u *Uploader) AllowList() AllowList {
	return u.allow
}

// Shutdown stops accepting jobs and waits for the running one, if any, until
// ctx is done; then it cancels the job context and releases the pool.
func (u *Uploader) Shutdown(ctx context.Context) {
	if !u.closed.CompareAndSwap(false, true) {
		return
	}
	done := make(chan struct{})
	go func() { defer close(done); u.wg.Wait() }()

	select {
	case <-ctx.Done():
		u.logger.Warn("shutdown interrupted by context")
	case <-done:
		u.logger.Info("uploader drained, shutdown complete")
	}
	u.cancel()
	u.pool.Release()
}
