// Package app is the root shell: it owns the current recognized text and wires
// the uploader's result callback to presentation subscribers and the AppState
// store.
package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/joseph-ayodele/ocr-web/constants"
	"github.com/joseph-ayodele/ocr-web/internal/pipeline"
	"github.com/joseph-ayodele/ocr-web/internal/store"
	"github.com/joseph-ayodele/ocr-web/internal/uploader"
)

// Event types delivered to subscribers.
const (
	EventJob    = "job"
	EventResult = "result"
	EventState  = "state"
)

// Event is a change notification. Exactly one of Job, Text or State is set,
// matching Type.
type Event struct {
	Type  string          `json:"type"`
	Job   *uploader.Job   `json:"job,omitempty"`
	Text  *string         `json:"text,omitempty"`
	State *store.AppState `json:"state,omitempty"`
}

type App struct {
	up     *uploader.Uploader
	store  *store.Store
	logger *slog.Logger

	mu     sync.RWMutex
	result string

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

type Option func(*options)

type options struct {
	allow  uploader.AllowList
	logger *slog.Logger
}

func WithAllowList(a uploader.AllowList) Option {
	return func(o *options) { o.allow = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New wires rec behind an uploader and returns the shell.
func New(rec uploader.Recognizer, opts ...Option) (*App, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	a := &App{
		store:  store.New(),
		logger: o.logger,
		subs:   make(map[int]func(Event)),
	}
	a.store.Subscribe(func(st store.AppState) {
		a.emit(Event{Type: EventState, State: &st})
	})

	up, err := uploader.New(rec, a.setResult,
		uploader.WithAllowList(o.allow),
		uploader.WithListener(a.onJob),
		uploader.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}
	a.up = up
	return a, nil
}

func (a *App) onJob(job uploader.Job) {
	switch job.State {
	case constants.JobInitializing:
		a.store.SetError("")
		a.store.SetLoading(true)
	case constants.JobFailed:
		a.store.SetError(constants.ErrorFallbackText)
		a.store.SetLoading(false)
	case constants.JobComplete:
		a.store.SetLoading(false)
	}
	a.emit(Event{Type: EventJob, Job: &job})
}

// setResult replaces the current text wholesale.
func (a *App) setResult(text string) {
	a.mu.Lock()
	a.result = text
	a.mu.Unlock()
	a.logger.Debug("result updated", "chars", len(text))
	a.emit(Event{Type: EventResult, Text: &text})
}

// Result returns the current recognized text, "" before the first job.
func (a *App) Result() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.result
}

// Submit forwards f to the uploader; see uploader.Uploader.SubmitCheck.
func (a *App) Submit(f pipeline.UploadedFile) (uploader.Job, error) {
	return a.up.SubmitCheck(f)
}

func (a *App) Uploader() *uploader.Uploader { return a.up }

func (a *App) Store() *store.Store { return a.store }

// Subscribe registers fn for every Event. fn runs on the emitting goroutine
// and must not block.
func (a *App) Subscribe(fn func(Event)) (unsubscribe func()) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	return func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		delete(a.subs, id)
	}
}

func (a *App) emit(ev Event) {
	a.subMu.Lock()
	fns := make([]func(Event), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Shutdown drains the uploader.
func (a *App) Shutdown(ctx context.Context) {
	a.up.Shutdown(ctx)
}
