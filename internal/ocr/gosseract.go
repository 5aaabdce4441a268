//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// GosseractAvailable reports whether the cgo tesseract backend is compiled in.
const GosseractAvailable = true

// GosseractEngine runs tesseract in-process through gosseract.
type GosseractEngine struct {
	tessdataDir string
	logger      *slog.Logger
}

func NewGosseractEngine(tessdataDir string, logger *slog.Logger) *GosseractEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &GosseractEngine{tessdataDir: tessdataDir, logger: logger}
}

func (e *GosseractEngine) Name() string { return "tesseract-gosseract" }

func (e *GosseractEngine) NewWorker(_ context.Context) (Worker, error) {
	c := gosseract.NewClient()
	if e.tessdataDir != "" {
		if err := c.SetTessdataPrefix(e.tessdataDir); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	return &gosseractWorker{client: c, logger: e.logger}, nil
}

type gosseractWorker struct {
	client     *gosseract.Client
	logger     *slog.Logger
	lang       string
	terminated bool
}

func (w *gosseractWorker) LoadLanguage(_ context.Context, lang string) error {
	if w.terminated {
		return ErrWorkerTerminated
	}
	if err := w.client.SetLanguage(lang); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	w.lang = lang
	return nil
}

func (w *gosseractWorker) Initialize(_ context.Context, lang string, mode EngineMode) error {
	if w.terminated {
		return ErrWorkerTerminated
	}
	if lang != w.lang {
		return fmt.Errorf("language %q was not loaded", lang)
	}
	// gosseract initializes with the library default OEM.
	if mode != OEMDefault {
		w.logger.Debug("engine mode not configurable through gosseract", "oem", int(mode))
	}
	return nil
}

func (w *gosseractWorker) SetParameters(_ context.Context, params map[string]string) error {
	if w.terminated {
		return ErrWorkerTerminated
	}
	for k, v := range params {
		if k == ParamPageSegMode {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q", ParamPageSegMode, v)
			}
			if err := w.client.SetPageSegMode(gosseract.PageSegMode(n)); err != nil {
				return fmt.Errorf("set page seg mode: %w", err)
			}
			continue
		}
		if err := w.client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	return nil
}

func (w *gosseractWorker) Recognize(_ context.Context, payload Payload) (Result, error) {
	if w.terminated {
		return Result{}, ErrWorkerTerminated
	}
	start := time.Now()
	if err := w.client.SetImageFromBytes(payload.Data); err != nil {
		return Result{}, fmt.Errorf("set image: %w", err)
	}
	text, err := w.client.Text()
	if err != nil {
		return Result{}, fmt.Errorf("recognize text: %w", err)
	}
	return Result{Text: text, Language: w.lang, Duration: time.Since(start)}, nil
}

func (w *gosseractWorker) Terminate() error {
	if w.terminated {
		return nil
	}
	w.terminated = true
	return w.client.Close()
}
