// Package ocr is the boundary to the external text-recognition engine. A
// Worker is created per job, configured, used for one recognition and then
// terminated; workers are never shared or pooled.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// EngineMode selects the tesseract recognition engine (OEM).
type EngineMode int

const (
	OEMTesseractOnly EngineMode = 0
	OEMLSTMOnly      EngineMode = 1
	OEMCombined      EngineMode = 2
	OEMDefault       EngineMode = 3
)

// PageSegMode is the tesseract page segmentation mode (PSM).
type PageSegMode int

const (
	PSMOSDOnly     PageSegMode = 0
	PSMAutoOSD     PageSegMode = 1
	PSMAuto        PageSegMode = 3
	PSMSingleBlock PageSegMode = 6
)

// ParamPageSegMode is the tesseract variable carrying the PSM.
const ParamPageSegMode = "tessedit_pageseg_mode"

// ErrWorkerTerminated is returned by any call on a worker after Terminate.
var ErrWorkerTerminated = errors.New("ocr worker terminated")

// Payload is an encoded image handed to the engine.
type Payload struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Result is what the engine reports for one payload.
type Result struct {
	Text     string
	Language string
	Duration time.Duration
}

// Engine creates workers.
type Engine interface {
	Name() string
	NewWorker(ctx context.Context) (Worker, error)
}

// Worker is one engine instance. Callers must Terminate it exactly once.
type Worker interface {
	LoadLanguage(ctx context.Context, lang string) error
	Initialize(ctx context.Context, lang string, mode EngineMode) error
	SetParameters(ctx context.Context, params map[string]string) error
	Recognize(ctx context.Context, payload Payload) (Result, error)
	Terminate() error
}

// Config selects and configures an engine backend.
type Config struct {
	Backend     string // "cli" | "gosseract"
	Tesseract   string
	TessdataDir string
}

// NewEngine builds the configured backend.
func NewEngine(cfg Config, logger *slog.Logger) (Engine, error) {
	switch cfg.Backend {
	case "", "cli":
		return NewCLIEngine(CLIConfig{Tesseract: cfg.Tesseract, TessdataDir: cfg.TessdataDir}, logger), nil
	case "gosseract":
		return NewGosseractEngine(cfg.TessdataDir, logger), nil
	default:
		return nil, fmt.Errorf("unknown ocr backend: %q", cfg.Backend)
	}
}
