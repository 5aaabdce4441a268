//go:build !gosseract

package ocr

import (
	"context"
	"errors"
	"log/slog"
)

// GosseractAvailable reports whether the cgo tesseract backend is compiled in.
const GosseractAvailable = false

var errGosseractNotCompiled = errors.New("gosseract backend not compiled in: build with -tags gosseract")

// GosseractEngine is a placeholder when the binary is built without cgo tesseract.
type GosseractEngine struct{}

func NewGosseractEngine(_ string, _ *slog.Logger) *GosseractEngine {
	return &GosseractEngine{}
}

func (e *GosseractEngine) Name() string { return "tesseract-gosseract" }

func (e *GosseractEngine) NewWorker(_ context.Context) (Worker, error) {
	return nil, errGosseractNotCompiled
}
