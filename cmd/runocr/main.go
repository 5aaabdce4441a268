package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/ocr-web/constants"
	"github.com/joseph-ayodele/ocr-web/internal/common"
	"github.com/joseph-ayodele/ocr-web/internal/pipeline"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <image-or-pdf>")
		os.Exit(2)
	}
	path := os.Args[1]

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read input", "path", path, "error", err)
		os.Exit(1)
	}

	p, err := pipeline.FromConfig(cfg, logger)
	if err != nil {
		logger.Error("build pipeline", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	f := pipeline.UploadedFile{Name: filepath.Base(path), Data: data}
	text, err := p.Recognize(context.Background(), f, nil)
	dur := time.Since(start)

	if err != nil {
		logger.Error("recognition failed",
			"file", f.Name, "code", common.ErrorCode(err), "error", err, "duration_ms", dur.Milliseconds())
		fmt.Println(constants.ErrorFallbackText)
		os.Exit(1)
	}

	logger.Info("recognition OK", "file", f.Name, "chars", len(text), "duration_ms", dur.Milliseconds())
	fmt.Print(text)
}
