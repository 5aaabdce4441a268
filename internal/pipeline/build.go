package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/ocr-web/internal/common"
	"github.com/joseph-ayodele/ocr-web/internal/ocr"
	"github.com/joseph-ayodele/ocr-web/internal/pdf"
)

// FromConfig builds the engine, the PDF decoder and the pipeline described by
// cfg, loading extra engine parameters from cfg.OCR.ParametersFile.
func FromConfig(cfg *common.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	params, err := common.LoadEngineParameters(cfg.OCR.ParametersFile)
	if err != nil {
		return nil, err
	}
	engine, err := ocr.NewEngine(ocr.Config{
		Backend:     cfg.OCR.Engine,
		Tesseract:   cfg.OCR.Tesseract,
		TessdataDir: cfg.OCR.TessdataDir,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build ocr engine: %w", err)
	}
	decoder := pdf.NewPopplerDecoder(cfg.PDF.Pdftoppm, logger)

	pc := Config{
		Language:    cfg.OCR.Language,
		Mode:        ocr.EngineMode(cfg.OCR.OEM),
		PageSegMode: ocr.PageSegMode(cfg.OCR.PSM),
		Scale:       cfg.PDF.Scale,
		Parameters:  params,
	}
	logger.Info("recognition pipeline configured",
		"engine", engine.Name(), "lang", pc.Language, "oem", int(pc.Mode), "psm", int(pc.PageSegMode),
		"pdf_scale", pc.Scale, "extra_params", len(params))
	return New(engine, decoder, pc, logger), nil
}
