// Package pipeline converts one uploaded file into plain text: PDF page 1 is
// rasterized first, then the bitmap or the raw image goes to a fresh OCR
// worker that is terminated on every exit path.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"time"

	"github.com/joseph-ayodele/ocr-web/constants"
	"github.com/joseph-ayodele/ocr-web/internal/common"
	"github.com/joseph-ayodele/ocr-web/internal/ocr"
	"github.com/joseph-ayodele/ocr-web/internal/pdf"
)

// DefaultScale is the PDF viewport scale used when Config.Scale is unset.
const DefaultScale = 2.0

// ProgressRecognizing is reported right before the engine starts recognizing.
const ProgressRecognizing = 50

// UploadedFile is a single user-provided file.
type UploadedFile struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Format resolves IMAGE or PDF from the declared MIME type, falling back to
// the extension when the type is missing or generic. "" means unsupported.
func (f UploadedFile) Format() string {
	switch {
	case constants.IsPDFMIME(f.MIMEType):
		return constants.PDF
	case constants.IsImageMIME(f.MIMEType):
		return constants.IMAGE
	case constants.NormalizeMIME(f.MIMEType) == "":
		return constants.MapExtToFormat(constants.ExtOf(f.Name))
	default:
		return ""
	}
}

// EffectiveMIME is the declared type, or the one implied by the extension.
func (f UploadedFile) EffectiveMIME() string {
	if mt := constants.NormalizeMIME(f.MIMEType); mt != "" {
		return mt
	}
	return constants.MIMEForExt(constants.ExtOf(f.Name))
}

// Progress receives advisory completion percentages (0..100).
type Progress func(percent int)

// Config fixes engine language, modes and the PDF raster scale.
type Config struct {
	Language    string
	Mode        ocr.EngineMode
	PageSegMode ocr.PageSegMode
	Scale       float64
	Parameters  map[string]string // extra engine variables
}

// DefaultConfig is English, LSTM-only, automatic page segmentation, 2.0x.
func DefaultConfig() Config {
	return Config{
		Language:    "eng",
		Mode:        ocr.OEMLSTMOnly,
		PageSegMode: ocr.PSMAuto,
		Scale:       DefaultScale,
	}
}

// Pipeline is the recognition pipeline.
type Pipeline struct {
	engine  ocr.Engine
	decoder pdf.Decoder
	cfg     Config
	logger  *slog.Logger
}

func New(engine ocr.Engine, decoder pdf.Decoder, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.Scale <= 0 {
		cfg.Scale = DefaultScale
	}
	return &Pipeline{engine: engine, decoder: decoder, cfg: cfg, logger: logger}
}

// Recognize returns the engine's plain text for f. Errors are AppErrors tagged
// with ErrUnsupportedType, ErrDecode or ErrEngine.
func (p *Pipeline) Recognize(ctx context.Context, f UploadedFile, progress Progress) (string, error) {
	if progress == nil {
		progress = func(int) {}
	}
	start := time.Now()
	log := p.logger.With("file", f.Name, "job_id", common.JobIDFromContext(ctx))

	var payload ocr.Payload
	switch f.Format() {
	case constants.PDF:
		img, err := p.renderFirstPage(ctx, f, log)
		if err != nil {
			return "", err
		}
		payload = ocr.Payload{Name: f.Name + ".png", MIMEType: constants.MIMEPNG, Data: img}
	case constants.IMAGE:
		payload = ocr.Payload{Name: f.Name, MIMEType: f.EffectiveMIME(), Data: f.Data}
	default:
		return "", common.UnsupportedTypeError(f.MIMEType, f.Name)
	}
	progress(10)

	res, err := p.recognize(ctx, payload, progress)
	if err != nil {
		log.Error("recognition failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return "", err
	}
	progress(100)
	log.Info("recognition ok",
		"engine", p.engine.Name(),
		"bytes", len(res.Text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res.Text, nil
}

// renderFirstPage rasterizes page 1 only. Later pages are never processed.
func (p *Pipeline) renderFirstPage(ctx context.Context, f UploadedFile, log *slog.Logger) ([]byte, error) {
	if p.decoder == nil {
		return nil, common.DecodeError("pdf support is not configured", nil)
	}
	doc, err := p.decoder.Open(ctx, f.Data)
	if err != nil {
		return nil, common.DecodeError("open pdf", err)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			log.Warn("failed to release pdf document", "error", cerr)
		}
	}()
	if n := doc.NumPages(); n > 1 {
		log.Warn("only the first pdf page is recognized", "pages", n)
	}
	page, err := doc.Page(ctx, 1)
	if err != nil {
		return nil, common.DecodeError("get page 1", err)
	}
	vp := page.Viewport(p.cfg.Scale)
	img, err := page.Render(ctx, vp)
	if err != nil {
		return nil, common.DecodeError("render page 1", err)
	}
	return img, nil
}

func (p *Pipeline) recognize(ctx context.Context, payload ocr.Payload, progress Progress) (res ocr.Result, err error) {
	w, err := p.engine.NewWorker(ctx)
	if err != nil {
		return ocr.Result{}, common.EngineError("create worker", err)
	}
	defer func() {
		if terr := w.Terminate(); terr != nil {
			p.logger.Warn("failed to terminate ocr worker", "error", terr)
		}
	}()

	if err := w.LoadLanguage(ctx, p.cfg.Language); err != nil {
		return ocr.Result{}, common.EngineError("load language", err)
	}
	progress(25)
	if err := w.Initialize(ctx, p.cfg.Language, p.cfg.Mode); err != nil {
		return ocr.Result{}, common.EngineError("initialize", err)
	}
	progress(40)
	if err := w.SetParameters(ctx, p.parameters()); err != nil {
		return ocr.Result{}, common.EngineError("set parameters", err)
	}
	progress(ProgressRecognizing)
	res, err = w.Recognize(ctx, payload)
	if err != nil {
		return ocr.Result{}, common.EngineError(fmt.Sprintf("recognize %s", payload.Name), err)
	}
	progress(90)
	return res, nil
}

func (p *Pipeline) parameters() map[string]string {
	params := make(map[string]string, len(p.cfg.Parameters)+1)
	maps.Copy(params, p.cfg.Parameters)
	if _, ok := params[ocr.ParamPageSegMode]; !ok {
		params[ocr.ParamPageSegMode] = strconv.Itoa(int(p.cfg.PageSegMode))
	}
	return params
}
