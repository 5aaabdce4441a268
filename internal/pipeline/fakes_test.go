package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/joseph-ayodele/ocr-web/internal/ocr"
	"github.com/joseph-ayodele/ocr-web/internal/pdf"
)

// textPNG draws s in black on white, the way a scanned snippet would look.
func textPNG(t *testing.T, s string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13, Dot: fixed.P(10, 50)}
	d.DrawString(s)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type fakeEngine struct {
	mu        sync.Mutex
	text      string
	failAt    string // stage name that should fail
	created   int
	workers   []*fakeWorker
	createErr error
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) NewWorker(context.Context) (ocr.Worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.createErr != nil {
		return nil, e.createErr
	}
	e.created++
	w := &fakeWorker{engine: e}
	e.workers = append(e.workers, w)
	return w, nil
}

type fakeWorker struct {
	engine     *fakeEngine
	lang       string
	mode       ocr.EngineMode
	params     map[string]string
	payloads   []ocr.Payload
	terminated int
}

func (w *fakeWorker) fail(stage string) error {
	if w.engine.failAt == stage {
		return errStage(stage)
	}
	return nil
}

type errStage string

func (e errStage) Error() string { return "fake " + string(e) + " failure" }

func (w *fakeWorker) LoadLanguage(_ context.Context, lang string) error {
	w.lang = lang
	return w.fail("load")
}

func (w *fakeWorker) Initialize(_ context.Context, _ string, mode ocr.EngineMode) error {
	w.mode = mode
	return w.fail("init")
}

func (w *fakeWorker) SetParameters(_ context.Context, params map[string]string) error {
	w.params = params
	return w.fail("params")
}

func (w *fakeWorker) Recognize(_ context.Context, p ocr.Payload) (ocr.Result, error) {
	w.payloads = append(w.payloads, p)
	if err := w.fail("recognize"); err != nil {
		return ocr.Result{}, err
	}
	return ocr.Result{Text: w.engine.text, Language: w.lang}, nil
}

func (w *fakeWorker) Terminate() error {
	w.terminated++
	return nil
}

type fakeDecoder struct {
	pages     int
	openErr   error
	renderErr error
	requested []int
	scales    []float64
	closed    int
}

func (d *fakeDecoder) Open(context.Context, []byte) (pdf.Document, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &fakeDocument{d: d}, nil
}

type fakeDocument struct{ d *fakeDecoder }

func (doc *fakeDocument) NumPages() int { return doc.d.pages }

func (doc *fakeDocument) Page(_ context.Context, n int) (pdf.Page, error) {
	doc.d.requested = append(doc.d.requested, n)
	return &fakePage{d: doc.d, n: n}, nil
}

func (doc *fakeDocument) Close() error {
	doc.d.closed++
	return nil
}

type fakePage struct {
	d *fakeDecoder
	n int
}

func (p *fakePage) Number() int { return p.n }

func (p *fakePage) Viewport(scale float64) pdf.Viewport {
	p.d.scales = append(p.d.scales, scale)
	return pdf.Viewport{Scale: scale, Width: 612 * scale, Height: 792 * scale}
}

func (p *fakePage) Render(context.Context, pdf.Viewport) ([]byte, error) {
	if p.d.renderErr != nil {
		return nil, p.d.renderErr
	}
	return []byte("rendered-page-image"), nil
}
