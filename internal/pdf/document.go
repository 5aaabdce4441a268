// Package pdf is the boundary to external PDF decoding. Documents are opened
// from memory with ledongthuc/pdf for page-tree access and pages are
// rasterized with poppler's pdftoppm.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/ocr-web/internal/ocr"
)

// PointsPerInch is the PDF user-space unit; scale 1.0 renders at 72 DPI.
const PointsPerInch = 72.0

// letter is used when a page carries no usable MediaBox.
var letter = [4]float64{0, 0, 612, 792}

// Viewport is the rasterization target for a page at a given scale.
type Viewport struct {
	Scale  float64
	Width  float64 // pixels
	Height float64 // pixels
}

// DPI is the render resolution that produces this viewport.
func (v Viewport) DPI() int {
	return int(math.Round(PointsPerInch * v.Scale))
}

// Decoder opens PDF documents.
type Decoder interface {
	Open(ctx context.Context, data []byte) (Document, error)
}

// Document is an opened PDF. Close releases render scratch space.
type Document interface {
	NumPages() int
	Page(ctx context.Context, n int) (Page, error)
	Close() error
}

// Page is a single 1-based page of a Document.
type Page interface {
	Number() int
	Viewport(scale float64) Viewport
	Render(ctx context.Context, vp Viewport) ([]byte, error)
}

// PopplerDecoder reads documents with ledongthuc/pdf and renders with pdftoppm.
type PopplerDecoder struct {
	pdftoppm string
	runner   ocr.Runner
	logger   *slog.Logger
}

// Option customizes a PopplerDecoder.
type Option func(*PopplerDecoder)

// WithRunner swaps the command runner, mainly for tests.
func WithRunner(r ocr.Runner) Option {
	return func(d *PopplerDecoder) {
		if r != nil {
			d.runner = r
		}
	}
}

// NewPopplerDecoder returns a decoder using the given pdftoppm binary ("" -> "pdftoppm").
func NewPopplerDecoder(pdftoppm string, logger *slog.Logger, opts ...Option) *PopplerDecoder {
	if logger == nil {
		logger = slog.Default()
	}
	if pdftoppm == "" {
		pdftoppm = "pdftoppm"
	}
	d := &PopplerDecoder{pdftoppm: pdftoppm, runner: ocr.ExecRunner{}, logger: logger}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Open parses the cross-reference table and page tree of data.
func (d *PopplerDecoder) Open(_ context.Context, data []byte) (doc Document, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := r.NumPage()
	if n < 1 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	return &document{decoder: d, reader: r, data: data, pages: n}, nil
}

type document struct {
	decoder *PopplerDecoder
	reader  *lpdf.Reader
	data    []byte
	pages   int
	dir     string
}

func (doc *document) NumPages() int { return doc.pages }

func (doc *document) Page(_ context.Context, n int) (p Page, err error) {
	if n < 1 || n > doc.pages {
		return nil, fmt.Errorf("page %d out of range 1..%d", n, doc.pages)
	}
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("malformed page %d: %v", n, r)
		}
	}()
	pg := doc.reader.Page(n)
	if pg.V.IsNull() {
		return nil, fmt.Errorf("page %d not found in page tree", n)
	}
	return &page{doc: doc, number: n, box: mediaBox(pg.V), rotate: rotation(pg.V)}, nil
}

// source writes the document once into a scratch dir for pdftoppm.
func (doc *document) source() (string, error) {
	if doc.dir == "" {
		dir, err := os.MkdirTemp("", "ocr-pdf-*")
		if err != nil {
			return "", err
		}
		doc.dir = dir
	}
	in := filepath.Join(doc.dir, "source.pdf")
	if _, err := os.Stat(in); err == nil {
		return in, nil
	}
	if err := os.WriteFile(in, doc.data, 0o600); err != nil {
		return "", err
	}
	return in, nil
}

func (doc *document) Close() error {
	if doc.dir == "" {
		return nil
	}
	dir := doc.dir
	doc.dir = ""
	return os.RemoveAll(dir)
}

type page struct {
	doc    *document
	number int
	box    [4]float64
	rotate int
}

func (p *page) Number() int { return p.number }

func (p *page) Viewport(scale float64) Viewport {
	w := math.Abs(p.box[2]-p.box[0]) * scale
	h := math.Abs(p.box[3]-p.box[1]) * scale
	if p.rotate == 90 || p.rotate == 270 {
		w, h = h, w
	}
	return Viewport{Scale: scale, Width: w, Height: h}
}

// Render rasterizes exactly this page to PNG at the viewport's resolution.
func (p *page) Render(ctx context.Context, vp Viewport) ([]byte, error) {
	d := p.doc.decoder
	in, err := p.doc.source()
	if err != nil {
		return nil, fmt.Errorf("stage pdf: %w", err)
	}
	prefix := filepath.Join(p.doc.dir, "page-"+strconv.Itoa(p.number))
	pn := strconv.Itoa(p.number)

	// pdftoppm -f n -l n -r dpi -png -singlefile <in.pdf> <prefix>
	_, errb, err := d.runner.Run(ctx, d.pdftoppm, d.logger,
		"-f", pn, "-l", pn, "-r", strconv.Itoa(vp.DPI()), "-png", "-singlefile", in, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, ocr.Truncate(string(errb), 512))
	}
	out, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm produced no image: %w", err)
	}
	d.logger.Debug("rendered pdf page",
		"page", p.number, "dpi", vp.DPI(), "width", int(vp.Width), "height", int(vp.Height), "bytes", len(out))
	return out, nil
}

// inherited looks a page attribute up the page tree.
func inherited(v lpdf.Value, key string) lpdf.Value {
	for i := 0; i < 64 && !v.IsNull(); i++ {
		if k := v.Key(key); !k.IsNull() {
			return k
		}
		v = v.Key("Parent")
	}
	return lpdf.Value{}
}

func mediaBox(v lpdf.Value) [4]float64 {
	arr := inherited(v, "MediaBox")
	if arr.Kind() != lpdf.Array || arr.Len() != 4 {
		return letter
	}
	var box [4]float64
	for i := range box {
		box[i] = arr.Index(i).Float64()
	}
	if box[2]-box[0] == 0 || box[3]-box[1] == 0 {
		return letter
	}
	return box
}

func rotation(v lpdf.Value) int {
	r := int(inherited(v, "Rotate").Int64()) % 360
	if r < 0 {
		r += 360
	}
	return r
}
