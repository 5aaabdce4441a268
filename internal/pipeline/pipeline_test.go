package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ocr-web/constants"
	"github.com/joseph-ayodele/ocr-web/internal/common"
	"github.com/joseph-ayodele/ocr-web/internal/ocr"
)

func TestRecognizeImage(t *testing.T) {
	eng := &fakeEngine{text: "Hello PDF\n"}
	p := New(eng, &fakeDecoder{}, DefaultConfig(), nil)

	img := textPNG(t, "Hello PDF")
	var seen []int
	text, err := p.Recognize(context.Background(), UploadedFile{Name: "scan.png", MIMEType: "image/png", Data: img},
		func(pct int) { seen = append(seen, pct) })
	require.NoError(t, err)
	assert.Equal(t, "Hello PDF\n", text, "text is returned exactly as the engine reports it")

	require.Equal(t, 1, eng.created)
	w := eng.workers[0]
	assert.Equal(t, 1, w.terminated)
	assert.Equal(t, "eng", w.lang)
	assert.Equal(t, ocr.OEMLSTMOnly, w.mode)
	assert.Equal(t, "3", w.params[ocr.ParamPageSegMode])
	require.Len(t, w.payloads, 1)
	assert.Equal(t, img, w.payloads[0].Data)
	assert.Equal(t, "image/png", w.payloads[0].MIMEType)

	require.NotEmpty(t, seen)
	assert.Equal(t, 100, seen[len(seen)-1])
}

func TestRecognizePDFUsesFirstPageOnly(t *testing.T) {
	eng := &fakeEngine{text: "page one"}
	dec := &fakeDecoder{pages: 5}
	p := New(eng, dec, DefaultConfig(), nil)

	text, err := p.Recognize(context.Background(), UploadedFile{Name: "doc.pdf", MIMEType: "application/pdf", Data: []byte("%PDF")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "page one", text)

	assert.Equal(t, []int{1}, dec.requested)
	assert.Equal(t, []float64{2.0}, dec.scales)
	assert.Equal(t, 1, dec.closed)

	w := eng.workers[0]
	require.Len(t, w.payloads, 1)
	assert.Equal(t, []byte("rendered-page-image"), w.payloads[0].Data)
	assert.Equal(t, constants.MIMEPNG, w.payloads[0].MIMEType)
	assert.Equal(t, 1, w.terminated)
}

func TestRecognizeFromExtensionWhenTypeMissing(t *testing.T) {
	eng := &fakeEngine{text: "ok"}
	dec := &fakeDecoder{pages: 1}
	p := New(eng, dec, DefaultConfig(), nil)

	_, err := p.Recognize(context.Background(), UploadedFile{Name: "DOC.PDF", MIMEType: "application/octet-stream", Data: []byte("x")}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, dec.requested)

	_, err = p.Recognize(context.Background(), UploadedFile{Name: "photo.jpg", Data: []byte("x")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", eng.workers[1].payloads[0].MIMEType)
}

func TestRecognizeUnsupportedType(t *testing.T) {
	eng := &fakeEngine{}
	p := New(eng, &fakeDecoder{}, DefaultConfig(), nil)

	_, err := p.Recognize(context.Background(), UploadedFile{Name: "notes.txt", MIMEType: "text/plain", Data: []byte("x")}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnsupportedType)
	assert.Equal(t, common.CodeUnsupportedType, common.ErrorCode(err))
	assert.Zero(t, eng.created, "no worker for unsupported input")
}

func TestRecognizeEngineFailuresTerminateWorker(t *testing.T) {
	for _, stage := range []string{"load", "init", "params", "recognize"} {
		t.Run(stage, func(t *testing.T) {
			eng := &fakeEngine{failAt: stage}
			p := New(eng, &fakeDecoder{}, DefaultConfig(), nil)

			_, err := p.Recognize(context.Background(), UploadedFile{Name: "a.png", MIMEType: "image/png", Data: []byte("x")}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrEngine)
			assert.Equal(t, common.CodeEngineFailed, common.ErrorCode(err))
			assert.Equal(t, 1, eng.workers[0].terminated)
		})
	}
}

func TestRecognizeWorkerCreateFailure(t *testing.T) {
	eng := &fakeEngine{createErr: errors.New("no tesseract")}
	p := New(eng, nil, DefaultConfig(), nil)
	_, err := p.Recognize(context.Background(), UploadedFile{Name: "a.gif", MIMEType: "image/gif", Data: []byte("x")}, nil)
	assert.ErrorIs(t, err, common.ErrEngine)
}

func TestRecognizeDecodeFailures(t *testing.T) {
	pdfFile := UploadedFile{Name: "a.pdf", MIMEType: "application/pdf", Data: []byte("x")}

	eng := &fakeEngine{}
	_, err := New(eng, &fakeDecoder{openErr: errors.New("bad xref")}, DefaultConfig(), nil).
		Recognize(context.Background(), pdfFile, nil)
	assert.ErrorIs(t, err, common.ErrDecode)
	assert.Equal(t, common.CodeDecodeFailed, common.ErrorCode(err))

	dec := &fakeDecoder{pages: 1, renderErr: errors.New("pdftoppm missing")}
	_, err = New(eng, dec, DefaultConfig(), nil).Recognize(context.Background(), pdfFile, nil)
	assert.ErrorIs(t, err, common.ErrDecode)
	assert.Equal(t, 1, dec.closed)

	_, err = New(eng, nil, DefaultConfig(), nil).Recognize(context.Background(), pdfFile, nil)
	assert.ErrorIs(t, err, common.ErrDecode)

	assert.Zero(t, eng.created, "the engine is never started when decoding fails")
}

func TestParametersMerge(t *testing.T) {
	cfg := DefaultConfig()
	extra := map[string]string{"preserve_interword_spaces": "1"}
	cfg.Parameters = extra
	eng := &fakeEngine{}
	p := New(eng, nil, cfg, nil)
	_, err := p.Recognize(context.Background(), UploadedFile{Name: "a.png", MIMEType: "image/png", Data: []byte("x")}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		ocr.ParamPageSegMode:        "3",
		"preserve_interword_spaces": "1",
	}, eng.workers[0].params)
	assert.Len(t, extra, 1, "configured parameters are not mutated")

	cfg.Parameters = map[string]string{ocr.ParamPageSegMode: "6"}
	eng = &fakeEngine{}
	_, err = New(eng, nil, cfg, nil).Recognize(context.Background(), UploadedFile{Name: "a.png", MIMEType: "image/png", Data: []byte("x")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "6", eng.workers[0].params[ocr.ParamPageSegMode])
}

func TestUploadedFileFormat(t *testing.T) {
	assert.Equal(t, constants.IMAGE, UploadedFile{MIMEType: "image/webp"}.Format())
	assert.Equal(t, constants.PDF, UploadedFile{Name: "x.bin", MIMEType: "application/pdf"}.Format())
	assert.Equal(t, "", UploadedFile{Name: "x.png", MIMEType: "text/plain"}.Format())
	assert.Equal(t, constants.IMAGE, UploadedFile{Name: "x.png"}.Format())
	assert.Equal(t, "", UploadedFile{Name: "x"}.Format())
}
