package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "GRPC_ADDR", "MAX_UPLOAD_MB", "CORS_ORIGINS", "OCR_ENGINE",
		"OCR_LANG", "OCR_OEM", "OCR_PSM", "OCR_ACCEPT_PDF", "PDF_SCALE"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig()
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "", cfg.Server.GRPCAddr)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "cli", cfg.OCR.Engine)
	assert.Equal(t, "eng", cfg.OCR.Language)
	assert.Equal(t, 1, cfg.OCR.OEM)
	assert.Equal(t, 3, cfg.OCR.PSM)
	assert.False(t, cfg.PDF.Enabled)
	assert.Equal(t, 2.0, cfg.PDF.Scale)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("OCR_ACCEPT_PDF", "true")
	t.Setenv("PDF_SCALE", "1.5")
	t.Setenv("MAX_UPLOAD_MB", "2")
	cfg := LoadConfig()
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.PDF.Enabled)
	assert.Equal(t, 1.5, cfg.PDF.Scale)
	assert.Equal(t, int64(2<<20), cfg.Server.MaxUploadBytes)
}

func TestValidate(t *testing.T) {
	cfg := LoadConfig()
	cfg.OCR.Engine = "cloud"
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, CodeConfig, ErrorCode(err))

	cfg = LoadConfig()
	cfg.PDF.Scale = 0
	require.Error(t, cfg.Validate())
}

func TestTaggedErrors(t *testing.T) {
	cause := errors.New("boom")
	err := DecodeError("open pdf", cause)
	assert.True(t, errors.Is(err, ErrDecode))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrEngine))
	assert.Equal(t, CodeDecodeFailed, ErrorCode(err))

	err2 := WrapError(EngineError("recognize", cause), "pipeline")
	assert.True(t, errors.Is(err2, ErrEngine))
	assert.Equal(t, CodeEngineFailed, ErrorCode(err2))

	assert.True(t, errors.Is(UnsupportedTypeError("text/plain", "a.txt"), ErrUnsupportedType))
	assert.Nil(t, WrapError(nil, "x"))
}
