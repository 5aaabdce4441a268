package uploader

import (
	"strings"

	"github.com/joseph-ayodele/ocr-web/constants"
	"github.com/joseph-ayodele/ocr-web/internal/common"
	"github.com/joseph-ayodele/ocr-web/internal/pipeline"
)

// AllowList decides which uploads may start a job. Images are always allowed;
// PDF only when enabled.
type AllowList struct {
	PDF bool
}

// Check returns ErrUnsupportedType (wrapped) for files that may not be submitted.
// A known extension must agree with the declared MIME family; a file without
// an extension is judged on its MIME type alone.
func (a AllowList) Check(f pipeline.UploadedFile) error {
	ext := constants.ExtOf(f.Name)
	byExt := a.formatOfExt(ext)
	byMIME := a.formatOfMIME(f.MIMEType)

	switch {
	case ext != "" && byExt == "":
		return common.UnsupportedTypeError(f.MIMEType, f.Name)
	case byExt == "" && byMIME == "":
		return common.UnsupportedTypeError(f.MIMEType, f.Name)
	case byExt != "" && constants.NormalizeMIME(f.MIMEType) != "" && byMIME != byExt:
		return common.UnsupportedTypeError(f.MIMEType, f.Name)
	}
	return nil
}

func (a AllowList) formatOfExt(ext string) string {
	switch constants.MapExtToFormat(ext) {
	case constants.IMAGE:
		return constants.IMAGE
	case constants.PDF:
		if a.PDF {
			return constants.PDF
		}
	}
	return ""
}

func (a AllowList) formatOfMIME(ct string) string {
	switch {
	case constants.IsImageMIME(ct):
		return constants.IMAGE
	case a.PDF && constants.IsPDFMIME(ct):
		return constants.PDF
	default:
		return ""
	}
}

// Accept renders the list for an <input accept> attribute.
func (a AllowList) Accept() string {
	parts := []string{"image/*", ".png", ".jpg", ".jpeg", ".gif"}
	if a.PDF {
		parts = append(parts, constants.MIMEPDF, ".pdf")
	}
	return strings.Join(parts, ",")
}
