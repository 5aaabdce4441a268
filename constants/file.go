package constants

import (
	"mime"
	"path/filepath"
	"strings"
)

// Source formats understood by the recognition pipeline.
const (
	IMAGE = "IMAGE"
	PDF   = "PDF"
)

// MIME types used on the wire and on rendered payloads.
const (
	MIMEPDF         = "application/pdf"
	MIMEPNG         = "image/png"
	MIMEOctetStream = "application/octet-stream"
)

// ImageExtensions holds the image extensions that are always accepted.
var ImageExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
}

// PDFExtensions holds the extensions accepted when PDF support is enabled.
var PDFExtensions = map[string]struct{}{
	"pdf": {},
}

var extMIME = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"pdf":  MIMEPDF,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ExtOf returns the normalized extension of a file name.
func ExtOf(name string) string {
	return NormalizeExt(filepath.Ext(name))
}

// MapExtToFormat maps a normalized extension to IMAGE or PDF, "" if unknown.
func MapExtToFormat(ext string) string {
	ext = NormalizeExt(ext)
	if _, ok := ImageExtensions[ext]; ok {
		return IMAGE
	}
	if _, ok := PDFExtensions[ext]; ok {
		return PDF
	}
	return ""
}

// MIMEForExt returns the canonical MIME type of a known extension.
func MIMEForExt(ext string) string {
	return extMIME[NormalizeExt(ext)]
}

// NormalizeMIME strips parameters and lowercases a content type.
// Empty and octet-stream values come back as "".
func NormalizeMIME(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(ct))
	}
	if mt == MIMEOctetStream {
		return ""
	}
	return mt
}

// IsPDFMIME reports whether the content type declares a PDF.
func IsPDFMIME(ct string) bool {
	return NormalizeMIME(ct) == MIMEPDF
}

// IsImageMIME reports whether the content type declares an image.
func IsImageMIME(ct string) bool {
	return strings.HasPrefix(NormalizeMIME(ct), "image/")
}
