// Package format defines the closed set of capture output formats and the
// static table used to resolve a format from a file extension or an explicit
// identifier.
package format

import "strings"

// Format enumerates the supported output formats. The zero value is the
// Unresolved sentinel: it carries empty extension/identifier strings and must
// never reach the snapshot writer.
type Format int

const (
	Unresolved Format = iota
	SVG
	PDF
	PS
	Text
	HTML
	PNG
	JPEG
	WebP
	GIF
	BMP
	TIFF
)

type entry struct {
	format     Format
	extension  string
	identifier string
}

// table maps every non-sentinel format to exactly one extension/identifier
// pair. "itext" is the historical identifier for plain-text extraction.
var table = []entry{
	{SVG, ".svg", "svg"},
	{PDF, ".pdf", "pdf"},
	{PS, ".ps", "ps"},
	{Text, ".txt", "itext"},
	{HTML, ".html", "html"},
	{PNG, ".png", "png"},
	{JPEG, ".jpeg", "jpeg"},
	{WebP, ".webp", "webp"},
	{GIF, ".gif", "gif"},
	{BMP, ".bmp", "bmp"},
	{TIFF, ".tiff", "tiff"},
}

// aliases are extra path suffixes that resolve to an existing format.
var aliases = map[string]Format{
	".jpg": JPEG,
	".htm": HTML,
}

// FromPath infers a format from the output path's extension. Returns
// Unresolved when no table entry matches.
func FromPath(path string) Format {
	lower := strings.ToLower(path)
	for _, e := range table {
		if strings.HasSuffix(lower, e.extension) {
			return e.format
		}
	}
	for suffix, f := range aliases {
		if strings.HasSuffix(lower, suffix) {
			return f
		}
	}
	return Unresolved
}

// FromIdentifier resolves an explicit identifier (e.g. from --out-format).
// Matching is exact and case-insensitive; unknown identifiers yield
// Unresolved.
func FromIdentifier(id string) Format {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, e := range table {
		if e.identifier == id {
			return e.format
		}
	}
	return Unresolved
}

// Extension returns the canonical file extension for f, or "" for the
// sentinel.
func (f Format) Extension() string {
	for _, e := range table {
		if e.format == f {
			return e.extension
		}
	}
	return ""
}

// Identifier returns the encoder identifier for f, or "" for the sentinel.
func (f Format) Identifier() string {
	for _, e := range table {
		if e.format == f {
			return e.identifier
		}
	}
	return ""
}

// MIME returns the media type served for f.
func (f Format) MIME() string {
	switch f {
	case SVG:
		return "image/svg+xml"
	case PDF:
		return "application/pdf"
	case PS:
		return "application/postscript"
	case Text:
		return "text/plain; charset=utf-8"
	case HTML:
		return "text/html; charset=utf-8"
	case PNG:
		return "image/png"
	case JPEG:
		return "image/jpeg"
	case WebP:
		return "image/webp"
	case GIF:
		return "image/gif"
	case BMP:
		return "image/bmp"
	case TIFF:
		return "image/tiff"
	}
	return "application/octet-stream"
}

// Raster reports whether f is produced from a bitmap screenshot.
func (f Format) Raster() bool {
	switch f {
	case PNG, JPEG, WebP, GIF, BMP, TIFF:
		return true
	}
	return false
}

func (f Format) String() string {
	if f == Unresolved {
		return "unresolved"
	}
	return f.Identifier()
}
