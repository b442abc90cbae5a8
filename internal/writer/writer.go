// Package writer commits a capture to disk in the resolved output format.
// Each format maps to exactly one strategy over the engine's encode
// primitives; the dispatch is an exhaustive switch over the closed format
// enumeration.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pagecap/pagecap/internal/format"
	"github.com/pagecap/pagecap/internal/orchestrate"
)

// defaultSize is the last-resort capture size when no geometry was ever
// established.
var defaultSize = orchestrate.ViewSize{Width: 800, Height: 600}

// Encoder is the engine surface the writer drives. Implemented by
// engine.Page.
type Encoder interface {
	// Screenshot captures the surface; id is png, jpeg or webp. fullPage
	// extends the capture to the whole content area.
	Screenshot(ctx context.Context, id string, quality int64, fullPage bool) ([]byte, error)
	PrintPDF(ctx context.Context) ([]byte, error)
	PlainText(ctx context.Context) (string, error)
	OuterHTML(ctx context.Context) (string, error)
}

// Writer performs the single capture of a run.
type Writer struct {
	enc    Encoder
	smooth bool
	quiet  bool
}

// New builds a writer. smooth selects higher-quality scaling for the raster
// fallback path.
func New(enc Encoder, smooth, quiet bool) *Writer {
	return &Writer{enc: enc, smooth: smooth, quiet: quiet}
}

// Write produces the output file. Print and raster/vector encode failures
// are returned as errors; text and markup file-write failures are tolerated
// for compatibility with the tool's historical behavior (logged, exit 0).
func (w *Writer) Write(ctx context.Context, f format.Format, path string, size orchestrate.ViewSize) error {
	if size.Empty() {
		size = defaultSize
	}

	switch f {
	case format.SVG:
		return w.writeSVG(ctx, path, size)
	case format.PDF, format.PS:
		return w.writePrint(ctx, path)
	case format.Text:
		return w.writeExtracted(ctx, path, w.enc.PlainText)
	case format.HTML:
		return w.writeExtracted(ctx, path, w.enc.OuterHTML)
	case format.PNG, format.JPEG, format.WebP, format.GIF, format.BMP, format.TIFF:
		return w.writeRaster(ctx, f, path, size)
	case format.Unresolved:
		return fmt.Errorf("unresolved output format for %q", path)
	default:
		return fmt.Errorf("unsupported output format %v", f)
	}
}

func (w *Writer) writePrint(ctx context.Context, path string) error {
	data, err := w.enc.PrintPDF(ctx)
	if err != nil {
		if !w.quiet {
			slog.Error("failed to print page", "path", path, "error", err)
		}
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// writeExtracted handles the text and markup paths. A file that cannot be
// written degrades to best effort: the run still finishes successfully.
func (w *Writer) writeExtracted(ctx context.Context, path string, extract func(context.Context) (string, error)) error {
	content, err := extract(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		slog.Warn("output file could not be written", "path", path, "error", err)
	}
	return nil
}
