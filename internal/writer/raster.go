package writer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // decode support for the fallback path

	"github.com/pagecap/pagecap/internal/format"
	"github.com/pagecap/pagecap/internal/orchestrate"
)

// lossyQuality is the encoder quality for jpeg/webp screenshots.
const lossyQuality = 90

// nativeID returns the engine's screenshot identifier when the format can be
// emitted directly, or "" when re-encoding is required.
func nativeID(f format.Format) string {
	switch f {
	case format.PNG, format.JPEG, format.WebP:
		return f.Identifier()
	}
	return ""
}

// writeRaster captures the surface as a bitmap. The fast path asks the
// engine for the target encoding directly; when that yields nothing usable,
// or the format needs a Go-side encoder, the page is captured into an
// offscreen buffer at the negotiated size and encoded locally.
func (w *Writer) writeRaster(ctx context.Context, f format.Format, path string, size orchestrate.ViewSize) error {
	if id := nativeID(f); id != "" {
		data, err := w.enc.Screenshot(ctx, id, lossyQuality, false)
		if err == nil && len(data) > 0 {
			return writeFileFatal(path, data)
		}
		slog.Warn("direct capture unusable, painting offscreen", "format", f, "error", err)
	}

	data, err := w.enc.Screenshot(ctx, "png", 0, true)
	if err != nil {
		return err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode captured image: %w", err)
	}

	img := w.paintToSize(src, size)

	var buf bytes.Buffer
	switch f {
	case format.PNG:
		err = png.Encode(&buf, img)
	case format.JPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: lossyQuality})
	case format.GIF:
		err = gif.Encode(&buf, img, &gif.Options{NumColors: 256})
	case format.BMP:
		err = bmp.Encode(&buf, img)
	case format.TIFF:
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		// webp has no Go encoder; the direct path is the only way to get it.
		return fmt.Errorf("no fallback encoder for %v", f)
	}
	if err != nil {
		return fmt.Errorf("encode %v: %w", f, err)
	}
	return writeFileFatal(path, buf.Bytes())
}

// paintToSize draws the captured image into a buffer of the target size.
// Smoothing hints select the interpolation kernel.
func (w *Writer) paintToSize(src image.Image, size orchestrate.ViewSize) image.Image {
	target := image.Rect(0, 0, int(size.Width), int(size.Height))
	if src.Bounds() == target {
		return src
	}

	dst := image.NewRGBA(target)
	scaler := draw.Scaler(draw.ApproxBiLinear)
	if w.smooth {
		scaler = draw.CatmullRom
	}
	scaler.Scale(dst, target, src, src.Bounds(), draw.Over, nil)
	return dst
}

func writeFileFatal(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write capture: %w", err)
	}
	return nil
}
