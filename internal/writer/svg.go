package writer

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/pagecap/pagecap/internal/orchestrate"
)

const svgDocument = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%d" height="%d" viewBox="0 0 %d %d">
  <image width="%d" height="%d" xlink:href="data:image/png;base64,%s"/>
</svg>
`

// writeSVG renders the page's current paint state into a vector canvas sized
// to the negotiated view size. The engine has no vector rasterizer, so the
// canvas embeds the full-content bitmap.
func (w *Writer) writeSVG(ctx context.Context, path string, size orchestrate.ViewSize) error {
	data, err := w.enc.Screenshot(ctx, "png", 0, true)
	if err != nil {
		return err
	}

	doc := fmt.Sprintf(svgDocument,
		size.Width, size.Height,
		size.Width, size.Height,
		size.Width, size.Height,
		base64.StdEncoding.EncodeToString(data))

	return writeFileFatal(path, []byte(doc))
}
