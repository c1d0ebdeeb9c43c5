package compositor

import (
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"github.com/richinsley/goshadermixer/logging"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	placeholderBackground = "#1f2937"
	placeholderText       = "#9333ea"
	placeholderFontSize   = 16.0
	referenceWidth        = 1280.0

	// EmptyMessage is drawn when no input has an asset assigned.
	EmptyMessage = "Add shaders to inputs to see preview"
)

// LoadingMessage is drawn in single layout while the active input has no frame.
func LoadingMessage(active int) string {
	return fmt.Sprintf("Input %d is loading...", active+1)
}

var (
	fontOnce   sync.Once
	fontSource *text.FontSource
)

func placeholderFont() *text.FontSource {
	fontOnce.Do(func() {
		src, err := text.NewFontSource(goregular.TTF)
		if err != nil {
			logging.Logger().Warn("placeholder font unavailable", "err", err)
			return
		}
		fontSource = src
	})
	return fontSource
}

// renderPlaceholder draws a message card the size of the canvas.
func renderPlaceholder(w, h int, msg string) *image.RGBA {
	dc := gg.NewContext(w, h)
	defer dc.Close()

	dc.SetHexColor(placeholderBackground)
	dc.DrawRectangle(0, 0, float64(w), float64(h))
	if err := dc.Fill(); err != nil {
		logging.Logger().Debug("placeholder fill", "err", err)
	}

	if src := placeholderFont(); src != nil {
		size := placeholderFontSize * float64(w) / referenceWidth
		if size < 8 {
			size = 8
		}
		dc.SetFont(src.Face(size))
		dc.SetHexColor(placeholderText)
		dc.DrawStringAnchored(msg, float64(w)/2, float64(h)/2, 0.5, 0.5)
	}

	img := dc.Image()
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}
