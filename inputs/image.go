package inputs

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/richinsley/goshadermixer/graphics"
	"github.com/richinsley/goshadermixer/logging"
	"github.com/richinsley/goshadermixer/renderer"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ImageChannel is a still texture.
type ImageChannel struct {
	dev     graphics.Device
	texture uint32
	w, h    int
}

// NewImageChannel uploads img. With vflip set the top row of img lands at
// v = 1, which is what Shadertoy shaders expect.
func NewImageChannel(dev graphics.Device, img image.Image, vflip bool) *ImageChannel {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	if vflip {
		rgba = flipRows(rgba)
	}
	c := &ImageChannel{dev: dev, w: b.Dx(), h: b.Dy()}
	c.texture = dev.CreateTexture(c.w, c.h)
	dev.UploadTexture(c.texture, rgba)
	return c
}

// LoadImageChannel decodes a PNG, JPEG, GIF, BMP or WebP file.
func LoadImageChannel(dev graphics.Device, path string, vflip bool) (*ImageChannel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	logging.Logger().Info("image channel loaded", "path", path, "format", format, "size", img.Bounds().Size())
	return NewImageChannel(dev, img, vflip), nil
}

func flipRows(src *image.RGBA) *image.RGBA {
	h := src.Rect.Dy()
	row := src.Rect.Dx() * 4
	dst := image.NewRGBA(src.Rect)
	for y := 0; y < h; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+row], src.Pix[(h-1-y)*src.Stride:])
	}
	return dst
}

// Update does nothing; the texture never changes.
func (c *ImageChannel) Update() {}

func (c *ImageChannel) Channel() renderer.Channel {
	return renderer.Channel{Texture: c.texture, Width: c.w, Height: c.h}
}

func (c *ImageChannel) Release() {
	if c.texture != 0 {
		c.dev.DeleteTexture(c.texture)
		c.texture = 0
	}
}
