package renderer

import (
	"fmt"
	"image"
	"time"

	"github.com/richinsley/goshadermixer/graphics"
	"github.com/richinsley/goshadermixer/library"
)

// Default thumbnail size, 16:9.
const (
	ThumbnailWidth  = 200
	ThumbnailHeight = 112
)

var thumbnailEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Thumbnail renders a single frame of asset at shader time at into a
// temporary w x h target and reads it back. Every GPU object it creates is
// released before it returns. A zero w or h uses the default size.
func Thumbnail(dev graphics.Device, asset library.Asset, w, h int, at time.Duration) (*image.RGBA, error) {
	if w <= 0 || h <= 0 {
		w, h = ThumbnailWidth, ThumbnailHeight
	}
	s, err := NewSurface(dev, w, h)
	if err != nil {
		return nil, fmt.Errorf("thumbnail %s: %w", asset.ID, err)
	}
	defer s.Release()

	if err := s.Load(asset.Source, asset.Provenance, 0); err != nil {
		return nil, fmt.Errorf("thumbnail %s: %w", asset.ID, err)
	}
	s.epoch, s.last, s.started = thumbnailEpoch, thumbnailEpoch, true
	s.Render(thumbnailEpoch.Add(at), TickInput{Playing: true})
	return s.Frame(), nil
}
