package renderer

import (
	"fmt"

	"github.com/richinsley/goshadermixer/graphics"
)

// Buffer holds two render targets for double-buffering, so a pass can
// sample the frame it produced on the previous tick.
type Buffer struct {
	dev        graphics.Device
	targets    [2]graphics.Target
	readIndex  int // result of the previous frame
	writeIndex int // target for the current frame
}

// NewBuffer creates both targets. Nothing is left allocated on failure.
func NewBuffer(dev graphics.Device, width, height int) (*Buffer, error) {
	b := &Buffer{dev: dev, readIndex: 0, writeIndex: 1}
	for i := 0; i < 2; i++ {
		t, err := dev.CreateTarget(width, height)
		if err != nil {
			for j := 0; j < i; j++ {
				dev.DeleteTarget(b.targets[j])
			}
			return nil, fmt.Errorf("render target %d: %w", i, err)
		}
		b.targets[i] = t
	}
	return b, nil
}

// WriteTarget is the target the current frame is drawn into.
func (b *Buffer) WriteTarget() graphics.Target { return b.targets[b.writeIndex] }

// ReadTexture is the texture holding the previous frame.
func (b *Buffer) ReadTexture() uint32 { return b.targets[b.readIndex].Texture }

// SwapBuffers toggles the read/write indices. Call it after drawing.
func (b *Buffer) SwapBuffers() {
	b.readIndex, b.writeIndex = b.writeIndex, b.readIndex
}

func (b *Buffer) Size() (int, int) {
	return b.targets[0].Width, b.targets[0].Height
}

func (b *Buffer) Destroy() {
	for i := range b.targets {
		if b.targets[i].FBO != 0 || b.targets[i].Texture != 0 {
			b.dev.DeleteTarget(b.targets[i])
		}
		b.targets[i] = graphics.Target{}
	}
}
