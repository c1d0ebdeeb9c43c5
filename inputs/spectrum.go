// Package inputs provides extra shader channels: the audio spectrum texture
// and still images. Each one owns a texture on a graphics.Device and is
// refreshed once per tick on the render thread.
package inputs

import (
	"image"
	"math"
	"sync"

	"github.com/mjibson/go-dsp/fft"
	"github.com/richinsley/goshadermixer/audio"
	"github.com/richinsley/goshadermixer/graphics"
	"github.com/richinsley/goshadermixer/logging"
	"github.com/richinsley/goshadermixer/renderer"
)

const (
	// SpectrumWidth and SpectrumHeight are the size of the audio texture:
	// row 0 is the spectrum, row 1 the waveform.
	SpectrumWidth  = 512
	SpectrumHeight = 2

	// A 2048 point FFT gives 1024 bins, of which the lowest 512 are kept.
	fftSize     = 2048
	historySize = fftSize * 4

	minDecibels = -100.0
	maxDecibels = -30.0
	smoothing   = 0.8
)

// Analyzer turns a rolling window of samples into spectrum and waveform
// rows. It is not safe for concurrent use.
type Analyzer struct {
	window []float64
	input  []float64
	last   []float64
}

func NewAnalyzer() *Analyzer {
	a := &Analyzer{
		window: blackmanWindow(fftSize),
		input:  make([]float64, fftSize),
		last:   make([]float64, SpectrumWidth),
	}
	for i := range a.last {
		a.last[i] = minDecibels
	}
	return a
}

// Analyze fills img (SpectrumWidth x SpectrumHeight) from the newest
// fftSize samples. Values go in the red channel.
func (a *Analyzer) Analyze(samples []float32, img *image.RGBA) {
	for i := range a.input {
		a.input[i] = float64(samples[i]) * a.window[i]
	}
	bins := fft.FFTReal(a.input)

	for i := 0; i < SpectrumWidth; i++ {
		mag := math.Hypot(real(bins[i]), imag(bins[i])) * (2.0 / fftSize)
		db := 20 * math.Log10(mag+1e-9)
		a.last[i] = smoothing*a.last[i] + (1-smoothing)*db
		v := (a.last[i] - minDecibels) / (maxDecibels - minDecibels)
		setRed(img, i, 0, v)
	}

	wave := samples[len(samples)-SpectrumWidth:]
	for i, s := range wave {
		setRed(img, i, 1, (float64(s)+1)*0.5)
	}
}

func setRed(img *image.RGBA, x, y int, v float64) {
	v = math.Max(0, math.Min(1, v))
	o := img.PixOffset(x, y)
	img.Pix[o] = uint8(math.Round(v * 255))
	img.Pix[o+1] = 0
	img.Pix[o+2] = 0
	img.Pix[o+3] = 255
}

// blackmanWindow is the window Shadertoy applies before its FFT.
func blackmanWindow(size int) []float64 {
	const a0, a1, a2 = 0.42, 0.5, 0.08
	w := make([]float64, size)
	inv := 1.0 / float64(size-1)
	for i := range w {
		t := float64(i) * inv
		w[i] = a0 - a1*math.Cos(2*math.Pi*t) + a2*math.Cos(4*math.Pi*t)
	}
	return w
}

// SpectrumChannel feeds an audio.Device through an Analyzer into a texture.
type SpectrumChannel struct {
	dev      graphics.Device
	audio    audio.Device
	texture  uint32
	analyzer *Analyzer
	img      *image.RGBA

	mu      sync.Mutex
	history []float32
	pos     int
	done    chan struct{}
}

// NewSpectrumChannel starts src and creates the texture. A device that
// fails to start is replaced by silence.
func NewSpectrumChannel(dev graphics.Device, src audio.Device) *SpectrumChannel {
	c := &SpectrumChannel{
		dev:      dev,
		audio:    src,
		texture:  dev.CreateTexture(SpectrumWidth, SpectrumHeight),
		analyzer: NewAnalyzer(),
		img:      image.NewRGBA(image.Rect(0, 0, SpectrumWidth, SpectrumHeight)),
		history:  make([]float32, historySize),
		done:     make(chan struct{}),
	}
	chunks, err := src.Start()
	if err != nil {
		logging.Logger().Warn("audio input unavailable, using silence", "err", err)
		c.audio = audio.NewNullDevice(src.SampleRate())
		chunks = nil
	}
	if chunks == nil {
		close(c.done)
	} else {
		go c.listen(chunks)
	}
	return c
}

func (c *SpectrumChannel) listen(chunks <-chan []float32) {
	defer close(c.done)
	for chunk := range chunks {
		c.push(chunk)
	}
	logging.Logger().Debug("audio input closed")
}

func (c *SpectrumChannel) push(chunk []float32) {
	c.mu.Lock()
	for _, s := range chunk {
		c.history[c.pos] = s
		c.pos = (c.pos + 1) % historySize
	}
	c.mu.Unlock()
}

func (c *SpectrumChannel) recent(n int) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float32, n)
	for i := range out {
		out[i] = c.history[(c.pos-n+i+historySize)%historySize]
	}
	return out
}

// Update analyzes the newest samples and uploads the texture.
func (c *SpectrumChannel) Update() {
	c.analyzer.Analyze(c.recent(fftSize), c.img)
	c.dev.UploadTexture(c.texture, c.img)
}

func (c *SpectrumChannel) Channel() renderer.Channel {
	return renderer.Channel{Texture: c.texture, Width: SpectrumWidth, Height: SpectrumHeight}
}

func (c *SpectrumChannel) SampleRate() int { return c.audio.SampleRate() }

// Release stops the audio device and deletes the texture.
func (c *SpectrumChannel) Release() {
	if c.texture == 0 {
		return
	}
	if err := c.audio.Stop(); err != nil {
		logging.Logger().Warn("stopping audio input", "err", err)
	}
	<-c.done
	c.dev.DeleteTexture(c.texture)
	c.texture = 0
}
