// Package options holds the command-line options of the desktop host and
// the TOML session files it can load at startup.
package options

import (
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"github.com/richinsley/goshadermixer/mixer"
)

// MixerOptions are the host's command-line flags.
type MixerOptions struct {
	Help          *bool
	Width         *int
	Height        *int
	SurfaceWidth  *int
	SurfaceHeight *int
	Session       *string
	Inputs        [mixer.NumInputs]*string
	Layout        *string
	Quality       *string
	FPS           *int
	OutputDir     *string
	FFmpegPath    *string
	APIKey        *string
	Fetch         *string
	AudioInput    *string
	ImageChannel  *string
	LogLevel      *string
}

// Register defines the flags on fs.
func Register(fs *flag.FlagSet) *MixerOptions {
	o := &MixerOptions{
		Help:          fs.Bool("help", false, "Show help message"),
		Width:         fs.Int("width", mixer.DefaultWidth, "Width of the composed output"),
		Height:        fs.Int("height", mixer.DefaultHeight, "Height of the composed output"),
		SurfaceWidth:  fs.Int("surface-width", 0, "Width each input renders at (default: output width)"),
		SurfaceHeight: fs.Int("surface-height", 0, "Height each input renders at (default: output height)"),
		Session:       fs.String("session", "", "TOML session file describing inputs, effects and output"),
		Layout:        fs.String("layout", "", "Preview layout: quad, stack, split or single"),
		Quality:       fs.String("quality", "", "Recording quality: low, medium, high or ultra"),
		FPS:           fs.Int("fps", 0, "Recording frame rate (15-60)"),
		OutputDir:     fs.String("output-dir", "", "Directory recordings are written to (default: temp dir)"),
		FFmpegPath:    fs.String("ffmpeg", "", "Path to ffmpeg executable"),
		APIKey:        fs.String("apikey", "", "Shadertoy API key (from SHADERTOY_KEY env var if not set)"),
		Fetch:         fs.String("shadertoy", "", "Shadertoy ID or URL to fetch into input 1"),
		AudioInput:    fs.String("audio", "", `Audio for iChannel1: "mic" or an audio file path`),
		ImageChannel:  fs.String("image", "", "Image file bound to iChannel2"),
		LogLevel:      fs.String("log-level", "info", "Log level: debug, info, warn or error"),
	}
	for i := range o.Inputs {
		o.Inputs[i] = fs.String(fmt.Sprintf("input%d", i+1), "", fmt.Sprintf("Built-in shader ID or shader file for input %d", i+1))
	}
	return o
}

// Level parses LogLevel.
func (o *MixerOptions) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(*o.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log-level: %w", err)
	}
	return l, nil
}

// SurfaceSize returns the per-input render size, defaulting to the output
// size.
func (o *MixerOptions) SurfaceSize() (int, int) {
	w, h := *o.SurfaceWidth, *o.SurfaceHeight
	if w <= 0 || h <= 0 {
		return *o.Width, *o.Height
	}
	return w, h
}

// Overrides copies the flags that were set onto s. Flags win over the
// session file.
func (o *MixerOptions) Overrides(s *Session) {
	for i, in := range o.Inputs {
		if *in == "" {
			continue
		}
		s.setSource(i+1, *in)
	}
	if *o.Layout != "" {
		s.Layout = *o.Layout
	}
	if *o.Quality != "" {
		s.Output.Quality = *o.Quality
	}
	if *o.FPS != 0 {
		s.Output.FPS = *o.FPS
	}
}
