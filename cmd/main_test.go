package main

import (
	"bytes"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/richinsley/goshadermixer/graphics/graphicstest"
	"github.com/richinsley/goshadermixer/library"
	"github.com/richinsley/goshadermixer/logging"
	"github.com/richinsley/goshadermixer/mixer"
	"github.com/richinsley/goshadermixer/options"
)

func TestScalePointer(t *testing.T) {
	tests := []struct {
		name       string
		p          [4]float32
		fbW, fbH   int
		outW, outH int
		want       [4]float32
	}{
		{"hidpi", [4]float32{200, 100, -40, -20}, 2560, 1440, 1280, 720, [4]float32{100, 50, -20, -10}},
		{"same", [4]float32{1, 2, 3, 4}, 640, 480, 640, 480, [4]float32{1, 2, 3, 4}},
		{"minimized", [4]float32{1, 2, 3, 4}, 0, 0, 640, 480, [4]float32{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scalePointer(tt.p, tt.fbW, tt.fbH, tt.outW, tt.outH); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithoutSlot(t *testing.T) {
	in := []options.InputConfig{{Slot: 1, Shader: "a"}, {Slot: 2, Shader: "b"}, {Slot: 1, File: "c"}}
	got := withoutSlot(in, 1)
	if len(got) != 1 || got[0].Shader != "b" {
		t.Errorf("withoutSlot = %+v", got)
	}
}

func TestSaveThumbnail(t *testing.T) {
	dev := graphicstest.New()
	m, err := mixer.New(dev, library.Empty(), mixer.WithSize(8, 6))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	m.Library().Add(library.Asset{ID: "white", Source: "void mainImage(out vec4 c, in vec2 p) { c = vec4(1.0); }"})

	dir := t.TempDir()
	path, err := saveThumbnail(m, "white", dir)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "white.png") {
		t.Errorf("path = %q", path)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 200 || cfg.Height != 112 {
		t.Errorf("thumbnail is %dx%d", cfg.Width, cfg.Height)
	}

	if _, err := saveThumbnail(m, "", dir); err == nil {
		t.Error("empty input accepted")
	}
}

func TestLogFailure(t *testing.T) {
	var buf bytes.Buffer
	prev := logging.Logger()
	logging.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer logging.SetLogger(prev)

	logFailure("clear input", 2, nil)
	if buf.Len() != 0 {
		t.Errorf("nil error logged: %s", buf.String())
	}
	logFailure("clear input", 2, mixer.ErrInputRange)
	out := buf.String()
	if !strings.Contains(out, "clear input failed") || !strings.Contains(out, "input=3") || !strings.Contains(out, mixer.ErrInputRange.Error()) {
		t.Errorf("log = %q", out)
	}
}
