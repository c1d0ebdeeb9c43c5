package recorder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/richinsley/goshadermixer/logging"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Container and codec of every artifact.
const (
	Container = "webm"
	Codec     = "vp9"
)

// ErrUnavailable is returned when no encoder can be started.
var ErrUnavailable = errors.New("recording unavailable")

// EncoderConfig describes the stream handed to an Encoder.
type EncoderConfig struct {
	Path    string
	Width   int
	Height  int
	FPS     int
	Bitrate int
}

// Encoder consumes tightly packed RGBA frames. WriteFrame and Close are
// called from the recorder's writer goroutine only.
type Encoder interface {
	WriteFrame(pixels []byte) error
	// Close flushes the stream and reports the artifact size in bytes.
	Close() (int64, error)
}

// EncoderFactory starts an encoder for one session.
type EncoderFactory func(cfg EncoderConfig) (Encoder, error)

// FFmpeg returns a factory that encodes WebM/VP9 through an ffmpeg
// process. An empty path looks ffmpeg up on PATH.
func FFmpeg(path string) EncoderFactory {
	return func(cfg EncoderConfig) (Encoder, error) {
		return newFFmpegEncoder(path, cfg)
	}
}

type ffmpegEncoder struct {
	path string
	pw   *io.PipeWriter
	errc chan error
}

func newFFmpegEncoder(bin string, cfg EncoderConfig) (*ffmpegEncoder, error) {
	lookup := bin
	if lookup == "" {
		lookup = "ffmpeg"
	}
	if _, err := exec.LookPath(lookup); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	inputArgs := ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"framerate": cfg.FPS,
	}
	outputArgs := ffmpeg.KwArgs{
		"f":        Container,
		"c:v":      "libvpx-vp9",
		"b:v":      cfg.Bitrate,
		"pix_fmt":  "yuv420p",
		"deadline": "realtime",
		"cpu-used": 8,
		"r":        cfg.FPS,
	}

	pr, pw := io.Pipe()
	cmd := ffmpeg.Input("pipe:", inputArgs).
		Output(cfg.Path, outputArgs).
		OverWriteOutput().WithInput(pr).ErrorToStdOut()
	if bin != "" {
		cmd = cmd.SetFfmpegPath(bin)
	}

	e := &ffmpegEncoder{path: cfg.Path, pw: pw, errc: make(chan error, 1)}
	go func() {
		err := cmd.Run()
		// unblock a writer if ffmpeg exited early
		pr.CloseWithError(io.ErrClosedPipe)
		e.errc <- err
	}()
	logging.Logger().Info("ffmpeg encoder started", "path", cfg.Path, "size", inputArgs["s"], "fps", cfg.FPS, "bitrate", cfg.Bitrate)
	return e, nil
}

func (e *ffmpegEncoder) WriteFrame(pixels []byte) error {
	_, err := e.pw.Write(pixels)
	return err
}

func (e *ffmpegEncoder) Close() (int64, error) {
	e.pw.Close()
	if err := <-e.errc; err != nil {
		return 0, fmt.Errorf("ffmpeg: %w", err)
	}
	fi, err := os.Stat(e.path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
