package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sync"

	"github.com/richinsley/goshadermixer/logging"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// chunkSamples is the size of each chunk a FileDevice emits.
const chunkSamples = 1024

// FileDevice decodes an audio file with ffmpeg into mono float32 at real
// time rate.
type FileDevice struct {
	path       string
	ffmpegPath string
	sampleRate int

	mu     sync.Mutex
	pr     *io.PipeReader
	done   chan struct{}
	active bool
}

// NewFileDevice checks that ffmpeg is available. An empty ffmpegPath looks
// it up on PATH.
func NewFileDevice(path, ffmpegPath string, sampleRate int) (*FileDevice, error) {
	bin := ffmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("audio file input needs ffmpeg: %w", err)
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &FileDevice{path: path, ffmpegPath: ffmpegPath, sampleRate: sampleRate}, nil
}

func (d *FileDevice) Start() (<-chan []float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return nil, errors.New("audio file input already started")
	}

	pr, pw := io.Pipe()
	cmd := ffmpeg.Input(d.path, ffmpeg.KwArgs{"re": ""}).
		Output("pipe:", ffmpeg.KwArgs{
			"f":  "f32le",
			"ac": 1,
			"ar": d.sampleRate,
			"vn": "",
		}).
		WithOutput(pw)
	if d.ffmpegPath != "" {
		cmd = cmd.SetFfmpegPath(d.ffmpegPath)
	}

	chunks := make(chan []float32, chunkQueue)
	d.pr, d.done, d.active = pr, make(chan struct{}), true
	go func() {
		err := cmd.Run()
		pw.CloseWithError(err)
	}()
	go func() {
		defer close(d.done)
		defer close(chunks)
		if err := readChunks(pr, chunks); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			logging.Logger().Warn("audio file input ended", "path", d.path, "err", err)
		}
	}()
	logging.Logger().Info("audio file input started", "path", d.path, "rate", d.sampleRate)
	return chunks, nil
}

func (d *FileDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return nil
	}
	d.pr.CloseWithError(io.ErrClosedPipe)
	<-d.done
	d.active = false
	return nil
}

func (d *FileDevice) SampleRate() int { return d.sampleRate }

// readChunks decodes little-endian float32 samples from r into chunks of
// chunkSamples until r ends. Chunks the consumer has no room for are dropped.
// A trailing partial chunk is delivered.
func readChunks(r io.Reader, out chan<- []float32) error {
	br := bufio.NewReader(r)
	buf := make([]byte, chunkSamples*4)
	for {
		n, err := io.ReadFull(br, buf)
		if n >= 4 {
			chunk := make([]float32, n/4)
			for i := range chunk {
				chunk[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
			}
			offer(out, chunk)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
