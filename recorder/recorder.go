// Package recorder captures composited frames into a video artifact.
package recorder

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/richinsley/goshadermixer/logging"
)

// queueFrames is the encoder backlog tolerated before frames are dropped.
const queueFrames = 8

// Artifact describes a finished recording.
type Artifact struct {
	Path      string
	Duration  time.Duration
	Frames    int64 // frame slots encoded, repeats included
	Dropped   int64 // slots whose frame did not fit the queue
	Size      int64
	Quality   Quality
	FPS       int
	Container string
	Codec     string
}

// FileName returns the artifact's base name.
func (a Artifact) FileName() string {
	return filepath.Base(a.Path)
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithEncoder replaces the ffmpeg encoder.
func WithEncoder(f EncoderFactory) Option {
	return func(r *Recorder) { r.newEncoder = f }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithDir sets the directory artifacts are written to.
func WithDir(dir string) Option {
	return func(r *Recorder) { r.dir = dir }
}

// slotFrame is a packed frame bound to its slot on the session timeline.
type slotFrame struct {
	slot int64
	px   []byte
}

type session struct {
	start   time.Time
	fps     int
	quality Quality
	path    string
	next    int64 // index of the next frame slot
	dropped int64
	frames  chan slotFrame
	done    chan error

	// set before frames is closed
	total int64
	// owned by write until done is signalled
	written int64
	size    int64
}

// Recorder samples frames at a fixed rate while a session is active.
// Start, Sample and Stop must be called from one goroutine.
type Recorder struct {
	width, height int
	dir           string
	newEncoder    EncoderFactory
	now           func() time.Time
	s             *session
}

// New creates a Recorder for frames of w x h pixels.
func New(w, h int, opts ...Option) *Recorder {
	r := &Recorder{
		width:      w,
		height:     h,
		dir:        os.TempDir(),
		newEncoder: FFmpeg(""),
		now:        time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Active reports whether a session is running.
func (r *Recorder) Active() bool {
	return r.s != nil
}

// Elapsed returns wall-clock time since Start, or zero when inactive.
func (r *Recorder) Elapsed() time.Duration {
	if r.s == nil {
		return 0
	}
	return r.now().Sub(r.s.start)
}

func artifactName(t time.Time) string {
	iso := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return "shader-mix-" + strings.ReplaceAll(iso, ":", "-") + "." + Container
}

// Start begins a session. It does nothing while a session is active.
func (r *Recorder) Start(fps int, q Quality) error {
	if r.s != nil {
		return nil
	}
	fps = ClampFPS(fps)
	start := r.now()
	path := filepath.Join(r.dir, artifactName(start))

	enc, err := r.newEncoder(EncoderConfig{
		Path:    path,
		Width:   r.width,
		Height:  r.height,
		FPS:     fps,
		Bitrate: q.Bitrate(),
	})
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		logging.Logger().Warn("recording unavailable", "err", err)
		return err
	}

	s := &session{
		start:   start,
		fps:     fps,
		quality: q,
		path:    path,
		frames:  make(chan slotFrame, queueFrames),
		done:    make(chan error, 1),
	}
	go s.write(enc)
	r.s = s
	logging.Logger().Info("recording started", "fps", fps, "quality", q, "path", path)
	return nil
}

// write drains the queue into enc. Slots missing from the queue repeat the
// previous frame so the encoded timeline stays on the wall clock. After a
// write error the remaining frames are discarded so Sample never blocks.
func (s *session) write(enc Encoder) {
	var (
		werr error
		prev []byte
		next int64
	)
	emit := func(px []byte) {
		if werr == nil {
			werr = enc.WriteFrame(px)
		}
		next++
	}
	for f := range s.frames {
		fill := prev
		if fill == nil {
			fill = f.px
		}
		for next < f.slot {
			emit(fill)
		}
		emit(f.px)
		prev = f.px
	}
	if prev != nil {
		for next < s.total {
			emit(prev)
		}
	}
	s.written = next
	size, cerr := enc.Close()
	s.size = size
	s.done <- errors.Join(werr, cerr)
}

// Sample offers the current output frame. Frames are taken at the session
// rate measured on the wall clock. Sample never blocks: a frame that does
// not fit the queue is dropped and its slots repeat the previous frame.
func (r *Recorder) Sample(frame *image.RGBA) {
	s := r.s
	if s == nil || frame == nil {
		return
	}
	due := int64(r.now().Sub(s.start).Seconds()*float64(s.fps)) + 1
	if s.next >= due {
		return
	}
	f := slotFrame{slot: due - 1, px: packRGBA(frame, r.width, r.height)}
	select {
	case s.frames <- f:
	default:
		s.dropped += due - s.next
	}
	s.next = due
}

// packRGBA copies frame into a tightly packed buffer of w x h pixels.
func packRGBA(frame *image.RGBA, w, h int) []byte {
	out := make([]byte, w*h*4)
	b := frame.Bounds()
	if b.Dx() == w && b.Dy() == h && frame.Stride == w*4 {
		copy(out, frame.Pix)
		return out
	}
	rows := min(h, b.Dy())
	cols := min(w, b.Dx()) * 4
	for y := 0; y < rows; y++ {
		o := frame.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out[y*w*4:], frame.Pix[o:o+cols])
	}
	return out
}

// Stop ends the session and waits for the encoder to finish. It returns a
// zero Artifact while inactive.
func (r *Recorder) Stop() (Artifact, error) {
	s := r.s
	if s == nil {
		return Artifact{}, nil
	}
	r.s = nil
	dur := r.now().Sub(s.start)
	s.total = max(s.next, int64(math.Round(dur.Seconds()*float64(s.fps))))
	close(s.frames)
	err := <-s.done

	a := Artifact{
		Path:      s.path,
		Duration:  dur,
		Frames:    s.written,
		Dropped:   s.dropped,
		Size:      s.size,
		Quality:   s.quality,
		FPS:       s.fps,
		Container: Container,
		Codec:     Codec,
	}
	if err != nil {
		logging.Logger().Warn("recording failed", "path", s.path, "err", err)
		return a, fmt.Errorf("stop recording: %w", err)
	}
	logging.Logger().Info("recording finished", "path", a.Path, "duration", a.Duration, "frames", a.Frames, "dropped", a.Dropped, "bytes", a.Size)
	return a, nil
}
