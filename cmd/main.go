package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	glfw "github.com/go-gl/glfw/v3.3/glfw"
	"github.com/richinsley/goshadermixer/audio"
	"github.com/richinsley/goshadermixer/compositor"
	"github.com/richinsley/goshadermixer/gldevice"
	"github.com/richinsley/goshadermixer/glfwcontext"
	"github.com/richinsley/goshadermixer/inputs"
	"github.com/richinsley/goshadermixer/library"
	"github.com/richinsley/goshadermixer/logging"
	"github.com/richinsley/goshadermixer/mixer"
	"github.com/richinsley/goshadermixer/options"
	"github.com/richinsley/goshadermixer/recorder"
)

const (
	title = "goshadermixer"
	// shader time thumbnails are taken at
	thumbnailTime = 2 * time.Second
)

type releaser interface{ Release() }

func main() {
	opts := options.Register(flag.CommandLine)
	flag.Parse()
	if *opts.Help {
		fmt.Println("Live shader mixer")
		flag.PrintDefaults()
		return
	}

	level, err := opts.Level()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logging.SetLogger(logger)

	if err := run(opts); err != nil {
		logger.Error("goshadermixer failed", "err", err)
		os.Exit(1)
	}
}

func run(opts *options.MixerOptions) error {
	log := logging.Logger()

	session := &options.Session{}
	if *opts.Session != "" {
		s, err := options.LoadSession(*opts.Session)
		if err != nil {
			return err
		}
		session = s
	}
	opts.Overrides(session)

	lib := library.New()
	if *opts.Fetch != "" {
		client := &library.ShadertoyClient{APIKey: *opts.APIKey}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		asset, err := client.Fetch(ctx, *opts.Fetch)
		cancel()
		if err != nil {
			return fmt.Errorf("fetch %s: %w", *opts.Fetch, err)
		}
		asset = lib.Add(asset)
		log.Info("fetched shader", "id", asset.ID, "name", asset.Name)
		session.Inputs = append(withoutSlot(session.Inputs, 1), options.InputConfig{Slot: 1, Shader: asset.ID})
	}

	if err := glfwcontext.InitGraphics(); err != nil {
		return err
	}
	defer glfwcontext.TerminateGraphics()

	win, err := glfwcontext.New(*opts.Width, *opts.Height, title, true)
	if err != nil {
		return err
	}
	defer win.Shutdown()
	win.MakeCurrent()
	glfw.SwapInterval(1)

	dev, err := gldevice.New(false)
	if err != nil {
		return err
	}
	defer dev.Release()

	sw, sh := opts.SurfaceSize()
	mixOpts := []mixer.Option{
		mixer.WithSize(*opts.Width, *opts.Height),
		mixer.WithSurfaceSize(sw, sh),
		mixer.WithRecorder(recorderOptions(opts)...),
	}

	var channels []releaser
	defer func() {
		for _, c := range channels {
			c.Release()
		}
	}()
	if src := audioDevice(opts); src != nil {
		ch := inputs.NewSpectrumChannel(dev, src)
		channels = append(channels, ch)
		mixOpts = append(mixOpts, mixer.WithChannel(1, ch))
	}
	if *opts.ImageChannel != "" {
		ch, err := inputs.LoadImageChannel(dev, *opts.ImageChannel, true)
		if err != nil {
			return err
		}
		channels = append(channels, ch)
		mixOpts = append(mixOpts, mixer.WithChannel(2, ch))
	}

	m, err := mixer.New(dev, lib, mixOpts...)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := session.Apply(m); err != nil {
		log.Warn("session partially applied", "err", err)
	}

	bindKeys(win, m, thumbnailDir(opts))
	win.OnDrop(func(paths []string) {
		for _, p := range paths {
			dropFile(m, p)
		}
	})

	lastTitle := time.Time{}
	for !win.ShouldClose() {
		fbW, fbH := win.GetFramebufferSize()
		now := time.Now()
		frame := m.Tick(now, scalePointer(win.GetMouseInput(), fbW, fbH, *opts.Width, *opts.Height))
		if err := dev.Present(frame, fbW, fbH); err != nil {
			return err
		}
		if now.Sub(lastTitle) >= time.Second/2 {
			win.SetTitle(windowTitle(m))
			lastTitle = now
		}
		win.EndFrame()
	}
	return nil
}

func thumbnailDir(opts *options.MixerOptions) string {
	if *opts.OutputDir != "" {
		return *opts.OutputDir
	}
	return os.TempDir()
}

// saveThumbnail renders asset id at thumbnailTime and writes it to dir as
// <id>.png.
func saveThumbnail(m *mixer.Mixer, id, dir string) (string, error) {
	if id == "" {
		return "", errors.New("input is empty")
	}
	img, err := m.Thumbnail(id, 0, 0, thumbnailTime)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, id+".png")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func withoutSlot(in []options.InputConfig, slot int) []options.InputConfig {
	var out []options.InputConfig
	for _, c := range in {
		if c.Slot != slot {
			out = append(out, c)
		}
	}
	return out
}

func recorderOptions(opts *options.MixerOptions) []recorder.Option {
	ro := []recorder.Option{recorder.WithEncoder(recorder.FFmpeg(*opts.FFmpegPath))}
	if *opts.OutputDir != "" {
		ro = append(ro, recorder.WithDir(*opts.OutputDir))
	}
	return ro
}

func audioDevice(opts *options.MixerOptions) audio.Device {
	log := logging.Logger()
	switch *opts.AudioInput {
	case "":
		return nil
	case "mic":
		mic, err := audio.NewMicrophone(audio.DefaultSampleRate)
		if err != nil {
			log.Warn("microphone unavailable, using silence", "err", err)
			return audio.NewNullDevice(audio.DefaultSampleRate)
		}
		return mic
	default:
		dev, err := audio.NewFileDevice(*opts.AudioInput, *opts.FFmpegPath, audio.DefaultSampleRate)
		if err != nil {
			log.Warn("audio file unavailable, using silence", "err", err)
			return audio.NewNullDevice(audio.DefaultSampleRate)
		}
		return dev
	}
}

// scalePointer maps framebuffer pixels to output pixels. The sign of the
// click coordinates is kept.
func scalePointer(p [4]float32, fbW, fbH, outW, outH int) [4]float32 {
	if fbW <= 0 || fbH <= 0 {
		return p
	}
	sx := float32(outW) / float32(fbW)
	sy := float32(outH) / float32(fbH)
	return [4]float32{p[0] * sx, p[1] * sy, p[2] * sx, p[3] * sy}
}

func windowTitle(m *mixer.Mixer) string {
	st := m.State()
	t := fmt.Sprintf("%s  [%s]  input %d", title, st.Layout, st.ActiveInput+1)
	if !st.Playing {
		t += "  paused"
	}
	if st.Recording {
		t += fmt.Sprintf("  REC %s", m.RecordingElapsed().Truncate(time.Second))
	}
	if err := m.InputError(st.ActiveInput); err != nil {
		t += "  (shader error)"
	}
	return t
}

func dropFile(m *mixer.Mixer, path string) {
	log := logging.Logger()
	asset, err := m.Library().ImportFile(path)
	if err != nil {
		var fe *library.ImportFormatError
		if errors.As(err, &fe) {
			log.Warn("unsupported file dropped", "path", path, "reason", fe.Reason)
		} else {
			log.Warn("import failed", "path", path, "err", err)
		}
		return
	}
	active := m.State().ActiveInput
	if err := m.AssignShader(active, asset); err != nil {
		log.Warn("assign failed", "input", active+1, "err", err)
		return
	}
	log.Info("imported shader", "input", active+1, "name", asset.Name, "id", asset.ID)
}

// logFailure logs err from a key action on input, if there is one.
func logFailure(action string, input int, err error) {
	if err != nil {
		logging.Logger().Warn(action+" failed", "input", input+1, "err", err)
	}
}

// bindKeys wires the keyboard controls:
//
//	1-4        show one input full screen
//	Tab        next active input
//	Q / B / S  quad, stack (blend) and split layouts
//	V          toggle active input visibility
//	M          next blend mode for the active input
//	E          toggle effects on the active input
//	D          log the active input's render stats
//	P          save a thumbnail of the active input's shader to dir
//	Space      play / pause
//	R          start / stop recording
//	Delete     clear the active input
func bindKeys(win *glfwcontext.Context, m *mixer.Mixer, dir string) {
	log := logging.Logger()
	for i, key := range []glfw.Key{glfw.Key1, glfw.Key2, glfw.Key3, glfw.Key4} {
		win.RegisterKeyCallback(key, func() { logFailure("switch input", i, m.SwitchToInput(i)) })
	}
	win.RegisterKeyCallback(glfw.KeyTab, func() {
		next := (m.State().ActiveInput + 1) % mixer.NumInputs
		logFailure("select input", next, m.SetActiveInput(next))
	})
	win.RegisterKeyCallback(glfw.KeyQ, func() { m.SetLayout(compositor.Quad) })
	win.RegisterKeyCallback(glfw.KeyB, m.EnableBlending)
	win.RegisterKeyCallback(glfw.KeyS, func() { m.SetLayout(compositor.Split) })
	win.RegisterKeyCallback(glfw.KeyV, func() {
		a := m.State().ActiveInput
		logFailure("toggle visibility", a, m.ToggleInputVisibility(a))
	})
	win.RegisterKeyCallback(glfw.KeyM, func() {
		st := m.State()
		a := st.ActiveInput
		modes := compositor.BlendModes()
		next := modes[(int(st.Inputs[a].Blend)+1)%len(modes)]
		if err := m.SetInputProperty(a, mixer.PropBlendMode, next); err != nil {
			logFailure("set blend mode", a, err)
			return
		}
		log.Info("blend mode", "input", a+1, "mode", next)
	})
	win.RegisterKeyCallback(glfw.KeyE, func() {
		st := m.State()
		a := st.ActiveInput
		logFailure("toggle effects", a, m.SetInputProperty(a, mixer.PropEffectsEnabled, !st.Inputs[a].EffectsEnabled))
	})
	win.RegisterKeyCallback(glfw.KeyD, func() {
		a := m.State().ActiveInput
		st, err := m.InputStats(a)
		if err != nil {
			logFailure("stats", a, err)
			return
		}
		log.Info("input stats", "input", a+1, "frames", st.Frames, "fps", st.FPS, "frame_time", st.FrameTime, "uniforms", st.Uniforms)
	})
	win.RegisterKeyCallback(glfw.KeyP, func() {
		a := m.State().ActiveInput
		path, err := saveThumbnail(m, m.State().Inputs[a].AssetID, dir)
		if err != nil {
			logFailure("thumbnail", a, err)
			return
		}
		log.Info("thumbnail saved", "input", a+1, "path", path)
	})
	win.RegisterKeyCallback(glfw.KeySpace, func() { m.SetPlaying(!m.State().Playing) })
	win.RegisterKeyCallback(glfw.KeyDelete, func() {
		a := m.State().ActiveInput
		logFailure("clear input", a, m.ClearInput(a))
	})
	win.RegisterKeyCallback(glfw.KeyR, func() {
		st := m.State()
		if st.Recording {
			a, err := m.StopRecording()
			if err != nil {
				log.Error("recording failed", "err", err)
				return
			}
			log.Info("recording saved", "path", a.Path, "duration", a.Duration, "frames", a.Frames, "dropped", a.Dropped, "bytes", a.Size)
			return
		}
		if err := m.StartRecording(st.OutputQuality, st.OutputFPS); err != nil {
			log.Warn("cannot record", "err", err)
		}
	})
}
