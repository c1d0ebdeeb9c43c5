// Package audio provides sources of mono float32 sample chunks for the
// spectrum channel: the default microphone through portaudio, an audio file
// decoded by ffmpeg, or silence.
package audio

// Install portaudio before building:
// macos:	brew install portaudio
// debian:	sudo apt-get install portaudio19-dev
// windows:	pacman -S mingw-w64-x86_64-portaudio

// DefaultSampleRate is used when a device does not dictate its own.
const DefaultSampleRate = 44100

// chunkQueue is how many chunks a device buffers before dropping.
const chunkQueue = 16

// Device produces a stream of audio sample chunks.
type Device interface {
	// Start begins capture and returns a channel of chunks. The channel is
	// closed after Stop or when the source ends.
	Start() (<-chan []float32, error)
	Stop() error
	SampleRate() int
}

// NullDevice produces silence.
type NullDevice struct {
	rate int
}

func NewNullDevice(sampleRate int) *NullDevice {
	return &NullDevice{rate: sampleRate}
}

// Start returns a nil channel, which never delivers.
func (d *NullDevice) Start() (<-chan []float32, error) { return nil, nil }

func (d *NullDevice) Stop() error { return nil }

func (d *NullDevice) SampleRate() int { return d.rate }

// offer sends chunk without blocking. It reports false when the consumer
// is behind and the chunk was dropped.
func offer(ch chan<- []float32, chunk []float32) bool {
	select {
	case ch <- chunk:
		return true
	default:
		return false
	}
}
