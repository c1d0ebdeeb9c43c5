package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/richinsley/goshadermixer/logging"
)

// Microphone captures the default input device.
type Microphone struct {
	sampleRate int

	mu         sync.Mutex
	stream     *portaudio.Stream
	chunks     chan []float32
	dropped    int
	terminated bool
}

func NewMicrophone(sampleRate int) (*Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &Microphone{sampleRate: sampleRate}, nil
}

// callback runs on the portaudio thread. in is reused by portaudio, so it
// is copied before handing off.
func (m *Microphone) callback(in []float32) {
	chunk := make([]float32, len(in))
	copy(chunk, in)
	if !offer(m.chunks, chunk) {
		m.dropped++
		if m.dropped%100 == 1 {
			logging.Logger().Debug("microphone chunk dropped", "dropped", m.dropped)
		}
	}
}

func (m *Microphone) Start() (<-chan []float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return m.chunks, nil
	}
	if m.terminated {
		return nil, fmt.Errorf("microphone stopped")
	}

	m.chunks = make(chan []float32, chunkQueue)
	host, err := portaudio.DefaultHostApi()
	if err != nil {
		return nil, fmt.Errorf("default host api: %w", err)
	}
	if host.DefaultInputDevice == nil {
		return nil, fmt.Errorf("no default input device")
	}

	params := portaudio.HighLatencyParameters(host.DefaultInputDevice, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(m.sampleRate)

	stream, err := portaudio.OpenStream(params, m.callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}
	m.stream = stream
	logging.Logger().Info("microphone started", "device", host.DefaultInputDevice.Name, "rate", m.sampleRate)
	return m.chunks, nil
}

func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return nil
	}
	m.terminated = true
	var err error
	if m.stream != nil {
		err = m.stream.Close()
		m.stream = nil
		close(m.chunks)
	}
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

func (m *Microphone) SampleRate() int { return m.sampleRate }
