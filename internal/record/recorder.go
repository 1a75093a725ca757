// Package record captures microphone audio through PortAudio and
// streams it to a mono 16-bit WAV file. The recorder keeps a decayed
// peak level for voice activity detection and exposes a write gate so
// capture can keep running while the file stays frozen.
package record

import (
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"

	"voiced/internal/logging"
)

// levelDecay is applied to the peak level once per buffer so the meter
// falls off smoothly between loud samples.
const levelDecay = 0.90

const framesPerBuffer = 512

// Config controls the capture stream.
type Config struct {
	// SampleRate in Hz. 16000 matches what whisper.cpp servers expect.
	SampleRate int
	// DeviceIndex selects an input device; -1 uses the system default.
	DeviceIndex int
}

// Recorder owns one PortAudio input stream at a time.
type Recorder struct {
	cfg Config
	log *logging.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan error

	level   atomic.Uint64 // float64 bits
	writing atomic.Bool
	paused  atomic.Bool
}

// New creates a recorder. The stream is not opened until Start.
func New(cfg Config, log *logging.Logger) *Recorder {
	return &Recorder{cfg: cfg, log: log}
}

// Start opens the input stream and begins writing WAV data to path.
// Device and file errors are reported synchronously; once Start
// returns nil the capture loop owns the stream until Stop.
func (r *Recorder) Start(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("recorder already running")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}

	in := make([]int16, framesPerBuffer)
	stream, err := r.openStream(in)
	if err != nil {
		_ = portaudio.Terminate()
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("create wav: %w", err)
	}
	enc := wav.NewEncoder(file, r.cfg.SampleRate, 16, 1, 1)

	if err := stream.Start(); err != nil {
		_ = enc.Close()
		_ = file.Close()
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("start stream: %w", err)
	}

	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan error, 1)
	r.level.Store(0)
	r.writing.Store(true)
	r.paused.Store(false)

	go r.captureLoop(stream, enc, file, in, r.stop, r.done)
	return nil
}

func (r *Recorder) openStream(in []int16) (*portaudio.Stream, error) {
	if r.cfg.DeviceIndex < 0 {
		stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.cfg.SampleRate), len(in), in)
		if err != nil {
			return nil, fmt.Errorf("open default stream: %w", err)
		}
		return stream, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if r.cfg.DeviceIndex >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range (%d devices)", r.cfg.DeviceIndex, len(devices))
	}
	dev := devices[r.cfg.DeviceIndex]
	if dev.MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %q has no input channels", dev.Name)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(r.cfg.SampleRate),
		FramesPerBuffer: len(in),
	}
	stream, err := portaudio.OpenStream(params, in)
	if err != nil {
		return nil, fmt.Errorf("open stream on %q: %w", dev.Name, err)
	}
	return stream, nil
}

func (r *Recorder) captureLoop(stream *portaudio.Stream, enc *wav.Encoder, file *os.File, in []int16, stop chan struct{}, done chan error) {
	format := &audio.Format{NumChannels: 1, SampleRate: r.cfg.SampleRate}
	intBuf := make([]int, len(in))

	var loopErr error
	for {
		select {
		case <-stop:
			goto finish
		default:
		}

		if err := stream.Read(); err != nil {
			// Overflows are routine when the consumer briefly stalls.
			if err == portaudio.InputOverflowed {
				continue
			}
			r.log.Warn("stream read error", "error", err)
			continue
		}

		if r.paused.Load() {
			// Keep draining the device so it does not overflow, but
			// let the meter decay and write nothing.
			r.level.Store(math.Float64bits(r.peekLevel() * levelDecay))
			continue
		}

		peak := 0.0
		for i, v := range in {
			intBuf[i] = int(v)
			a := math.Abs(float64(v)) / 32768.0
			if a > peak {
				peak = a
			}
		}
		if decayed := r.peekLevel() * levelDecay; decayed > peak {
			peak = decayed
		}
		r.level.Store(math.Float64bits(peak))

		if !r.writing.Load() {
			continue
		}
		buf := &audio.IntBuffer{Format: format, Data: intBuf, SourceBitDepth: 16}
		if err := enc.Write(buf); err != nil {
			loopErr = fmt.Errorf("wav write: %w", err)
			goto finish
		}
	}

finish:
	_ = stream.Stop()
	_ = stream.Close()
	if err := enc.Close(); err != nil && loopErr == nil {
		loopErr = fmt.Errorf("wav close: %w", err)
	}
	if err := file.Close(); err != nil && loopErr == nil {
		loopErr = fmt.Errorf("wav file close: %w", err)
	}
	_ = portaudio.Terminate()
	done <- loopErr
}

// Stop ends capture and finalizes the WAV file.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("recorder not running")
	}
	r.running = false
	stop, done := r.stop, r.done
	r.mu.Unlock()

	close(stop)
	return <-done
}

// Pause freezes both the file and the level meter. The stream keeps
// draining so the device buffer does not overflow.
func (r *Recorder) Pause() { r.paused.Store(true) }

// Resume undoes Pause.
func (r *Recorder) Resume() { r.paused.Store(false) }

// SetWriting gates WAV output. Capture and the level meter continue
// while writing is off.
func (r *Recorder) SetWriting(enabled bool) { r.writing.Store(enabled) }

// Level returns the decayed peak level in [0, 1].
func (r *Recorder) Level() float64 { return r.peekLevel() }

func (r *Recorder) peekLevel() float64 {
	return math.Float64frombits(r.level.Load())
}

// Device describes one audio input device.
type Device struct {
	Index    int
	Name     string
	Channels int
	Default  bool
	Latency  time.Duration
}

// ListDevices enumerates input-capable devices.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []Device
	for i, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{
			Index:    i,
			Name:     dev.Name,
			Channels: dev.MaxInputChannels,
			Default:  def != nil && dev.Name == def.Name,
			Latency:  dev.DefaultLowInputLatency,
		})
	}
	return out, nil
}
