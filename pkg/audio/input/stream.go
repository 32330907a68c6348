// ABOUTME: Shared open/start/stop plumbing for capture devices
// ABOUTME: Owns the ring buffer, the busy claim and the paced producer goroutine
package input

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
)

// DefaultSampleRate is used when a device is opened without a rate
const DefaultSampleRate = 44100

var (
	claimsMu sync.Mutex
	claims   = make(map[string]struct{})
)

// claim marks key as in use by one open device
func claim(key string) error {
	claimsMu.Lock()
	defer claimsMu.Unlock()
	if _, ok := claims[key]; ok {
		return fmt.Errorf("%w: %s", ErrBusy, key)
	}
	claims[key] = struct{}{}
	return nil
}

func unclaim(key string) {
	claimsMu.Lock()
	defer claimsMu.Unlock()
	delete(claims, key)
}

// stream implements the parts of Device shared by every backend
type stream struct {
	key    string
	logger *slog.Logger

	mu      sync.Mutex
	ring    *RingBuffer
	format  audio.SampleFormat
	granted int
	open    bool
	running bool

	stopChan chan struct{}
	stopOnce *sync.Once
	wg       sync.WaitGroup
}

func newStream(key string) stream {
	return stream{
		key:    key,
		logger: slog.Default().With("device", key),
	}
}

// openStream claims the device and allocates a ring of granted bytes
func (s *stream) openStream(format audio.SampleFormat, granted int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return fmt.Errorf("%w: %s already open", ErrBusy, s.key)
	}
	if granted <= 0 {
		return fmt.Errorf("invalid buffer size %d", granted)
	}
	if err := claim(s.key); err != nil {
		return err
	}

	s.ring = NewRingBuffer(granted)
	s.format = format.Normalize()
	s.granted = granted
	s.open = true
	s.running = false
	s.stopChan = make(chan struct{})
	s.stopOnce = &sync.Once{}

	s.logger.Debug("device opened", "format", s.format.String(), "bufferBytes", granted)
	return nil
}

// Start resumes data delivery
func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrNotOpen
	}
	s.running = true
	s.ring.SetPaused(false)
	return nil
}

// Stop pauses data delivery; readers block until Start or Close
func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrNotOpen
	}
	s.running = false
	s.ring.SetPaused(true)
	return nil
}

// Flush discards buffered bytes
func (s *stream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrNotOpen
	}
	s.ring.Reset()
	return nil
}

// Close stops the producer, wakes readers and releases the claim
func (s *stream) Close() error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	s.open = false
	s.running = false
	s.ring.Close()
	stopChan, stopOnce := s.stopChan, s.stopOnce
	s.mu.Unlock()

	stopOnce.Do(func() { close(stopChan) })
	s.wg.Wait()
	unclaim(s.key)

	s.logger.Debug("device closed")
	return nil
}

// Read blocks until captured bytes are available
func (s *stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	ring := s.ring
	s.mu.Unlock()

	if ring == nil {
		return 0, ErrNotOpen
	}
	return ring.Read(p)
}

// BufferSize returns the granted ring size in bytes
func (s *stream) BufferSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.granted
}

// isRunning reports whether the device is started
func (s *stream) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// produce stores captured bytes while the device is running
func (s *stream) produce(p []byte) {
	s.mu.Lock()
	ring, running := s.ring, s.running
	s.mu.Unlock()

	if ring == nil || !running {
		return
	}
	if n := ring.Write(p); n < len(p) {
		s.logger.Debug("capture overrun", "dropped", len(p)-n)
	}
}

// runPaced calls fill for one period of bytes on every tick while running.
// It returns when the device is closed.
func (s *stream) runPaced(period time.Duration, periodBytes int, fill func([]byte) error) {
	s.mu.Lock()
	stopChan := s.stopChan
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		buf := make([]byte, periodBytes)
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !s.isRunning() {
					continue
				}
				if err := fill(buf); err != nil {
					s.logger.Error("producer failed", "err", err)
					continue
				}
				s.produce(buf)
			case <-stopChan:
				return
			}
		}
	}()
}

// pacedBuffer rounds a requested buffer up to whole periods, at least two
func pacedBuffer(requested, periodBytes int) int {
	if requested <= 0 {
		return 4 * periodBytes
	}
	periods := (requested + periodBytes - 1) / periodBytes
	return max(periods, 2) * periodBytes
}

// periodFrames returns how many frames one period holds at rate
func periodFrames(rate float64, period time.Duration) int {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return max(1, int(rate*period.Seconds()))
}
