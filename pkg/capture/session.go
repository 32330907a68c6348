// ABOUTME: Capture device session state machine
// ABOUTME: Serializes open/start/stop/flush/close/reopen and owns the attached capture loop
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
	"github.com/pcmprobe/pcmprobe/pkg/audio/input"
)

var (
	// ErrInvalidState is returned for a transition the current state does not allow
	ErrInvalidState = errors.New("invalid session state")

	// ErrCaptureActive is returned when a second capture loop is attached
	ErrCaptureActive = errors.New("capture loop already attached")

	// ErrReleased is returned by every operation after Release
	ErrReleased = errors.New("session released")
)

// State is the lifecycle state of a session
type State int

const (
	StateClosed State = iota
	StateOpen
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// BufferMismatch records a device granting a different buffer than requested
type BufferMismatch struct {
	RequestedBytes int
	ActualBytes    int
}

// Session owns one device and at most one capture loop
type Session struct {
	id     uuid.UUID
	dev    input.Device
	logger *slog.Logger

	mu           sync.Mutex
	state        State
	format       audio.SampleFormat
	bufferFrames int
	mismatch     *BufferMismatch
	released     bool

	loop         *Loop
	attached     bool // restart capture on reopen
	packetFrames int
	consumer     Consumer

	failures    chan error
	releaseOnce sync.Once
}

// NewSession creates a closed session for dev
func NewSession(dev input.Device) *Session {
	id := uuid.New()
	return &Session{
		id:  id,
		dev: dev,
		logger: slog.Default().With(
			"session", id,
			"device", dev.Info().Name,
		),
		failures: make(chan error, 1),
	}
}

// OpenSession creates a session and opens it. Pair it with defer s.Release().
func OpenSession(dev input.Device, format audio.SampleFormat, bufferFrames int) (*Session, error) {
	s := NewSession(dev)
	if err := s.Open(format, bufferFrames); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

// ID returns the session id used in logs
func (s *Session) ID() uuid.UUID { return s.id }

// Device returns the device the session owns
func (s *Session) Device() input.Device { return s.dev }

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Format returns the format of the current or last open
func (s *Session) Format() audio.SampleFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// BufferFrames returns the requested buffer size in frames (0 for the device default)
func (s *Session) BufferFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bufferFrames
}

// LastBufferMismatch returns the mismatch seen at the last open, if any
func (s *Session) LastBufferMismatch() (BufferMismatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mismatch == nil {
		return BufferMismatch{}, false
	}
	return *s.mismatch, true
}

// Packets returns how many packets the attached loop delivered
func (s *Session) Packets() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop == nil {
		return 0
	}
	return s.loop.Packets()
}

// Failures reports asynchronous capture failures
func (s *Session) Failures() <-chan error {
	return s.failures
}

// Open opens the device. Only valid from Closed.
func (s *Session) Open(format audio.SampleFormat, bufferFrames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(format, bufferFrames)
}

func (s *Session) openLocked(format audio.SampleFormat, bufferFrames int) error {
	if s.released {
		return ErrReleased
	}
	if s.state != StateClosed {
		return fmt.Errorf("%w: open from %s", ErrInvalidState, s.state)
	}
	if err := format.Validate(); err != nil {
		return err
	}
	if bufferFrames < 0 {
		bufferFrames = 0
	}

	format = format.Normalize()
	requested := bufferFrames * format.FrameSize
	if err := s.dev.Open(format, requested); err != nil {
		s.logger.Error("device open failed", "format", format.String(), "err", err)
		return fmt.Errorf("%w: %s: %w", audio.ErrDeviceUnavailable, s.dev.Info().Name, err)
	}

	s.state = StateOpen
	s.format = format
	s.bufferFrames = bufferFrames
	s.mismatch = nil

	actual := s.dev.BufferSize()
	if requested > 0 && actual != requested {
		s.mismatch = &BufferMismatch{RequestedBytes: requested, ActualBytes: actual}
		s.logger.Warn("device buffer differs from request",
			"requestedBytes", requested,
			"actualBytes", actual,
		)
	}

	s.logger.Info("session opened", "format", format.String(), "bufferBytes", actual)
	return nil
}

// Start starts delivery. Valid from Open and Stopped; a no-op when Running.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Session) startLocked() error {
	if s.released {
		return ErrReleased
	}
	switch s.state {
	case StateRunning:
		return nil
	case StateOpen, StateStopped:
	default:
		return fmt.Errorf("%w: start from %s", ErrInvalidState, s.state)
	}

	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	s.state = StateRunning
	s.logger.Debug("session started")
	return nil
}

// Stop pauses delivery. A no-op when Open or already Stopped.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return ErrReleased
	}
	switch s.state {
	case StateOpen, StateStopped:
		return nil
	case StateRunning:
	default:
		return fmt.Errorf("%w: stop from %s", ErrInvalidState, s.state)
	}

	if err := s.dev.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}
	s.state = StateStopped
	s.logger.Debug("session stopped")
	return nil
}

// Flush discards buffered device data without changing state
func (s *Session) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return ErrReleased
	}
	if s.state == StateClosed {
		return fmt.Errorf("%w: flush from %s", ErrInvalidState, s.state)
	}
	if err := s.dev.Flush(); err != nil {
		return fmt.Errorf("failed to flush device: %w", err)
	}
	s.logger.Debug("session flushed")
	return nil
}

// Close cancels the capture loop and closes the device. Safe to repeat.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
	return s.closeLocked()
}

// closeLocked cancels the loop, stops and closes the device, then joins the
// loop. The device close wakes a loop blocked in Read.
func (s *Session) closeLocked() error {
	if s.state == StateClosed {
		s.joinLoopLocked()
		return nil
	}

	if s.loop != nil {
		s.loop.Cancel()
	}

	var errs []error
	if s.state == StateRunning {
		if err := s.dev.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop device: %w", err))
		}
	}
	if err := s.dev.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close device: %w", err))
	}
	s.state = StateClosed

	s.joinLoopLocked()
	s.logger.Info("session closed")
	return errors.Join(errs...)
}

func (s *Session) joinLoopLocked() {
	if s.loop == nil {
		return
	}
	s.loop.Cancel()
	s.loop.Wait()
	s.loop = nil
}

// Reopen stops, closes, opens and starts again. A capture loop that was
// attached is restarted with the same consumer and packet size, so the format
// may only change while no loop is attached. Any failure after the close
// leaves the session Closed.
func (s *Session) Reopen(format audio.SampleFormat, bufferFrames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return ErrReleased
	}
	if s.attached && format.Normalize() != s.format {
		return fmt.Errorf("%w: reopen as %s with a capture loop attached for %s",
			ErrInvalidState, format.Normalize(), s.format)
	}

	if err := s.closeLocked(); err != nil {
		s.logger.Warn("close during reopen failed", "err", err)
	}
	if err := s.openLocked(format, bufferFrames); err != nil {
		return err
	}
	if err := s.startLocked(); err != nil {
		return s.abortReopenLocked(err)
	}
	if s.attached {
		if err := s.captureLocked(s.packetFrames, s.consumer); err != nil {
			return s.abortReopenLocked(err)
		}
	}

	s.logger.Info("session reopened")
	return nil
}

// abortReopenLocked closes the half-reopened device and returns err
func (s *Session) abortReopenLocked(err error) error {
	s.logger.Error("reopen failed", "err", err)
	if cerr := s.closeLocked(); cerr != nil {
		s.logger.Warn("close after failed reopen failed", "err", cerr)
	}
	return err
}

// Capture attaches a capture loop delivering packets of packetFrames frames.
// Valid while Running or Stopped.
func (s *Session) Capture(packetFrames int, consumer Consumer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captureLocked(packetFrames, consumer)
}

func (s *Session) captureLocked(packetFrames int, consumer Consumer) error {
	if s.released {
		return ErrReleased
	}
	if s.state != StateRunning && s.state != StateStopped {
		return fmt.Errorf("%w: capture from %s", ErrInvalidState, s.state)
	}
	if s.loop != nil {
		select {
		case <-s.loop.Done():
			// the previous loop failed; a new one may take its place
			s.loop = nil
		default:
			return ErrCaptureActive
		}
	}

	loop, err := NewLoop(s.dev, s.format, packetFrames, consumer)
	if err != nil {
		return err
	}
	s.loop = loop
	s.attached = true
	s.packetFrames = packetFrames
	s.consumer = consumer

	loop.Start()
	go s.watch(loop)
	return nil
}

// watch forwards a loop failure to Failures
func (s *Session) watch(loop *Loop) {
	err := loop.Wait()
	if err == nil {
		return
	}

	select {
	case s.failures <- err:
	default:
		s.logger.Warn("capture failure dropped, previous failure not consumed", "err", err)
	}
}

// Release tears the session down exactly once. Failures are logged, never
// returned, and every later operation fails with ErrReleased.
func (s *Session) Release() {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.attached = false
		if err := s.closeLocked(); err != nil {
			s.logger.Warn("release failed", "err", err)
		}
		s.released = true
		s.logger.Debug("session released")
	})
}
