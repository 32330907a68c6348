// ABOUTME: Background capture loop
// ABOUTME: Reads fixed-size packets from a blocking device and hands each one to a consumer
package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
)

// Reader is the blocking byte source a loop pulls from
type Reader interface {
	Read(p []byte) (int, error)
}

// Consumer receives complete packets. The packet is only valid for the
// duration of the call; the loop reuses the buffer for the next packet.
type Consumer interface {
	OnPacket(packet []byte)
}

// Detacher is implemented by consumers whose receiver can go away. Once
// Detached reports true the loop ends at that packet boundary without
// counting the packet.
type Detacher interface {
	Detached() bool
}

// ConsumerFunc adapts a function to a Consumer
type ConsumerFunc func(packet []byte)

// OnPacket calls f(packet)
func (f ConsumerFunc) OnPacket(packet []byte) {
	f(packet)
}

// Loop pulls packets of packetFrames frames from a Reader on one goroutine.
// Delivery is synchronous, so a slow consumer slows reading down.
type Loop struct {
	src          Reader
	format       audio.SampleFormat
	packetFrames int
	consumer     Consumer
	buf          []byte
	logger       *slog.Logger

	cancelled  atomic.Bool
	cancelOnce sync.Once
	cancelCh   chan struct{}

	startOnce sync.Once
	started   atomic.Bool
	done      chan struct{}
	err       error

	packets atomic.Uint64
}

// NewLoop creates a loop; it does not start reading until Start
func NewLoop(src Reader, format audio.SampleFormat, packetFrames int, consumer Consumer) (*Loop, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if packetFrames < 1 {
		return nil, fmt.Errorf("packet must hold at least one frame, got %d", packetFrames)
	}
	if src == nil || consumer == nil {
		return nil, fmt.Errorf("capture loop needs a reader and a consumer")
	}

	format = format.Normalize()
	return &Loop{
		src:          src,
		format:       format,
		packetFrames: packetFrames,
		consumer:     consumer,
		buf:          make([]byte, packetFrames*format.FrameSize),
		logger:       slog.Default().With("component", "capture"),
		cancelCh:     make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
}

// Start launches the capture goroutine; later calls do nothing
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		l.started.Store(true)
		go l.run()
	})
}

// Cancel asks the loop to stop before the next packet
func (l *Loop) Cancel() {
	l.cancelOnce.Do(func() {
		l.cancelled.Store(true)
		close(l.cancelCh)
	})
}

// Cancelled reports whether Cancel was called
func (l *Loop) Cancelled() bool {
	return l.cancelled.Load()
}

// Cancelling is closed once Cancel is called
func (l *Loop) Cancelling() <-chan struct{} {
	return l.cancelCh
}

// Wait blocks until the loop exits. It returns nil after cancellation and an
// error wrapping audio.ErrCaptureFailure if the device failed.
func (l *Loop) Wait() error {
	if !l.started.Load() {
		return nil
	}
	<-l.done
	return l.err
}

// Done is closed when the loop exits
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Packets returns the number of packets delivered so far
func (l *Loop) Packets() uint64 {
	return l.packets.Load()
}

// PacketFrames returns the packet size in frames
func (l *Loop) PacketFrames() int {
	return l.packetFrames
}

// PacketBytes returns the packet size in bytes
func (l *Loop) PacketBytes() int {
	return len(l.buf)
}

// Consumer returns the consumer packets are delivered to
func (l *Loop) Consumer() Consumer {
	return l.consumer
}

func (l *Loop) run() {
	defer close(l.done)

	l.logger.Debug("capture started", "packetBytes", len(l.buf), "format", l.format.String())

	for !l.cancelled.Load() {
		if !l.fill() {
			return
		}

		l.consumer.OnPacket(l.buf)
		if d, ok := l.consumer.(Detacher); ok && d.Detached() {
			l.logger.Debug("consumer detached", "packets", l.packets.Load())
			return
		}
		l.packets.Add(1)
	}

	l.logger.Debug("capture cancelled", "packets", l.packets.Load())
}

// fill reads until the packet buffer is full. It returns false when the loop
// must exit, leaving the partial packet undelivered.
func (l *Loop) fill() bool {
	filled := 0
	for filled < len(l.buf) {
		n, err := l.src.Read(l.buf[filled:])
		filled += n

		if err != nil {
			if l.cancelled.Load() {
				l.logger.Debug("read ended after cancel", "err", err)
				return false
			}
			l.err = fmt.Errorf("%w: %w", audio.ErrCaptureFailure, err)
			l.logger.Error("capture failed", "err", err, "packets", l.packets.Load())
			return false
		}

		if n == 0 && l.cancelled.Load() {
			return false
		}
	}
	return true
}
