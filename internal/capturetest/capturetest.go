// ABOUTME: Test doubles for capture code
// ABOUTME: Provides a scripted chunked reader and a scriptable fake capture device
package capturetest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
	"github.com/pcmprobe/pcmprobe/pkg/audio/input"
)

// ErrReaderClosed is returned by a closed ChunkReader
var ErrReaderClosed = errors.New("reader closed")

// ChunkReader hands out fed bytes at most Chunk bytes per Read. Reads block
// while nothing is queued.
type ChunkReader struct {
	mu     sync.Mutex
	cond   *sync.Cond
	data   []byte
	chunk  int
	err    error
	closed bool
	reads  int
}

// NewChunkReader creates a reader preloaded with data
func NewChunkReader(data []byte, chunk int) *ChunkReader {
	r := &ChunkReader{data: append([]byte(nil), data...), chunk: chunk}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Read implements io.Reader
func (r *ChunkReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.data) == 0 && r.err == nil && !r.closed {
		r.cond.Wait()
	}
	r.reads++
	if len(r.data) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, ErrReaderClosed
	}

	n := min(len(p), len(r.data))
	if r.chunk > 0 {
		n = min(n, r.chunk)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

// Feed queues more bytes
func (r *ChunkReader) Feed(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, data...)
	r.cond.Broadcast()
}

// Fail makes Read return err once the queued bytes are drained
func (r *ChunkReader) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.cond.Broadcast()
}

// Close wakes blocked readers with ErrReaderClosed
func (r *ChunkReader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cond.Broadcast()
}

// Reads returns how many Read calls were served
func (r *ChunkReader) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

// ZeroReader always returns 0 bytes and no error
type ZeroReader struct {
	mu    sync.Mutex
	reads int
}

// Read implements io.Reader
func (z *ZeroReader) Read(p []byte) (int, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.reads++
	return 0, nil
}

// Reads returns how many Read calls were made
func (z *ZeroReader) Reads() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.reads
}

// FakeDevice is a scriptable input.Device backed by an input.RingBuffer
type FakeDevice struct {
	Name       string
	FormatList []audio.SampleFormat

	mu          sync.Mutex
	openErrs    []error
	grantBytes  int
	ring        *input.RingBuffer
	open        bool
	started     bool
	requested   int
	calls       []string
	opens       int
	startErr    error
	stopErr     error
	closeErr    error
	readFailure error
}

// NewFakeDevice creates a device offering S16 stereo
func NewFakeDevice(name string) *FakeDevice {
	return &FakeDevice{
		Name: name,
		FormatList: []audio.SampleFormat{
			{BitsPerSample: 16, Channels: 2, Signed: true, FrameSize: 4},
		},
	}
}

// FailNextOpens makes the next Open calls return errs in order
func (d *FakeDevice) FailNextOpens(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErrs = append(d.openErrs, errs...)
}

// GrantBytes makes BufferSize report n instead of the requested size
func (d *FakeDevice) GrantBytes(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grantBytes = n
}

// FailStart makes Start return err without starting
func (d *FakeDevice) FailStart(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startErr = err
}

// FailStop makes Stop return err
func (d *FakeDevice) FailStop(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopErr = err
}

// FailClose makes Close return err after closing
func (d *FakeDevice) FailClose(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeErr = err
}

// FailReads makes the next Read return err
func (d *FakeDevice) FailReads(err error) {
	d.mu.Lock()
	d.readFailure = err
	ring := d.ring
	d.mu.Unlock()

	// wake a reader blocked on the ring
	if ring != nil {
		ring.Write([]byte{0})
	}
}

// Feed queues captured bytes
func (d *FakeDevice) Feed(p []byte) int {
	d.mu.Lock()
	ring := d.ring
	d.mu.Unlock()
	if ring == nil {
		return 0
	}
	return ring.Write(p)
}

// Calls returns the device operations performed so far
func (d *FakeDevice) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Opens returns how many Open calls succeeded
func (d *FakeDevice) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// IsOpen reports whether the device is open
func (d *FakeDevice) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// IsStarted reports whether the device is started
func (d *FakeDevice) IsStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

func (d *FakeDevice) record(call string) {
	d.calls = append(d.calls, call)
}

// Info implements input.Device
func (d *FakeDevice) Info() input.DeviceInfo {
	return input.DeviceInfo{Name: d.Name, Backend: "fake"}
}

// Formats implements input.Device
func (d *FakeDevice) Formats() ([]audio.SampleFormat, error) {
	return d.FormatList, nil
}

// Open implements input.Device
func (d *FakeDevice) Open(format audio.SampleFormat, bufferBytes int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("open")

	if len(d.openErrs) > 0 {
		err := d.openErrs[0]
		d.openErrs = d.openErrs[1:]
		if err != nil {
			return err
		}
	}
	if d.open {
		return fmt.Errorf("%w: %s", input.ErrBusy, d.Name)
	}

	d.open = true
	d.started = false
	d.requested = bufferBytes
	d.ring = input.NewRingBuffer(max(bufferBytes, 1<<16))
	d.opens++
	return nil
}

// Start implements input.Device
func (d *FakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("start")
	if !d.open {
		return input.ErrNotOpen
	}
	if d.startErr != nil {
		return d.startErr
	}
	d.started = true
	d.ring.SetPaused(false)
	return nil
}

// Stop implements input.Device
func (d *FakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("stop")
	if !d.open {
		return input.ErrNotOpen
	}
	d.started = false
	d.ring.SetPaused(true)
	return d.stopErr
}

// Flush implements input.Device
func (d *FakeDevice) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("flush")
	if !d.open {
		return input.ErrNotOpen
	}
	d.ring.Reset()
	return nil
}

// Close implements input.Device
func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("close")
	if d.ring != nil {
		d.ring.Close()
	}
	d.open = false
	d.started = false
	return d.closeErr
}

// Read implements input.Device
func (d *FakeDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	ring := d.ring
	d.mu.Unlock()
	if ring == nil {
		return 0, input.ErrNotOpen
	}

	n, err := ring.Read(p)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readFailure != nil {
		failure := d.readFailure
		d.readFailure = nil
		return 0, failure
	}
	return n, err
}

// BufferSize implements input.Device
func (d *FakeDevice) BufferSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.grantBytes > 0 {
		return d.grantBytes
	}
	return d.requested
}

var _ input.Device = (*FakeDevice)(nil)
