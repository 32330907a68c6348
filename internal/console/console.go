// ABOUTME: Line-oriented console front-end
// ABOUTME: Device and format prompts with fallback defaults, plus the RMS line writer
package console

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
	"github.com/pcmprobe/pcmprobe/pkg/audio/input"
	"github.com/pcmprobe/pcmprobe/pkg/meter"
)

const (
	// DefaultIndex is used when an index answer is malformed or out of range
	DefaultIndex = 0
	// DefaultSampleRate is the usual fallback for a malformed rate answer
	DefaultSampleRate = 44100.0
	// DefaultBufferFrames is the usual fallback for a malformed buffer answer
	DefaultBufferFrames = 4096
)

// Console reads answers line by line and writes prompts and readings.
// Prompt methods must be called from one goroutine.
type Console struct {
	scanner *bufio.Scanner
	logger  *slog.Logger

	outMu sync.Mutex
	out   io.Writer

	lines     chan string
	linesErr  atomic.Value
	pumpOnce  sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a console over in and out
func New(in io.Reader, out io.Writer) *Console {
	return &Console{
		scanner: bufio.NewScanner(in),
		out:     out,
		logger:  slog.Default().With("component", "console"),
		done:    make(chan struct{}),
	}
}

// Printf writes to the console output
func (c *Console) Printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Println writes a line to the console output
func (c *Console) Println(args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, args...)
}

// ReadLine returns the next trimmed line, or io.EOF when input ends
func (c *Console) ReadLine() (string, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.scanner.Text()), nil
}

// ListDevices prints the numbered device listing
func (c *Console) ListDevices(entries []input.Entry) {
	c.Println("Found the following audio inputs:")
	for i, e := range entries {
		c.Printf("  - %d: %s\n", i, e.Device.Info())
	}
	c.Println()
}

// ListFormats prints the numbered format listing for one device
func (c *Console) ListFormats(formats []audio.SampleFormat) {
	c.Println("The selected input supports the following formats:")
	for i, f := range formats {
		c.Printf("  - %d: %s\n", i, f)
	}
	c.Println()
}

// Index asks for an index in [0, n). Malformed or out-of-range answers fall back to DefaultIndex.
func (c *Console) Index(prompt string, n int) (int, error) {
	c.Println(prompt)
	line, err := c.ReadLine()
	if err != nil {
		return 0, err
	}
	c.Println()
	return ParseIndex(line, n, c.logger), nil
}

// SampleRate asks for a sample rate, falling back to def
func (c *Console) SampleRate(def float64) (float64, error) {
	c.Println("The selected format has no sample rate. Enter the sample rate to use...")
	line, err := c.ReadLine()
	if err != nil {
		return 0, err
	}
	c.Println()
	return ParseSampleRate(line, def, c.logger), nil
}

// BufferFrames asks for the buffer size in frames, falling back to def
func (c *Console) BufferFrames(def int) (int, error) {
	c.Println("Enter the desired buffer size in frames...")
	line, err := c.ReadLine()
	if err != nil {
		return 0, err
	}
	c.Println()
	return ParseBufferFrames(line, def, c.logger), nil
}

// WaitEnter blocks until the user presses Enter
func (c *Console) WaitEnter() error {
	c.Println("Capture starts when you press Enter. Press Enter again at any time to pause the output.")
	_, err := c.ReadLine()
	return err
}

// Lines hands the remaining input to a goroutine and returns its lines.
// The channel closes when input ends or after Close; prompt methods must not
// be used afterwards.
func (c *Console) Lines() <-chan string {
	c.pumpOnce.Do(func() {
		c.lines = make(chan string)
		go func() {
			defer close(c.lines)
			for {
				line, err := c.ReadLine()
				if err != nil {
					c.linesErr.Store(err)
					return
				}
				select {
				case <-c.done:
					return
				default:
				}
				select {
				case c.lines <- line:
				case <-c.done:
					return
				}
			}
		}()
	})
	return c.lines
}

// Close stops delivering lines. A pump blocked reading input exits after
// the next line arrives.
func (c *Console) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// LinesErr returns the error that ended Lines, if any
func (c *Console) LinesErr() error {
	if err, ok := c.linesErr.Load().(error); ok {
		return err
	}
	return nil
}

// PrintReading writes one "RMS: <value>" line
func (c *Console) PrintReading(r meter.Reading) {
	c.Printf("RMS: %v\n", r.RMS)
}

// ParseIndex parses an index in [0, n), logging and returning DefaultIndex otherwise
func ParseIndex(s string, n int, logger *slog.Logger) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		logger.Warn("not a valid integer, defaulting to zero", "input", s)
		return DefaultIndex
	}
	if v < 0 || v >= n {
		logger.Warn("index out of range, defaulting to zero", "index", v, "count", n)
		return DefaultIndex
	}
	return v
}

// ParseSampleRate parses a positive rate, logging and returning def otherwise
func ParseSampleRate(s string, def float64, logger *slog.Logger) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		logger.Warn("not a valid sample rate, defaulting", "input", s, "default", def)
		return def
	}
	return v
}

// ParseBufferFrames parses a positive frame count, logging and returning def otherwise
func ParseBufferFrames(s string, def int, logger *slog.Logger) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		logger.Warn("not a valid buffer size, defaulting", "input", s, "default", def)
		return def
	}
	return v
}
