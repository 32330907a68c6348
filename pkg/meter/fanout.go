// ABOUTME: Consumer that delivers each packet to several consumers in order
// ABOUTME: Lets the meter and the monitor share one capture loop
package meter

import "github.com/pcmprobe/pcmprobe/pkg/capture"

// Fanout calls each consumer in turn on the capture goroutine
type Fanout struct {
	consumers []capture.Consumer
}

// NewFanout creates a fanout; nil consumers are ignored
func NewFanout(consumers ...capture.Consumer) *Fanout {
	f := &Fanout{}
	for _, c := range consumers {
		f.Add(c)
	}
	return f
}

// Add appends a consumer. Not safe while the fanout is attached to a running loop.
func (f *Fanout) Add(c capture.Consumer) {
	if c != nil {
		f.consumers = append(f.consumers, c)
	}
}

// Len returns the number of consumers
func (f *Fanout) Len() int {
	return len(f.consumers)
}

// OnPacket implements capture.Consumer
func (f *Fanout) OnPacket(packet []byte) {
	for _, c := range f.consumers {
		c.OnPacket(packet)
	}
}

// Detached reports whether any consumer's receiver has gone away
func (f *Fanout) Detached() bool {
	for _, c := range f.consumers {
		if d, ok := c.(capture.Detacher); ok && d.Detached() {
			return true
		}
	}
	return false
}
