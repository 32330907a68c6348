// ABOUTME: Rendezvous consumer that hands packets to another goroutine
// ABOUTME: Each packet waits for an Ack so processing never overlaps the next read
package capture

import (
	"context"
	"sync/atomic"
)

// ChannelConsumer delivers each packet on an unbuffered channel and blocks
// the capture loop until the receiver calls Ack. The packet must not be used
// after Ack.
//
// Cancelling ctx means the receiver is gone. A packet already handed over
// still waits for its Ack; a packet not yet taken is withheld and the
// consumer reports Detached, which ends the loop.
type ChannelConsumer struct {
	ctx      context.Context
	packets  chan []byte
	ack      chan struct{}
	detached atomic.Bool
}

// NewChannelConsumer creates a consumer whose receiver lives until ctx ends
func NewChannelConsumer(ctx context.Context) *ChannelConsumer {
	return &ChannelConsumer{
		ctx:     ctx,
		packets: make(chan []byte),
		ack:     make(chan struct{}),
	}
}

// OnPacket implements Consumer
func (c *ChannelConsumer) OnPacket(packet []byte) {
	if c.detached.Load() {
		return
	}

	select {
	case c.packets <- packet:
	case <-c.ctx.Done():
		c.detached.Store(true)
		return
	}

	// the receiver holds the buffer until it acknowledges
	<-c.ack
}

// Detached implements Detacher
func (c *ChannelConsumer) Detached() bool {
	return c.detached.Load()
}

// Packets returns the delivery channel
func (c *ChannelConsumer) Packets() <-chan []byte {
	return c.packets
}

// Ack releases the packet received last. Call it exactly once per packet,
// also after ctx has ended.
func (c *ChannelConsumer) Ack() {
	c.ack <- struct{}{}
}
