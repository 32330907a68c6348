// ABOUTME: Capture pipeline package
// ABOUTME: Provides the packet capture loop and the device session that drives it
// Package capture pulls fixed-size PCM packets from a capture device.
//
// A Session owns one input.Device and moves it through the
// Closed, Open, Running and Stopped states. Once running, Capture attaches a
// Loop that reads packets on its own goroutine and hands each one to a
// Consumer synchronously.
//
// Example:
//
//	s, err := capture.OpenSession(dev, format, 4096)
//	if err != nil {
//		return err
//	}
//	defer s.Release()
//
//	if err := s.Start(); err != nil {
//		return err
//	}
//	err = s.Capture(1024, capture.ConsumerFunc(func(packet []byte) {
//		// decode packet
//	}))
package capture
