// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines SampleFormat and the shared error taxonomy
// Package audio provides the fundamental types used by the capture pipeline.
//
// This package defines:
//   - SampleFormat: bit width, channel count, byte order and signedness of a raw PCM stream
//   - ErrFormat, ErrDeviceUnavailable, ErrCaptureFailure, ErrSecurityRestriction
//
// Example:
//
//	format := audio.SampleFormat{
//	    BitsPerSample: 24,
//	    Channels:      2,
//	    BigEndian:     true,
//	    Signed:        true,
//	    SampleRate:    48000,
//	}
//	if err := format.Validate(); err != nil {
//	    // errors.Is(err, audio.ErrFormat)
//	}
//	frame := format.FrameBytes() // 6
package audio
