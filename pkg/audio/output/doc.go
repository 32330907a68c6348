// ABOUTME: Audio output package for monitoring captured audio
// ABOUTME: Provides the Output interface and the oto implementation
// Package output plays captured audio back for monitoring.
//
// Playback is always 16-bit signed little-endian through oto.
//
// Example:
//
//	out := output.NewOto()
//	err := out.Open(44100, 2)
//	err = out.Write(samples)
package output
