// ABOUTME: Capture device package
// ABOUTME: Hardware, file-backed and synthetic blocking byte-stream devices
// Package input provides capture devices that deliver raw PCM as a blocking
// byte stream.
//
// Backends:
//   - malgo: capture hardware through miniaudio
//   - file: WAV, AIFF, FLAC, MP3, Ogg Vorbis and Opus files replayed in a loop
//   - tone: synthetic sine and silence in every supported width
//
// Example:
//
//	reg := input.NewRegistry(input.NewMalgoBackend(), input.NewToneBackend(0, 0))
//	for _, e := range input.Usable(reg.Enumerate()) {
//		fmt.Println(e.Device.Info())
//	}
package input
