// ABOUTME: Audio decoder package for raw PCM capture buffers
// ABOUTME: Provides Decoder interface and the generic PCM implementation
// Package decode converts captured PCM bytes into int32 samples.
//
// The PCM decoder handles any sample width from 1 to 32 bits, big- or
// little-endian, signed or unsigned. Widths that are not a multiple of 8 are
// decoded from whole bytes (a 20-bit sample occupies 3 bytes). Signed values
// are sign-extended into the int32 domain, unsigned values are zero-extended.
//
// Example:
//
//	decoder, err := decode.NewPCM(format)
//	samples := make([]int32, packetFrames*format.Channels)
//	n, err := decoder.DecodeInto(samples, packet)
package decode
