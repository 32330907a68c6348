// ABOUTME: Raw PCM packer package
// ABOUTME: Provides the Encoder interface and the PCM packer used by synthetic devices
// Package encode packs int32 samples into raw linear PCM bytes.
//
// The packer is the inverse of the decode package. It lets synthetic and
// file-backed devices present their samples in any SampleFormat the decoder
// understands. It performs no compression.
//
// Example:
//
//	encoder, err := encode.NewPCM(format)
//	n, err := encoder.EncodeInto(buf, samples)
package encode
