// ABOUTME: Level metering package
// ABOUTME: Consumers that measure and monitor captured packets
// Package meter turns captured packets into level readings.
//
// RMS decodes each packet and reports its root-mean-square level, peak and
// dBFS. Monitor plays packets back through an output.Output without slowing
// capture. Fanout combines them on one loop.
//
// Example:
//
//	rms, err := meter.NewRMS(format, 1024, func(r meter.Reading) {
//		fmt.Printf("RMS: %v\n", r.RMS)
//	})
//	err = session.Capture(1024, rms)
package meter
