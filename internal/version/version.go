// ABOUTME: Version information for pcmprobe
// ABOUTME: Product and build identifiers shown in the TUI and advertised over mDNS
package version

const (
	// Product is the name shown to users and peers
	Product = "pcmprobe"

	// Manufacturer identifies who built this probe
	Manufacturer = "pcmprobe"

	// Version is the release version
	Version = "0.3.0"
)
