// ABOUTME: Build identification
// ABOUTME: Product strings reported to stream servers and printed by -version
package version

// Version is overridden at build time with -ldflags "-X ...version.Version=x.y.z"
var Version = "0.3.0"

const (
	Product      = "Resonate Zones"
	Manufacturer = "Resonate"
)

// String returns the product and version for display
func String() string {
	return Product + " " + Version
}
