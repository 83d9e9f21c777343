// Package version holds build-time identity values and the packed-semver
// encoding used in the Status response's bootloader_version field
// (spec.md §6).
//
// Grounded on the teacher's version/version.go: Version/GitSHA/BuildDate
// are injected via linker ldflags the same way, e.g.
//
//	-ldflags "-X .../internal/version.Version=1.4.0 -X .../internal/version.GitSHA=... -X .../internal/version.BuildDate=..."
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Build information, injected via ldflags - must NOT have default values.
var (
	Version   string
	GitSHA    string
	BuildDate string
)

// PackSemver encodes a "major.minor.patch" string into the 32-bit value
// spec.md §6 describes: 8 bits each for major/minor/patch, remaining byte
// reserved (zero).
func PackSemver(semver string) (uint32, error) {
	parts := strings.SplitN(semver, ".", 3)
	if len(parts) != 3 {
		return 0, fmt.Errorf("version: %q is not major.minor.patch", semver)
	}
	var nums [3]uint64
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("version: %q: %w", semver, err)
		}
		nums[i] = n
	}
	return uint32(nums[0])<<16 | uint32(nums[1])<<8 | uint32(nums[2]), nil
}

// UnpackSemver reverses PackSemver, returning (major, minor, patch).
func UnpackSemver(v uint32) (major, minor, patch uint8) {
	return uint8(v >> 16), uint8(v >> 8), uint8(v)
}

// Packed returns the packed-semver encoding of the build-time Version, or
// ok=false if Version is empty or malformed (e.g. a non-release build).
func Packed() (v uint32, ok bool) {
	if Version == "" {
		return 0, false
	}
	packed, err := PackSemver(Version)
	if err != nil {
		return 0, false
	}
	return packed, true
}
