//go:build !linux

package rtprio

import "github.com/pkg/errors"

// Boost is a no-op stub on platforms without a real-time scheduling policy
// wired up; callers should check Supported before relying on it.
func Boost(priority int) error {
	return errors.New("rtprio: not supported on this platform")
}

// Supported reports whether Boost has a real implementation on this
// platform.
func Supported() bool {
	return false
}
