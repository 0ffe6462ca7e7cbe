package gpu

import "github.com/pkg/errors"

// ErrOutOfDate is returned by acquire and present when the surface no longer
// matches the swapchain. It is recoverable by rebuilding the swapchain.
var ErrOutOfDate = errors.New("surface out of date")

// IsOutOfDate reports whether err is or wraps ErrOutOfDate.
func IsOutOfDate(err error) bool {
	return errors.Is(err, ErrOutOfDate)
}
