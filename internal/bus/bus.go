// internal/bus/bus.go
package bus

import (
	"errors"
	"fmt"
	"time"
)

// DeviceInfo is one device found by a bus scan. Name may be empty and
// byte widths may be negative when the link cannot resolve them.
type DeviceInfo struct {
	Position    int
	Name        string
	InputBytes  int
	OutputBytes int
}

// Link is one attached fieldbus segment. RoundTrip sends exactly one
// committed frame and waits, bounded by deadline, for the corresponding
// response frame. The wait always completes or times out; a Link never
// blocks past its deadline.
type Link interface {
	Enumerate() ([]DeviceInfo, error)
	RoundTrip(out []byte, deadline time.Time) ([]byte, error)
	Close() error
}

// ErrFrameLost means no response frame arrived before the deadline.
var ErrFrameLost = errors.New("bus: frame did not arrive")

// CorruptError means a response arrived but did not parse as a frame.
// Callers treat it as a timeout-equivalent failure for the cycle.
type CorruptError struct {
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("bus: corrupt frame: %s", e.Reason)
}

// IsLost reports whether err is frame loss or corruption, the two
// failures that void a whole cycle.
func IsLost(err error) bool {
	if errors.Is(err, ErrFrameLost) {
		return true
	}
	var ce *CorruptError
	return errors.As(err, &ce)
}
