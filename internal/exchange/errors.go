// internal/exchange/errors.go
package exchange

import (
	"errors"
	"fmt"

	"github.com/softplc/vplc/internal/frame"
)

// ErrExchangeFatal means too many devices are unresponsive and the
// MainDevice has moved to Faulted. It is reported every cycle until the
// fault clears.
var ErrExchangeFatal = errors.New("exchange: too many devices unresponsive")

// DeviceTimeoutError is a per-device exchange failure. Recoverable; it
// drives the health ladder, not a shutdown.
type DeviceTimeoutError struct {
	Name string
}

func (e *DeviceTimeoutError) Error() string {
	return fmt.Sprintf("exchange: device %s did not answer", e.Name)
}

// WorkingCounterError means a datagram came back with fewer
// acknowledgements than the addressed devices should have produced.
type WorkingCounterError struct {
	Command    frame.CommandType
	Addr32     uint32
	Want, Have uint16
}

func (e *WorkingCounterError) Error() string {
	return fmt.Sprintf("exchange: working counter want %d, have %d on %v %#08x",
		e.Want, e.Have, e.Command, e.Addr32)
}
