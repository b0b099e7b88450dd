// internal/image/errors.go
package image

import (
	"errors"
	"fmt"

	"github.com/softplc/vplc/internal/topology"
)

// ErrSignalNotFound means control logic named a signal the layout does
// not contain. This is a programming error, never retried.
var ErrSignalNotFound = errors.New("image: signal not found")

// TypeError means a signal was accessed through the wrong typed accessor.
type TypeError struct {
	Name string
	Want topology.Kind
	Got  topology.Kind
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("image: signal %q is %s, accessed as %s", e.Name, e.Got, e.Want)
}

// RangeError means a written value does not fit the signal's bit width
// or enum bound. Values are never silently truncated.
type RangeError struct {
	Name  string
	Bits  int
	Value uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("image: value %d does not fit signal %q (%d bits)", e.Value, e.Name, e.Bits)
}

// ErrReadOnly means control logic tried to write an input signal.
var ErrReadOnly = errors.New("image: input signals are not writable")
