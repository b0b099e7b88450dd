// internal/image/image.go
package image

import (
	"sync/atomic"

	"github.com/softplc/vplc/internal/topology"
)

// Image is the flat process image: one input region, one output region,
// sized once from the packed layout and never resized.
//
// Inputs are double-buffered. The exchange engine fills the pending
// buffer during receive and publishes it with a single atomic swap, so a
// reader always observes a complete single-cycle snapshot. Outputs go
// the other way: control logic writes a staging buffer, CommitOutputs
// copies it to the transmit buffer at the cycle boundary, and only the
// transmit buffer ever reaches the wire.
type Image struct {
	layout *topology.Layout

	published atomic.Pointer[[]byte]
	pending   *[]byte

	staging  []byte
	transmit []byte
	safe     []byte
}

func New(l *topology.Layout) *Image {
	inA := make([]byte, l.InputBytes)
	inB := make([]byte, l.InputBytes)

	im := &Image{
		layout:   l,
		pending:  &inB,
		staging:  make([]byte, l.OutputBytes),
		transmit: make([]byte, l.OutputBytes),
		safe:     make([]byte, l.OutputBytes),
	}
	im.published.Store(&inA)

	for _, sig := range l.Signals {
		if sig.Region == topology.Output && sig.Safe != 0 {
			putBits(im.safe, sig.Byte, sig.Bit, sig.Bits, sig.Safe)
		}
	}

	// outputs start at the safe pattern, not at zero
	copy(im.staging, im.safe)
	copy(im.transmit, im.safe)

	return im
}

func (im *Image) Layout() *topology.Layout {
	return im.layout
}

// ---- EXCHANGE-ENGINE SIDE ----
// These methods are owned by the exchange engine; they are not safe for
// use concurrently with each other.

// BeginCycle seeds the pending input buffer with the published snapshot,
// so devices that miss this cycle keep their last-known values.
func (im *Image) BeginCycle() {
	copy(*im.pending, *im.published.Load())
}

// ReceiveWindow exposes one device's slice of the pending input buffer.
func (im *Image) ReceiveWindow(w topology.Window) []byte {
	return (*im.pending)[w.InOff : w.InOff+w.InLen]
}

// PendingInputs exposes the whole pending input buffer for a bulk frame
// receive.
func (im *Image) PendingInputs() []byte {
	return *im.pending
}

// PublishInputs atomically swaps the pending buffer in as the published
// snapshot. Readers holding the previous snapshot keep a consistent view.
func (im *Image) PublishInputs() {
	old := im.published.Swap(im.pending)
	im.pending = old
}

// CommitOutputs copies the staging buffer into the transmit buffer.
// Called exactly once per cycle, after control logic has run.
func (im *Image) CommitOutputs() {
	copy(im.transmit, im.staging)
}

// TransmitBytes is the full output region as it goes on the wire.
func (im *Image) TransmitBytes() []byte {
	return im.transmit
}

// TransmitWindow exposes one device's slice of the transmit buffer.
func (im *Image) TransmitWindow(w topology.Window) []byte {
	return im.transmit[w.OutOff : w.OutOff+w.OutLen]
}

// ForceSafe overwrites the transmit buffer with the safe pattern. Used
// on fault entry and during shutdown. Staging is left alone: control
// logic keeps reading back what it staged, it just never reaches the
// wire while the safe pattern is being forced.
func (im *Image) ForceSafe() {
	copy(im.transmit, im.safe)
}

// ForceSafeWindow overwrites a single device's transmit window with its
// safe values, leaving other devices' outputs alone.
func (im *Image) ForceSafeWindow(w topology.Window) {
	copy(im.transmit[w.OutOff:w.OutOff+w.OutLen], im.safe[w.OutOff:w.OutOff+w.OutLen])
}

// SafePattern returns a copy of the configured safe output pattern.
func (im *Image) SafePattern() []byte {
	out := make([]byte, len(im.safe))
	copy(out, im.safe)
	return out
}
