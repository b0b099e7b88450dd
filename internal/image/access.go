// internal/image/access.go
package image

import (
	"math"

	"github.com/softplc/vplc/internal/topology"
)

// Access is the typed I/O view handed to control logic for one cycle.
// Input reads come from the snapshot captured when the view was taken;
// output reads and writes go through the staging buffer. The snapshot
// pointer is captured once, so a view stays internally consistent even
// if the engine publishes a new input frame underneath it.
type Access struct {
	img *Image
	in  []byte
}

// Access captures the current published input snapshot.
func (im *Image) Access() *Access {
	return &Access{img: im, in: *im.published.Load()}
}

func (a *Access) lookup(name string, want topology.Kind) (*topology.Signal, error) {
	sig := a.img.layout.Signal(name)
	if sig == nil {
		return nil, ErrSignalNotFound
	}

	ok := sig.Kind == want
	// enum signals are readable and writable as uint
	if !ok && want == topology.Uint && sig.Kind == topology.Enum {
		ok = true
	}
	if !ok {
		return nil, &TypeError{Name: name, Want: want, Got: sig.Kind}
	}

	return sig, nil
}

func (a *Access) read(sig *topology.Signal) uint64 {
	if sig.Region == topology.Input {
		return getBits(a.in, sig.Byte, sig.Bit, sig.Bits)
	}
	return getBits(a.img.staging, sig.Byte, sig.Bit, sig.Bits)
}

func (a *Access) write(sig *topology.Signal, v uint64) error {
	if sig.Region != topology.Output {
		return ErrReadOnly
	}
	putBits(a.img.staging, sig.Byte, sig.Bit, sig.Bits, v)
	return nil
}

// ---- TYPED ACCESSORS ----

func (a *Access) Bool(name string) (bool, error) {
	sig, err := a.lookup(name, topology.Bool)
	if err != nil {
		return false, err
	}
	return a.read(sig) != 0, nil
}

func (a *Access) SetBool(name string, v bool) error {
	sig, err := a.lookup(name, topology.Bool)
	if err != nil {
		return err
	}
	var bits uint64
	if v {
		bits = 1
	}
	return a.write(sig, bits)
}

func (a *Access) Uint(name string) (uint64, error) {
	sig, err := a.lookup(name, topology.Uint)
	if err != nil {
		return 0, err
	}
	return a.read(sig), nil
}

func (a *Access) SetUint(name string, v uint64) error {
	sig, err := a.lookup(name, topology.Uint)
	if err != nil {
		return err
	}
	if !fitsUnsigned(v, sig.Bits) {
		return &RangeError{Name: name, Bits: sig.Bits, Value: v}
	}
	if sig.Kind == topology.Enum && sig.Max != 0 && v > sig.Max {
		return &RangeError{Name: name, Bits: sig.Bits, Value: v}
	}
	return a.write(sig, v)
}

func (a *Access) Int(name string) (int64, error) {
	sig, err := a.lookup(name, topology.Int)
	if err != nil {
		return 0, err
	}
	return signExtend(a.read(sig), sig.Bits), nil
}

func (a *Access) SetInt(name string, v int64) error {
	sig, err := a.lookup(name, topology.Int)
	if err != nil {
		return err
	}
	if !fitsSigned(v, sig.Bits) {
		return &RangeError{Name: name, Bits: sig.Bits, Value: uint64(v)}
	}
	mask := uint64(math.MaxUint64)
	if sig.Bits < 64 {
		mask = 1<<uint(sig.Bits) - 1
	}
	return a.write(sig, uint64(v)&mask)
}

// Fixed signals carry Q16.16 fixed point in 32 bits.

func (a *Access) Fixed(name string) (float64, error) {
	sig, err := a.lookup(name, topology.Fixed)
	if err != nil {
		return 0, err
	}
	raw := int32(uint32(a.read(sig)))
	return float64(raw) / 65536.0, nil
}

func (a *Access) SetFixed(name string, v float64) error {
	sig, err := a.lookup(name, topology.Fixed)
	if err != nil {
		return err
	}
	scaled := math.Round(v * 65536.0)
	if scaled > math.MaxInt32 || scaled < math.MinInt32 {
		return &RangeError{Name: name, Bits: sig.Bits, Value: uint64(int64(scaled))}
	}
	return a.write(sig, uint64(uint32(int32(scaled))))
}
