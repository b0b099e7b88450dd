// internal/frame/frame.go
package frame

import (
	"errors"
	"fmt"
)

const (
	// FrameOverhead is the frame header size.
	FrameOverhead = 2

	frameLenMask = (1 << 11) - 1

	// PDUType marks a frame carrying process-data datagrams.
	PDUType = 1
)

// Header is the 2-byte frame header: an 11-bit byte count of the
// datagram area and a 4-bit frame type.
type Header struct {
	Word uint16
}

func (h *Header) FrameLength() int {
	return int(h.Word & frameLenMask)
}

func (h *Header) Type() uint8 {
	return uint8(h.Word>>12) & 0x0f
}

func (h *Header) SetType(t uint8) {
	h.Word &^= 0x0f << 12
	h.Word |= uint16(t&0x0f) << 12
}

func (h *Header) setFrameLength(n int) {
	h.Word &^= frameLenMask
	h.Word |= uint16(n) & frameLenMask
}

// Frame is one wire frame: header plus one or more datagrams laid out
// over a single backing buffer.
type Frame struct {
	Header    Header
	Datagrams []*Datagram

	buffer []byte
	used   int
}

// New prepares an empty frame for building over buf.
func New(buf []byte) (*Frame, error) {
	if len(buf) < FrameOverhead+DatagramOverhead {
		return nil, errors.New("frame: buffer too small for a one-datagram frame")
	}

	f := &Frame{buffer: buf, used: FrameOverhead}
	f.Header.SetType(PDUType)
	return f, nil
}

// NewDatagram reserves space for one datagram and returns it with its
// payload aliasing the frame buffer, zeroed.
func (f *Frame) NewDatagram(cmd CommandType, addr32 uint32, datalen int) (*Datagram, error) {
	need := DatagramOverhead + datalen
	if f.used+need > len(f.buffer) {
		return nil, fmt.Errorf("frame: datagram of %d bytes does not fit, %d free",
			need, len(f.buffer)-f.used)
	}

	dg := &Datagram{
		Command: cmd,
		Index:   uint8(len(f.Datagrams)),
		Addr32:  addr32,
		LenWord: uint16(datalen) & dataLenMask,
		data:    f.buffer[f.used+datagramHeaderLen : f.used+datagramHeaderLen+datalen],
	}
	for i := range dg.data {
		dg.data[i] = 0
	}

	f.used += need
	f.Datagrams = append(f.Datagrams, dg)
	return dg, nil
}

// Commit finalizes lengths and chaining flags and returns the wire bytes.
func (f *Frame) Commit() ([]byte, error) {
	if len(f.Datagrams) == 0 {
		return nil, errors.New("frame: needs at least one datagram")
	}

	dglen := 0
	for _, dg := range f.Datagrams {
		dglen += dg.ByteLen()
	}
	f.Header.setFrameLength(dglen)
	putUint16(f.buffer, f.Header.Word)

	off := FrameOverhead
	for i, dg := range f.Datagrams {
		dg.setMoreFollows(i != len(f.Datagrams)-1)
		dg.commit(f.buffer[off:])
		off += dg.ByteLen()
	}

	return f.buffer[:off], nil
}

// Overlay parses a received frame, aliasing payloads into d.
func (f *Frame) Overlay(d []byte) error {
	if len(d) < FrameOverhead {
		return errors.New("frame: too short for header")
	}

	f.buffer = d
	b := d
	f.Header.Word, b = getUint16(b)

	if f.Header.FrameLength() > len(b) {
		return fmt.Errorf("frame: header declares %d bytes, %d remain",
			f.Header.FrameLength(), len(b))
	}

	f.Datagrams = f.Datagrams[:0]
	for {
		dg := &Datagram{}
		var err error
		b, err = dg.overlay(b)
		if err != nil {
			return err
		}
		f.Datagrams = append(f.Datagrams, dg)

		if dg.Last() {
			return nil
		}
	}
}
