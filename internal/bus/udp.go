// internal/bus/udp.go
package bus

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/softplc/vplc/internal/frame"
)

const (
	// UDPPort is the registered EtherCAT-over-UDP port.
	UDPPort = 0x88a4

	udpReceiveBuflen = 1500
)

// DefaultGroup is the multicast group device segments join.
var DefaultGroup = net.IPv4(239, 136, 164, 1)

// UDPLink exchanges frames with a device segment over UDP multicast,
// one datagram per frame.
type UDPLink struct {
	sock      *net.UDPConn
	mcsock    *ipv4.PacketConn
	groupaddr *net.UDPAddr
	rbuf      []byte
}

// NewUDPLink joins the device multicast group on the named interface.
func NewUDPLink(ifaceName string, group net.IP) (*UDPLink, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("bus: interface %s: %w", ifaceName, err)
	}

	sock, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: UDPPort})
	if err != nil {
		return nil, err
	}

	l := &UDPLink{
		sock:      sock,
		mcsock:    ipv4.NewPacketConn(sock),
		groupaddr: &net.UDPAddr{IP: group, Port: UDPPort},
		rbuf:      make([]byte, udpReceiveBuflen),
	}

	if err := l.mcsock.SetMulticastInterface(iface); err != nil {
		sock.Close()
		return nil, err
	}
	if err := l.mcsock.JoinGroup(iface, &net.UDPAddr{IP: group}); err != nil {
		sock.Close()
		return nil, err
	}
	if err := l.mcsock.SetMulticastLoopback(false); err != nil {
		sock.Close()
		return nil, err
	}

	return l, nil
}

// Enumerate counts devices with a broadcast register read; the working
// counter of the response is the device count. Names and process-data
// widths are not resolvable without EEPROM parsing, so they are reported
// unknown.
func (l *UDPLink) Enumerate() ([]DeviceInfo, error) {
	buf := make([]byte, frame.FrameOverhead+frame.DatagramOverhead+2)
	f, err := frame.New(buf)
	if err != nil {
		return nil, err
	}
	if _, err := f.NewDatagram(frame.BRD, frame.PhysAddr(0, 0), 2); err != nil {
		return nil, err
	}

	out, err := f.Commit()
	if err != nil {
		return nil, err
	}

	in, err := l.RoundTrip(out, time.Now().Add(time.Second))
	if err != nil {
		return nil, err
	}

	var rf frame.Frame
	if err := rf.Overlay(in); err != nil {
		return nil, &CorruptError{Reason: err.Error()}
	}
	if len(rf.Datagrams) != 1 {
		return nil, &CorruptError{Reason: "enumeration response has no datagram"}
	}

	n := int(rf.Datagrams[0].WorkingCounter)
	infos := make([]DeviceInfo, n)
	for i := range infos {
		infos[i] = DeviceInfo{Position: i, InputBytes: -1, OutputBytes: -1}
	}
	return infos, nil
}

func (l *UDPLink) RoundTrip(out []byte, deadline time.Time) ([]byte, error) {
	if _, err := l.sock.WriteToUDP(out, l.groupaddr); err != nil {
		return nil, err
	}

	if err := l.sock.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	for {
		n, _, err := l.sock.ReadFromUDP(l.rbuf)
		if isTimeout(err) {
			return nil, ErrFrameLost
		}
		if err != nil {
			return nil, err
		}

		// own transmissions may loop back on some stacks; skip anything
		// that echoes the outgoing bytes
		if n == len(out) && string(l.rbuf[:n]) == string(out) {
			continue
		}

		resp := make([]byte, n)
		copy(resp, l.rbuf[:n])
		return resp, nil
	}
}

func (l *UDPLink) Close() error {
	if l.mcsock != nil {
		l.mcsock.Close()
	}
	if l.sock != nil {
		return l.sock.Close()
	}
	return nil
}

type timeouter interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return false
}
