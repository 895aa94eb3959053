// Package transport provides the loopback UDP sockets a router binds its
// input ports to, and the send path used for periodic/triggered updates.
package transport

import (
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Conn wraps one UDP socket bound to a loopback input port.
type Conn struct {
	raw  *net.UDPConn
	port int
}

// Listen binds a UDP socket to host:port with SO_REUSEADDR set before
// bind, matching the original simulator's socket setup (and the reason
// given there: it eases bind races when many router sockets come up
// together). Design Notes §9 supersedes the original's compensating
// sleep-before-bind with binding synchronously up front instead.
func Listen(host string, port int) (*Conn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}
	pc, err := lc.ListenPacket(nil, "udp4", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("transport: bind %s:%d: %w", host, port, err)
	}
	udpConn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("transport: unexpected packet conn type for %s:%d", host, port)
	}
	return &Conn{raw: udpConn, port: udpConn.LocalAddr().(*net.UDPAddr).Port}, nil
}

// Port returns the bound local port.
func (c *Conn) Port() int { return c.port }

// SetReadDeadline forwards to the underlying socket, used by the event
// loop to make blocking reads interruptible on a cadence.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.raw.SetReadDeadline(t) }

// ReadFrom reads one datagram into buf, returning the number of bytes
// read and the sender's address.
func (c *Conn) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	n, addr, err := c.raw.ReadFromUDP(buf)
	return n, addr, err
}

// WriteTo sends pkt to host:port.
func (c *Conn) WriteTo(pkt []byte, host string, port int) (int, error) {
	dst := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	return c.raw.WriteToUDP(pkt, dst)
}

// Close closes the underlying socket.
func (c *Conn) Close() error { return c.raw.Close() }
