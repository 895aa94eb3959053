// Package wire implements the fixed-width datagram codec used between
// simulated routers: a 4-byte header followed by zero or more 20-byte
// Route Table Entries (RTEs).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the on-the-wire size of Header, in bytes.
	HeaderSize = 4
	// RTESize is the on-the-wire size of a single RTE, in bytes.
	RTESize = 20

	// CommandResponse is the only command this simulation emits or accepts.
	CommandResponse uint8 = 2
	// Version is the fixed protocol version carried in every header.
	Version uint8 = 2
	// AFInet is the fixed address-family value carried in every RTE.
	AFInet uint16 = 2

	// MaxMetric denotes an unreachable destination ("infinity").
	MaxMetric uint32 = 16
)

var (
	// ErrShortDatagram is returned when a datagram is smaller than a header.
	ErrShortDatagram = errors.New("wire: datagram shorter than header")
	// ErrUnalignedPayload is returned when the RTE portion of a datagram
	// is not an exact multiple of RTESize.
	ErrUnalignedPayload = errors.New("wire: RTE payload not aligned to RTE size")
)

// Header is the fixed 4-byte prefix of every datagram.
//
// Layout (network byte order): cmd:u8, ver:u8, src:u16. The protocol's
// "must be zero" field is overloaded here to carry the sending router's
// simulator id.
type Header struct {
	Cmd uint8
	Ver uint8
	Src uint16
}

// NewHeader builds a local header for router src.
func NewHeader(src uint16) Header {
	return Header{Cmd: CommandResponse, Ver: Version, Src: src}
}

// Encode serializes h into its 4-byte wire form.
func (h Header) Encode() []byte {
	b := make([]byte, HeaderSize)
	b[0] = h.Cmd
	b[1] = h.Ver
	binary.BigEndian.PutUint16(b[2:4], h.Src)
	return b
}

// DecodeHeader parses the first HeaderSize bytes of b into a Header.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortDatagram
	}
	return Header{
		Cmd: b[0],
		Ver: b[1],
		Src: binary.BigEndian.Uint16(b[2:4]),
	}, nil
}

// RTE is a single Route Table Entry as carried on the wire.
//
// Layout (network byte order): afi:u16, tag:u16, addr:u32, mask:u32,
// next_hop:u32, metric:u32. Tag and Mask are unused and always zero.
type RTE struct {
	AFI     uint16
	Tag     uint16
	Addr    uint32
	Mask    uint32
	NextHop uint32
	Metric  uint32
}

// NewRTE builds a local RTE for transmission or table insertion.
func NewRTE(addr, nextHop, metric uint32) RTE {
	return RTE{AFI: AFInet, Addr: addr, NextHop: nextHop, Metric: metric}
}

// Equal compares the six wire-visible fields only (per spec: bookkeeping
// flags such as changed/imported/is_garbage/timeout are not part of
// wire equality).
func (r RTE) Equal(o RTE) bool {
	return r.AFI == o.AFI && r.Tag == o.Tag && r.Addr == o.Addr &&
		r.Mask == o.Mask && r.NextHop == o.NextHop && r.Metric == o.Metric
}

// Encode serializes r into its 20-byte wire form.
func (r RTE) Encode() []byte {
	b := make([]byte, RTESize)
	be := binary.BigEndian
	be.PutUint16(b[0:2], r.AFI)
	be.PutUint16(b[2:4], r.Tag)
	be.PutUint32(b[4:8], r.Addr)
	be.PutUint32(b[8:12], r.Mask)
	be.PutUint32(b[12:16], r.NextHop)
	be.PutUint32(b[16:20], r.Metric)
	return b
}

// decodeRTE parses a single RTESize-byte record verbatim. Per the wire
// convention, NextHop == 0 means "use the datagram sender's src"; the
// protocol engine applies that substitution (and in fact always adopts
// the sender as next hop on receive — see engine.Engine.Receive) rather
// than decodeRTE itself.
func decodeRTE(b []byte) RTE {
	be := binary.BigEndian
	return RTE{
		AFI:     be.Uint16(b[0:2]),
		Tag:     be.Uint16(b[2:4]),
		Addr:    be.Uint32(b[4:8]),
		Mask:    be.Uint32(b[8:12]),
		NextHop: be.Uint32(b[12:16]),
		Metric:  be.Uint32(b[16:20]),
	}
}

// Datagram is a decoded header plus its RTEs, in wire order.
type Datagram struct {
	Header Header
	RTEs   []RTE
}

// Encode serializes the full datagram: header followed by each RTE in order.
func (d Datagram) Encode() []byte {
	out := make([]byte, 0, HeaderSize+RTESize*len(d.RTEs))
	out = append(out, d.Header.Encode()...)
	for _, r := range d.RTEs {
		out = append(out, r.Encode()...)
	}
	return out
}

// Decode parses a full datagram. It fails if the payload length is not
// HeaderSize + k*RTESize for some k >= 0.
func Decode(b []byte) (Datagram, error) {
	if len(b) < HeaderSize {
		return Datagram{}, ErrShortDatagram
	}
	h, err := DecodeHeader(b[:HeaderSize])
	if err != nil {
		return Datagram{}, err
	}
	rest := b[HeaderSize:]
	if len(rest)%RTESize != 0 {
		return Datagram{}, fmt.Errorf("%w: %d bytes of RTE payload", ErrUnalignedPayload, len(rest))
	}
	k := len(rest) / RTESize
	rtes := make([]RTE, 0, k)
	for i := 0; i < k; i++ {
		start := i * RTESize
		rtes = append(rtes, decodeRTE(rest[start:start+RTESize]))
	}
	return Datagram{Header: h, RTEs: rtes}, nil
}
