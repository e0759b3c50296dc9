// Package xplio is the transport-abstract I/O layer (spec.md §4.2, C3):
// a small open/recv/send/close/ctl capability surface with two concrete
// transports, UDP and ZigBee, registered under a name and constructed on
// demand (spec.md §9 Design Notes — closed-enum transport registry, no
// dynamic loading).
package xplio

import (
	"errors"
	"fmt"
	"net"
)

// ConnectType selects how a transport binds its inbound side, mirroring
// the original gxPLConnectType enum.
type ConnectType int

const (
	ConnectStandAlone ConnectType = iota
	ConnectViaHub
	ConnectAuto
)

// Address is the transport-neutral peer address returned by Recv and
// accepted by Send. Each transport defines its own concrete type.
type Address interface {
	// Network names the owning transport ("udp", "xbeezb").
	Network() string
	// String renders the address in the transport's textual form.
	String() string
	// IsBroadcast reports whether this address denotes the transport's
	// broadcast address rather than a specific peer.
	IsBroadcast() bool
}

// UDPSetting configures the UDP transport (spec.md §4.2).
type UDPSetting struct {
	// Port is the well-known xPL port. Zero defaults to 3865.
	Port int
}

// ZigBeeSetting configures the ZigBee transport (spec.md §4.2).
type ZigBeeSetting struct {
	BaudRate    int  // default 38400
	RTSCTS      bool // optional hardware flow control
	PanID       uint64
	Coordinator bool // not set by Open; ZigBeeTransport keeps its probed role internally
}

// Setting bundles the parameters needed to Open any transport. Only the
// sub-struct matching the chosen transport is consulted.
type Setting struct {
	Iface          string
	ConnectType    ConnectType
	IOTimeoutSec   int // retry budget while waiting for a network interface
	UDP            UDPSetting
	ZigBee         ZigBeeSetting
}

// CtlKind tags a CtlRequest/CtlResponse pair. A tagged variant replaces
// the original's variadic gxPLIoCtl(io, cmd, ...) (spec.md §9 Design
// Notes): each kind names exactly which CtlRequest/CtlResponse fields
// are meaningful.
type CtlKind int

const (
	// CtlPoll waits up to TimeoutMs for readable data; the response's
	// AvailableBytes is >0 when Recv would return data immediately.
	CtlPoll CtlKind = iota
	// CtlBroadcastAddr returns the transport's broadcast Address.
	CtlBroadcastAddr
	// CtlLocalAddr returns this host/node's own Address on the transport.
	CtlLocalAddr
	// CtlLocalAddrList returns every local address the transport knows
	// about, used to recognize traffic from this host (hbeat remote-ip
	// itself comes from CtlLocalAddr).
	CtlLocalAddrList
	// CtlAddrToString renders Addr as text.
	CtlAddrToString
	// CtlAddrFromString parses Text into an Address of this transport.
	CtlAddrFromString
)

// CtlRequest is the tagged request accepted by Transport.Ctl.
type CtlRequest struct {
	Kind      CtlKind
	TimeoutMs int
	Addr      Address
	Text      string
}

// CtlResponse is the tagged result produced by Transport.Ctl.
type CtlResponse struct {
	AvailableBytes int
	Addr           Address
	Addrs          []Address
	Text           string
}

// Transport is the capability interface every hardware binding
// implements (spec.md §4.2, C3). Open/Close bracket the transport's
// lifetime; Recv/Send move xPL frames; Ctl carries everything else
// (polling, address introspection) that doesn't fit a byte stream.
type Transport interface {
	// Open prepares the transport for use. It must not block longer than
	// Setting.IOTimeoutSec while waiting for a network to appear.
	Open(setting Setting) error
	// Recv copies at most len(buf) bytes of the next datagram/frame into
	// buf, non-blocking: 0, nil, nil means nothing is available yet.
	Recv(buf []byte) (n int, source Address, err error)
	// Send transmits buf to target (nil target means the transport's
	// default destination: its broadcast address, or — for ZigBee
	// non-coordinator nodes — the coordinator).
	Send(buf []byte, target Address) (n int, err error)
	// Close releases all transport resources. Open may be called again
	// afterward.
	Close() error
	// Ctl performs a side-channel operation named by req.Kind.
	Ctl(req CtlRequest) (CtlResponse, error)
}

// ErrUnsupportedCtl is returned by a Transport's Ctl for a CtlKind it
// does not implement.
var ErrUnsupportedCtl = errors.New("xplio: unsupported ctl kind")

// Factory constructs a fresh, unopened Transport instance.
type Factory func() Transport

// Registry is a process-wide but explicit name-to-constructor table
// (spec.md §9 Design Notes: closed enum, never dynamically loaded).
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a Registry pre-populated with the UDP and ZigBee
// transports.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("udp", func() Transport { return NewUDPTransport() })
	r.Register("xbeezb", func() Transport { return NewZigBeeTransport() })
	return r
}

// Register associates name with factory, overwriting any prior entry.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// New constructs a fresh Transport registered under name.
func (r *Registry) New(name string) (Transport, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("xplio: transport %q not registered", name)
	}
	return factory(), nil
}

// broadcastAddr computes the IPv4 broadcast address for ip/netmask as
// ip | ^netmask (spec.md §4.2).
func broadcastAddr(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	out := make(net.IP, len(ip4))
	for i := range ip4 {
		out[i] = ip4[i] | ^mask[i]
	}
	return out
}
