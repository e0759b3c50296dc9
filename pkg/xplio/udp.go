package xplio

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultPort is the well-known xPL UDP port (spec.md §4.2).
const DefaultPort = 3865

// UDPAddress is an IPv4 xPL peer address: a dotted-quad plus UDP port.
// Grounded on _examples/original_source/src/sys/unix/io_udp.c, whose
// gxPLIoAddr carries a 4-byte addr and a 16-bit port for this family.
type UDPAddress struct {
	IP        net.IP
	Port      int
	Broadcast bool
}

func (a UDPAddress) Network() string   { return "udp" }
func (a UDPAddress) IsBroadcast() bool { return a.Broadcast }
func (a UDPAddress) String() string {
	return net.JoinHostPort(a.IP.String(), strconv.Itoa(a.Port))
}

// UDPTransport implements Transport over IPv4 UDP (spec.md §4.2, C4):
// a broadcast-capable outbound socket and a bind socket, either on the
// well-known port (standalone) or an ephemeral one (hub-client).
type UDPTransport struct {
	setting    Setting
	iface      string
	localIP    net.IP
	bcastIP    net.IP
	bindConn   *net.UDPConn
	bcastConn  *net.UDPConn
	localAddrs []net.IP
	port       int

	// pendingBuf/pendingSrc hold a datagram drained by poll's deadlined
	// read so the following Recv can still return it.
	pendingBuf []byte
	pendingSrc *net.UDPAddr
}

// NewUDPTransport returns an unopened UDP transport.
func NewUDPTransport() *UDPTransport { return &UDPTransport{} }

// Open selects (or probes for) a non-loopback IPv4 interface, builds
// the broadcast socket and the bind socket, and enumerates local
// addresses (spec.md §4.2).
func (t *UDPTransport) Open(setting Setting) error {
	t.setting = setting
	timeout := setting.IOTimeoutSec
	if timeout <= 0 {
		timeout = 5
	}

	var (
		ifaceName string
		ip        net.IP
		mask      net.IPMask
		err       error
	)
	deadline := time.Now().Add(time.Duration(timeout) * time.Second)
	for {
		ifaceName, ip, mask, err = selectInterface(setting.Iface)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("xplio/udp: no usable network interface: %w", err)
		}
		time.Sleep(time.Second)
	}

	t.iface = ifaceName
	t.localIP = ip
	t.bcastIP = broadcastAddr(ip, mask)

	lc := net.ListenConfig{Control: udpBroadcastControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort(ip.String(), "0"))
	if err != nil {
		return fmt.Errorf("xplio/udp: open broadcast socket: %w", err)
	}
	t.bcastConn = pc.(*net.UDPConn)

	port := DefaultPort
	switch {
	case setting.ConnectType == ConnectViaHub:
		port = 0
	case setting.UDP.Port != 0:
		port = setting.UDP.Port
	}
	bind, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		_ = t.bcastConn.Close()
		return fmt.Errorf("xplio/udp: bind listener socket: %w", err)
	}
	t.bindConn = bind
	udpMaximizeRxBuffer(bind)

	if boundAddr, ok := bind.LocalAddr().(*net.UDPAddr); ok {
		t.port = boundAddr.Port
	}
	if t.port == DefaultPort {
		t.setting.ConnectType = ConnectStandAlone
	}

	addrs, err := buildLocalAddrList(ifaceName)
	if err != nil {
		return fmt.Errorf("xplio/udp: enumerate local addresses: %w", err)
	}
	t.localAddrs = addrs
	return nil
}

// Port returns the bound listener's UDP port (ephemeral in hub-client
// mode, DefaultPort in standalone mode).
func (t *UDPTransport) Port() int { return t.port }

// Recv is non-blocking: it first drains any datagram poll already
// pulled off the wire, then attempts an immediate (zero-deadline) read.
func (t *UDPTransport) Recv(buf []byte) (int, Address, error) {
	if t.pendingBuf != nil {
		n := copy(buf, t.pendingBuf)
		src := t.pendingSrc
		t.pendingBuf = nil
		t.pendingSrc = nil
		return n, UDPAddress{IP: src.IP, Port: src.Port}, nil
	}

	_ = t.bindConn.SetReadDeadline(time.Now())
	n, addr, err := t.bindConn.ReadFromUDP(buf)
	if err != nil {
		if isTimeout(err) {
			return 0, nil, nil
		}
		return 0, nil, err
	}
	return n, UDPAddress{IP: addr.IP, Port: addr.Port}, nil
}

func (t *UDPTransport) Send(buf []byte, target Address) (int, error) {
	dst := &net.UDPAddr{IP: t.bcastIP, Port: DefaultPort}
	conn := t.bcastConn
	if target != nil {
		if ua, ok := target.(UDPAddress); ok && !ua.Broadcast {
			dst = &net.UDPAddr{IP: ua.IP, Port: ua.Port}
			conn = t.bindConn
		}
	}
	n, err := conn.WriteToUDP(buf, dst)
	if err != nil {
		return 0, fmt.Errorf("xplio/udp: send: %w", err)
	}
	return n, nil
}

func (t *UDPTransport) Close() error {
	var errs []error
	if t.bcastConn != nil {
		if err := t.bcastConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if t.bindConn != nil {
		if err := t.bindConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("xplio/udp: close: %v", errs)
	}
	return nil
}

func (t *UDPTransport) Ctl(req CtlRequest) (CtlResponse, error) {
	switch req.Kind {
	case CtlPoll:
		return t.poll(req.TimeoutMs)

	case CtlBroadcastAddr:
		return CtlResponse{Addr: UDPAddress{IP: t.bcastIP, Port: DefaultPort, Broadcast: true}}, nil

	case CtlLocalAddr:
		return CtlResponse{Addr: UDPAddress{IP: t.localIP, Port: t.port}}, nil

	case CtlLocalAddrList:
		addrs := make([]Address, 0, len(t.localAddrs))
		for _, ip := range t.localAddrs {
			addrs = append(addrs, UDPAddress{IP: ip, Port: t.port})
		}
		return CtlResponse{Addrs: addrs}, nil

	case CtlAddrToString:
		ua, ok := req.Addr.(UDPAddress)
		if !ok {
			return CtlResponse{}, ErrUnsupportedCtl
		}
		return CtlResponse{Text: ua.IP.String()}, nil

	case CtlAddrFromString:
		ip := net.ParseIP(req.Text)
		if ip == nil {
			return CtlResponse{}, fmt.Errorf("xplio/udp: invalid address %q", req.Text)
		}
		return CtlResponse{Addr: UDPAddress{IP: ip}}, nil

	default:
		return CtlResponse{}, ErrUnsupportedCtl
	}
}

// poll waits up to timeoutMs for a readable datagram (spec.md §5: one
// of the three permitted suspension points). Since net.UDPConn has no
// peek, a datagram that arrives during the wait is read in full and
// stashed for the following Recv.
func (t *UDPTransport) poll(timeoutMs int) (CtlResponse, error) {
	if t.pendingBuf != nil {
		return CtlResponse{AvailableBytes: len(t.pendingBuf)}, nil
	}

	deadline := time.Now()
	if timeoutMs > 0 {
		deadline = deadline.Add(time.Duration(timeoutMs) * time.Millisecond)
	}
	_ = t.bindConn.SetReadDeadline(deadline)

	buf := make([]byte, 65507)
	n, addr, err := t.bindConn.ReadFromUDP(buf)
	if err != nil {
		if isTimeout(err) {
			return CtlResponse{AvailableBytes: 0}, nil
		}
		return CtlResponse{}, err
	}
	t.pendingBuf = buf[:n]
	t.pendingSrc = addr
	return CtlResponse{AvailableBytes: n}, nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
