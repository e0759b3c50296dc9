// Package xplapp is the Application layer (spec.md §4.3, C6): it owns a
// single transport handle, decodes and dispatches inbound messages to
// listeners, and serializes outbound ones. Device, Hub, and Bridge are
// all built on top of one or two Applications.
package xplapp

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/xplgo/gxpl/pkg/xpl"
	"github.com/xplgo/gxpl/pkg/xplio"
	"github.com/xplgo/gxpl/pkg/xplplatform"
)

// Listener receives every successfully decoded inbound message, in the
// order Applications discover them (spec.md §5: dispatched in
// registration order).
type Listener func(msg *xpl.Message)

// Setting bundles what Application.Open needs: which transport to
// construct from the registry, and its xplio.Setting.
type Setting struct {
	Transport string
	IO        xplio.Setting
}

// Application is the runtime home for one transport handle (spec.md
// §4.3). It has no notion of Device; Device, Hub, and Bridge register
// themselves as Listeners and call Send.
type Application struct {
	transport xplio.Transport
	platform  xplplatform.Platform
	registry  *xplio.Registry

	localID     xpl.Id
	connectType xplio.ConnectType
	udpPort     int

	listeners []Listener
	recvBuf   []byte
}

// New returns an unopened Application using platform as its clock and
// address source, and registry to construct named transports.
func New(platform xplplatform.Platform, registry *xplio.Registry) *Application {
	if registry == nil {
		registry = xplio.NewRegistry()
	}
	return &Application{
		platform: platform,
		registry: registry,
		recvBuf:  make([]byte, 65536),
	}
}

// Open constructs and opens the transport named in setting.Transport,
// and records the chosen connection type (spec.md §4.3).
func (a *Application) Open(localID xpl.Id, setting Setting) error {
	t, err := a.registry.New(setting.Transport)
	if err != nil {
		return err
	}
	if err := t.Open(setting.IO); err != nil {
		return fmt.Errorf("xplapp: open transport %q: %w", setting.Transport, err)
	}
	a.transport = t
	a.localID = localID
	a.connectType = setting.IO.ConnectType
	if udp, ok := t.(*xplio.UDPTransport); ok {
		a.udpPort = udp.Port()
	}
	return nil
}

// Transport returns the Application's underlying transport handle (for
// callers, e.g. Hub and Bridge, that need transport-specific Ctl calls
// or direct addressing).
func (a *Application) Transport() xplio.Transport { return a.transport }

// LocalID returns the Application's own identity, used as Message
// Source and for hub-echo detection.
func (a *Application) LocalID() xpl.Id { return a.localID }

// IsUDP reports whether the underlying transport is UDP (spec.md §4.3,
// §4.4: heartbeat schema and isHubEchoMessage differ by transport).
func (a *Application) IsUDP() bool {
	_, ok := a.transport.(*xplio.UDPTransport)
	return ok
}

// UDPPort returns the bound listener port when the transport is UDP.
func (a *Application) UDPPort() int { return a.udpPort }

// AddListener appends fn to the end of the dispatch list.
func (a *Application) AddListener(fn Listener) {
	a.listeners = append(a.listeners, fn)
}

// GenerateInstanceID derives a fairly-unique instance id from the
// transport's local address and the platform clock (spec.md §4.3).
func (a *Application) GenerateInstanceID() string {
	resp, err := a.transport.Ctl(xplio.CtlRequest{Kind: xplio.CtlLocalAddr})
	var hw []byte
	if err == nil {
		hw = addressBytes(resp.Addr)
	}
	return xpl.GenerateInstanceId(hw, a.platform.NowMs())
}

func addressBytes(addr xplio.Address) []byte {
	switch a := addr.(type) {
	case xplio.UDPAddress:
		return []byte(a.IP.To4())
	case xplio.ZigBeeAddress:
		return a.Addr64[:]
	default:
		return nil
	}
}

// Poll performs one cooperative scheduling tick (spec.md §5): it asks
// the transport to wait up to timeoutMs for data, drains every
// datagram/frame currently available, decodes each, and dispatches
// successfully decoded messages to every listener in registration
// order. Malformed frames are logged and discarded, never aborting the
// loop (spec.md §4.1 failure mode).
func (a *Application) Poll(timeoutMs int) error {
	if a.transport == nil {
		return fmt.Errorf("xplapp: poll called before Open")
	}
	if _, err := a.transport.Ctl(xplio.CtlRequest{Kind: xplio.CtlPoll, TimeoutMs: timeoutMs}); err != nil {
		return fmt.Errorf("xplapp: poll transport: %w", err)
	}

	for {
		n, _, err := a.transport.Recv(a.recvBuf)
		if err != nil {
			return fmt.Errorf("xplapp: recv: %w", err)
		}
		if n == 0 {
			return nil
		}
		msg := xpl.Decode(a.recvBuf[:n])
		if msg.Errored() {
			log.Warn().Msg("xplapp: discarding malformed message")
			continue
		}
		for _, listener := range a.listeners {
			listener(msg)
		}
	}
}

// Send serializes msg and transmits it. A nil target sends to the
// transport's default destination (for UDP its broadcast address; for
// ZigBee the coordinator from an end node, or a broadcast from the
// coordinator itself). Send never mutates msg.Hop: hop increment
// is a forwarder's responsibility (Hub and Bridge), not the sender's
// (spec.md §4.3).
func (a *Application) Send(msg *xpl.Message, target xplio.Address) error {
	if a.transport == nil {
		return fmt.Errorf("xplapp: send called before Open")
	}
	wire := xpl.Encode(msg)
	_, err := a.transport.Send(wire, target)
	return err
}

// IsHubEchoMessage reports whether msg is this Application's own
// heartbeat or config traffic reflected back by a hub (spec.md §4.3).
func (a *Application) IsHubEchoMessage(msg *xpl.Message) bool {
	if msg.Schema.Class != "hbeat" && msg.Schema.Class != "config" {
		return false
	}
	if a.IsUDP() {
		remoteIP, ok := msg.Get("remote-ip")
		if !ok {
			return false
		}
		portStr, ok := msg.Get("port")
		if !ok {
			return false
		}
		return remoteIP != "" && portStr == fmt.Sprintf("%d", a.udpPort) && a.isLocalIP(remoteIP)
	}
	return msg.Source.Equal(a.localID)
}

func (a *Application) isLocalIP(ipText string) bool {
	resp, err := a.transport.Ctl(xplio.CtlRequest{Kind: xplio.CtlLocalAddrList})
	if err != nil {
		return false
	}
	for _, addr := range resp.Addrs {
		if addr.String() == ipText {
			return true
		}
		if ua, ok := addr.(xplio.UDPAddress); ok && ua.IP.String() == ipText {
			return true
		}
	}
	return false
}

// Close gracefully shuts the Application down: external callers (Device,
// Hub, Bridge) are expected to have already disabled every owned Device
// so hbeat.end/config.end frames went out; Close only releases the I/O
// handle (spec.md §5 Cancellation).
func (a *Application) Close() error {
	if a.transport == nil {
		return nil
	}
	return a.transport.Close()
}
