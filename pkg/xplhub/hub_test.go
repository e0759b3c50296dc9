package xplhub

import (
	"net"
	"strconv"
	"testing"

	"github.com/xplgo/gxpl/pkg/xpl"
	"github.com/xplgo/gxpl/pkg/xplapp"
	"github.com/xplgo/gxpl/pkg/xplio"
	"github.com/xplgo/gxpl/pkg/xplplatform"
)

type fakeTransport struct {
	inbox      [][]byte
	outbox     []sentFrame
	localAddrs []xplio.Address
}

type sentFrame struct {
	data   []byte
	target xplio.Address
}

func (f *fakeTransport) Open(xplio.Setting) error { return nil }

func (f *fakeTransport) Recv(buf []byte) (int, xplio.Address, error) {
	if len(f.inbox) == 0 {
		return 0, nil, nil
	}
	next := f.inbox[0]
	f.inbox = f.inbox[1:]
	return copy(buf, next), nil, nil
}

func (f *fakeTransport) Send(buf []byte, target xplio.Address) (int, error) {
	cp := append([]byte(nil), buf...)
	f.outbox = append(f.outbox, sentFrame{data: cp, target: target})
	return len(buf), nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) Ctl(req xplio.CtlRequest) (xplio.CtlResponse, error) {
	switch req.Kind {
	case xplio.CtlPoll:
		return xplio.CtlResponse{AvailableBytes: len(f.inbox)}, nil
	case xplio.CtlLocalAddrList:
		return xplio.CtlResponse{Addrs: f.localAddrs}, nil
	default:
		return xplio.CtlResponse{}, xplio.ErrUnsupportedCtl
	}
}

func newTestHub(t *testing.T) (*Hub, *fakeTransport, *xplplatform.Fake) {
	t.Helper()
	ft := &fakeTransport{localAddrs: []xplio.Address{xplio.UDPAddress{IP: net.IPv4(192, 0, 2, 7)}}}
	reg := xplio.NewRegistry()
	reg.Register("udp", func() xplio.Transport { return ft })
	platform := xplplatform.NewFake()
	app := xplapp.New(platform, reg)
	h := New(app, platform)
	if err := h.Open(xplio.Setting{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return h, ft, platform
}

func heartbeat(t *testing.T, port int) *xpl.Message {
	t.Helper()
	src, _ := xpl.NewId("acme", "cm12", "srv")
	schema, _ := xpl.NewSchema("hbeat", "app")
	m := xpl.NewMessage(xpl.TypeStatus, src, schema)
	m.Broadcast = true
	_ = m.Add("interval", "5")
	_ = m.Add("port", strconv.Itoa(port))
	_ = m.Add("remote-ip", "192.0.2.7")
	return m
}

func TestHubRegistersClientFromLocalHeartbeat(t *testing.T) {
	h, ft, _ := newTestHub(t)
	m := heartbeat(t, 55000)
	ft.inbox = append(ft.inbox, xpl.Encode(m))

	if err := h.Poll(10); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	clients := h.Clients()
	if len(clients) != 1 || clients[0].Port != 55000 {
		t.Fatalf("expected one client on port 55000, got %v", clients)
	}
}

func TestHubRebroadcastsWithoutIncrementingHop(t *testing.T) {
	h, ft, _ := newTestHub(t)
	ft.inbox = append(ft.inbox, xpl.Encode(heartbeat(t, 55000)))
	if err := h.Poll(10); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	src, _ := xpl.NewId("acme", "cm12", "srv")
	schema, _ := xpl.NewSchema("x10", "basic")
	second := xpl.NewMessage(xpl.TypeCommand, src, schema)
	second.Broadcast = true
	_ = second.Add("command", "dim")

	ft.outbox = nil
	ft.inbox = append(ft.inbox, xpl.Encode(second))
	if err := h.Poll(10); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if len(ft.outbox) != 1 {
		t.Fatalf("expected the hub to rebroadcast to exactly the one known client, got %d sends", len(ft.outbox))
	}
	got := xpl.Decode(ft.outbox[0].data)
	if got.Hop != second.Hop {
		t.Fatalf("expected hub to preserve hop count %d, got %d", second.Hop, got.Hop)
	}
}

func TestHubDropsClientOnEndHeartbeat(t *testing.T) {
	h, ft, _ := newTestHub(t)
	ft.inbox = append(ft.inbox, xpl.Encode(heartbeat(t, 55000)))
	if err := h.Poll(10); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(h.Clients()) != 1 {
		t.Fatalf("expected client registered before end heartbeat")
	}

	src, _ := xpl.NewId("acme", "cm12", "srv")
	schema, _ := xpl.NewSchema("hbeat", "end")
	end := xpl.NewMessage(xpl.TypeStatus, src, schema)
	end.Broadcast = true
	_ = end.Add("interval", "5")
	_ = end.Add("port", "55000")
	_ = end.Add("remote-ip", "192.0.2.7")
	ft.inbox = append(ft.inbox, xpl.Encode(end))
	if err := h.Poll(10); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if len(h.Clients()) != 0 {
		t.Fatalf("expected client table empty after hbeat.end, got %v", h.Clients())
	}
}

func TestHubSweepEvictsStaleClients(t *testing.T) {
	h, ft, platform := newTestHub(t)
	ft.inbox = append(ft.inbox, xpl.Encode(heartbeat(t, 55000)))
	if err := h.Poll(10); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	platform.Advance(2*5*60*1000 + 61*1000)
	h.Tick(platform.NowMs())

	if len(h.Clients()) != 0 {
		t.Fatalf("expected stale client to be evicted by the sweep, got %v", h.Clients())
	}
}
