package xplapp

import (
	"net"
	"testing"

	"github.com/xplgo/gxpl/pkg/xpl"
	"github.com/xplgo/gxpl/pkg/xplio"
	"github.com/xplgo/gxpl/pkg/xplplatform"
)

// fakeTransport is an in-memory xplio.Transport for Application tests:
// Send appends to outbox, and queued inbound frames are handed back by
// Recv in order.
type fakeTransport struct {
	inbox     [][]byte
	outbox    [][]byte
	localAddr xplio.Address
}

func (f *fakeTransport) Open(xplio.Setting) error { return nil }

func (f *fakeTransport) Recv(buf []byte) (int, xplio.Address, error) {
	if len(f.inbox) == 0 {
		return 0, nil, nil
	}
	next := f.inbox[0]
	f.inbox = f.inbox[1:]
	return copy(buf, next), f.localAddr, nil
}

func (f *fakeTransport) Send(buf []byte, _ xplio.Address) (int, error) {
	cp := append([]byte(nil), buf...)
	f.outbox = append(f.outbox, cp)
	return len(buf), nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) Ctl(req xplio.CtlRequest) (xplio.CtlResponse, error) {
	switch req.Kind {
	case xplio.CtlPoll:
		return xplio.CtlResponse{AvailableBytes: len(f.inbox)}, nil
	case xplio.CtlLocalAddr:
		return xplio.CtlResponse{Addr: f.localAddr}, nil
	case xplio.CtlLocalAddrList:
		return xplio.CtlResponse{Addrs: []xplio.Address{f.localAddr}}, nil
	default:
		return xplio.CtlResponse{}, xplio.ErrUnsupportedCtl
	}
}

func newTestApp(t *testing.T, ft *fakeTransport) *Application {
	t.Helper()
	reg := xplio.NewRegistry()
	reg.Register("fake", func() xplio.Transport { return ft })
	app := New(xplplatform.NewFake(), reg)
	src, _ := xpl.NewId("acme", "cm12", "srv")
	if err := app.Open(src, Setting{Transport: "fake", IO: xplio.Setting{}}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return app
}

func TestPollDispatchesToListenersInOrder(t *testing.T) {
	ft := &fakeTransport{localAddr: xplio.UDPAddress{IP: net.IPv4(192, 0, 2, 7), Port: 54321}}
	app := newTestApp(t, ft)

	src, _ := xpl.NewId("acme", "cm12", "kitchen")
	schema, _ := xpl.NewSchema("hbeat", "app")
	m := xpl.NewMessage(xpl.TypeStatus, src, schema)
	m.Broadcast = true
	ft.inbox = append(ft.inbox, xpl.Encode(m))

	var order []int
	app.AddListener(func(*xpl.Message) { order = append(order, 1) })
	app.AddListener(func(*xpl.Message) { order = append(order, 2) })

	if err := app.Poll(10); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected listeners in registration order, got %v", order)
	}
}

func TestPollSkipsMalformedMessages(t *testing.T) {
	ft := &fakeTransport{localAddr: xplio.UDPAddress{IP: net.IPv4(192, 0, 2, 7), Port: 54321}}
	app := newTestApp(t, ft)
	ft.inbox = append(ft.inbox, []byte("not-xpl-at-all\n"))

	called := false
	app.AddListener(func(*xpl.Message) { called = true })
	if err := app.Poll(10); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if called {
		t.Fatal("expected a malformed frame to be discarded, not dispatched")
	}
}

func TestSendEncodesAndWritesToTransport(t *testing.T) {
	ft := &fakeTransport{localAddr: xplio.UDPAddress{IP: net.IPv4(192, 0, 2, 7), Port: 54321}}
	app := newTestApp(t, ft)

	schema, _ := xpl.NewSchema("hbeat", "app")
	m := xpl.NewMessage(xpl.TypeStatus, app.LocalID(), schema)
	m.Broadcast = true
	if err := app.Send(m, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(ft.outbox) != 1 {
		t.Fatalf("expected exactly one frame sent, got %d", len(ft.outbox))
	}
	got := xpl.Decode(ft.outbox[0])
	if got.Errored() || !got.Equal(m) {
		t.Fatalf("sent frame does not round-trip to the original message")
	}
}

func TestIsHubEchoMessageNonUDPMatchesOwnSource(t *testing.T) {
	ft := &fakeTransport{localAddr: xplio.ZigBeeAddress{Has64: true}}
	app := newTestApp(t, ft)

	schema, _ := xpl.NewSchema("hbeat", "basic")
	m := xpl.NewMessage(xpl.TypeStatus, app.LocalID(), schema)
	if !app.IsHubEchoMessage(m) {
		t.Fatal("expected own-source hbeat to be recognized as a hub echo on non-UDP")
	}

	other, _ := xpl.NewId("acme", "cm12", "elsewhere")
	m2 := xpl.NewMessage(xpl.TypeStatus, other, schema)
	if app.IsHubEchoMessage(m2) {
		t.Fatal("expected a different source to not be treated as a hub echo")
	}
}
