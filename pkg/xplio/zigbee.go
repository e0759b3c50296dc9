package xplio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// ZigBee API frame types used by the XBee-S2 bootstrap and data path
// (spec.md §4.2, grounded on
// _examples/original_source/src/io_xbeezb.c and the teacher's
// pkg/zigbee/ash.go framing style).
const (
	frameTypeATCommand = 0x08
	frameTypeATResp     = 0x88
	frameTypeTxRequest  = 0x10
	frameTypeTxStatus   = 0x8B
	frameTypeRxPacket   = 0x90
)

// ZigBeeAddress is a ZigBee peer address: a 64-bit IEEE address, a
// 16-bit network address, or both (spec.md §4.2: 16-bit short or
// 64-bit long, used asymmetrically).
type ZigBeeAddress struct {
	Addr64    [8]byte
	Has64     bool
	Addr16    [2]byte
	Has16     bool
	Broadcast bool
}

func (a ZigBeeAddress) Network() string   { return "xbeezb" }
func (a ZigBeeAddress) IsBroadcast() bool { return a.Broadcast }
func (a ZigBeeAddress) String() string {
	if a.Has64 {
		return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x:%02x:%02x",
			a.Addr64[0], a.Addr64[1], a.Addr64[2], a.Addr64[3],
			a.Addr64[4], a.Addr64[5], a.Addr64[6], a.Addr64[7])
	}
	return fmt.Sprintf("%02x:%02x", a.Addr16[0], a.Addr16[1])
}

var (
	addr64Broadcast   = [8]byte{0, 0, 0, 0, 0, 0, 0xFF, 0xFF}
	addr64Coordinator = [8]byte{} // all-zero: reserved coordinator address
	addr16Unknown     = [2]byte{0xFF, 0xFE}
)

// pendingFrame is a received API frame not yet consumed, keyed by
// frame id so an AT response and a data packet can be in flight at
// once without clobbering each other (spec.md §4.2: "only one AT
// response and one data packet are buffered at a time").
type pendingFrame struct {
	frameID byte
	typ     byte
	payload []byte
	source  ZigBeeAddress
	status  byte
}

// ZigBeeTransport implements Transport over an XBee-S2 module running
// API mode, non-escaped (spec.md §4.2, C5).
type ZigBeeTransport struct {
	port        serial.Port
	setting     Setting
	localAddr   [8]byte
	maxPayload  int
	coordinator bool

	nextFrameID byte
	rxData      *pendingFrame // most recent undelivered data frame
	rxAT        *pendingFrame // most recent undelivered AT response
	readBuf     []byte        // raw bytes read from the serial port, not yet framed
}

// NewZigBeeTransport returns an unopened ZigBee transport.
func NewZigBeeTransport() *ZigBeeTransport { return &ZigBeeTransport{nextFrameID: 1} }

// Open opens the serial port and runs the AT bootstrap sequence:
// VR (firmware version) to detect coordinator vs. router/end device,
// SH/SL (64-bit serial) for the local address, ID (PAN ID) rewritten
// if it differs from configuration, and NP (max RF payload) to cache
// the send-size ceiling (spec.md §4.2).
func (t *ZigBeeTransport) Open(setting Setting) error {
	t.setting = setting
	baud := setting.ZigBee.BaudRate
	if baud == 0 {
		baud = 38400
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(setting.Iface, mode)
	if err != nil {
		return fmt.Errorf("xplio/zigbee: open serial port %s: %w", setting.Iface, err)
	}
	if setting.ZigBee.RTSCTS {
		if err := port.SetRTS(true); err != nil {
			_ = port.Close()
			return fmt.Errorf("xplio/zigbee: set RTS: %w", err)
		}
	}
	_ = port.SetReadTimeout(50 * time.Millisecond)
	t.port = port

	vr, err := t.sendLocalAT("VR", nil, time.Second)
	if err != nil {
		_ = t.Close()
		return fmt.Errorf("xplio/zigbee: read firmware version: %w", err)
	}
	if len(vr) > 0 {
		fwid := vr[len(vr)-1]
		if (fwid&0xF0) != 0x20 || (fwid&1) == 0 {
			_ = t.Close()
			return fmt.Errorf("xplio/zigbee: unexpected XBee firmware id 0x%02x", fwid)
		}
		t.coordinator = fwid == 0x21
	}

	sh, err := t.sendLocalAT("SH", nil, time.Second)
	if err != nil {
		_ = t.Close()
		return fmt.Errorf("xplio/zigbee: read serial high: %w", err)
	}
	sl, err := t.sendLocalAT("SL", nil, time.Second)
	if err != nil {
		_ = t.Close()
		return fmt.Errorf("xplio/zigbee: read serial low: %w", err)
	}
	copy(t.localAddr[0:4], padTo(sh, 4))
	copy(t.localAddr[4:8], padTo(sl, 4))

	if setting.ZigBee.PanID != 0 {
		cur, err := t.sendLocalAT("ID", nil, time.Second)
		if err != nil {
			_ = t.Close()
			return fmt.Errorf("xplio/zigbee: read PAN ID: %w", err)
		}
		want := make([]byte, 8)
		binary.BigEndian.PutUint64(want, setting.ZigBee.PanID)
		if !bytes.Equal(padTo(cur, 8), want) {
			if _, err := t.sendLocalAT("ID", want, time.Second); err != nil {
				_ = t.Close()
				return fmt.Errorf("xplio/zigbee: set PAN ID: %w", err)
			}
			if _, err := t.sendLocalAT("WR", nil, 2*time.Second); err != nil {
				_ = t.Close()
				return fmt.Errorf("xplio/zigbee: write params: %w", err)
			}
		}
	}

	np, err := t.sendLocalAT("NP", nil, time.Second)
	if err != nil {
		_ = t.Close()
		return fmt.Errorf("xplio/zigbee: read max payload: %w", err)
	}
	if len(np) >= 2 {
		t.maxPayload = int(binary.BigEndian.Uint16(np[len(np)-2:]))
	}

	log.Info().
		Str("port", setting.Iface).
		Bool("coordinator", t.coordinator).
		Int("maxPayload", t.maxPayload).
		Msg("ZigBee transport ready")
	return nil
}

func padTo(b []byte, n int) []byte {
	if len(b) >= n {
		return b[len(b)-n:]
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

// MaxPayload returns the cached maximum RF payload size (NP), or 0 if
// the transport has not been opened.
func (t *ZigBeeTransport) MaxPayload() int { return t.maxPayload }

// sendLocalAT sends an AT command frame and blocks (bounded by
// timeout) until the matching AT response arrives, returning its
// parameter bytes.
func (t *ZigBeeTransport) sendLocalAT(cmd string, params []byte, timeout time.Duration) ([]byte, error) {
	id := t.allocFrameID()
	frame := encodeATCommandFrame(id, cmd, params)
	if _, err := t.port.Write(frame); err != nil {
		return nil, fmt.Errorf("write AT frame: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		t.pumpSerial()
		if t.rxAT != nil && t.rxAT.frameID == id {
			resp := t.rxAT
			t.rxAT = nil
			if resp.status != 0 {
				return nil, fmt.Errorf("AT command %s failed with status 0x%02x", cmd, resp.status)
			}
			return resp.payload, nil
		}
	}
	return nil, fmt.Errorf("AT command %s timed out", cmd)
}

func (t *ZigBeeTransport) allocFrameID() byte {
	id := t.nextFrameID
	t.nextFrameID++
	if t.nextFrameID == 0 {
		t.nextFrameID = 1
	}
	return id
}

// pumpSerial performs one bounded, non-blocking-ish serial read
// (spec.md §5: the serial read is one of the three permitted
// suspension points, bounded by the port's read timeout) and feeds
// any bytes into the frame parser.
func (t *ZigBeeTransport) pumpSerial() {
	chunk := make([]byte, 256)
	n, err := t.port.Read(chunk)
	if err != nil || n == 0 {
		return
	}
	t.readBuf = append(t.readBuf, chunk[:n]...)
	for {
		frame, rest, ok := extractFrame(t.readBuf)
		if !ok {
			t.readBuf = rest
			return
		}
		t.readBuf = rest
		t.dispatchFrame(frame)
	}
}

func (t *ZigBeeTransport) dispatchFrame(frame apiFrame) {
	switch frame.typ {
	case frameTypeATResp:
		if len(frame.payload) < 3 {
			return
		}
		pf := &pendingFrame{
			frameID: frame.payload[0],
			typ:     frame.typ,
			status:  frame.payload[3],
			payload: append([]byte(nil), frame.payload[4:]...),
		}
		if t.rxAT == nil {
			t.rxAT = pf
		} // overflow: drop (spec.md §4.2)

	case frameTypeRxPacket:
		if len(frame.payload) < 11 {
			return
		}
		var src ZigBeeAddress
		src.Has64 = true
		copy(src.Addr64[:], frame.payload[0:8])
		data := append([]byte(nil), frame.payload[11:]...)
		pf := &pendingFrame{typ: frame.typ, payload: data, source: src}
		if t.rxData == nil {
			t.rxData = pf
		} // overflow: drop

	case frameTypeTxStatus:
		if len(frame.payload) < 5 {
			return
		}
		id, status := frame.payload[0], frame.payload[4]
		if status != 0 {
			log.Warn().Uint8("frameId", id).Uint8("status", status).Msg("ZigBee Tx delivery failed")
		}
	}
}

func (t *ZigBeeTransport) Recv(buf []byte) (int, Address, error) {
	t.pumpSerial()
	if t.rxData == nil {
		return 0, nil, nil
	}
	n := copy(buf, t.rxData.payload)
	src := t.rxData.source
	t.rxData = nil
	return n, src, nil
}

func (t *ZigBeeTransport) Send(buf []byte, target Address) (int, error) {
	if t.maxPayload > 0 && len(buf) > t.maxPayload {
		return 0, fmt.Errorf("xplio/zigbee: payload of %d bytes exceeds cached max %d", len(buf), t.maxPayload)
	}

	dst64, dst16 := t.resolveDestination(target)
	id := t.allocFrameID()
	frame := encodeTxRequestFrame(id, dst64, dst16, buf)
	if _, err := t.port.Write(frame); err != nil {
		return 0, fmt.Errorf("xplio/zigbee: send: %w", err)
	}
	return len(buf), nil
}

func (t *ZigBeeTransport) resolveDestination(target Address) (dst64 [8]byte, dst16 [2]byte) {
	dst16 = addr16Unknown
	if target == nil {
		if t.coordinator {
			dst64 = addr64Broadcast
		} else {
			dst64 = addr64Coordinator
		}
		return dst64, dst16
	}
	za, ok := target.(ZigBeeAddress)
	if !ok {
		dst64 = addr64Broadcast
		return dst64, dst16
	}
	if za.Broadcast {
		dst64 = addr64Broadcast
		return dst64, dst16
	}
	if za.Has64 {
		dst64 = za.Addr64
	} else {
		dst64 = addr64Coordinator
	}
	if za.Has16 {
		dst16 = za.Addr16
	}
	return dst64, dst16
}

func (t *ZigBeeTransport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

func (t *ZigBeeTransport) Ctl(req CtlRequest) (CtlResponse, error) {
	switch req.Kind {
	case CtlPoll:
		deadline := time.Now().Add(time.Duration(req.TimeoutMs) * time.Millisecond)
		for t.rxData == nil && time.Now().Before(deadline) {
			t.pumpSerial()
		}
		if t.rxData != nil {
			return CtlResponse{AvailableBytes: len(t.rxData.payload)}, nil
		}
		return CtlResponse{AvailableBytes: 0}, nil

	case CtlBroadcastAddr:
		return CtlResponse{Addr: ZigBeeAddress{Addr64: addr64Broadcast, Has64: true, Broadcast: true}}, nil

	case CtlLocalAddr:
		return CtlResponse{Addr: ZigBeeAddress{Addr64: t.localAddr, Has64: true}}, nil

	case CtlLocalAddrList:
		return CtlResponse{Addrs: []Address{ZigBeeAddress{Addr64: t.localAddr, Has64: true}}}, nil

	case CtlAddrToString:
		za, ok := req.Addr.(ZigBeeAddress)
		if !ok {
			return CtlResponse{}, ErrUnsupportedCtl
		}
		return CtlResponse{Text: za.String()}, nil

	case CtlAddrFromString:
		addr, err := parseZigBeeAddress(req.Text)
		if err != nil {
			return CtlResponse{}, err
		}
		return CtlResponse{Addr: addr}, nil

	default:
		return CtlResponse{}, ErrUnsupportedCtl
	}
}

func parseZigBeeAddress(s string) (ZigBeeAddress, error) {
	var out ZigBeeAddress
	var parts []byte
	cur := 0
	started := false
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ':' {
			if !started {
				return ZigBeeAddress{}, fmt.Errorf("xplio/zigbee: invalid address %q", s)
			}
			parts = append(parts, byte(cur))
			cur, started = 0, false
			continue
		}
		c := s[i]
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'a' && c <= 'f':
			v = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v = int(c-'A') + 10
		default:
			return ZigBeeAddress{}, fmt.Errorf("xplio/zigbee: invalid address %q", s)
		}
		cur = cur*16 + v
		started = true
	}
	switch len(parts) {
	case 2:
		out.Has16 = true
		copy(out.Addr16[:], parts)
	case 8:
		out.Has64 = true
		copy(out.Addr64[:], parts)
	default:
		return ZigBeeAddress{}, fmt.Errorf("xplio/zigbee: address %q is neither 16- nor 64-bit", s)
	}
	return out, nil
}
