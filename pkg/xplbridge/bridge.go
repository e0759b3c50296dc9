// Package xplbridge implements the xPL Bridge (spec.md §4.7, C10): two
// Applications — a non-UDP "in" side and a UDP hub-client "out" side —
// joined by a hop-limited, address-translating forwarding rule.
package xplbridge

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/xplgo/gxpl/pkg/xpl"
	"github.com/xplgo/gxpl/pkg/xplapp"
	"github.com/xplgo/gxpl/pkg/xpldevice"
	"github.com/xplgo/gxpl/pkg/xplio"
	"github.com/xplgo/gxpl/pkg/xplplatform"
	"github.com/xplgo/gxpl/pkg/xplstore"
)

// DefaultMaxHop is the default forwarding ceiling (spec.md §4.7).
const DefaultMaxHop = 1

const sweepIntervalMs = 60000

// Client is one device known on the `in` side, upserted from hbeat
// traffic carrying a `remote-addr` pair (spec.md §4.7).
type Client struct {
	Addr               xplio.Address
	ID                 xpl.Id
	HeartbeatPeriodMax int64 // seconds
	LastHeardMs        int64
}

// Bridge joins a non-UDP `in` Application to a UDP `out` Application.
type Bridge struct {
	in  *xplapp.Application
	out *xplapp.Application

	platform xplplatform.Platform
	maxHop   int

	inBroadcast  bool
	outBroadcast bool

	clients     map[string]*Client
	nextSweepMs int64

	inID        xpl.Id
	inTransport string

	store *xplstore.Store
}

// SetStore attaches a diagnostics-only sighting/client log (spec.md §9
// Design Notes). A nil store (the default) disables recording.
func (b *Bridge) SetStore(store *xplstore.Store) { b.store = store }

// New constructs a Bridge joining in and out (both unopened). maxHop is
// clamped to [1, 9] (spec.md §4.7); 0 selects DefaultMaxHop.
func New(in, out *xplapp.Application, platform xplplatform.Platform, maxHop int) *Bridge {
	if maxHop == 0 {
		maxHop = DefaultMaxHop
	}
	if maxHop < 1 {
		maxHop = 1
	}
	if maxHop > 9 {
		maxHop = 9
	}
	b := &Bridge{
		in:       in,
		out:      out,
		platform: platform,
		maxHop:   maxHop,
		clients:  make(map[string]*Client),
	}
	in.AddListener(b.dispatchIn)
	out.AddListener(b.dispatchOut)
	return b
}

// SetInBroadcast controls whether `in`-side echoes go to every known
// client (true) or only to the client matching `remote-addr` (false),
// the stand-in for a transport without IP broadcast (spec.md §4.7).
func (b *Bridge) SetInBroadcast(v bool) { b.inBroadcast = v }

// SetOutBroadcast controls whether `out`-side forwarding reaches every
// client (true) or only the one whose Id matches the message target.
func (b *Bridge) SetOutBroadcast(v bool) { b.outBroadcast = v }

// Clients returns a snapshot of the current Bridge Client table.
func (b *Bridge) Clients() []Client {
	out := make([]Client, 0, len(b.clients))
	for _, c := range b.clients {
		out = append(out, *c)
	}
	return out
}

// Open opens both Applications: `in` standalone on its native transport,
// `out` as a UDP hub client.
func (b *Bridge) Open(inID, outID xpl.Id, inTransport string, inIO xplio.Setting, outIO xplio.Setting) error {
	b.inID, b.inTransport = inID, inTransport
	inIO.ConnectType = xplio.ConnectStandAlone
	if err := b.in.Open(inID, xplapp.Setting{Transport: inTransport, IO: inIO}); err != nil {
		return fmt.Errorf("xplbridge: open in: %w", err)
	}
	outIO.ConnectType = xplio.ConnectViaHub
	if err := b.out.Open(outID, xplapp.Setting{Transport: "udp", IO: outIO}); err != nil {
		return fmt.Errorf("xplbridge: open out: %w", err)
	}
	return nil
}

// EnablePanIDConfig wires dev — a configurable Device already created on
// the Bridge's `out` Application — with a single "panid" item. When a
// config.response changes it, `in` is closed and re-opened with the new
// ZigBee PAN ID (spec.md §4.7: "triggers a re-open of the in transport
// with the new PAN ID when changed remotely").
func (b *Bridge) EnablePanIDConfig(dev *xpldevice.Device, baseIO xplio.Setting) {
	dev.AddConfigItem("panid", 1)
	currentPanID := baseIO.ZigBee.PanID
	dev.OnConfigChanged(func(d *xpldevice.Device) {
		hexValue, ok := d.ConfigValue("panid")
		if !ok {
			return
		}
		panID, err := strconv.ParseUint(hexValue, 16, 64)
		if err != nil {
			log.Warn().Err(err).Str("panid", hexValue).Msg("xplbridge: malformed panid")
			return
		}
		if panID == currentPanID {
			return
		}
		if err := b.in.Close(); err != nil {
			log.Warn().Err(err).Msg("xplbridge: close in before panid re-open")
		}
		ioSetting := baseIO
		ioSetting.ConnectType = xplio.ConnectStandAlone
		ioSetting.ZigBee.PanID = panID
		if err := b.in.Open(b.inID, xplapp.Setting{Transport: b.inTransport, IO: ioSetting}); err != nil {
			log.Warn().Err(err).Msg("xplbridge: re-open in with new panid failed")
			return
		}
		currentPanID = panID
	})
}

// Poll drains both Applications and runs periodic client maintenance.
func (b *Bridge) Poll(timeoutMs int) error {
	if err := b.in.Poll(timeoutMs); err != nil {
		return err
	}
	if err := b.out.Poll(0); err != nil {
		return err
	}
	b.Tick(b.platform.NowMs())
	return nil
}

// Tick runs the once-per-minute client sweep when due.
func (b *Bridge) Tick(nowMs int64) {
	if nowMs < b.nextSweepMs {
		return
	}
	b.nextSweepMs = nowMs + sweepIntervalMs
	for key, c := range b.clients {
		if nowMs-c.LastHeardMs > c.HeartbeatPeriodMax*1000 {
			delete(b.clients, key)
			b.deleteStoreClient(key)
		}
	}
}

func (b *Bridge) parseInAddr(text string) (xplio.Address, error) {
	resp, err := b.in.Transport().Ctl(xplio.CtlRequest{Kind: xplio.CtlAddrFromString, Text: text})
	if err != nil {
		return nil, err
	}
	return resp.Addr, nil
}

// dispatchIn implements spec.md §4.7's `in`-listener rule: Bridge Client
// upsert/evict from remote-addr, echo to known clients, then hop-limited
// forward to `out`.
func (b *Bridge) dispatchIn(msg *xpl.Message) {
	if msg.Schema.Class == "hbeat" || msg.Schema.Class == "config" {
		if raw, ok := msg.Get("remote-addr"); ok && raw != "" {
			b.updateClientFromRemoteAddr(msg, raw)
		}
	}

	b.echoToClients(msg)
	b.recordSighting(msg)

	if msg.Hop <= b.maxHop {
		fwd := *msg
		fwd.Hop++
		if err := b.out.Send(&fwd, nil); err != nil {
			log.Warn().Err(err).Msg("xplbridge: forward in->out failed")
		}
	}
}

func (b *Bridge) recordSighting(msg *xpl.Message) {
	if b.store == nil {
		return
	}
	sighting := xplstore.Sighting{
		SeenAtMs:   b.platform.NowMs(),
		MsgType:    msg.Type.String(),
		Source:     msg.Source.String(),
		Target:     msg.Target.String(),
		Class:      msg.Schema.Class,
		SchemaType: msg.Schema.Type,
		Broadcast:  msg.Broadcast,
	}
	if err := b.store.RecordSighting(context.Background(), sighting); err != nil {
		log.Warn().Err(err).Msg("xplbridge: store record sighting failed")
	}
}

func (b *Bridge) updateClientFromRemoteAddr(msg *xpl.Message, raw string) {
	addr, err := b.parseInAddr(raw)
	if err != nil {
		log.Warn().Err(err).Str("remote-addr", raw).Msg("xplbridge: unparsable remote-addr")
		return
	}
	key := addr.String()

	if msg.Schema.Type == "end" {
		delete(b.clients, key)
		b.deleteStoreClient(key)
		return
	}
	if msg.Schema.Type != "basic" && msg.Schema.Type != "app" {
		return
	}

	c, ok := b.clients[key]
	if !ok {
		c = &Client{Addr: addr}
		b.clients[key] = c
	}
	c.ID = msg.Source
	if intervalMin, ok := msg.Get("interval"); ok {
		if n, err := strconv.Atoi(intervalMin); err == nil {
			c.HeartbeatPeriodMax = int64(n*120 + 60)
		}
	}
	c.LastHeardMs = b.platform.NowMs()

	if b.store != nil {
		if err := b.store.UpsertBridgeClient(context.Background(), key, c.ID.String(), int(c.HeartbeatPeriodMax), c.LastHeardMs); err != nil {
			log.Warn().Err(err).Msg("xplbridge: store upsert client failed")
		}
	}
}

func (b *Bridge) deleteStoreClient(key string) {
	if b.store == nil {
		return
	}
	if err := b.store.DeleteBridgeClient(context.Background(), key); err != nil {
		log.Warn().Err(err).Msg("xplbridge: store delete client failed")
	}
}

func (b *Bridge) echoToClients(msg *xpl.Message) {
	if b.inBroadcast {
		for _, c := range b.clients {
			if err := b.in.Send(msg, c.Addr); err != nil {
				log.Warn().Err(err).Msg("xplbridge: in-side echo failed")
			}
		}
		return
	}
	raw, ok := msg.Get("remote-addr")
	if !ok || raw == "" {
		return
	}
	addr, err := b.parseInAddr(raw)
	if err != nil {
		return
	}
	if err := b.in.Send(msg, addr); err != nil {
		log.Warn().Err(err).Msg("xplbridge: in-side echo failed")
	}
}

// dispatchOut implements spec.md §4.7's `out`-listener rule: hop-limited
// forward to every matching Bridge Client on `in`.
func (b *Bridge) dispatchOut(msg *xpl.Message) {
	if msg.Hop > b.maxHop {
		return
	}
	fwd := *msg
	fwd.Hop++

	for _, c := range b.clients {
		if b.outBroadcast || c.ID.Equal(fwd.Target) {
			if err := b.in.Send(&fwd, c.Addr); err != nil {
				log.Warn().Err(err).Msg("xplbridge: forward out->in failed")
			}
		}
	}
}

// Close shuts down both Applications.
func (b *Bridge) Close() error {
	err1 := b.in.Close()
	err2 := b.out.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
