// Package xplhub implements the xPL Hub (spec.md §4.6, C9): a standalone
// UDP Application that tracks local client applications by port and
// rebroadcasts every inbound message to them without touching hop count.
package xplhub

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/xplgo/gxpl/pkg/xpl"
	"github.com/xplgo/gxpl/pkg/xplapp"
	"github.com/xplgo/gxpl/pkg/xplio"
	"github.com/xplgo/gxpl/pkg/xplplatform"
	"github.com/xplgo/gxpl/pkg/xplstore"
)

// sweepIntervalMs is how often the client table is swept for stale
// entries (spec.md §4.6 "Periodic (once per minute)").
const sweepIntervalMs = 60000

// Client is one local application the hub has heard a heartbeat from,
// keyed by its ephemeral UDP port (spec.md §4.6).
type Client struct {
	Port        int
	IP          net.IP
	Ident       string
	IntervalSec int
	LastHeardMs int64
}

// Hub owns a standalone UDP Application and the client table built from
// observed heartbeats.
type Hub struct {
	app      *xplapp.Application
	platform xplplatform.Platform

	localAddrs  []net.IP
	clients     map[int]*Client
	nextSweepMs int64

	store *xplstore.Store
}

// SetStore attaches a diagnostics-only sighting/client log (spec.md §9
// Design Notes). A nil store (the default) disables recording.
func (h *Hub) SetStore(store *xplstore.Store) { h.store = store }

// New constructs a Hub driven by app (already owning a registry; Open
// still needs to be called) and platform's clock.
func New(app *xplapp.Application, platform xplplatform.Platform) *Hub {
	h := &Hub{
		app:      app,
		platform: platform,
		clients:  make(map[int]*Client),
	}
	app.AddListener(h.dispatch)
	return h
}

// hubLocalID is the identity the hub's own Application presents; the hub
// never emits messages of its own, so only its length bounds matter.
var hubLocalID = xpl.Id{Vendor: "xplgo", Device: "hub", Instance: "main"}

// Open opens the hub's UDP transport in standalone mode (bound to the
// well-known port 3865) and records the local interface addresses used
// to recognize same-host heartbeats.
func (h *Hub) Open(ioSetting xplio.Setting) error {
	ioSetting.ConnectType = xplio.ConnectStandAlone
	if ioSetting.UDP.Port == 0 {
		ioSetting.UDP.Port = xplio.DefaultPort
	}
	if err := h.app.Open(hubLocalID, xplapp.Setting{Transport: "udp", IO: ioSetting}); err != nil {
		return fmt.Errorf("xplhub: open: %w", err)
	}
	resp, err := h.app.Transport().Ctl(xplio.CtlRequest{Kind: xplio.CtlLocalAddrList})
	if err != nil {
		return fmt.Errorf("xplhub: local address list: %w", err)
	}
	for _, addr := range resp.Addrs {
		if ua, ok := addr.(xplio.UDPAddress); ok {
			h.localAddrs = append(h.localAddrs, ua.IP)
		}
	}
	return nil
}

// Clients returns a snapshot of the current client table.
func (h *Hub) Clients() []Client {
	out := make([]Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, *c)
	}
	return out
}

// Poll drains the hub's Application and performs periodic client-table
// maintenance (spec.md §5 "poll(timeout_ms)").
func (h *Hub) Poll(timeoutMs int) error {
	if err := h.app.Poll(timeoutMs); err != nil {
		return err
	}
	h.Tick(h.platform.NowMs())
	return nil
}

// Tick runs the once-per-minute client sweep when due (spec.md §4.6).
func (h *Hub) Tick(nowMs int64) {
	if nowMs < h.nextSweepMs {
		return
	}
	h.nextSweepMs = nowMs + sweepIntervalMs
	for port, c := range h.clients {
		maxAgeMs := int64(2*c.IntervalSec+60) * 1000
		if nowMs-c.LastHeardMs > maxAgeMs {
			delete(h.clients, port)
			if h.store != nil {
				if err := h.store.DeleteHubClient(context.Background(), port); err != nil {
					log.Warn().Err(err).Msg("xplhub: store delete client failed")
				}
			}
		}
	}
}

func (h *Hub) isLocalIP(ipText string) bool {
	for _, ip := range h.localAddrs {
		if ip.String() == ipText {
			return true
		}
	}
	return false
}

// dispatch implements spec.md §4.6's "on every inbound message" rule:
// client-table maintenance for hbeat/config traffic from a local
// address, followed by an unconditional, hop-preserving rebroadcast.
func (h *Hub) dispatch(msg *xpl.Message) {
	if msg.Schema.Class == "hbeat" || msg.Schema.Class == "config" {
		if remoteIP, ok := msg.Get("remote-ip"); ok && h.isLocalIP(remoteIP) {
			if portStr, ok := msg.Get("port"); ok {
				if port, err := strconv.Atoi(portStr); err == nil {
					h.updateClient(msg, remoteIP, port)
				}
			}
		}
	}
	h.rebroadcast(msg)
	h.recordSighting(msg)
}

func (h *Hub) updateClient(msg *xpl.Message, remoteIP string, port int) {
	if msg.Schema.Type == "end" {
		delete(h.clients, port)
		if h.store != nil {
			if err := h.store.DeleteHubClient(context.Background(), port); err != nil {
				log.Warn().Err(err).Msg("xplhub: store delete client failed")
			}
		}
		return
	}

	c, ok := h.clients[port]
	if !ok {
		c = &Client{Port: port, IP: net.ParseIP(remoteIP)}
		h.clients[port] = c
	}
	c.Ident = msg.Source.String()
	if intervalMin, ok := msg.Get("interval"); ok {
		if n, err := strconv.Atoi(intervalMin); err == nil {
			c.IntervalSec = n * 60
		}
	}
	c.LastHeardMs = h.platform.NowMs()

	if h.store != nil {
		if err := h.store.UpsertHubClient(context.Background(), c.Port, c.IP.String(), c.Ident, c.IntervalSec, c.LastHeardMs); err != nil {
			log.Warn().Err(err).Msg("xplhub: store upsert client failed")
		}
	}
}

func (h *Hub) recordSighting(msg *xpl.Message) {
	if h.store == nil {
		return
	}
	sighting := xplstore.Sighting{
		SeenAtMs:   h.platform.NowMs(),
		MsgType:    msg.Type.String(),
		Source:     msg.Source.String(),
		Target:     msg.Target.String(),
		Class:      msg.Schema.Class,
		SchemaType: msg.Schema.Type,
		Broadcast:  msg.Broadcast,
	}
	if err := h.store.RecordSighting(context.Background(), sighting); err != nil {
		log.Warn().Err(err).Msg("xplhub: store record sighting failed")
	}
}

func (h *Hub) rebroadcast(msg *xpl.Message) {
	for _, c := range h.clients {
		target := xplio.UDPAddress{IP: c.IP, Port: c.Port}
		if err := h.app.Send(msg, target); err != nil {
			log.Warn().Err(err).Int("port", c.Port).Msg("xplhub: rebroadcast to client failed")
		}
	}
}

// Close shuts down the hub's Application.
func (h *Hub) Close() error {
	return h.app.Close()
}
