// Package xpldevice implements the Device lifecycle and configuration
// protocol (spec.md §4.4 C7, §4.5 C8): heartbeat scheduling, hub
// confirmation, groups, filters, listener dispatch, and the
// config.list/config.current/config.response protocol.
package xpldevice

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/xplgo/gxpl/pkg/xpl"
	"github.com/xplgo/gxpl/pkg/xplapp"
	"github.com/xplgo/gxpl/pkg/xplplatform"
)

// Heartbeat cadence tiers (spec.md §4.4).
const (
	HubDiscoveryIntervalMs    = 3000
	ConfigHeartbeatIntervalMs = 60000

	DefaultHeartbeatIntervalSec = 300
	MinHeartbeatIntervalSec     = 0
	MaxHeartbeatIntervalSec     = 172800

	DefaultFilterCapacity = 4
	DefaultGroupCapacity  = 4

	jitterMinMs = 500
	jitterMaxMs = 2500
)

// ErrCapacityExceeded is returned when a filter, group, or config item
// value insertion would exceed its bounded capacity (spec.md §7).
var ErrCapacityExceeded = fmt.Errorf("xpldevice: capacity exceeded")

// MessageListener is invoked for every dispatched inbound message that
// matches its Filter (spec.md §4.4 point 5).
type MessageListener struct {
	Filter xpl.Filter
	Fn     func(*xpl.Message)
}

// Device is one xPL participant: identity, heartbeat state machine,
// groups, filters, listeners, and — if Configurable — the config
// protocol (spec.md §3 "Device").
type Device struct {
	ID      xpl.Id
	Version string

	app      *xplapp.Application
	platform xplplatform.Platform
	store    ConfigStore

	enabled           bool
	reportOwnMessages bool
	emitRemoteAddr    bool // spec.md §9 Open Question (b): non-UDP remote-addr extension

	hubConfirmed bool
	configurable bool
	configured   bool

	heartbeatIntervalSec int
	nextHeartbeatMs       int64
	pendingInstanceID     string

	groups  []string
	filters []xpl.Filter
	items   []*ConfigItem

	itemValidator *itemValidator

	listeners       []MessageListener
	configListeners []func(*Device)
}

// New constructs a Device owned by app. It does not send anything; the
// first heartbeat goes out on the first Enable(true) (spec.md §4.4
// "New").
func New(app *xplapp.Application, platform xplplatform.Platform, id xpl.Id, configurable bool) *Device {
	if id.Instance == "" {
		id.Instance = app.GenerateInstanceID()
	}
	d := &Device{
		ID:                   id,
		Version:              "1.0",
		app:                  app,
		platform:             platform,
		configurable:         configurable,
		heartbeatIntervalSec: DefaultHeartbeatIntervalSec,
	}
	if configurable {
		d.items = append(d.items,
			&ConfigItem{Kind: KindReconf, Name: "newconf", MaxValues: 1},
			&ConfigItem{Kind: KindReconf, Name: "interval", MaxValues: 1},
			&ConfigItem{Kind: KindOption, Name: "group", MaxValues: DefaultGroupCapacity},
			&ConfigItem{Kind: KindOption, Name: "filter", MaxValues: DefaultFilterCapacity},
		)
	}
	app.AddListener(d.Dispatch)
	return d
}

// SetStore attaches the persistence hook used after a successful
// config.response (spec.md §4.5 step 4).
func (d *Device) SetStore(store ConfigStore) { d.store = store }

// SetReportOwnMessages controls whether this device's dispatch rule 1
// drops its own messages (default false, matching spec.md §4.4).
func (d *Device) SetReportOwnMessages(v bool) { d.reportOwnMessages = v }

// SetEmitRemoteAddr enables the non-UDP hbeat `remote-addr` extension
// (spec.md §9 Open Question (b), used only by the ZigBee bridge).
func (d *Device) SetEmitRemoteAddr(v bool) { d.emitRemoteAddr = v }

// Configurable reports whether this device exposes the config
// protocol.
func (d *Device) Configurable() bool { return d.configurable }

// Configured reports whether a config.response has ever been applied.
func (d *Device) Configured() bool { return d.configured }

// HubConfirmed reports whether a heartbeat echo has been observed.
func (d *Device) HubConfirmed() bool { return d.hubConfirmed }

// Enabled reports whether the device is currently sending heartbeats.
func (d *Device) Enabled() bool { return d.enabled }

// AddListener registers fn to run, in registration order, for every
// dispatched message matching filter (spec.md §4.4 point 5).
func (d *Device) AddListener(filter xpl.Filter, fn func(*xpl.Message)) {
	d.listeners = append(d.listeners, MessageListener{Filter: filter, Fn: fn})
}

// OnConfigChanged registers fn to run after every successfully applied
// config.response (spec.md §4.5 step 5).
func (d *Device) OnConfigChanged(fn func(*Device)) {
	d.configListeners = append(d.configListeners, fn)
}

// AddGroup registers name (without the "xpl-group." prefix), bounded
// by DefaultGroupCapacity.
func (d *Device) AddGroup(name string) error {
	if len(d.groups) >= DefaultGroupCapacity {
		return ErrCapacityExceeded
	}
	d.groups = append(d.groups, name)
	return nil
}

// AddFilter registers f, bounded by DefaultFilterCapacity.
func (d *Device) AddFilter(f xpl.Filter) error {
	if len(d.filters) >= DefaultFilterCapacity {
		return ErrCapacityExceeded
	}
	d.filters = append(d.filters, f)
	return nil
}

func (d *Device) hasGroup(name string) bool {
	for _, g := range d.groups {
		if strings.EqualFold(g, name) {
			return true
		}
	}
	return false
}

// Enable(true) sends an immediate heartbeat and begins the discovery
// cadence; Enable(false) sends a closing heartbeat and stops (spec.md
// §4.4).
func (d *Device) Enable(on bool) error {
	if on {
		d.enabled = true
		d.sendHeartbeat(false)
		d.rescheduleHeartbeat(d.platform.NowMs())
		return nil
	}
	if !d.enabled {
		return nil
	}
	d.sendHeartbeat(true)
	d.enabled = false
	return nil
}

// Delete disables the device (if enabled) so its closing heartbeat is
// sent (spec.md §4.4 "Delete").
func (d *Device) Delete() error {
	return d.Enable(false)
}

// Tick evaluates the heartbeat schedule against nowMs and sends a
// heartbeat if due (spec.md §4.4). Application.Poll does not call it; the
// owner calls Tick after each Poll.
func (d *Device) Tick(nowMs int64) {
	if !d.enabled {
		return
	}
	if nowMs >= d.nextHeartbeatMs {
		d.sendHeartbeat(false)
		d.rescheduleHeartbeat(nowMs)
	}
}

func (d *Device) rescheduleHeartbeat(nowMs int64) {
	var intervalMs int64
	switch {
	case !d.hubConfirmed:
		intervalMs = HubDiscoveryIntervalMs
	case d.configurable && !d.configured:
		intervalMs = ConfigHeartbeatIntervalMs
	default:
		intervalMs = int64(d.heartbeatIntervalSec) * 1000
	}
	d.nextHeartbeatMs = nowMs + intervalMs
}

func (d *Device) sendHeartbeat(end bool) {
	msg := d.buildHeartbeat(end)
	if err := d.app.Send(msg, nil); err != nil {
		log.Warn().Err(err).Str("device", d.ID.String()).Msg("xpldevice: heartbeat send failed")
	}
}

func (d *Device) buildHeartbeat(end bool) *xpl.Message {
	class, typ := "hbeat", ""
	switch {
	case end && d.configurable && !d.configured:
		class, typ = "config", "end"
	case end:
		typ = "end"
	case d.app.IsUDP():
		typ = "app"
	default:
		typ = "basic"
	}
	schema, _ := xpl.NewSchema(class, typ)
	msg := xpl.NewMessage(xpl.TypeStatus, d.ID, schema)
	msg.Broadcast = true
	_ = msg.Add("interval", strconv.Itoa(d.heartbeatIntervalSec/60))
	_ = msg.Add("version", d.Version)

	if d.app.IsUDP() {
		_ = msg.Add("port", strconv.Itoa(d.app.UDPPort()))
		if ip := d.localIPText(); ip != "" {
			_ = msg.Add("remote-ip", ip)
		}
	} else if d.emitRemoteAddr {
		if addr := d.localAddrText(); addr != "" {
			_ = msg.Add("remote-addr", addr)
		}
	}
	return msg
}

// Dispatch is the per-Device inbound handler registered with the
// owning Application (spec.md §4.4 inbound dispatch rule).
func (d *Device) Dispatch(msg *xpl.Message) {
	if !d.hubConfirmed && d.app.IsHubEchoMessage(msg) {
		d.hubConfirmed = true
		d.rescheduleHeartbeat(d.platform.NowMs())
	}

	if msg.Source.Equal(d.ID) && !d.reportOwnMessages {
		return
	}

	switch {
	case msg.Broadcast:
		if msg.Type == xpl.TypeCommand && msg.Schema.Class == "hbeat" && msg.Schema.Type == "request" {
			jitter := int64(jitterMinMs + d.platform.Intn(jitterMaxMs-jitterMinMs+1))
			d.platform.SleepMs(jitter)
			d.sendHeartbeat(false)
			return
		}
		if len(d.filters) > 0 {
			matched := false
			for _, f := range d.filters {
				if f.Match(msg) {
					matched = true
					break
				}
			}
			if !matched {
				return
			}
		}

	case msg.Target.Vendor == "xpl" && msg.Target.Device == "group":
		if !d.hasGroup(msg.Target.Instance) {
			return
		}

	default:
		if !msg.Target.Equal(d.ID) {
			return
		}
	}

	if d.configurable && msg.Schema.Class == "config" {
		d.handleConfig(msg)
		return
	}

	for _, l := range d.listeners {
		if l.Filter.Match(msg) {
			l.Fn(msg)
		}
	}
}
