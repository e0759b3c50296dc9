// Package xplmonitor is a read-only HTTP introspection surface over a
// running Hub, Bridge, or Device: health, and the current client/device
// tables. It never accepts a write — the xPL wire is the only place
// state changes (spec.md §9 Design Notes).
package xplmonitor

// HealthResponse reports the Source's Healthy() result and its transport
// name. The transport itself is not probed.
type HealthResponse struct {
	Status    string `json:"status"`
	Transport string `json:"transport"`
}

// HubClientInfo mirrors xplhub.Client for JSON rendering.
type HubClientInfo struct {
	Port        int    `json:"port"`
	IP          string `json:"ip"`
	Ident       string `json:"ident"`
	IntervalSec int    `json:"interval_sec"`
	LastHeardMs int64  `json:"last_heard_ms"`
}

// BridgeClientInfo mirrors xplbridge.Client for JSON rendering.
type BridgeClientInfo struct {
	Addr               string `json:"addr"`
	Ident              string `json:"ident"`
	HeartbeatPeriodMax int64  `json:"heartbeat_period_max_sec"`
	LastHeardMs        int64  `json:"last_heard_ms"`
}

// DeviceInfo summarizes one locally owned Device.
type DeviceInfo struct {
	ID           string `json:"id"`
	Enabled      bool   `json:"enabled"`
	HubConfirmed bool   `json:"hub_confirmed"`
	Configurable bool   `json:"configurable"`
	Configured   bool   `json:"configured"`
}

// ListHubClientsResponse is the body of GET /api/v1/clients/hub.
type ListHubClientsResponse struct {
	Clients []HubClientInfo `json:"clients"`
	Count   int             `json:"count"`
}

// ListBridgeClientsResponse is the body of GET /api/v1/clients/bridge.
type ListBridgeClientsResponse struct {
	Clients []BridgeClientInfo `json:"clients"`
	Count   int                `json:"count"`
}

// ListDevicesResponse is the body of GET /api/v1/devices.
type ListDevicesResponse struct {
	Devices []DeviceInfo `json:"devices"`
	Count   int          `json:"count"`
}

// Source is the read-only data the monitor renders. Callers (cmd/xplhub,
// cmd/xplbridge, cmd/xpldevice) adapt their concrete Hub/Bridge/Device
// into this interface; the monitor itself holds no xPL state.
type Source interface {
	Healthy() bool
	TransportName() string
	HubClients() []HubClientInfo
	BridgeClients() []BridgeClientInfo
	Devices() []DeviceInfo
}
