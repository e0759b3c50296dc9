package xplmonitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeSource struct {
	healthy bool
	hub     []HubClientInfo
	bridge  []BridgeClientInfo
	devices []DeviceInfo
}

func (f *fakeSource) Healthy() bool                    { return f.healthy }
func (f *fakeSource) TransportName() string            { return "udp" }
func (f *fakeSource) HubClients() []HubClientInfo      { return f.hub }
func (f *fakeSource) BridgeClients() []BridgeClientInfo { return f.bridge }
func (f *fakeSource) Devices() []DeviceInfo            { return f.devices }

func TestHealthzReportsDegradedWhenSourceUnhealthy(t *testing.T) {
	r := NewRouter(&fakeSource{healthy: false})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != "degraded" {
		t.Fatalf("expected degraded status, got %q", body.Status)
	}
}

func TestListDevicesReturnsSourceSnapshot(t *testing.T) {
	r := NewRouter(&fakeSource{healthy: true, devices: []DeviceInfo{{ID: "acme-cm12.kit", Enabled: true}}})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	rec := httptest.NewRecorder()
	r.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body ListDevicesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 1 || body.Devices[0].ID != "acme-cm12.kit" {
		t.Fatalf("unexpected devices response: %+v", body)
	}
}
