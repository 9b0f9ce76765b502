package config

import (
	"strings"
	"testing"

	"github.com/justprosound/miclink"
)

func TestBuildDevices_SingleDevice(t *testing.T) {
	cfg := &Config{
		Devices: []DeviceConfig{
			{
				ID:      "rx-vocal",
				Address: "http://10.0.7.21/stream",
			},
		},
	}

	devices, err := BuildDevices(cfg)
	if err != nil {
		t.Fatalf("BuildDevices() error = %v", err)
	}

	if len(devices) != 1 {
		t.Fatalf("len(devices) = %d, want 1", len(devices))
	}

	d := devices[0]
	if d.ID() != "rx-vocal" {
		t.Errorf("ID() = %q, want %q", d.ID(), "rx-vocal")
	}
	if d.Address() != "http://10.0.7.21/stream" {
		t.Errorf("Address() = %q, want %q", d.Address(), "http://10.0.7.21/stream")
	}

	// name defaults to the ID
	if d.Name() != "rx-vocal" {
		t.Errorf("Name() = %q, want %q", d.Name(), "rx-vocal")
	}
}

func TestBuildDevices_DeviceWithAllOptions(t *testing.T) {
	cfg := &Config{
		Devices: []DeviceConfig{
			{
				ID:        "rx-vocal",
				Name:      "Lead Vocal",
				Address:   "ws://10.0.7.21/telemetry",
				Transport: "websocket",
				Headers: map[string]string{
					"Authorization": "Bearer token",
					"X-Custom":      "value",
				},
				MaxReconnectAttempts: 10,
			},
		},
	}

	devices, err := BuildDevices(cfg)
	if err != nil {
		t.Fatalf("BuildDevices() error = %v", err)
	}

	d := devices[0]

	if d.Name() != "Lead Vocal" {
		t.Errorf("Name() = %q, want %q", d.Name(), "Lead Vocal")
	}
	if d.Transport() != miclink.TransportWebSocket {
		t.Errorf("Transport() = %v, want %v", d.Transport(), miclink.TransportWebSocket)
	}

	headers := d.Headers()
	if headers["Authorization"] != "Bearer token" {
		t.Errorf("Headers()[Authorization] = %q, want %q", headers["Authorization"], "Bearer token")
	}

	if d.MaxReconnectAttempts() != 10 {
		t.Errorf("MaxReconnectAttempts() = %d, want 10", d.MaxReconnectAttempts())
	}
}

func TestBuildDevices_Grid(t *testing.T) {
	cfg := &Config{
		Grids: []GridConfig{
			{
				ID:              "rx",
				AddressTemplate: "http://10.0.{{.rack}}.{{.unit}}/stream",
				Dimensions: map[string][]string{
					"rack": {"7", "8"},
					"unit": {"21", "22"},
				},
			},
		},
	}

	devices, err := BuildDevices(cfg)
	if err != nil {
		t.Fatalf("BuildDevices() error = %v", err)
	}

	// 2 racks * 2 units = 4 devices
	if len(devices) != 4 {
		t.Fatalf("len(devices) = %d, want 4", len(devices))
	}

	// verify unique IDs carrying the dimension values
	ids := make(map[string]bool)
	for _, d := range devices {
		if ids[d.ID()] {
			t.Errorf("duplicate device ID: %s", d.ID())
		}
		ids[d.ID()] = true
	}
	if !ids["rx-7-21"] {
		t.Errorf("expected device rx-7-21, got IDs %v", ids)
	}
}

func TestBuildDevices_GridSharedOptions(t *testing.T) {
	cfg := &Config{
		Grids: []GridConfig{
			{
				ID:              "rx",
				AddressTemplate: "ws://10.0.7.{{.unit}}/telemetry",
				Dimensions: map[string][]string{
					"unit": {"21", "22"},
				},
				Transport: "websocket",
				Headers: map[string]string{
					"Authorization": "Bearer token",
				},
				MaxReconnectAttempts: 8,
			},
		},
	}

	devices, err := BuildDevices(cfg)
	if err != nil {
		t.Fatalf("BuildDevices() error = %v", err)
	}

	for i, d := range devices {
		if d.Transport() != miclink.TransportWebSocket {
			t.Errorf("device[%d].Transport() = %v, want websocket", i, d.Transport())
		}
		if d.Headers()["Authorization"] != "Bearer token" {
			t.Errorf("device[%d] missing shared Authorization header", i)
		}
		if d.MaxReconnectAttempts() != 8 {
			t.Errorf("device[%d].MaxReconnectAttempts() = %d, want 8", i, d.MaxReconnectAttempts())
		}
	}
}

func TestBuildDevices_MixedDevicesAndGrids(t *testing.T) {
	cfg := &Config{
		Devices: []DeviceConfig{
			{ID: "rx-direct", Address: "http://10.0.7.50/stream"},
		},
		Grids: []GridConfig{
			{
				ID:              "rx",
				AddressTemplate: "http://10.0.7.{{.unit}}/stream",
				Dimensions: map[string][]string{
					"unit": {"21", "22"},
				},
			},
		},
	}

	devices, err := BuildDevices(cfg)
	if err != nil {
		t.Fatalf("BuildDevices() error = %v", err)
	}

	// 1 direct + 2 from grid = 3
	if len(devices) != 3 {
		t.Fatalf("len(devices) = %d, want 3", len(devices))
	}

	// direct devices come first
	if devices[0].ID() != "rx-direct" {
		t.Errorf("devices[0].ID() = %q, want rx-direct", devices[0].ID())
	}
}

func TestBuildDevices_EmptyConfig(t *testing.T) {
	cfg := &Config{}

	devices, err := BuildDevices(cfg)
	if err != nil {
		t.Fatalf("BuildDevices() error = %v", err)
	}

	if len(devices) != 0 {
		t.Errorf("len(devices) = %d, want 0", len(devices))
	}
}

// TestBuildDevices_GridMissingScheme verifies that grids whose templates
// render scheme-less addresses fail at build time with a clear error from
// the SDK layer. Direct devices catch this at config.Parse() time; grid
// addresses only exist after template expansion.
func TestBuildDevices_GridMissingScheme(t *testing.T) {
	cfg := &Config{
		Grids: []GridConfig{
			{
				ID:              "rx",
				AddressTemplate: "10.0.7.{{.unit}}/stream", // missing scheme
				Dimensions: map[string][]string{
					"unit": {"21"},
				},
			},
		},
	}

	_, err := BuildDevices(cfg)
	if err == nil {
		t.Fatal("BuildDevices() expected error for missing scheme, got nil")
	}
	if !strings.Contains(err.Error(), "scheme") {
		t.Errorf("error = %q, want to contain 'scheme'", err.Error())
	}
}

// TestBuildDevices_GridTemplateMissingKey verifies that template execution
// errors name the grid that failed, making debugging easier.
func TestBuildDevices_GridTemplateMissingKey(t *testing.T) {
	cfg := &Config{
		Grids: []GridConfig{
			{
				ID:              "stage-rx",
				AddressTemplate: "http://10.0.{{.rack}}.21/stream", // .rack not in dimensions
				Dimensions: map[string][]string{
					"unit": {"21"},
				},
			},
		},
	}

	_, err := BuildDevices(cfg)

	if err == nil {
		t.Fatal("expected error for missing template variable, got nil")
	}

	errStr := err.Error()

	if !strings.Contains(errStr, "grid (stage-rx)") {
		t.Errorf("error should contain grid id, got: %s", errStr)
	}

	if !strings.Contains(errStr, "template execution failed") {
		t.Errorf("error should indicate template execution failure, got: %s", errStr)
	}

	if !strings.Contains(errStr, "rack") {
		t.Errorf("error should preserve original error mentioning missing key, got: %s", errStr)
	}
}

func TestBuildDevices_ComposableWithSDK(t *testing.T) {
	cfg := &Config{
		Devices: []DeviceConfig{
			{ID: "rx-1", Address: "http://10.0.7.21/stream"},
			{ID: "rx-2", Address: "http://10.0.7.22/stream"},
		},
	}

	devices, err := BuildDevices(cfg)
	if err != nil {
		t.Fatalf("BuildDevices() error = %v", err)
	}

	mon, err := miclink.New(miclink.WithDevices(devices...))
	if err != nil {
		t.Fatalf("New(WithDevices(...)) error = %v", err)
	}
	if mon == nil {
		t.Error("New() returned nil Monitor")
	}
}
