package config

import (
	"fmt"
	"sort"

	"github.com/justprosound/miclink"
)

// BuildDevices converts parsed configuration into SDK Device objects.
//
// It processes both direct devices and grids, returning a combined slice.
// Grid dimensions are expanded via cartesian product.
func BuildDevices(cfg *Config) ([]miclink.Device, error) {
	var devices []miclink.Device

	// convert direct devices
	for _, dc := range cfg.Devices {
		d, err := buildDevice(dc)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}

	// expand grids
	for _, gc := range cfg.Grids {
		gridDevices, err := buildGridDevices(gc)
		if err != nil {
			return nil, err
		}
		devices = append(devices, gridDevices...)
	}

	return devices, nil
}

// buildDevice converts a single DeviceConfig to an SDK Device.
func buildDevice(dc DeviceConfig) (miclink.Device, error) {
	var opts []miclink.DeviceOption

	if dc.Name != "" {
		opts = append(opts, miclink.WithName(dc.Name))
	}

	if dc.Transport != "" {
		opts = append(opts, miclink.WithTransport(miclink.Transport(dc.Transport)))
	}

	if len(dc.Headers) > 0 {
		opts = append(opts, miclink.WithHeaders(mapToKeyValuePairs(dc.Headers)...))
	}

	if dc.MaxReconnectAttempts > 0 {
		opts = append(opts, miclink.WithMaxReconnectAttempts(dc.MaxReconnectAttempts))
	}

	return miclink.NewDevice(dc.ID, dc.Address, opts...)
}

// buildGridDevices expands a GridConfig into multiple devices via the SDK grid.
func buildGridDevices(gc GridConfig) ([]miclink.Device, error) {
	opts := []miclink.GridOption{
		miclink.WithAddressTemplate(gc.AddressTemplate),
		miclink.WithGridDimensions(gc.Dimensions),
	}

	if gc.Transport != "" {
		opts = append(opts, miclink.WithGridTransport(miclink.Transport(gc.Transport)))
	}

	if len(gc.Headers) > 0 {
		opts = append(opts, miclink.WithGridHeaders(mapToKeyValuePairs(gc.Headers)...))
	}

	if gc.MaxReconnectAttempts > 0 {
		opts = append(opts, miclink.WithGridMaxReconnectAttempts(gc.MaxReconnectAttempts))
	}

	devices, err := miclink.NewDeviceGrid(gc.ID, opts...)
	if err != nil {
		return nil, fmt.Errorf("grid (%s): %w", gc.ID, err)
	}
	return devices, nil
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
