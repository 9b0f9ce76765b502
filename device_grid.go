package miclink

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
)

// NewDeviceGrid creates multiple devices from an address template and
// dimensions using cartesian product expansion.
//
// Receiver fleets are usually regular: the same firmware on a run of
// addresses, one channel per unit. A grid declares the whole bank from
// one template instead of one [NewDevice] call per unit.
//
// The address template uses Go's text/template syntax. Dimension values
// are URL-encoded before interpolation. Missing template keys cause an
// error (fail-fast).
//
// Each device ID appends dimension values to the base ID in the format
// "base-val1-val2" (values from alphabetically sorted keys). Display
// names use the format "base (val1/val2)".
//
// Example:
//
//	devices, err := NewDeviceGrid("rx",
//	    WithAddressTemplate("http://10.0.7.{{.unit}}/stream"),
//	    WithGridDimensions(map[string][]string{
//	        "unit": {"21", "22", "23", "24"},
//	    }),
//	)
//	// Returns 4 devices, usable with WithDevices(devices...)
func NewDeviceGrid(baseID string, opts ...GridOption) ([]Device, error) {
	// validate base ID
	if strings.TrimSpace(baseID) == "" {
		return nil, errors.New("base ID cannot be empty")
	}

	// initialise config with empty maps
	cfg := &gridConfig{
		headers: make(map[string]string),
	}

	// apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// validate required fields
	if cfg.addressTemplate == "" {
		return nil, errors.New("address template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	// parse template with missingkey=error for fail-fast behaviour
	tmpl, err := template.New("address").Option("missingkey=error").Parse(cfg.addressTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid address template: %w", err)
	}

	// generate combinations
	combinations := cartesianProduct(cfg.dimensions)
	if len(combinations) == 0 {
		return nil, nil
	}

	// create devices
	devices := make([]Device, 0, len(combinations))
	for _, combo := range combinations {
		// URL-encode values for the template, keep original for names
		encoded := urlEncodeMap(combo)

		address, err := executeTemplate(tmpl, encoded)
		if err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		id := formatDeviceID(baseID, combo)

		// build device options
		devOpts := []DeviceOption{
			WithName(formatDeviceName(baseID, combo)),
		}
		if len(cfg.headers) > 0 {
			devOpts = append(devOpts, WithHeaders(flattenMap(cfg.headers)...))
		}
		if cfg.transport != "" {
			devOpts = append(devOpts, WithTransport(cfg.transport))
		}
		if cfg.maxReconnectAttempts > 0 {
			devOpts = append(devOpts, WithMaxReconnectAttempts(cfg.maxReconnectAttempts))
		}

		d, err := NewDevice(id, address, devOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create device '%s': %w", id, err)
		}
		devices = append(devices, d)
	}

	return devices, nil
}

// cartesianProduct generates all combinations of dimension values.
// Keys are sorted alphabetically for deterministic output.
// Values maintain their original slice order.
//
// Example:
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	// sort keys for deterministic iteration
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// defensive check for empty dimensions (also validated in WithGridDimensions)
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	// calculate total combinations
	total := 1
	for _, k := range keys {
		total *= len(dims[k])
	}

	result := make([]map[string]string, 0, total)

	// cartesian product
	indices := make([]int, len(keys))
	for {
		// combo is like our position in grid
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		// increment indices (rightmost first)
		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}

	}
}

// urlEncodeMap returns a new map with all values URL-encoded.
func urlEncodeMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = url.QueryEscape(v)
	}
	return result
}

// executeTemplate renders the template with the given data.
func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatDeviceID creates an ID in the format "base-v1-v2".
// Values are ordered by sorted keys for consistent IDs.
func formatDeviceID(baseID string, combo map[string]string) string {
	parts := append([]string{baseID}, sortedValues(combo)...)
	return strings.Join(parts, "-")
}

// formatDeviceName creates a display name in the format "base (v1/v2)".
// Values are ordered by sorted keys for consistent naming.
func formatDeviceName(baseID string, combo map[string]string) string {
	return fmt.Sprintf("%s (%s)", baseID, strings.Join(sortedValues(combo), "/"))
}

// sortedValues returns the map's values ordered by sorted keys.
func sortedValues(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = m[k]
	}
	return vals
}

// flattenMap converts a map to a slice of key-value pairs for variadic functions.
// Keys are sorted for deterministic output.
func flattenMap(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(m)*2)
	for _, k := range keys {
		result = append(result, k, m[k])
	}
	return result
}
