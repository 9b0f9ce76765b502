package hub

import "encoding/json"

// Message type values carried in [Envelope.Type].
const (
	// TypeDeviceUpdate marks a device delta payload.
	TypeDeviceUpdate = "device_update"

	// TypeStatus marks a human-readable operational notice.
	TypeStatus = "status"

	// TypePong answers a viewer's application-level ping.
	TypePong = "pong"
)

// TopicStatus is the fixed topic carrying operational notices.
const TopicStatus = "status"

// DeviceTopic returns the broadcast topic for one device's updates. Session
// layers derive the same name from the device ID to subscribe.
func DeviceTopic(deviceID string) string {
	return "device:" + deviceID
}

// Envelope is the wire format delivered to subscribers. Exactly one of Data
// or Message is populated depending on Type.
type Envelope struct {
	// Type discriminates the payload: [TypeDeviceUpdate] or [TypeStatus].
	Type string `json:"type"`

	// Device is the originating device ID for device updates.
	Device string `json:"device,omitempty"`

	// Data is the opaque device delta, present for device updates.
	Data json.RawMessage `json:"data,omitempty"`

	// Message is the notice text, present for status envelopes.
	Message string `json:"message,omitempty"`
}

// DeviceUpdate builds a device delta envelope. Payloads that are not valid
// JSON are carried as a JSON string so the envelope always encodes.
func DeviceUpdate(deviceID string, payload []byte) Envelope {
	data := json.RawMessage(payload)
	if !json.Valid(payload) {
		quoted, err := json.Marshal(string(payload))
		if err == nil {
			data = quoted
		}
	}
	return Envelope{Type: TypeDeviceUpdate, Device: deviceID, Data: data}
}

// StatusNotice builds a status envelope with the given text.
func StatusNotice(message string) Envelope {
	return Envelope{Type: TypeStatus, Message: message}
}

// Encode serializes the envelope to its wire form.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
