package stream

import (
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/nerrad567/gray-logic-sync/internal/device"
)

// Message kinds delivered on the push event plane.
const (
	// KindDeviceUpdate carries a partial-state delta for one device.
	KindDeviceUpdate = "device:update"

	// KindDomainAction announces a bulk or domain-wide action whose effect
	// on individual devices is not locally derivable. Treated purely as a
	// refresh trigger.
	KindDomainAction = "domain:action"
)

// Message is the wire shape of one push event.
type Message struct {
	Kind     string       `json:"kind"`
	EventID  string       `json:"event_id,omitempty"`
	DeviceID string       `json:"device_id,omitempty"`
	State    device.State `json:"state,omitempty"`

	// Token orders device updates. Sequence number assigned by the hub.
	Token int64 `json:"token,omitempty"`

	// Payload is the opaque body of a domain action.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IdempotencyKey returns the key used for duplicate suppression: the hub's
// event id when present, otherwise an FNV-1a hash over the raw frame.
func (m *Message) IdempotencyKey(raw []byte) string {
	if m.EventID != "" {
		return m.EventID
	}

	h := fnv.New64a()
	h.Write([]byte(m.DeviceID)) //nolint:errcheck // hash writes never fail
	h.Write(raw)                //nolint:errcheck // hash writes never fail
	return fmt.Sprintf("fnv:%016x", h.Sum64())
}
