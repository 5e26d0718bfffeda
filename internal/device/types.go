package device

import "time"

// Device represents a single controllable or monitorable entity known to the
// sync core. Instances are owned by the store; everything outside the store
// works on deep copies.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Zone is the room/zone label used for grouping ("Living Room", "Kitchen").
	Zone string `json:"zone"`

	// Classification
	Type        Type        `json:"type"`
	Integration Integration `json:"integration"`

	// Capabilities constrain which keys may appear in State.
	Capabilities []Capability `json:"capabilities"`

	// State holds the current reconciled state. Keys are capability names;
	// values are numeric, boolean, or short strings.
	State State `json:"state"`

	// Status is the connectivity status last reported by the hub.
	Status ConnStatus `json:"status"`

	// LastActivity is the timestamp of the last applied state change (UTC).
	LastActivity time.Time `json:"last_activity"`
}

// DeepCopy creates a complete independent copy of the Device.
// The state map and capability slice are cloned so modifications to the
// copy do not affect the original. Essential for store isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields

	cpy.State = d.State.Clone()

	if d.Capabilities != nil {
		cpy.Capabilities = make([]Capability, len(d.Capabilities))
		copy(cpy.Capabilities, d.Capabilities)
	}

	return &cpy
}

// HasCapability reports whether the device carries the given capability.
func (d *Device) HasCapability(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// State holds device state as a JSON map keyed by capability name.
//
// Examples:
//   - Light: {"on": true, "brightness": 75}
//   - Thermostat: {"temperature": 21.5, "target_temperature": 22.0}
//   - Lock: {"locked": true}
type State map[string]any

// Clone returns an independent copy of the state map.
// State values are primitives, so a per-key copy is sufficient.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	cpy := make(State, len(s))
	for k, v := range s {
		cpy[k] = v
	}
	return cpy
}

// Type represents the kind of device.
type Type string

// Type constants.
const (
	TypeLight      Type = "light"
	TypeLock       Type = "lock"
	TypeThermostat Type = "thermostat"
	TypePlug       Type = "plug"
	TypeSpeaker    Type = "speaker"
	TypeOther      Type = "other"
)

// AllTypes returns all valid device type values.
func AllTypes() []Type {
	return []Type{
		TypeLight, TypeLock, TypeThermostat, TypePlug, TypeSpeaker, TypeOther,
	}
}

// Integration identifies the third-party integration a device arrived through.
type Integration string

// Integration constants.
const (
	IntegrationAlexa      Integration = "alexa"
	IntegrationGoogleHome Integration = "google_home"
	IntegrationLocal      Integration = "local"
	IntegrationOther      Integration = "other"
)

// AllIntegrations returns all valid integration values.
func AllIntegrations() []Integration {
	return []Integration{
		IntegrationAlexa, IntegrationGoogleHome, IntegrationLocal, IntegrationOther,
	}
}

// Capability represents a controllable or readable aspect of a device.
// Capability names double as state map keys.
type Capability string

// Capability constants.
const (
	CapOnOff      Capability = "on"
	CapBrightness Capability = "brightness"
	CapColor      Capability = "color"
	CapTemp       Capability = "temperature"
	CapTargetTemp Capability = "target_temperature"
	CapLockState  Capability = "locked"
	CapVolume     Capability = "volume"
	CapPower      Capability = "power_watts"
)

// AllCapabilities returns all valid capability values.
func AllCapabilities() []Capability {
	return []Capability{
		CapOnOff, CapBrightness, CapColor, CapTemp, CapTargetTemp,
		CapLockState, CapVolume, CapPower,
	}
}

// ConnStatus represents device connectivity as reported by the hub.
type ConnStatus string

// ConnStatus constants.
const (
	StatusOnline  ConnStatus = "online"
	StatusOffline ConnStatus = "offline"
	StatusError   ConnStatus = "error"
)

// AllConnStatuses returns all valid connectivity status values.
func AllConnStatuses() []ConnStatus {
	return []ConnStatus{StatusOnline, StatusOffline, StatusError}
}
