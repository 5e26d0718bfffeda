// Package device defines the data model for the Gray Logic Sync client.
//
// A Device is the unit of synchronization: identity, zone label, integration
// origin, a fixed capability set, and a state map whose keys are restricted
// to that capability set. The restriction is enforced at the store boundary
// (see internal/store), so loosely-typed payloads from the hub or from
// command producers never leak unknown keys into the reconciled view.
//
// # Key Types
//
//   - Device: the synchronized entity
//   - Type: device kind (light, lock, thermostat, plug, speaker, other)
//   - Integration: origin integration (alexa, google_home, local, other)
//   - Capability: what a device can do; capability names double as state keys
//   - State: the current state map
//   - ConnStatus: hub-reported connectivity (online, offline, error)
//
// # Validation
//
//	if err := device.Validate(dev); err != nil { ... }
//	valid, dropped := device.FilterState(dev, delta)
//
// FilterState is the lenient variant used on inbound deltas: out-of-capability
// keys are dropped and reported rather than failing the whole delta.
package device
