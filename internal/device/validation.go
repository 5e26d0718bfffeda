package device

import "fmt"

// Validation constants.
const (
	maxNameLength = 100
	maxZoneLength = 100

	// Size limits for state maps to prevent memory exhaustion from a
	// misbehaving hub. Generous for smart-home use.
	maxStateKeys      = 50
	maxStringValueLen = 256
)

// Pre-computed validation sets for O(1) lookups instead of O(n) linear search.
var (
	validTypes        map[Type]struct{}
	validIntegrations map[Integration]struct{}
	validCapabilities map[Capability]struct{}
	validConnStatuses map[ConnStatus]struct{}
)

func init() {
	validTypes = make(map[Type]struct{}, len(AllTypes()))
	for _, t := range AllTypes() {
		validTypes[t] = struct{}{}
	}

	validIntegrations = make(map[Integration]struct{}, len(AllIntegrations()))
	for _, i := range AllIntegrations() {
		validIntegrations[i] = struct{}{}
	}

	validCapabilities = make(map[Capability]struct{}, len(AllCapabilities()))
	for _, c := range AllCapabilities() {
		validCapabilities[c] = struct{}{}
	}

	validConnStatuses = make(map[ConnStatus]struct{}, len(AllConnStatuses()))
	for _, s := range AllConnStatuses() {
		validConnStatuses[s] = struct{}{}
	}
}

// Validate performs comprehensive validation on a device.
// Returns an error describing the first validation failure found.
func Validate(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}

	if d.Name == "" || len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidName, maxNameLength)
	}

	if len(d.Zone) > maxZoneLength {
		return fmt.Errorf("%w: zone exceeds %d characters", ErrInvalidDevice, maxZoneLength)
	}

	if err := ValidateType(d.Type); err != nil {
		return err
	}

	if err := ValidateIntegration(d.Integration); err != nil {
		return err
	}

	for _, c := range d.Capabilities {
		if _, ok := validCapabilities[c]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidCapability, c)
		}
	}

	if d.Status != "" {
		if _, ok := validConnStatuses[d.Status]; !ok {
			return fmt.Errorf("%w: invalid status %q", ErrInvalidDevice, d.Status)
		}
	}

	return ValidateState(d, d.State)
}

// ValidateType checks that a device type is recognised.
func ValidateType(t Type) error {
	if _, ok := validTypes[t]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	return nil
}

// ValidateIntegration checks that an integration value is recognised.
func ValidateIntegration(i Integration) error {
	if _, ok := validIntegrations[i]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidIntegration, i)
	}
	return nil
}

// ValidateState checks a state map against a device's capability set.
//
// Every key must name a capability the device carries, and every value must
// be a primitive (bool, number, or short string). This is the boundary that
// keeps loosely-typed hub payloads out of the reconciled view.
func ValidateState(d *Device, state State) error {
	if len(state) > maxStateKeys {
		return fmt.Errorf("%w: exceeds max keys (%d)", ErrInvalidState, maxStateKeys)
	}

	for k, v := range state {
		if !d.HasCapability(Capability(k)) {
			return fmt.Errorf("%w: key %q not in capability set of %s", ErrInvalidState, k, d.ID)
		}
		if err := validateStateValue(k, v); err != nil {
			return err
		}
	}

	return nil
}

// FilterState returns the subset of state whose keys are within the device's
// capability set and whose values are valid primitives. Keys dropped are
// returned separately so callers can log them.
func FilterState(d *Device, state State) (valid State, dropped []string) {
	valid = make(State, len(state))
	for k, v := range state {
		if !d.HasCapability(Capability(k)) || validateStateValue(k, v) != nil {
			dropped = append(dropped, k)
			continue
		}
		valid[k] = v
	}
	return valid, dropped
}

// validateStateValue checks that a single state value is an allowed primitive.
// A nil value is allowed: merging nil deletes the key (used for rollback of
// keys that did not exist before a command).
func validateStateValue(key string, v any) error {
	switch val := v.(type) {
	case nil, bool, int, int64, float64:
		return nil
	case string:
		if len(val) > maxStringValueLen {
			return fmt.Errorf("%w: value for %q exceeds %d characters", ErrInvalidState, key, maxStringValueLen)
		}
		return nil
	default:
		return fmt.Errorf("%w: value for %q has unsupported type %T", ErrInvalidState, key, v)
	}
}
