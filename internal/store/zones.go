package store

import (
	"sort"

	"github.com/nerrad567/gray-logic-sync/internal/device"
)

// unassignedZone is the grouping label for devices without a zone.
const unassignedZone = "Unassigned"

// Zone is a read-only grouping of devices sharing a zone label.
type Zone struct {
	Name    string          `json:"name"`
	Devices []device.Device `json:"devices"`
}

// Zones returns the current grouping of devices by zone label.
//
// It is a pure function of the table contents: zones are sorted
// alphabetically, devices within a zone by name then ID, so repeated calls
// over identical contents return identical groupings. Presentation
// components recompute this on every change notification.
func (s *Store) Zones() []Zone {
	devices := s.List()

	byZone := make(map[string][]device.Device)
	for _, d := range devices {
		zone := d.Zone
		if zone == "" {
			zone = unassignedZone
		}
		byZone[zone] = append(byZone[zone], d)
	}

	names := make([]string, 0, len(byZone))
	for name := range byZone {
		names = append(names, name)
	}
	sort.Strings(names)

	zones := make([]Zone, 0, len(names))
	for _, name := range names {
		group := byZone[name]
		sort.Slice(group, func(i, j int) bool {
			if group[i].Name != group[j].Name {
				return group[i].Name < group[j].Name
			}
			return group[i].ID < group[j].ID
		})
		zones = append(zones, Zone{Name: name, Devices: group})
	}

	return zones
}
