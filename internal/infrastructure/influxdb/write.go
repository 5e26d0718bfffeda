package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-sync/internal/device"
)

// WriteDeviceState records the numeric and boolean fields of a device state
// map as telemetry. Boolean values are written as 0/1 so they can be graphed
// alongside numeric series. Non-numeric fields (strings, enums) are skipped.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteDeviceState("thermostat-3", device.State{"temperature": 21.5})
func (c *Client) WriteDeviceState(deviceID string, state device.State) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]interface{}, len(state))
	for key, val := range state {
		switch v := val.(type) {
		case float64:
			fields[key] = v
		case int:
			fields[key] = float64(v)
		case int64:
			fields[key] = float64(v)
		case bool:
			if v {
				fields[key] = 1.0
			} else {
				fields[key] = 0.0
			}
		}
	}
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"device_state",
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSyncEvent records one occurrence of a synchronization event, such as
// a stream reconnect, a snapshot resync, or a command rollback.
//
// Parameters:
//   - kind: The event kind (e.g., "reconnect", "resync", "rollback")
func (c *Client) WriteSyncEvent(kind string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sync_events",
		map[string]string{
			"kind": kind,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
