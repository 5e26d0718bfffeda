// Package influxdb provides time-series telemetry for Gray Logic Sync.
//
// This package manages:
//   - Connection to InfluxDB v2 with token authentication
//   - Non-blocking batched writes of device state telemetry
//   - Synchronization event counters (reconnects, resyncs, rollbacks)
//   - Health monitoring
//
// Telemetry is strictly optional: when disabled in config the daemon runs
// without it, and write methods on a disconnected client are silent no-ops.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteDeviceState("thermostat-3", state)
//	client.WriteSyncEvent("reconnect")
package influxdb
