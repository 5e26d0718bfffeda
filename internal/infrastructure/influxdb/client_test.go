package influxdb

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-sync/internal/device"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("Connect() = %v, want ErrDisabled", err)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := &Client{}

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}

func TestWrites_NoOpWhenDisconnected(t *testing.T) {
	c := &Client{}

	// None of these may panic or block on a disconnected client.
	c.WriteDeviceState("light-1", device.State{"on": true, "brightness": 80})
	c.WriteSyncEvent("reconnect")
	c.WritePoint("custom", map[string]string{"k": "v"}, map[string]interface{}{"value": 1.0})
	c.Flush()
}

func TestClose_NeverConnected(t *testing.T) {
	c := &Client{}

	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
