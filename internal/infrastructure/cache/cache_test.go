package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-sync/internal/device"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/config"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(config.CacheConfig{
		Enabled:     true,
		Path:        filepath.Join(t.TempDir(), "graysync.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
	})
	return c
}

func TestLoadSnapshot_EmptyCache(t *testing.T) {
	c := openTestCache(t)

	_, _, err := c.LoadSnapshot(context.Background())
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("LoadSnapshot() = %v, want ErrNoSnapshot", err)
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	devices := []device.Device{
		{
			ID:           "light-1",
			Name:         "Ceiling Light",
			Zone:         "Living Room",
			Type:         device.TypeLight,
			Integration:  device.IntegrationLocal,
			Capabilities: []device.Capability{device.CapOnOff},
			State:        device.State{"on": true},
			Status:       device.StatusOnline,
		},
	}

	if err := c.SaveSnapshot(ctx, devices); err != nil {
		t.Fatalf("SaveSnapshot() = %v", err)
	}

	got, savedAt, err := c.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() = %v", err)
	}
	if len(got) != 1 || got[0].ID != "light-1" {
		t.Fatalf("LoadSnapshot() devices = %+v", got)
	}
	if got[0].State["on"] != true {
		t.Errorf("state lost in round trip: %v", got[0].State)
	}
	if savedAt.IsZero() {
		t.Error("savedAt is zero")
	}
}

func TestSaveSnapshot_ReplacesPrevious(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	first := []device.Device{{
		ID: "light-1", Name: "Light", Type: device.TypeLight,
		Integration:  device.IntegrationLocal,
		Capabilities: []device.Capability{device.CapOnOff},
		Status:       device.StatusOnline,
	}}
	second := []device.Device{{
		ID: "plug-2", Name: "Plug", Type: device.TypePlug,
		Integration:  device.IntegrationLocal,
		Capabilities: []device.Capability{device.CapOnOff},
		Status:       device.StatusOnline,
	}}

	if err := c.SaveSnapshot(ctx, first); err != nil {
		t.Fatalf("SaveSnapshot(first) = %v", err)
	}
	if err := c.SaveSnapshot(ctx, second); err != nil {
		t.Fatalf("SaveSnapshot(second) = %v", err)
	}

	got, _, err := c.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot() = %v", err)
	}
	if len(got) != 1 || got[0].ID != "plug-2" {
		t.Errorf("LoadSnapshot() = %+v, want only the second snapshot", got)
	}
}

func TestHealthCheck(t *testing.T) {
	c := openTestCache(t)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
}
