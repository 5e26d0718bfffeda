// Gray Logic Sync - Panel Sync Core
//
// This is the main entry point for the Gray Logic Sync daemon. It keeps a
// wall panel's local device table synchronised with the Gray Logic hub:
//   - Offline-first operation against a cached snapshot
//   - Single push connection with automatic resync on reconnect
//   - Optimistic command dispatch with exact rollback
//   - Local REST/WebSocket API for the panel UI
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-sync/internal/api"
	"github.com/nerrad567/gray-logic-sync/internal/dispatch"
	"github.com/nerrad567/gray-logic-sync/internal/hub"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/cache"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sync/internal/store"
	"github.com/nerrad567/gray-logic-sync/internal/stream"
	"github.com/nerrad567/gray-logic-sync/internal/voice"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Sync",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Device table
	st := store.New()
	st.SetLogger(log)

	// Open the snapshot cache and prime the table so the panel renders the
	// last known state before the hub is reachable.
	var snapCache *cache.Cache
	if cfg.Cache.Enabled {
		snapCache, err = cache.Open(cfg.Cache)
		if err != nil {
			return fmt.Errorf("opening snapshot cache: %w", err)
		}
		defer func() {
			log.Info("closing snapshot cache")
			if closeErr := snapCache.Close(); closeErr != nil {
				log.Error("error closing snapshot cache", "error", closeErr)
			}
		}()

		devices, savedAt, loadErr := snapCache.LoadSnapshot(ctx)
		switch {
		case errors.Is(loadErr, cache.ErrNoSnapshot):
			log.Info("no cached snapshot; waiting for hub")
		case loadErr != nil:
			log.Warn("cached snapshot unreadable", "error", loadErr)
		default:
			st.ReplaceAll(devices)
			log.Info("cached snapshot loaded", "devices", len(devices), "saved_at", savedAt)
		}
	} else {
		log.Info("snapshot cache disabled")
	}

	// Hub client and the shared refresh path: one full snapshot replaces the
	// table and (best effort) the cached copy.
	hubClient := hub.NewClient(cfg.Hub)
	refresh := func(ctx context.Context) error {
		devices, loadErr := hubClient.LoadSnapshot(ctx)
		if loadErr != nil {
			return loadErr
		}
		st.ReplaceAll(devices)
		if snapCache != nil {
			if saveErr := snapCache.SaveSnapshot(ctx, devices); saveErr != nil {
				log.Warn("failed to cache snapshot", "error", saveErr)
			}
		}
		return nil
	}

	// Initial snapshot. A hub outage is fatal only when there is no cached
	// table to serve; otherwise the stream subscriber resyncs on connect.
	if err := hub.WithRetry(ctx, hub.DefaultRetryConfig(), func() error {
		return refresh(ctx)
	}); err != nil {
		if st.Count() == 0 {
			return fmt.Errorf("initial snapshot: %w", err)
		}
		log.Warn("initial snapshot failed; serving cached table", "error", err, "devices", st.Count())
	} else {
		log.Info("initial snapshot loaded", "devices", st.Count())
	}

	// Optimistic command dispatcher
	dispatcher := dispatch.New(st, hubClient, cfg.GetConfirmTimeout())
	dispatcher.SetLogger(log)
	defer func() {
		log.Info("closing dispatcher")
		dispatcher.Close()
	}()

	// Push connection: events in, full resync on reconnect
	subscriber := stream.New(cfg.Stream, st, refresh)
	subscriber.SetLogger(log)
	go func() {
		if runErr := subscriber.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			log.Error("stream subscriber stopped", "error", runErr)
		}
	}()
	log.Info("stream subscriber started", "url", cfg.Stream.URL)

	// Voice intent bridge (optional)
	var mqttClient *mqtt.Client
	if cfg.Voice.Enabled {
		mqttClient, err = mqtt.Connect(cfg.Voice)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.Voice.Broker.Host, cfg.Voice.Broker.Port),
			"client_id", cfg.Voice.Broker.ClientID,
		)

		voiceBridge := voice.New(cfg.Voice, mqttClient, dispatcher)
		voiceBridge.SetLogger(log)
		if startErr := voiceBridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting voice bridge: %w", startErr)
		}
		defer voiceBridge.Wait()
		log.Info("voice bridge started")
	} else {
		log.Info("voice bridge disabled")
	}

	// Telemetry (optional): mirror applied state changes into InfluxDB
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		unsubscribe := st.Subscribe(telemetryRelay(st, influxClient))
		defer unsubscribe()
	} else {
		log.Info("InfluxDB disabled")
	}

	// Local API for the panel UI
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Store:      st,
		Dispatcher: dispatcher,
		Stream:     subscriber,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify connections are healthy
	if err := healthCheck(ctx, snapCache, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. Voice bridge + MQTT (if enabled)
	// 4. Dispatcher
	// 5. Snapshot cache (if enabled)

	log.Info("Gray Logic Sync stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYSYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// telemetryRelay writes applied device state changes and table refreshes to
// the time-series store.
func telemetryRelay(st *store.Store, influxClient *influxdb.Client) func(store.Change) {
	return func(change store.Change) {
		switch change.Type {
		case store.ChangeDevice:
			dev, err := st.Get(change.DeviceID)
			if err != nil {
				return
			}
			influxClient.WriteDeviceState(dev.ID, dev.State)
		case store.ChangeRefresh:
			influxClient.WriteSyncEvent("refresh")
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// Optional components pass nil and are skipped.
func healthCheck(ctx context.Context, snapCache *cache.Cache, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if snapCache != nil {
		if err := snapCache.HealthCheck(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
