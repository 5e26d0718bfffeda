package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-sync/internal/device"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sync/internal/store"
)

var testUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func snapshotDevices() []device.Device {
	return []device.Device{
		{
			ID:           "thermostat-3",
			Name:         "Hallway Thermostat",
			Zone:         "Hallway",
			Type:         device.TypeThermostat,
			Integration:  device.IntegrationLocal,
			Capabilities: []device.Capability{device.CapTemp, device.CapTargetTemp},
			State:        device.State{"temperature": 19.5},
			Status:       device.StatusOnline,
		},
		{
			ID:           "light-1",
			Name:         "Ceiling Light",
			Zone:         "Living Room",
			Type:         device.TypeLight,
			Integration:  device.IntegrationLocal,
			Capabilities: []device.Capability{device.CapOnOff, device.CapBrightness},
			State:        device.State{"on": false},
			Status:       device.StatusOnline,
		},
	}
}

// streamServer serves scripted frames on each WebSocket connection.
type streamServer struct {
	t        *testing.T
	srv      *httptest.Server
	connects atomic.Int64

	// serve handles one upgraded connection.
	serve func(conn *websocket.Conn, connect int64)
}

func newStreamServer(t *testing.T, serve func(conn *websocket.Conn, connect int64)) *streamServer {
	t.Helper()
	s := &streamServer{t: t, serve: serve}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		s.serve(conn, s.connects.Add(1))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *streamServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// hold keeps the server side open until the client disconnects.
func hold(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshaling frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Errorf("writing frame: %v", err)
	}
}

func testStreamConfig(url string) config.StreamConfig {
	return config.StreamConfig{
		URL:            url,
		InitialBackoff: 1,
		MaxBackoff:     1,
		PingInterval:   30,
		PongTimeout:    10,
		DedupeSize:     1000,
	}
}

// runSubscriber starts sub.Run and returns a stop function that cancels it
// and waits for the goroutine to exit.
func runSubscriber(t *testing.T, sub *Subscriber) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Run() = %v, want context.Canceled", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Run() did not stop after cancel")
		}
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSubscriber_AppliesOrderedUpdates(t *testing.T) {
	st := store.New()
	server := newStreamServer(t, func(conn *websocket.Conn, _ int64) {
		send(t, conn, Message{
			Kind: KindDeviceUpdate, EventID: "evt-1", DeviceID: "thermostat-3",
			State: device.State{"temperature": 21.0}, Token: 5,
		})
		// Stale: token 3 after token 5.
		send(t, conn, Message{
			Kind: KindDeviceUpdate, EventID: "evt-2", DeviceID: "thermostat-3",
			State: device.State{"temperature": 18.0}, Token: 3,
		})
		// Marker so the test can tell both frames were processed.
		send(t, conn, Message{
			Kind: KindDeviceUpdate, EventID: "evt-3", DeviceID: "light-1",
			State: device.State{"on": true}, Token: 1,
		})
		hold(conn)
	})

	sub := New(testStreamConfig(server.wsURL()), st, func(context.Context) error {
		st.ReplaceAll(snapshotDevices())
		return nil
	})
	stop := runSubscriber(t, sub)
	defer stop()

	waitFor(t, func() bool {
		dev, err := st.Get("light-1")
		return err == nil && dev.State["on"] == true
	}, "marker event never applied")

	dev, err := st.Get("thermostat-3")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if dev.State["temperature"] != 21.0 {
		t.Errorf("temperature = %v, want token 5's 21.0 (token 3 dropped as stale)", dev.State["temperature"])
	}
	if sub.State() != StateConnected {
		t.Errorf("State() = %s, want connected", sub.State())
	}
}

func TestSubscriber_IdempotentRedelivery(t *testing.T) {
	st := store.New()
	server := newStreamServer(t, func(conn *websocket.Conn, _ int64) {
		send(t, conn, Message{
			Kind: KindDeviceUpdate, EventID: "evt-1", DeviceID: "light-1",
			State: device.State{"brightness": 40}, Token: 1,
		})
		// Redelivery of evt-1 with a higher token must not reapply.
		send(t, conn, Message{
			Kind: KindDeviceUpdate, EventID: "evt-1", DeviceID: "light-1",
			State: device.State{"brightness": 90}, Token: 2,
		})
		send(t, conn, Message{
			Kind: KindDeviceUpdate, EventID: "evt-2", DeviceID: "light-1",
			State: device.State{"on": true}, Token: 3,
		})
		hold(conn)
	})

	sub := New(testStreamConfig(server.wsURL()), st, func(context.Context) error {
		st.ReplaceAll(snapshotDevices())
		return nil
	})
	stop := runSubscriber(t, sub)
	defer stop()

	waitFor(t, func() bool {
		dev, err := st.Get("light-1")
		return err == nil && dev.State["on"] == true
	}, "marker event never applied")

	dev, _ := st.Get("light-1")
	if got := dev.State["brightness"]; got != 40 && got != float64(40) {
		t.Errorf("brightness = %v, want original 40 (duplicate dropped)", got)
	}
}

func TestSubscriber_DomainActionTriggersResync(t *testing.T) {
	st := store.New()
	server := newStreamServer(t, func(conn *websocket.Conn, _ int64) {
		send(t, conn, Message{
			Kind: KindDomainAction, EventID: "evt-bulk",
			Payload: json.RawMessage(`{"action":"all_off"}`),
		})
		hold(conn)
	})

	var resyncs atomic.Int64
	sub := New(testStreamConfig(server.wsURL()), st, func(context.Context) error {
		resyncs.Add(1)
		st.ReplaceAll(snapshotDevices())
		return nil
	})
	stop := runSubscriber(t, sub)
	defer stop()

	// One resync on connect, a second for the domain action.
	waitFor(t, func() bool { return resyncs.Load() >= 2 }, "domain action did not trigger resync")
}

// A delayed pre-resync event still in the read pipeline when a domain
// action resyncs mid-connection carries a distinct idempotency key and an
// old token. Token tracking must survive the snapshot load so the event is
// dropped as stale instead of regressing the fresh state.
func TestSubscriber_StaleEventAfterDomainActionResync(t *testing.T) {
	st := store.New()
	server := newStreamServer(t, func(conn *websocket.Conn, _ int64) {
		send(t, conn, Message{
			Kind: KindDeviceUpdate, EventID: "evt-1", DeviceID: "light-1",
			State: device.State{"on": true}, Token: 5,
		})
		// Frames apply in order, so the resync completes before the
		// delayed token-3 event is read.
		send(t, conn, Message{
			Kind: KindDomainAction, EventID: "evt-bulk",
			Payload: json.RawMessage(`{"action":"all_off"}`),
		})
		send(t, conn, Message{
			Kind: KindDeviceUpdate, EventID: "evt-2", DeviceID: "light-1",
			State: device.State{"on": true, "brightness": 33}, Token: 3,
		})
		// Marker on a different device so the test can tell evt-2 was seen.
		send(t, conn, Message{
			Kind: KindDeviceUpdate, EventID: "evt-3", DeviceID: "thermostat-3",
			State: device.State{"temperature": 25.0}, Token: 1,
		})
		hold(conn)
	})

	sub := New(testStreamConfig(server.wsURL()), st, func(context.Context) error {
		st.ReplaceAll(snapshotDevices())
		return nil
	})
	stop := runSubscriber(t, sub)
	defer stop()

	waitFor(t, func() bool {
		dev, err := st.Get("thermostat-3")
		return err == nil && dev.State["temperature"] == 25.0
	}, "marker event never applied")

	dev, err := st.Get("light-1")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if dev.State["on"] != false {
		t.Errorf("on = %v, want snapshot's false (stale event applied after resync)", dev.State["on"])
	}
	if _, ok := dev.State["brightness"]; ok {
		t.Errorf("brightness = %v, want absent (stale event applied after resync)", dev.State["brightness"])
	}
}

func TestSubscriber_MalformedFrameDropped(t *testing.T) {
	st := store.New()
	server := newStreamServer(t, func(conn *websocket.Conn, _ int64) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
			t.Errorf("writing frame: %v", err)
		}
		send(t, conn, Message{
			Kind: KindDeviceUpdate, EventID: "evt-1", DeviceID: "light-1",
			State: device.State{"on": true}, Token: 1,
		})
		hold(conn)
	})

	sub := New(testStreamConfig(server.wsURL()), st, func(context.Context) error {
		st.ReplaceAll(snapshotDevices())
		return nil
	})
	stop := runSubscriber(t, sub)
	defer stop()

	// The session survives the malformed frame and applies the next one.
	waitFor(t, func() bool {
		dev, err := st.Get("light-1")
		return err == nil && dev.State["on"] == true
	}, "valid event after malformed frame never applied")
}

func TestSubscriber_ReconnectResyncsSnapshot(t *testing.T) {
	st := store.New()
	server := newStreamServer(t, func(conn *websocket.Conn, connect int64) {
		if connect == 1 {
			// Deliver one update, then drop the connection. The update's
			// effect must not survive the resync that follows reconnect.
			send(t, conn, Message{
				Kind: KindDeviceUpdate, EventID: "evt-1", DeviceID: "light-1",
				State: device.State{"on": true}, Token: 1,
			})
			return
		}
		hold(conn)
	})

	var resyncs atomic.Int64
	sub := New(testStreamConfig(server.wsURL()), st, func(context.Context) error {
		resyncs.Add(1)
		st.ReplaceAll(snapshotDevices())
		return nil
	})
	stop := runSubscriber(t, sub)
	defer stop()

	waitFor(t, func() bool { return server.connects.Load() >= 2 && resyncs.Load() >= 2 },
		"subscriber did not reconnect")
	waitFor(t, func() bool { return sub.State() == StateConnected }, "subscriber did not settle connected")

	// Store matches the fresh snapshot, not the update from the dead session.
	dev, err := st.Get("light-1")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if dev.State["on"] != false {
		t.Errorf("on = %v after resync, want snapshot's false", dev.State["on"])
	}
}

func TestSubscriber_RunTwiceRejected(t *testing.T) {
	st := store.New()
	server := newStreamServer(t, func(conn *websocket.Conn, _ int64) {
		hold(conn)
	})

	sub := New(testStreamConfig(server.wsURL()), st, func(context.Context) error { return nil })
	stop := runSubscriber(t, sub)
	defer stop()

	waitFor(t, func() bool { return sub.State() == StateConnected }, "subscriber never connected")

	if err := sub.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}
}
