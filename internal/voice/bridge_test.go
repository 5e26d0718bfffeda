package voice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sync/internal/device"
	"github.com/nerrad567/gray-logic-sync/internal/dispatch"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sync/internal/store"
)

// mockBroker captures the intent handler and published results.
type mockBroker struct {
	mu      sync.Mutex
	topic   string
	handler mqtt.MessageHandler
	results []Result
}

func (m *mockBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topic = topic
	m.handler = handler
	return nil
}

func (m *mockBroker) Publish(_ string, payload []byte, _ byte, _ bool) error {
	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	return nil
}

func (m *mockBroker) published() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Result, len(m.results))
	copy(out, m.results)
	return out
}

// mockSender scripts the hub's verdict per command.
type mockSender struct {
	err error
}

func (m *mockSender) SendCommand(_ context.Context, _ string, desired device.State) (device.State, error) {
	if m.err != nil {
		return nil, m.err
	}
	return desired, nil
}

func newBridge(t *testing.T, sender *mockSender) (*Bridge, *mockBroker, *store.Store) {
	t.Helper()

	s := store.New()
	s.ReplaceAll([]device.Device{
		{
			ID:           "light-1",
			Name:         "Ceiling Light",
			Zone:         "Living Room",
			Type:         device.TypeLight,
			Integration:  device.IntegrationAlexa,
			Capabilities: []device.Capability{device.CapOnOff, device.CapBrightness},
			State:        device.State{"on": false},
			Status:       device.StatusOnline,
		},
	})

	d := dispatch.New(s, sender, time.Second)
	t.Cleanup(d.Close)

	broker := &mockBroker{}
	b := New(config.VoiceConfig{QoS: 1}, broker, d)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if broker.topic != "graysync/voice/intent/+" {
		t.Fatalf("subscribed to %q", broker.topic)
	}
	return b, broker, s
}

func deliver(t *testing.T, broker *mockBroker, intent Intent) {
	t.Helper()
	payload, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshaling intent: %v", err)
	}
	if err := broker.handler("graysync/voice/intent/alexa", payload); err != nil {
		t.Fatalf("handler returned %v", err)
	}
}

func TestBridge_TurnOnConfirmed(t *testing.T) {
	b, broker, s := newBridge(t, &mockSender{})

	deliver(t, broker, Intent{Action: "turn_on", DeviceID: "light-1", CorrelationID: "voice-1"})
	b.Wait()

	dev, err := s.Get("light-1")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if dev.State["on"] != true {
		t.Errorf("on = %v, want true", dev.State["on"])
	}

	results := broker.published()
	if len(results) != 1 {
		t.Fatalf("published %d results, want 1", len(results))
	}
	if results[0].Status != StatusConfirmed || results[0].CorrelationID != "voice-1" {
		t.Errorf("result = %+v", results[0])
	}
}

func TestBridge_FailedCommandReportsAndRollsBack(t *testing.T) {
	b, broker, s := newBridge(t, &mockSender{err: errors.New("device unreachable")})

	deliver(t, broker, Intent{Action: "turn_on", DeviceID: "light-1", CorrelationID: "voice-2"})
	b.Wait()

	dev, _ := s.Get("light-1")
	if dev.State["on"] != false {
		t.Errorf("on = %v after failed command, want rolled-back false", dev.State["on"])
	}

	results := broker.published()
	if len(results) != 1 || results[0].Status != StatusFailed || results[0].Error == "" {
		t.Fatalf("results = %+v, want one failed result with error", results)
	}
}

func TestBridge_SetBrightness(t *testing.T) {
	b, broker, s := newBridge(t, &mockSender{})

	value := 80.0
	deliver(t, broker, Intent{Action: "set_brightness", DeviceID: "light-1", Value: &value, CorrelationID: "voice-3"})
	b.Wait()

	dev, _ := s.Get("light-1")
	if dev.State["brightness"] != 80.0 {
		t.Errorf("brightness = %v, want 80", dev.State["brightness"])
	}
	if got := broker.published(); len(got) != 1 || got[0].Status != StatusConfirmed {
		t.Errorf("results = %+v", got)
	}
}

func TestBridge_UnknownDeviceReported(t *testing.T) {
	b, broker, _ := newBridge(t, &mockSender{})

	deliver(t, broker, Intent{Action: "turn_on", DeviceID: "ghost-9", CorrelationID: "voice-4"})
	b.Wait()

	results := broker.published()
	if len(results) != 1 || results[0].Status != StatusFailed {
		t.Fatalf("results = %+v, want one failed result", results)
	}
}

func TestBridge_MalformedIntentDropped(t *testing.T) {
	b, broker, _ := newBridge(t, &mockSender{})

	if err := broker.handler("graysync/voice/intent/alexa", []byte("{not json")); err != nil {
		t.Fatalf("handler returned %v for malformed payload", err)
	}
	b.Wait()

	if got := broker.published(); len(got) != 0 {
		t.Errorf("results = %+v, want none for malformed intent", got)
	}
}

func TestIntentState(t *testing.T) {
	value := 21.5

	tests := []struct {
		name    string
		intent  Intent
		want    device.State
		wantErr error
	}{
		{
			name:   "turn on",
			intent: Intent{Action: "turn_on", DeviceID: "light-1"},
			want:   device.State{"on": true},
		},
		{
			name:   "turn off",
			intent: Intent{Action: "turn_off", DeviceID: "light-1"},
			want:   device.State{"on": false},
		},
		{
			name:   "lock",
			intent: Intent{Action: "lock", DeviceID: "lock-7"},
			want:   device.State{"locked": true},
		},
		{
			name:   "set temperature",
			intent: Intent{Action: "set_temperature", DeviceID: "thermostat-3", Value: &value},
			want:   device.State{"target_temperature": 21.5},
		},
		{
			name:    "set temperature without value",
			intent:  Intent{Action: "set_temperature", DeviceID: "thermostat-3"},
			wantErr: ErrMissingValue,
		},
		{
			name:    "missing device",
			intent:  Intent{Action: "turn_on"},
			wantErr: ErrMissingDevice,
		},
		{
			name:    "unknown action",
			intent:  Intent{Action: "make_coffee", DeviceID: "light-1"},
			wantErr: ErrUnknownAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := intentState(&tt.intent)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("intentState() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("intentState() = %v", err)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("state[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}
