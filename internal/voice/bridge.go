package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-sync/internal/device"
	"github.com/nerrad567/gray-logic-sync/internal/dispatch"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/mqtt"
)

// Logger is the minimal logging interface the bridge needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broker is the subset of the MQTT client the bridge uses.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Commander dispatches a command through the optimistic path.
// dispatch.Dispatcher satisfies this interface.
type Commander interface {
	Dispatch(ctx context.Context, deviceID string, desired device.State) (*dispatch.Handle, error)
}

// Intent is the wire shape the voice pipeline publishes on
// graysync/voice/intent/{platform}.
type Intent struct {
	Action        string   `json:"action"`
	DeviceID      string   `json:"device_id"`
	Value         *float64 `json:"value,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

// Result reports a command outcome back on graysync/voice/result/{id}.
type Result struct {
	CorrelationID string `json:"correlation_id"`
	DeviceID      string `json:"device_id"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
}

// Result status values.
const (
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Bridge turns voice intents into optimistic commands.
//
// Voice commands take the identical path as UI controls: the same Dispatch
// contract, the same speculative apply and rollback. The bridge only
// translates the intent vocabulary into partial state and reports outcomes
// back to the pipeline.
type Bridge struct {
	broker     Broker
	dispatcher Commander
	qos        byte
	logger     Logger

	wg sync.WaitGroup
}

// New creates a Bridge dispatching through d and talking to the pipeline
// via broker.
func New(cfg config.VoiceConfig, broker Broker, d Commander) *Bridge {
	return &Bridge{
		broker:     broker,
		dispatcher: d,
		qos:        byte(cfg.QoS), //nolint:gosec // validated 0..2 by config
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger. Must be called before Start.
func (b *Bridge) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Start subscribes to the intent topics. Handlers run until the broker
// connection closes; ctx bounds each in-flight command.
func (b *Bridge) Start(ctx context.Context) error {
	topic := mqtt.Topics{}.AllVoiceIntents()
	err := b.broker.Subscribe(topic, b.qos, func(topic string, payload []byte) error {
		return b.handleIntent(ctx, topic, payload)
	})
	if err != nil {
		return fmt.Errorf("subscribing to voice intents: %w", err)
	}

	b.logger.Info("voice bridge started", "topic", topic)
	return nil
}

// Wait blocks until all in-flight intent commands have resolved.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// handleIntent parses one intent and dispatches it.
func (b *Bridge) handleIntent(ctx context.Context, topic string, payload []byte) error {
	var intent Intent
	if err := json.Unmarshal(payload, &intent); err != nil {
		b.logger.Warn("dropping malformed voice intent", "topic", topic, "error", err)
		return nil
	}

	desired, err := intentState(&intent)
	if err != nil {
		b.logger.Warn("rejecting voice intent", "topic", topic, "error", err)
		b.publishResult(Result{
			CorrelationID: intent.CorrelationID,
			DeviceID:      intent.DeviceID,
			Status:        StatusFailed,
			Error:         err.Error(),
		})
		return nil
	}

	handle, err := b.dispatcher.Dispatch(ctx, intent.DeviceID, desired)
	if err != nil {
		b.publishResult(Result{
			CorrelationID: intent.CorrelationID,
			DeviceID:      intent.DeviceID,
			Status:        StatusFailed,
			Error:         err.Error(),
		})
		return nil
	}

	correlationID := intent.CorrelationID
	if correlationID == "" {
		correlationID = handle.CorrelationID
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		result := Result{
			CorrelationID: correlationID,
			DeviceID:      intent.DeviceID,
			Status:        StatusConfirmed,
		}
		if err := handle.Wait(ctx); err != nil {
			result.Status = StatusFailed
			result.Error = err.Error()
		}
		b.publishResult(result)
	}()

	return nil
}

// publishResult reports a command outcome to the voice pipeline.
func (b *Bridge) publishResult(result Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		b.logger.Error("marshaling voice result", "error", err)
		return
	}

	topic := mqtt.Topics{}.VoiceResult(result.CorrelationID)
	if err := b.broker.Publish(topic, payload, b.qos, false); err != nil {
		b.logger.Warn("publishing voice result failed", "topic", topic, "error", err)
	}
}

// intentState maps the intent vocabulary onto partial device state.
func intentState(intent *Intent) (device.State, error) {
	if intent.DeviceID == "" {
		return nil, ErrMissingDevice
	}

	switch intent.Action {
	case "turn_on":
		return device.State{"on": true}, nil
	case "turn_off":
		return device.State{"on": false}, nil
	case "lock":
		return device.State{"locked": true}, nil
	case "unlock":
		return device.State{"locked": false}, nil
	case "set_brightness":
		if intent.Value == nil {
			return nil, ErrMissingValue
		}
		return device.State{"brightness": *intent.Value}, nil
	case "set_temperature":
		if intent.Value == nil {
			return nil, ErrMissingValue
		}
		return device.State{"target_temperature": *intent.Value}, nil
	case "set_volume":
		if intent.Value == nil {
			return nil, ErrMissingValue
		}
		return device.State{"volume": *intent.Value}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, intent.Action)
	}
}
