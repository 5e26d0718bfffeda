package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-sync/internal/device"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/config"
)

// maxResponseSize caps response bodies read from the hub (4MB).
// A full snapshot of a large installation fits comfortably.
const maxResponseSize = 4 << 20

// Client talks to the hub's REST control plane.
//
// It covers the two outbound surfaces of the sync core: the full device
// snapshot and device control calls. The client performs no retries of its
// own; retry and resync policy belongs to the callers (see cmd/graysync and
// internal/stream).
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a hub client from configuration.
func NewClient(cfg config.HubConfig) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeout) * time.Second,
		},
	}
}

// snapshotResponse is the wire shape of GET /api/v1/devices.
type snapshotResponse struct {
	Devices []device.Device `json:"devices"`
}

// commandRequest is the wire shape of a device control call.
type commandRequest struct {
	State device.State `json:"state"`
}

// commandResponse is the wire shape of a successful control call.
// The hub echoes the confirmed state for the touched keys.
type commandResponse struct {
	State device.State `json:"state"`
}

// errorResponse is the wire shape of a hub error.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LoadSnapshot fetches the authoritative full device list.
//
// Safe to re-invoke at any time: the caller replaces the store table with
// the result, so repeated loads are idempotent. Used on startup and for
// post-disconnect resynchronization.
func (c *Client) LoadSnapshot(ctx context.Context) ([]device.Device, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/devices", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotFailed, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrSnapshotFailed, resp.StatusCode)
	}

	var snap snapshotResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrSnapshotFailed, err)
	}

	return snap.Devices, nil
}

// SendCommand sends a control command for a device and returns the confirmed
// state for the touched keys.
//
// A non-2xx response with a machine-readable reason is returned as a
// *CommandError wrapping ErrCommandRejected; transport failures and context
// cancellation surface as-is so the dispatcher can distinguish rejection
// from timeout.
func (c *Client) SendCommand(ctx context.Context, deviceID string, desired device.State) (device.State, error) {
	body, err := json.Marshal(commandRequest{State: desired})
	if err != nil {
		return nil, fmt.Errorf("marshaling command: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/devices/%s/command", c.baseURL, deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building command request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending command: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading command response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cmdErr := &CommandError{StatusCode: resp.StatusCode, Code: "unknown"}
		var hubErr errorResponse
		if json.Unmarshal(payload, &hubErr) == nil && hubErr.Code != "" {
			cmdErr.Code = hubErr.Code
			cmdErr.Message = hubErr.Message
		}
		return nil, cmdErr
	}

	var confirmed commandResponse
	if err := json.Unmarshal(payload, &confirmed); err != nil {
		// A confirmed-state payload is optional; an empty body is a plain ack.
		if len(bytes.TrimSpace(payload)) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding command response: %w", err)
	}

	return confirmed.State, nil
}

// setHeaders applies common request headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
