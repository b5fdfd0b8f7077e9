package thingsboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// DataPoint is one timestamped telemetry sample. The value may be any
// scalar or structured JSON value; timestamps are Unix milliseconds.
type DataPoint struct {
	TS    int64 `json:"ts"`
	Value any   `json:"value"`
}

// TelemetryPayload maps telemetry key names to their sample series. The
// shape matches the upstream timeseries wire format, so it is posted
// as-is.
type TelemetryPayload map[string][]DataPoint

// UploadAck describes what upstream accepted for one device.
type UploadAck struct {
	AcceptedKeys  []string
	AcceptedCount int
}

// Attribute scopes accepted by the upstream platform.
const (
	ScopeServer = "SERVER_SCOPE"
	ScopeShared = "SHARED_SCOPE"
)

// UploadTelemetry posts a timeseries payload to one device. Upstream
// returns an empty body on success, so the ack is derived from the
// payload that was accepted in full.
func (c *Client) UploadTelemetry(ctx context.Context, deviceID string, payload TelemetryPayload) (*UploadAck, error) {
	path := fmt.Sprintf("/api/plugins/telemetry/DEVICE/%s/timeseries/any", url.PathEscape(deviceID))
	if _, err := c.do(ctx, http.MethodPost, path, payload); err != nil {
		return nil, err
	}

	ack := &UploadAck{AcceptedKeys: make([]string, 0, len(payload))}
	for key, points := range payload {
		ack.AcceptedKeys = append(ack.AcceptedKeys, key)
		ack.AcceptedCount += len(points)
	}
	sort.Strings(ack.AcceptedKeys)
	return ack, nil
}

// UploadAttributes posts key-value attributes to a device in the given
// scope (ScopeServer or ScopeShared).
func (c *Client) UploadAttributes(ctx context.Context, deviceID, scope string, attrs map[string]any) error {
	path := fmt.Sprintf("/api/plugins/telemetry/DEVICE/%s/attributes/%s", url.PathEscape(deviceID), url.PathEscape(scope))
	_, err := c.do(ctx, http.MethodPost, path, attrs)
	return err
}

// ListDevices returns the raw tenant device page from upstream.
func (c *Client) ListDevices(ctx context.Context, page, pageSize int, textSearch string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("pageSize", fmt.Sprintf("%d", pageSize))
	if textSearch != "" {
		q.Set("textSearch", textSearch)
	}

	return c.do(ctx, http.MethodGet, "/api/tenant/devices?"+q.Encode(), nil)
}

// TelemetryKeys lists the timeseries keys known for a device.
func (c *Client) TelemetryKeys(ctx context.Context, deviceID string) ([]string, error) {
	path := fmt.Sprintf("/api/plugins/telemetry/DEVICE/%s/keys/timeseries", url.PathEscape(deviceID))
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("malformed keys response: %w", err)
	}
	return keys, nil
}

// LatestTelemetry returns the most recent value per requested key.
func (c *Client) LatestTelemetry(ctx context.Context, deviceID string, keys []string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("keys", strings.Join(keys, ","))

	path := fmt.Sprintf("/api/plugins/telemetry/DEVICE/%s/values/timeseries?%s", url.PathEscape(deviceID), q.Encode())
	return c.do(ctx, http.MethodGet, path, nil)
}
