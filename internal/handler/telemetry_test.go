package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tb-api-sdk/gateway/internal/bulk"
	"github.com/tb-api-sdk/gateway/internal/thingsboard"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testDeviceID = "2b1f9a60-1c2d-4e3f-9a8b-7c6d5e4f3a2b"

// fakeAPI is a scriptable stand-in for the upstream client.
type fakeAPI struct {
	uploadErr error
	attrErr   error

	lastDeviceID string
	lastScope    string
}

func (f *fakeAPI) UploadTelemetry(_ context.Context, deviceID string, payload thingsboard.TelemetryPayload) (*thingsboard.UploadAck, error) {
	f.lastDeviceID = deviceID
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	ack := &thingsboard.UploadAck{}
	for key, points := range payload {
		ack.AcceptedKeys = append(ack.AcceptedKeys, key)
		ack.AcceptedCount += len(points)
	}
	return ack, nil
}

func (f *fakeAPI) UploadAttributes(_ context.Context, deviceID, scope string, attrs map[string]any) error {
	f.lastDeviceID = deviceID
	f.lastScope = scope
	return f.attrErr
}

func telemetryRouter(api *fakeAPI) *gin.Engine {
	orchestrator := bulk.New(api, 4, time.Second, false)
	h := NewTelemetryHandler(api, orchestrator, false)

	r := gin.New()
	r.POST("/api/v1/tb/devices/:device_id/telemetry", h.Upload)
	r.POST("/api/v1/tb/devices/:device_id/attributes/server", h.UploadServerAttributes)
	r.POST("/api/v1/tb/devices/:device_id/attributes/shared", h.UploadSharedAttributes)
	r.POST("/api/v1/tb/telemetry/bulk", h.BulkUpload)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestUploadSingleDevice(t *testing.T) {
	api := &fakeAPI{}
	r := telemetryRouter(api)

	w := postJSON(t, r, "/api/v1/tb/devices/"+testDeviceID+"/telemetry", map[string]any{
		"temperature": []map[string]any{{"ts": 1700000000000, "value": 21.5}},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if api.lastDeviceID != testDeviceID {
		t.Errorf("upstream device id = %q", api.lastDeviceID)
	}

	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "success" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["total_data_points"] != float64(1) {
		t.Errorf("total_data_points = %v, want 1", body["total_data_points"])
	}
}

func TestUploadRejectsBadDeviceID(t *testing.T) {
	api := &fakeAPI{}
	r := telemetryRouter(api)

	w := postJSON(t, r, "/api/v1/tb/devices/not-a-uuid/telemetry", map[string]any{
		"temperature": []map[string]any{{"ts": 1700000000000, "value": 21.5}},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if api.lastDeviceID != "" {
		t.Error("invalid device id reached the upstream client")
	}

	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error_code"] != "VALIDATION_ERROR" {
		t.Errorf("error_code = %v", body["error_code"])
	}
}

func TestUploadRejectsEmptyPayload(t *testing.T) {
	r := telemetryRouter(&fakeAPI{})

	w := postJSON(t, r, "/api/v1/tb/devices/"+testDeviceID+"/telemetry", map[string]any{})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUploadUpstreamFailureNormalized(t *testing.T) {
	api := &fakeAPI{uploadErr: &thingsboard.UpstreamError{StatusCode: 503, Message: "Service Unavailable"}}
	r := telemetryRouter(api)

	w := postJSON(t, r, "/api/v1/tb/devices/"+testDeviceID+"/telemetry", map[string]any{
		"temperature": []map[string]any{{"ts": 1700000000000, "value": 21.5}},
	})

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}

	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error_code"] != "UPSTREAM_ERROR" {
		t.Errorf("error_code = %v", body["error_code"])
	}
	// Production mode must not leak the upstream status or cause.
	if _, ok := body["details"]; ok {
		t.Errorf("production error leaked details: %v", body["details"])
	}
}

func TestBulkUploadReportShape(t *testing.T) {
	api := &fakeAPI{}
	r := telemetryRouter(api)

	w := postJSON(t, r, "/api/v1/tb/telemetry/bulk", map[string]any{
		"dev-1": map[string]any{"temperature": []map[string]any{{"ts": 1700000000000, "value": 20}}},
		"dev-2": map[string]any{"humidity": []map[string]any{{"ts": 1700000000000, "value": 40}}},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var report bulk.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if report.Status != "completed" {
		t.Errorf("report status = %q", report.Status)
	}
	if report.Summary.TotalDevices != 2 || report.Summary.SuccessfulDevices != 2 {
		t.Errorf("summary = %+v", report.Summary)
	}
	if len(report.Results) != 2 {
		t.Errorf("results has %d entries, want 2", len(report.Results))
	}
}

func TestBulkUploadEmptyBody(t *testing.T) {
	r := telemetryRouter(&fakeAPI{})

	w := postJSON(t, r, "/api/v1/tb/telemetry/bulk", map[string]any{})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUploadAttributesScopes(t *testing.T) {
	tests := []struct {
		path  string
		scope string
	}{
		{"/api/v1/tb/devices/" + testDeviceID + "/attributes/server", thingsboard.ScopeServer},
		{"/api/v1/tb/devices/" + testDeviceID + "/attributes/shared", thingsboard.ScopeShared},
	}

	for _, tt := range tests {
		api := &fakeAPI{}
		r := telemetryRouter(api)

		w := postJSON(t, r, tt.path, map[string]any{"firmware": "1.2.3"})

		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", tt.path, w.Code)
		}
		if api.lastScope != tt.scope {
			t.Errorf("%s upstream scope = %q, want %q", tt.path, api.lastScope, tt.scope)
		}
	}
}
