// Package bulk fans one multi-device telemetry request out to the
// upstream platform and folds the per-device outcomes into a single
// report. One device's failure never aborts or corrupts another's result.
package bulk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tb-api-sdk/gateway/internal/apierr"
	"github.com/tb-api-sdk/gateway/internal/thingsboard"
)

// Uploader is the upstream collaborator the orchestrator submits each
// device's payload to.
type Uploader interface {
	UploadTelemetry(ctx context.Context, deviceID string, payload thingsboard.TelemetryPayload) (*thingsboard.UploadAck, error)
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Outcome is the result for one device in the batch.
type Outcome struct {
	Status       string        `json:"status"`
	KeysUploaded []string      `json:"keys_uploaded,omitempty"`
	DataPoints   int           `json:"data_points"`
	Error        *apierr.Error `json:"error,omitempty"`
}

type Summary struct {
	TotalDevices      int `json:"total_devices"`
	SuccessfulDevices int `json:"successful_devices"`
	FailedDevices     int `json:"failed_devices"`
	TotalDataPoints   int `json:"total_data_points"`
}

// Report aggregates every device outcome for one bulk request. Results
// holds exactly one entry per submitted device id.
type Report struct {
	Status  string             `json:"status"`
	Summary Summary            `json:"summary"`
	Results map[string]Outcome `json:"results"`
	Message string             `json:"message"`
}

type Orchestrator struct {
	uploader      Uploader
	workers       int
	targetTimeout time.Duration
	debug         bool
}

func New(uploader Uploader, workers int, targetTimeout time.Duration, debug bool) *Orchestrator {
	if workers <= 0 {
		workers = 8
	}
	if targetTimeout <= 0 {
		targetTimeout = 10 * time.Second
	}
	return &Orchestrator{
		uploader:      uploader,
		workers:       workers,
		targetTimeout: targetTimeout,
		debug:         debug,
	}
}

// Run validates and submits every device payload concurrently, waits for
// all submissions to finish and assembles the report. An empty batch is
// rejected outright instead of producing a vacuous report.
func (o *Orchestrator) Run(ctx context.Context, targets map[string]thingsboard.TelemetryPayload) (*Report, error) {
	if len(targets) == 0 {
		return nil, apierr.Validation("No device data provided")
	}

	type slot struct {
		deviceID string
		outcome  Outcome
	}

	// Each goroutine writes only its own preallocated slot, so the
	// collected results are independent of completion order.
	slots := make([]slot, 0, len(targets))
	for deviceID, payload := range targets {
		// A structurally invalid device is recorded as failed and never
		// reaches upstream; a passing one gets a provisional outcome the
		// upload goroutine overwrites.
		out := Outcome{Status: StatusSuccess}
		if verr := validateTarget(payload); verr != nil {
			out = Outcome{Status: StatusFailed, Error: verr}
		}
		slots = append(slots, slot{deviceID: deviceID, outcome: out})
	}

	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup

	for i := range slots {
		if slots[i].outcome.Status == StatusFailed {
			continue
		}

		wg.Add(1)
		go func(s *slot, payload thingsboard.TelemetryPayload) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			targetCtx, cancel := context.WithTimeout(ctx, o.targetTimeout)
			defer cancel()

			ack, err := o.uploader.UploadTelemetry(targetCtx, s.deviceID, payload)
			if err != nil {
				s.outcome = Outcome{
					Status: StatusFailed,
					Error:  apierr.Normalize(err, o.debug),
				}
				return
			}

			s.outcome = Outcome{
				Status:       StatusSuccess,
				KeysUploaded: ack.AcceptedKeys,
				DataPoints:   ack.AcceptedCount,
			}
		}(&slots[i], targets[slots[i].deviceID])
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		// Caller is gone; the partial outcomes must not leak anywhere.
		return nil, err
	}

	results := make(map[string]Outcome, len(slots))
	for _, s := range slots {
		results[s.deviceID] = s.outcome
	}

	return assemble(results), nil
}

func validateTarget(payload thingsboard.TelemetryPayload) *apierr.Error {
	if len(payload) == 0 {
		return apierr.Validation("Device payload must contain at least one telemetry key")
	}
	for key, points := range payload {
		if key == "" {
			return apierr.Validation("Telemetry key must not be empty")
		}
		if len(points) == 0 {
			return apierr.Validation("Telemetry key has no data points").WithDetail("key", key)
		}
		for _, dp := range points {
			if dp.TS <= 0 {
				return apierr.Validation("Data point timestamp must be a positive integer").WithDetail("key", key)
			}
			if dp.Value == nil {
				return apierr.Validation("Data point value must not be null").WithDetail("key", key)
			}
		}
	}
	return nil
}

// assemble computes the summary purely from the results map; nothing is
// tracked alongside it, so the counts cannot drift from the outcomes.
func assemble(results map[string]Outcome) *Report {
	var s Summary
	s.TotalDevices = len(results)
	for _, out := range results {
		if out.Status == StatusSuccess {
			s.SuccessfulDevices++
			s.TotalDataPoints += out.DataPoints
		} else {
			s.FailedDevices++
		}
	}

	return &Report{
		Status:  "completed",
		Summary: s,
		Results: results,
		Message: fmt.Sprintf("Bulk upload completed: %d/%d devices successful", s.SuccessfulDevices, s.TotalDevices),
	}
}
