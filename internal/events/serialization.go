package events

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting runs to and from Redis hashes.
// The outputs map is JSON-encoded into a single hash field.

// RunToHash converts a Run to a Redis hash.
func RunToHash(r *Run) (map[string]interface{}, error) {
	outputs := r.Outputs
	if outputs == nil {
		outputs = map[string]string{}
	}
	outputsJSON, err := json.Marshal(outputs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outputs: %w", err)
	}

	return map[string]interface{}{
		"id":             r.ID,
		"status":         string(r.Status),
		"container":      r.Container,
		"target_srs":     r.TargetSRS,
		"started_at_ms":  r.StartedAtMs,
		"finished_at_ms": r.FinishedAtMs,
		"error":          r.Error,
		"outputs":        string(outputsJSON),
	}, nil
}

// HashToRun converts a Redis hash back to a Run.
func HashToRun(hash map[string]string) (*Run, error) {
	startedAt, err := strconv.ParseInt(hash["started_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at_ms field: %w", err)
	}

	var finishedAt int64
	if v := hash["finished_at_ms"]; v != "" {
		finishedAt, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid finished_at_ms field: %w", err)
		}
	}

	outputs := map[string]string{}
	if v := hash["outputs"]; v != "" {
		if err := json.Unmarshal([]byte(v), &outputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outputs: %w", err)
		}
	}

	return &Run{
		ID:           hash["id"],
		Status:       RunStatus(hash["status"]),
		Container:    hash["container"],
		TargetSRS:    hash["target_srs"],
		StartedAtMs:  startedAt,
		FinishedAtMs: finishedAt,
		Error:        hash["error"],
		Outputs:      outputs,
	}, nil
}
