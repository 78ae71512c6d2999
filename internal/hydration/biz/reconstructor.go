package biz

import (
	"encoding/json"

	"github.com/lk2023060901/agent-hydration/internal/hydration/types"
)

// Reconstruction is the collapsed view of a thread's checkpoint history.
type Reconstruction struct {
	Messages     []types.UIMessage
	LatestState  map[string]any
	Interrupt    json.RawMessage
	HasInterrupt bool
	ThreadBusy   bool
}

// Reconstruct collapses newest-first checkpoints into one deduplicated,
// chronologically ordered timeline. Messages are keyed by id and kept at
// their first appearance; when more than limit remain, the oldest are
// dropped. A limit of zero or less keeps everything.
func Reconstruct(checkpoints []types.Checkpoint, limit int, projector *Projector) Reconstruction {
	var rec Reconstruction
	if len(checkpoints) == 0 {
		return rec
	}

	seen := make(map[string]struct{})
	var timeline []types.BackendMessage
	for i := len(checkpoints) - 1; i >= 0; i-- {
		for _, msg := range checkpointMessages(checkpoints[i], projector) {
			if _, dup := seen[msg.ID]; dup {
				continue
			}
			seen[msg.ID] = struct{}{}
			timeline = append(timeline, msg)
		}
	}

	if limit > 0 && len(timeline) > limit {
		timeline = timeline[len(timeline)-limit:]
	}

	rec.Messages = make([]types.UIMessage, 0, len(timeline))
	for _, msg := range timeline {
		if ui, ok := projector.Project(msg); ok {
			rec.Messages = append(rec.Messages, ui)
		}
	}

	latest := checkpoints[0]
	rec.LatestState = decodeValues(latest.Values)
	rec.Interrupt, rec.HasInterrupt = latest.FirstInterrupt()
	rec.ThreadBusy = latest.Pending()
	return rec
}

// checkpointMessages decodes values.messages record by record so one bad
// record does not hide its neighbours.
func checkpointMessages(cp types.Checkpoint, projector *Projector) []types.BackendMessage {
	raw, ok := cp.Values["messages"]
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		projector.dropped(types.BackendMessage{}, err)
		return nil
	}
	out := make([]types.BackendMessage, 0, len(items))
	for _, item := range items {
		var msg types.BackendMessage
		if err := json.Unmarshal(item, &msg); err != nil {
			projector.dropped(msg, err)
			continue
		}
		out = append(out, msg)
	}
	return out
}

// decodeValues turns raw checkpoint values into a generic map, skipping keys
// that do not decode. It returns nil for an empty result.
func decodeValues(values map[string]json.RawMessage) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for key, raw := range values {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		out[key] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
