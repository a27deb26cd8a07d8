package main

import (
	"encoding/json"
	"fmt"
)

// frame is the wire envelope sent to clients.
type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// scenario returns one sync operation followed by one cleanup run, each
// reporting total steps of progress before completing.
func scenario(operationID string, ruleID int64, total int) [][]byte {
	frames := make([][]byte, 0, 2*total+2)

	for i := 1; i <= total; i++ {
		frames = append(frames, mustMarshal(frame{
			Type: "sync.progress",
			Payload: map[string]any{
				"operation_id": operationID,
				"current":      i,
				"total":        total,
				"message":      fmt.Sprintf("synced tweet %d of %d", i, total),
			},
		}))
	}
	frames = append(frames, mustMarshal(frame{
		Type:    "sync.complete",
		Payload: map[string]any{"operation_id": operationID, "synced": total},
	}))

	for i := 1; i <= total; i++ {
		frames = append(frames, mustMarshal(frame{
			Type: "cleanup.progress",
			Payload: map[string]any{
				"rule_id":       ruleID,
				"deleted":       i,
				"total":         total,
				"current_tweet": fmt.Sprintf("%d", 1700000000000000000+int64(i)),
			},
		}))
	}
	frames = append(frames, mustMarshal(frame{
		Type:    "cleanup.complete",
		Payload: map[string]any{"rule_id": ruleID, "deleted": total},
	}))

	return frames
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
