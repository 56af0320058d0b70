package model

import "time"

// StemJob is the persisted record for one separation task, keyed by the
// upstream-assigned task id. Once the status is terminal the record is
// immutable.
type StemJob struct {
	TaskID         string      `json:"taskId"`
	OriginalTaskID string      `json:"originalTaskId,omitempty"`
	AudioID        string      `json:"audioId,omitempty"`
	Kind           JobKind     `json:"kind"`
	Status         JobStatus   `json:"status"`
	OwnerID        string      `json:"ownerId,omitempty"`
	OwnerEmail     string      `json:"ownerEmail,omitempty"`
	Stems          *StemResult `json:"stems,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
}

// HistoryEntry is one completed separation in a user's bounded history
// list, newest first.
type HistoryEntry struct {
	TaskID    string      `json:"taskId"`
	Kind      JobKind     `json:"kind"`
	Stems     *StemResult `json:"stems"`
	CreatedAt time.Time   `json:"createdAt"`
}

// HistoryCap bounds a user's stem history. The oldest entry is evicted
// when a new one would push the list past the cap.
const HistoryCap = 50
