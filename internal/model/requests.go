package model

import "encoding/json"

// StemSubmitRequest is the caller-facing submission payload.
type StemSubmitRequest struct {
	OriginalTaskID string  `json:"taskId" validate:"required"`
	AudioID        string  `json:"audioId" validate:"required"`
	Kind           JobKind `json:"type" validate:"required,oneof=separate_vocal split_stem"`
}

// StemSubmitResponse is returned to the caller after a successful
// submission. Raw carries the upstream envelope verbatim, which the
// front-end already knows how to read.
type StemSubmitResponse struct {
	TaskID string          `json:"taskId"`
	Status JobStatus       `json:"status"`
	Raw    json.RawMessage `json:"upstream,omitempty"`
}

// StemStatusResponse is the uniform poll response. Status is either
// "processing" or "success"; processing is not an error and Stems is
// null until the job is genuinely complete.
type StemStatusResponse struct {
	TaskID string      `json:"taskId"`
	Status string      `json:"status"`
	Stems  *StemResult `json:"stems"`
}

// Poll response status values. Distinct from JobStatus: a poll never
// reports error for a job that merely has not finished.
const (
	PollStatusProcessing = "processing"
	PollStatusSuccess    = "success"
)

// CallbackEnvelope is the upstream webhook envelope: a numeric code, a
// human message and an uninterpreted payload.
type CallbackEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// HistoryResponse wraps a user's stem history for the front-end.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"stemHistory"`
	Count   int            `json:"count"`
}
