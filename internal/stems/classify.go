package stems

import (
	"strings"

	"github.com/bazai/stems-api/internal/model"
)

// Flag is the normalized upstream status vocabulary.
type Flag string

const (
	FlagPending    Flag = "pending"
	FlagProcessing Flag = "processing"
	FlagSuccess    Flag = "success"
	FlagFailed     Flag = "failed"
)

// ParseFlag normalizes the upstream's status flag case-insensitively.
// The upstream vocabulary is inconsistent across endpoints, so several
// spellings map onto each value. Absent or unrecognized flags parse as
// pending — the caller re-polls, it never errors.
func ParseFlag(raw string) Flag {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "succeeded", "completed", "complete":
		return FlagSuccess
	case "failed", "error", "fail":
		return FlagFailed
	case "processing", "running", "in_progress":
		return FlagProcessing
	default:
		return FlagPending
	}
}

// IsComplete decides whether a job is genuinely finished. The upstream
// flag is advisory only: the flag is known to flip to success before the
// download URLs exist, so completion additionally requires the result to
// be materially complete.
func IsComplete(rawFlag string, result *model.StemResult) bool {
	if result == nil {
		return false
	}
	return ParseFlag(rawFlag) == FlagSuccess && result.MateriallyComplete()
}
