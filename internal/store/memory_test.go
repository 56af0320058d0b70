package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bazai/stems-api/internal/model"
)

func entry(taskID string) model.HistoryEntry {
	url := "https://cdn.example/" + taskID + ".mp3"
	return model.HistoryEntry{
		TaskID:    taskID,
		Kind:      model.KindSeparateVocal,
		Stems:     &model.StemResult{VocalURL: &url},
		CreatedAt: time.Now(),
	}
}

func TestMemoryStore_AppendHistoryOnce_Dedup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	inserted, err := s.AppendHistoryOnce(ctx, "user-1", entry("task-1"))
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if !inserted {
		t.Error("first append should insert")
	}

	inserted, err = s.AppendHistoryOnce(ctx, "user-1", entry("task-1"))
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if inserted {
		t.Error("duplicate append should be a no-op")
	}

	history, err := s.GetHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history has %d entries, want 1", len(history))
	}
}

func TestMemoryStore_HistoryCapEviction(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < model.HistoryCap+1; i++ {
		if _, err := s.AppendHistoryOnce(ctx, "user-1", entry(fmt.Sprintf("task-%03d", i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	history, err := s.GetHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) != model.HistoryCap {
		t.Fatalf("history has %d entries, want %d", len(history), model.HistoryCap)
	}

	// Newest first; the oldest (task-000) was evicted.
	if history[0].TaskID != fmt.Sprintf("task-%03d", model.HistoryCap) {
		t.Errorf("newest entry = %s, want task-%03d", history[0].TaskID, model.HistoryCap)
	}
	for _, e := range history {
		if e.TaskID == "task-000" {
			t.Error("oldest entry should have been evicted")
		}
	}
}

func TestMemoryStore_RecordJobResult(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	url := "https://cdn.example/v.mp3"
	result := &model.StemResult{VocalURL: &url}

	// Recording without a pending job creates the record.
	if err := s.RecordJobResult(ctx, "task-1", result, model.KindSeparateVocal); err != nil {
		t.Fatalf("record: %v", err)
	}

	job, err := s.GetJob(ctx, "task-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != model.JobStatusSuccess {
		t.Errorf("status = %s, want success", job.Status)
	}
	if job.CompletedAt == nil {
		t.Error("completedAt not set")
	}

	// Terminal records are immutable: a second write changes nothing.
	other := "https://cdn.example/other.mp3"
	if err := s.RecordJobResult(ctx, "task-1", &model.StemResult{VocalURL: &other}, model.KindSplitStem); err != nil {
		t.Fatalf("second record: %v", err)
	}
	job, _ = s.GetJob(ctx, "task-1")
	if *job.Stems.VocalURL != url {
		t.Errorf("terminal job was mutated: %s", *job.Stems.VocalURL)
	}
	if job.Kind != model.KindSeparateVocal {
		t.Errorf("terminal job kind was mutated: %s", job.Kind)
	}
}

func TestMemoryStore_GetJobNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetJob(context.Background(), "missing"); err != ErrJobNotFound {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestMemoryStore_ResolveOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.RegisterOwner(ctx, "user-1", "Singer@Example.com"); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Known id resolves directly.
	ownerID, err := s.ResolveOwner(ctx, "user-1", "")
	if err != nil || ownerID != "user-1" {
		t.Errorf("ResolveOwner by id = (%q, %v), want user-1", ownerID, err)
	}

	// Unknown id falls back to the submission email, case-insensitively.
	ownerID, err = s.ResolveOwner(ctx, "stale-ref", "singer@example.com")
	if err != nil || ownerID != "user-1" {
		t.Errorf("ResolveOwner by email = (%q, %v), want user-1", ownerID, err)
	}

	// Nothing resolvable is not an error.
	ownerID, err = s.ResolveOwner(ctx, "nobody", "nobody@example.com")
	if err != nil {
		t.Errorf("unresolvable owner should not error: %v", err)
	}
	if ownerID != "" {
		t.Errorf("ownerID = %q, want empty", ownerID)
	}
}

func TestMemoryStore_PutAndGetJobRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := &model.StemJob{
		TaskID:         "task-9",
		OriginalTaskID: "orig-1",
		AudioID:        "audio-1",
		Kind:           model.KindSplitStem,
		Status:         model.JobStatusPending,
		OwnerID:        "user-1",
		OwnerEmail:     "singer@example.com",
		CreatedAt:      time.Now(),
	}
	if err := s.PutJob(ctx, job); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetJob(ctx, "task-9")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OriginalTaskID != "orig-1" || got.OwnerEmail != "singer@example.com" {
		t.Errorf("round trip lost fields: %+v", got)
	}

	// The returned job is a copy; mutating it does not affect the store.
	got.Status = model.JobStatusSuccess
	again, _ := s.GetJob(ctx, "task-9")
	if again.Status != model.JobStatusPending {
		t.Error("store leaked internal state")
	}
}
