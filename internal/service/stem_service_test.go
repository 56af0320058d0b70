package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bazai/stems-api/internal/client"
	"github.com/bazai/stems-api/internal/model"
	"github.com/bazai/stems-api/internal/store"
)

// fakeSeparator implements client.StemSeparator and counts calls so
// tests can assert the terminal fast path skips the upstream entirely.
type fakeSeparator struct {
	submitResult *client.SubmitResult
	submitErr    error
	recordInfo   *client.RecordInfoResult
	recordErr    error

	submitCalls int
	recordCalls int
}

func (f *fakeSeparator) Submit(ctx context.Context, req *client.SeparationRequest) (*client.SubmitResult, error) {
	f.submitCalls++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitResult, nil
}

func (f *fakeSeparator) RecordInfo(ctx context.Context, taskID string) (*client.RecordInfoResult, error) {
	f.recordCalls++
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	return f.recordInfo, nil
}

func recordInfoWith(data string) *client.RecordInfoResult {
	return &client.RecordInfoResult{Code: 200, Msg: "success", Data: json.RawMessage(data)}
}

func newTestService(fake *fakeSeparator) (*StemService, *store.MemoryStore) {
	memStore := store.NewMemoryStore()
	svc := NewStemService(memStore, fake, nil, "https://stems.example.com")
	return svc, memStore
}

func submitPending(t *testing.T, svc *StemService, fake *fakeSeparator, taskID, ownerID, email string) {
	t.Helper()
	fake.submitResult = &client.SubmitResult{TaskID: taskID, Raw: json.RawMessage(`{"code":200}`)}
	req := &model.StemSubmitRequest{OriginalTaskID: "orig-1", AudioID: "audio-1", Kind: model.KindSeparateVocal}
	if _, err := svc.Submit(context.Background(), req, ownerID, email); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestSubmit_RecordsPendingJob(t *testing.T) {
	fake := &fakeSeparator{}
	svc, memStore := newTestService(fake)
	ctx := context.Background()

	submitPending(t, svc, fake, "task-1", "user-1", "singer@example.com")

	if fake.submitCalls != 1 {
		t.Errorf("submit calls = %d, want 1", fake.submitCalls)
	}

	job, err := memStore.GetJob(ctx, "task-1")
	if err != nil {
		t.Fatalf("pending job not recorded: %v", err)
	}
	if job.Status != model.JobStatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if job.OwnerID != "user-1" || job.OwnerEmail != "singer@example.com" {
		t.Errorf("owner not captured: %+v", job)
	}

	// Submission registers the owner for later resolution.
	ownerID, _ := memStore.ResolveOwner(ctx, "user-1", "")
	if ownerID != "user-1" {
		t.Error("owner not registered at submission")
	}
}

func TestStatus_ProcessingWhileIncomplete(t *testing.T) {
	fake := &fakeSeparator{
		recordInfo: recordInfoWith(`{"status": "processing"}`),
	}
	svc, memStore := newTestService(fake)
	ctx := context.Background()

	resp, err := svc.Status(ctx, "task-1", "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if resp.Status != model.PollStatusProcessing {
		t.Errorf("status = %s, want processing", resp.Status)
	}
	if resp.Stems != nil {
		t.Error("stems should be nil while processing")
	}
	if _, err := memStore.GetJob(ctx, "task-1"); err != store.ErrJobNotFound {
		t.Errorf("incomplete poll must not persist anything, got %v", err)
	}
}

// Scenario: upstream flips to SUCCESS before the URLs exist. The flag
// alone is not completion; the poll still reports processing.
func TestStatus_PrematureSuccessFlag(t *testing.T) {
	fake := &fakeSeparator{
		recordInfo: recordInfoWith(`{"status": "SUCCESS", "response": {}}`),
	}
	svc, memStore := newTestService(fake)

	resp, err := svc.Status(context.Background(), "task-1", "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if resp.Status != model.PollStatusProcessing {
		t.Errorf("status = %s, want processing", resp.Status)
	}
	if _, err := memStore.GetJob(context.Background(), "task-1"); err != store.ErrJobNotFound {
		t.Error("premature success must not be recorded")
	}
}

func TestStatus_CompleteRecordsAndAppendsHistory(t *testing.T) {
	fake := &fakeSeparator{
		recordInfo: recordInfoWith(`{
			"status": "SUCCESS",
			"response": {"vocal_url": "https://cdn.example/v.mp3"}
		}`),
	}
	svc, memStore := newTestService(fake)
	ctx := context.Background()

	submitPending(t, svc, fake, "task-1", "user-1", "singer@example.com")

	resp, err := svc.Status(ctx, "task-1", "user-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if resp.Status != model.PollStatusSuccess {
		t.Fatalf("status = %s, want success", resp.Status)
	}
	if resp.Stems == nil || resp.Stems.VocalURL == nil || *resp.Stems.VocalURL != "https://cdn.example/v.mp3" {
		t.Errorf("stems = %+v", resp.Stems)
	}
	if resp.Stems.InstrumentalURL != nil {
		t.Error("instrumental should stay null")
	}

	job, err := memStore.GetJob(ctx, "task-1")
	if err != nil {
		t.Fatalf("job not recorded: %v", err)
	}
	if job.Status != model.JobStatusSuccess || job.Kind != model.KindSeparateVocal {
		t.Errorf("job = %+v", job)
	}

	history, _ := memStore.GetHistory(ctx, "user-1")
	if len(history) != 1 || history[0].TaskID != "task-1" {
		t.Errorf("history = %+v, want one entry for task-1", history)
	}
}

func TestStatus_TerminalFastPathSkipsUpstream(t *testing.T) {
	fake := &fakeSeparator{
		recordInfo: recordInfoWith(`{
			"status": "SUCCESS",
			"response": {"vocal_url": "https://cdn.example/v.mp3"}
		}`),
	}
	svc, _ := newTestService(fake)
	ctx := context.Background()

	first, err := svc.Status(ctx, "task-1", "")
	if err != nil {
		t.Fatalf("first status: %v", err)
	}
	if fake.recordCalls != 1 {
		t.Fatalf("record calls after first poll = %d, want 1", fake.recordCalls)
	}

	second, err := svc.Status(ctx, "task-1", "")
	if err != nil {
		t.Fatalf("second status: %v", err)
	}
	if fake.recordCalls != 1 {
		t.Errorf("second poll reached upstream: %d calls", fake.recordCalls)
	}
	if second.Status != model.PollStatusSuccess {
		t.Errorf("second status = %s, want success", second.Status)
	}
	if *first.Stems.VocalURL != *second.Stems.VocalURL {
		t.Error("fast path returned a different result")
	}
}

// Scenario: concurrent pollers race on the history append. Whatever the
// interleaving, the owner ends with exactly one entry per task.
func TestStatus_RepeatedPollsAppendHistoryOnce(t *testing.T) {
	fake := &fakeSeparator{
		recordInfo: recordInfoWith(`{
			"status": "SUCCESS",
			"response": {"vocal_url": "https://cdn.example/v.mp3"}
		}`),
	}
	svc, memStore := newTestService(fake)
	ctx := context.Background()

	submitPending(t, svc, fake, "task-1", "user-1", "singer@example.com")

	for i := 0; i < 3; i++ {
		if _, err := svc.Status(ctx, "task-1", "user-1"); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}

	history, _ := memStore.GetHistory(ctx, "user-1")
	if len(history) != 1 {
		t.Errorf("history has %d entries, want 1", len(history))
	}
}

func TestStatus_UpstreamErrorLeavesJobUntouched(t *testing.T) {
	fake := &fakeSeparator{
		recordErr: &client.UpstreamError{Status: 502, Body: "bad gateway"},
	}
	svc, memStore := newTestService(fake)
	ctx := context.Background()

	submitPending(t, svc, fake, "task-1", "user-1", "singer@example.com")

	_, err := svc.Status(ctx, "task-1", "user-1")
	if err == nil {
		t.Fatal("expected upstream error")
	}

	// A transient upstream failure must not poison the job record.
	job, getErr := memStore.GetJob(ctx, "task-1")
	if getErr != nil {
		t.Fatalf("job missing: %v", getErr)
	}
	if job.Status != model.JobStatusPending {
		t.Errorf("job status = %s, want pending", job.Status)
	}
}

func TestHandleCallback_RecordsResult(t *testing.T) {
	fake := &fakeSeparator{}
	svc, memStore := newTestService(fake)
	ctx := context.Background()

	submitPending(t, svc, fake, "task-1", "user-1", "singer@example.com")

	env := &model.CallbackEnvelope{
		Code: 200,
		Msg:  "vocal separation generated successfully.",
		Data: json.RawMessage(`{
			"task_id": "task-1",
			"vocal_separation_info": {
				"vocal_url": "https://cdn.example/v.mp3",
				"instrumental_url": "https://cdn.example/i.mp3"
			}
		}`),
	}
	if err := svc.HandleCallback(ctx, env); err != nil {
		t.Fatalf("callback: %v", err)
	}

	// The poll now takes the fast path: zero upstream calls.
	resp, err := svc.Status(ctx, "task-1", "user-1")
	if err != nil {
		t.Fatalf("status after callback: %v", err)
	}
	if resp.Status != model.PollStatusSuccess {
		t.Errorf("status = %s, want success", resp.Status)
	}
	if fake.recordCalls != 0 {
		t.Errorf("poll after callback reached upstream: %d calls", fake.recordCalls)
	}

	// Webhook and poll together still yield a single history entry.
	history, _ := memStore.GetHistory(ctx, "user-1")
	if len(history) != 1 {
		t.Errorf("history has %d entries, want 1", len(history))
	}
	if history[0].Kind != model.KindSeparateVocal {
		t.Errorf("kind = %s, want separate_vocal", history[0].Kind)
	}
}

func TestHandleCallback_DuplicateDeliveryIsNoop(t *testing.T) {
	fake := &fakeSeparator{}
	svc, memStore := newTestService(fake)
	ctx := context.Background()

	submitPending(t, svc, fake, "task-1", "user-1", "singer@example.com")

	env := &model.CallbackEnvelope{
		Code: 200,
		Data: json.RawMessage(`{
			"task_id": "task-1",
			"vocal_separation_info": {"vocal_url": "https://cdn.example/v.mp3"}
		}`),
	}
	if err := svc.HandleCallback(ctx, env); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.HandleCallback(ctx, env); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	history, _ := memStore.GetHistory(ctx, "user-1")
	if len(history) != 1 {
		t.Errorf("history has %d entries, want 1", len(history))
	}
}

// Known upstream race: the callback arrives with a success code but the
// URLs are not populated yet. Nothing is recorded and later polls keep
// reporting processing.
func TestHandleCallback_PrematureDeliveryIgnored(t *testing.T) {
	fake := &fakeSeparator{
		recordInfo: recordInfoWith(`{"status": "SUCCESS", "vocal_separation_info": {}}`),
	}
	svc, memStore := newTestService(fake)
	ctx := context.Background()

	env := &model.CallbackEnvelope{
		Code: 200,
		Data: json.RawMessage(`{"task_id": "task-1", "vocal_separation_info": {}}`),
	}
	if err := svc.HandleCallback(ctx, env); err == nil {
		t.Error("premature delivery should be reported for logging")
	}

	if _, err := memStore.GetJob(ctx, "task-1"); err != store.ErrJobNotFound {
		t.Error("premature delivery must not be recorded")
	}

	resp, err := svc.Status(ctx, "task-1", "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if resp.Status != model.PollStatusProcessing {
		t.Errorf("status = %s, want processing", resp.Status)
	}
}

func TestHandleCallback_SplitStemInfersKind(t *testing.T) {
	fake := &fakeSeparator{}
	svc, memStore := newTestService(fake)
	ctx := context.Background()

	submitPending(t, svc, fake, "task-1", "user-1", "singer@example.com")

	env := &model.CallbackEnvelope{
		Code: 200,
		Data: json.RawMessage(`{
			"task_id": "task-1",
			"vocal_separation_info": {
				"vocal_url": "https://cdn.example/v.mp3",
				"drums_url": "https://cdn.example/d.mp3",
				"bass_url": "https://cdn.example/b.mp3"
			}
		}`),
	}
	if err := svc.HandleCallback(ctx, env); err != nil {
		t.Fatalf("callback: %v", err)
	}

	job, err := memStore.GetJob(ctx, "task-1")
	if err != nil {
		t.Fatalf("job missing: %v", err)
	}
	if job.Kind != model.KindSplitStem {
		t.Errorf("kind = %s, want split_stem", job.Kind)
	}
}

func TestStatus_UnresolvableOwnerSkipsHistory(t *testing.T) {
	fake := &fakeSeparator{
		recordInfo: recordInfoWith(`{
			"status": "SUCCESS",
			"response": {"vocal_url": "https://cdn.example/v.mp3"}
		}`),
	}
	svc, memStore := newTestService(fake)
	ctx := context.Background()

	// No submission, no registered owner: the result is still recorded,
	// only the history write is skipped.
	resp, err := svc.Status(ctx, "task-1", "ghost-user")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if resp.Status != model.PollStatusSuccess {
		t.Errorf("status = %s, want success", resp.Status)
	}

	if _, err := memStore.GetJob(ctx, "task-1"); err != nil {
		t.Errorf("result should be recorded even without an owner: %v", err)
	}
	history, _ := memStore.GetHistory(ctx, "ghost-user")
	if len(history) != 0 {
		t.Errorf("unresolvable owner should have no history, got %d", len(history))
	}
}

func TestStatus_OwnerResolvedByEmailFallback(t *testing.T) {
	fake := &fakeSeparator{
		recordInfo: recordInfoWith(`{
			"status": "SUCCESS",
			"response": {"vocal_url": "https://cdn.example/v.mp3"}
		}`),
	}
	svc, memStore := newTestService(fake)
	ctx := context.Background()

	// The job was submitted under an id that later stops resolving; the
	// email captured at submission still identifies the user.
	if err := memStore.RegisterOwner(ctx, "user-1", "singer@example.com"); err != nil {
		t.Fatalf("register: %v", err)
	}
	job := &model.StemJob{
		TaskID:     "task-1",
		Status:     model.JobStatusPending,
		OwnerID:    "stale-external-ref",
		OwnerEmail: "singer@example.com",
	}
	if err := memStore.PutJob(ctx, job); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, err := svc.Status(ctx, "task-1", ""); err != nil {
		t.Fatalf("status: %v", err)
	}

	history, _ := memStore.GetHistory(ctx, "user-1")
	if len(history) != 1 {
		t.Errorf("email fallback failed, history = %+v", history)
	}
}
