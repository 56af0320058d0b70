package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/bazai/stems-api/internal/client"
	"github.com/bazai/stems-api/internal/model"
	"github.com/bazai/stems-api/internal/stems"
	"github.com/bazai/stems-api/internal/store"
)

// StemService orchestrates stem-separation jobs: submission, the
// poll-driven status reconciliation, and the webhook delivery path.
// It holds no per-job state; every invocation is independent and the
// job's persisted status is the only state machine.
type StemService struct {
	store       store.ResultStore
	kie         client.StemSeparator
	storage     client.StorageClient // nil when R2 is not configured
	callbackURL string
}

func NewStemService(resultStore store.ResultStore, kie client.StemSeparator, storage client.StorageClient, callbackBaseURL string) *StemService {
	var callbackURL string
	if callbackBaseURL != "" {
		callbackURL = callbackBaseURL + "/callbacks/stems"
	}
	return &StemService{
		store:       resultStore,
		kie:         kie,
		storage:     storage,
		callbackURL: callbackURL,
	}
}

// Submit starts a separation job upstream and records it as pending.
// The pending record carries the owner's id and email so a later webhook
// or poll can resolve the owner by either key.
func (s *StemService) Submit(ctx context.Context, req *model.StemSubmitRequest, ownerID, ownerEmail string) (*model.StemSubmitResponse, error) {
	result, err := s.kie.Submit(ctx, &client.SeparationRequest{
		OriginalTaskID: req.OriginalTaskID,
		AudioID:        req.AudioID,
		Kind:           req.Kind,
		CallbackURL:    s.callbackURL,
	})
	if err != nil {
		return nil, err
	}

	// Bookkeeping failures must not fail a submission the upstream has
	// already accepted; the job is reconcilable by polling regardless.
	if err := s.store.RegisterOwner(ctx, ownerID, ownerEmail); err != nil {
		log.Printf("[Stems] owner registration failed for task %s: %v", result.TaskID, err)
	}
	job := &model.StemJob{
		TaskID:         result.TaskID,
		OriginalTaskID: req.OriginalTaskID,
		AudioID:        req.AudioID,
		Kind:           req.Kind,
		Status:         model.JobStatusPending,
		OwnerID:        ownerID,
		OwnerEmail:     ownerEmail,
		CreatedAt:      time.Now(),
	}
	if err := s.store.PutJob(ctx, job); err != nil {
		log.Printf("[Stems] pending record failed for task %s: %v", result.TaskID, err)
	}

	return &model.StemSubmitResponse{
		TaskID: result.TaskID,
		Status: model.JobStatusPending,
		Raw:    result.Raw,
	}, nil
}

// Status reconciles one job: stored terminal result first, then an
// upstream query, normalize, classify, and — when genuinely complete —
// record the result and append it to the owner's history exactly once.
// A job that is not yet complete reports processing; that is not an
// error and the caller polls again.
func (s *StemService) Status(ctx context.Context, taskID, ownerRef string) (*model.StemStatusResponse, error) {
	job, err := s.store.GetJob(ctx, taskID)
	if err != nil && err != store.ErrJobNotFound {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	// Fast path: a webhook already delivered the result. No upstream
	// call and no second history write.
	if job != nil && job.Status == model.JobStatusSuccess {
		return &model.StemStatusResponse{
			TaskID: taskID,
			Status: model.PollStatusSuccess,
			Stems:  job.Stems,
		}, nil
	}

	info, err := s.kie.RecordInfo(ctx, taskID)
	if err != nil {
		// Transient upstream failure. The job record stays untouched:
		// the upstream may still finish the work independent of this
		// call, so nothing is marked failed.
		return nil, err
	}

	payload := decodePayload(info.Data)
	if info.Code != 0 && info.Code != 200 || payload == nil {
		return processing(taskID), nil
	}

	flag := stems.StatusFlag(payload)
	result := stems.NormalizeMap(payload)
	if !stems.IsComplete(flag, result) {
		return processing(taskID), nil
	}

	result = s.rehostStems(ctx, taskID, result)
	kind := result.InferKind()

	if err := s.store.RecordJobResult(ctx, taskID, result, kind); err != nil {
		return nil, fmt.Errorf("failed to record result: %w", err)
	}
	s.appendHistory(ctx, taskID, ownerRef, job, result, kind)

	return &model.StemStatusResponse{
		TaskID: taskID,
		Status: model.PollStatusSuccess,
		Stems:  result,
	}, nil
}

// HandleCallback is the push variant of Status: same normalize,
// classify and record path, fed by a webhook delivery instead of an
// upstream query. Errors are returned for logging only; the HTTP layer
// acknowledges the delivery regardless.
func (s *StemService) HandleCallback(ctx context.Context, env *model.CallbackEnvelope) error {
	if env.Code != 200 || len(env.Data) == 0 {
		return fmt.Errorf("callback reported no result: code=%d msg=%q", env.Code, env.Msg)
	}

	payload := decodePayload(env.Data)
	if payload == nil {
		return fmt.Errorf("callback payload is not an object")
	}

	taskID := stems.TaskID(payload)
	if taskID == "" {
		return fmt.Errorf("callback payload carries no task id")
	}

	job, err := s.store.GetJob(ctx, taskID)
	if err != nil && err != store.ErrJobNotFound {
		return fmt.Errorf("failed to load job for callback: %w", err)
	}
	if job != nil && job.Status.Terminal() {
		return nil
	}

	// Callback envelopes do not always repeat the status flag in the
	// payload; the 200 envelope code is the success signal then.
	flag := stems.StatusFlag(payload)
	if flag == "" {
		flag = "success"
	}

	result := stems.NormalizeMap(payload)
	if !stems.IsComplete(flag, result) {
		return fmt.Errorf("callback for task %s is not materially complete, ignoring", taskID)
	}

	result = s.rehostStems(ctx, taskID, result)
	kind := result.InferKind()

	if err := s.store.RecordJobResult(ctx, taskID, result, kind); err != nil {
		return fmt.Errorf("failed to record callback result: %w", err)
	}
	s.appendHistory(ctx, taskID, "", job, result, kind)
	return nil
}

// History returns the owner's bounded stem history, newest first.
func (s *StemService) History(ctx context.Context, ownerID string) (*model.HistoryResponse, error) {
	entries, err := s.store.GetHistory(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return &model.HistoryResponse{Entries: entries, Count: len(entries)}, nil
}

// JobRecord returns the stored job for a task id.
func (s *StemService) JobRecord(ctx context.Context, taskID string) (*model.StemJob, error) {
	return s.store.GetJob(ctx, taskID)
}

// appendHistory resolves the owner (by reference, falling back to the
// email captured at submission) and appends the entry at most once. An
// unresolvable owner skips the write; failures never fail the request —
// the job result itself is already recorded.
func (s *StemService) appendHistory(ctx context.Context, taskID, ownerRef string, job *model.StemJob, result *model.StemResult, kind model.JobKind) {
	var email string
	if job != nil {
		if ownerRef == "" {
			ownerRef = job.OwnerID
		}
		email = job.OwnerEmail
	}

	ownerID, err := s.store.ResolveOwner(ctx, ownerRef, email)
	if err != nil {
		log.Printf("[Stems] owner resolution failed for task %s: %v", taskID, err)
		return
	}
	if ownerID == "" {
		return
	}

	inserted, err := s.store.AppendHistoryOnce(ctx, ownerID, model.HistoryEntry{
		TaskID:    taskID,
		Kind:      kind,
		Stems:     result,
		CreatedAt: time.Now(),
	})
	if err != nil {
		log.Printf("[Stems] history append failed for task %s: %v", taskID, err)
		return
	}
	if inserted {
		log.Printf("[Stems] history entry recorded for task %s (owner %s)", taskID, ownerID)
	}
}

// rehostStems mirrors each populated channel URL into permanent storage.
// Skipped entirely when storage is not configured; a failed mirror keeps
// the upstream URL rather than losing the channel.
func (s *StemService) rehostStems(ctx context.Context, taskID string, result *model.StemResult) *model.StemResult {
	if s.storage == nil {
		return result
	}

	for _, ch := range model.Channels {
		src := result.URL(ch)
		if src == nil {
			continue
		}
		key := fmt.Sprintf("stems/%s/%s.mp3", taskID, ch)
		permanent, err := s.storage.Rehost(ctx, *src, key)
		if err != nil {
			log.Printf("[Stems] rehost failed for task %s channel %s: %v", taskID, ch, err)
			continue
		}
		result.SetURL(ch, permanent)
	}
	return result
}

func processing(taskID string) *model.StemStatusResponse {
	return &model.StemStatusResponse{
		TaskID: taskID,
		Status: model.PollStatusProcessing,
		Stems:  nil,
	}
}

func decodePayload(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	return payload
}
