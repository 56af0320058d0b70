package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bazai/stems-api/internal/model"
)

// MemoryStore is an in-process ResultStore used in tests and local
// development without Redis. Dedup is a scan of the existing list under
// the store lock, the simpler of the two accepted strategies.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]*model.StemJob
	history map[string][]model.HistoryEntry
	owners  map[string]string // ownerID -> email
	byEmail map[string]string // lowercased email -> ownerID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*model.StemJob),
		history: make(map[string][]model.HistoryEntry),
		owners:  make(map[string]string),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) GetJob(ctx context.Context, taskID string) (*model.StemJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[taskID]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *MemoryStore) PutJob(ctx context.Context, job *model.StemJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *job
	s.jobs[job.TaskID] = &copied
	return nil
}

func (s *MemoryStore) RecordJobResult(ctx context.Context, taskID string, result *model.StemResult, kind model.JobKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[taskID]
	if !ok {
		job = &model.StemJob{TaskID: taskID, CreatedAt: time.Now()}
		s.jobs[taskID] = job
	}
	if job.Status.Terminal() {
		return nil
	}

	now := time.Now()
	job.Status = model.JobStatusSuccess
	job.Stems = result
	job.Kind = kind
	job.CompletedAt = &now
	return nil
}

func (s *MemoryStore) AppendHistoryOnce(ctx context.Context, ownerID string, entry model.HistoryEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.history[ownerID]
	for _, existing := range list {
		if existing.TaskID == entry.TaskID {
			return false, nil
		}
	}

	list = append([]model.HistoryEntry{entry}, list...)
	if len(list) > model.HistoryCap {
		list = list[:model.HistoryCap]
	}
	s.history[ownerID] = list
	return true, nil
}

func (s *MemoryStore) GetHistory(ctx context.Context, ownerID string) ([]model.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.history[ownerID]
	out := make([]model.HistoryEntry, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryStore) RegisterOwner(ctx context.Context, ownerID, email string) error {
	if ownerID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.owners[ownerID] = email
	if email != "" {
		s.byEmail[strings.ToLower(email)] = ownerID
	}
	return nil
}

func (s *MemoryStore) ResolveOwner(ctx context.Context, ownerRef, email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ownerRef != "" {
		if _, ok := s.owners[ownerRef]; ok {
			return ownerRef, nil
		}
	}
	if email != "" {
		if ownerID, ok := s.byEmail[strings.ToLower(email)]; ok {
			return ownerID, nil
		}
	}
	return "", nil
}
