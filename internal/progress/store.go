package progress

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/pavelanni/awarelab/internal/model"
)

// Store is the persistence collaborator for lab progress. Every operation
// is scoped to the authenticated user and must apply its transition
// atomically on the stored row.
type Store interface {
	// GetLabForStudent returns the lab and the user's progress, which is nil
	// when the lab was never started. The lab is nil when it does not exist.
	GetLabForStudent(ctx context.Context, userID int64, labID string) (*model.LabWithProgress, error)
	StartLab(ctx context.Context, userID int64, labID string) (model.LabProgress, error)
	UpdateLabNotes(ctx context.Context, userID int64, labID, notes string, minutes int) (model.LabProgress, error)
	CompleteLab(ctx context.Context, userID int64, labID string, minutes int, notes string) (model.LabProgress, error)
	SubmitLabSimulation(ctx context.Context, userID int64, labID string, sub model.Submission) (model.LabProgress, error)
}

type key struct {
	user int64
	lab  string
}

// MemoryStore is a Store held in process memory. It serves tests and
// single-process demos; all transitions run under one mutex.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	labs     map[string]model.Lab
	progress map[key]model.LabProgress
}

// NewMemoryStore returns a store seeded with labs.
func NewMemoryStore(labs ...model.Lab) *MemoryStore {
	m := &MemoryStore{
		now:      time.Now,
		labs:     make(map[string]model.Lab, len(labs)),
		progress: make(map[key]model.LabProgress),
	}
	for _, l := range labs {
		m.labs[l.ID] = l
	}
	return m
}

// PutLab adds or replaces a lab definition.
func (m *MemoryStore) PutLab(lab model.Lab) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labs[lab.ID] = lab
}

// Labs returns all labs ordered by ID.
func (m *MemoryStore) Labs() []model.Lab {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := slices.Sorted(maps.Keys(m.labs))
	out := make([]model.Lab, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.labs[id])
	}
	return out
}

func (m *MemoryStore) lookup(userID int64, labID string) (model.Lab, *model.LabProgress, error) {
	lab, ok := m.labs[labID]
	if !ok {
		return model.Lab{}, nil, ErrLabNotFound
	}
	p, ok := m.progress[key{userID, labID}]
	if !ok {
		return lab, nil, nil
	}
	return lab, &p, nil
}

func (m *MemoryStore) GetLabForStudent(_ context.Context, userID int64, labID string) (*model.LabWithProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lab, p, err := m.lookup(userID, labID)
	if err != nil {
		return nil, nil
	}
	return &model.LabWithProgress{Lab: lab, Progress: p}, nil
}

func (m *MemoryStore) StartLab(_ context.Context, userID int64, labID string) (model.LabProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, p, err := m.lookup(userID, labID)
	if err != nil {
		return model.LabProgress{}, err
	}
	out := Start(p, userID, labID, m.now())
	m.progress[key{userID, labID}] = out
	return out, nil
}

func (m *MemoryStore) UpdateLabNotes(_ context.Context, userID int64, labID, notes string, minutes int) (model.LabProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lab, p, err := m.lookup(userID, labID)
	if err != nil {
		return model.LabProgress{}, err
	}
	out, err := UpdateNotes(lab.LabType, p, notes, minutes)
	if err != nil {
		return model.LabProgress{}, err
	}
	m.progress[key{userID, labID}] = out
	return out, nil
}

func (m *MemoryStore) CompleteLab(_ context.Context, userID int64, labID string, minutes int, notes string) (model.LabProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lab, p, err := m.lookup(userID, labID)
	if err != nil {
		return model.LabProgress{}, err
	}
	out, err := Complete(lab.LabType, p, minutes, notes, m.now())
	if err != nil {
		return model.LabProgress{}, err
	}
	m.progress[key{userID, labID}] = out
	return out, nil
}

func (m *MemoryStore) SubmitLabSimulation(_ context.Context, userID int64, labID string, sub model.Submission) (model.LabProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lab, p, err := m.lookup(userID, labID)
	if err != nil {
		return model.LabProgress{}, err
	}
	out, err := Submit(lab.LabType, p, sub, m.now())
	if err != nil {
		return model.LabProgress{}, err
	}
	m.progress[key{userID, labID}] = out
	return out, nil
}
