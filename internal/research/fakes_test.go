package research

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ayush/research-assistant/backend/internal/llm"
	"github.com/ayush/research-assistant/backend/internal/models"
)

// memStore is an in-memory stand-in for the Postgres, Mongo and MinIO stores.
type memStore struct {
	mu      sync.Mutex
	users   map[string]*models.User
	files   map[string]models.File
	jobs    map[string]*models.ResearchJob
	history map[string][]models.JobStatus
	reports map[string]models.ResearchReport
	blobs   map[string][]byte

	fileErr      error
	reportErr    error
	statusErr    map[models.JobStatus]error
	insertJobErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]*models.User{},
		files:     map[string]models.File{},
		jobs:      map[string]*models.ResearchJob{},
		history:   map[string][]models.JobStatus{},
		reports:   map[string]models.ResearchReport{},
		blobs:     map[string][]byte{},
		statusErr: map[models.JobStatus]error{},
	}
}

func (m *memStore) addUser(id string, credits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &models.User{ID: id, Name: id, Email: id + "@example.com", Credits: credits}
}

func (m *memStore) addFile(f models.File) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[f.ID] = f
}

func (m *memStore) credits(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].Credits
}

func (m *memStore) statusPath(jobID string) []models.JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.JobStatus(nil), m.history[jobID]...)
}

func (m *memStore) jobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func (m *memStore) hasReport(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.reports[jobID]
	return ok
}

// ── users ────────────────────────────────────────────────────

func (m *memStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) DecrementCredits(_ context.Context, id string, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, models.ErrNotFound
	}
	u.Credits = max(0, u.Credits-amount)
	return u.Credits, nil
}

// ── files ────────────────────────────────────────────────────

func (m *memStore) GetFile(_ context.Context, id string) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fileErr != nil {
		return nil, m.fileErr
	}
	f, ok := m.files[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &f, nil
}

func (m *memStore) InsertFile(_ context.Context, f *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[f.ID] = *f
	return nil
}

func (m *memStore) Upload(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return nil
}

func (m *memStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// ── jobs ─────────────────────────────────────────────────────

func (m *memStore) InsertJob(_ context.Context, job *models.ResearchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertJobErr != nil {
		return m.insertJobErr
	}
	cp := *job
	m.jobs[job.ID] = &cp
	m.history[job.ID] = []models.JobStatus{job.Status}
	return nil
}

func (m *memStore) GetJob(_ context.Context, id string) (*models.ResearchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) SetJobStatus(_ context.Context, id string, status models.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.statusErr[status]; err != nil {
		return err
	}
	j, ok := m.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	j.Status = status
	m.history[id] = append(m.history[id], status)
	return nil
}

func (m *memStore) ListJobsByUser(_ context.Context, userID string) ([]models.ResearchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ResearchJob
	for _, j := range m.jobs {
		if j.UserID == userID {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *memStore) CountJobsByUser(ctx context.Context, userID string) (int64, error) {
	jobs, err := m.ListJobsByUser(ctx, userID)
	return int64(len(jobs)), err
}

// ── reports ──────────────────────────────────────────────────

func (m *memStore) InsertReport(_ context.Context, r *models.ResearchReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reportErr != nil {
		return m.reportErr
	}
	m.reports[r.JobID] = *r
	return nil
}

func (m *memStore) GetReportByJob(_ context.Context, jobID string) (*models.ResearchReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[jobID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) DeleteReportByJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reports, jobID)
	return nil
}

func (m *memStore) ListReportsByUser(_ context.Context, userID string) ([]models.ResearchReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ResearchReport
	for _, r := range m.reports {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].JobID < out[b].JobID })
	return out, nil
}

func (m *memStore) CountReportsByUser(ctx context.Context, userID string) (int64, error) {
	reports, err := m.ListReportsByUser(ctx, userID)
	return int64(len(reports)), err
}

// backendFunc adapts a function to llm.Backend.
type backendFunc func(ctx context.Context, msg llm.Message) (string, error)

func (f backendFunc) Send(ctx context.Context, msg llm.Message) (string, error) {
	return f(ctx, msg)
}

// recordingBackend returns text and keeps every message it received.
type recordingBackend struct {
	mu   sync.Mutex
	text string
	msgs []llm.Message
}

func (b *recordingBackend) Send(_ context.Context, msg llm.Message) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
	return b.text, nil
}

func (b *recordingBackend) last() llm.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.msgs[len(b.msgs)-1]
}

func newTestService(t *testing.T, st *memStore, backend llm.Backend) *Service {
	t.Helper()
	log := zaptest.NewLogger(t)
	svc := NewService(Deps{
		Users:         st,
		Jobs:          st,
		Reports:       st,
		Files:         st,
		Blobs:         st,
		Backend:       backend,
		Dispatcher:    NewDispatcher(0, log),
		Aggregator:    NewAggregator(st, LiveDataPool, rand.New(rand.NewPCG(1, 2))),
		Logger:        log,
		SignupCredits: 100,
	})
	t.Cleanup(func() { svc.Shutdown(context.Background()) })
	return svc
}

func poolSources() map[string]bool {
	out := map[string]bool{}
	for _, it := range LiveDataPool {
		out[it.Source] = true
	}
	return out
}
