package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayush/research-assistant/backend/internal/llm"
	"github.com/ayush/research-assistant/backend/internal/models"
)

var ErrEmptyQuestion = errors.New("question is required")

// JobStore defines the interface for research job persistence.
type JobStore interface {
	InsertJob(ctx context.Context, job *models.ResearchJob) error
	GetJob(ctx context.Context, id string) (*models.ResearchJob, error)
	SetJobStatus(ctx context.Context, id string, status models.JobStatus) error
	ListJobsByUser(ctx context.Context, userID string) ([]models.ResearchJob, error)
	CountJobsByUser(ctx context.Context, userID string) (int64, error)
}

// ReportStore defines the interface for research report persistence.
type ReportStore interface {
	InsertReport(ctx context.Context, r *models.ResearchReport) error
	GetReportByJob(ctx context.Context, jobID string) (*models.ResearchReport, error)
	DeleteReportByJob(ctx context.Context, jobID string) error
	ListReportsByUser(ctx context.Context, userID string) ([]models.ResearchReport, error)
	CountReportsByUser(ctx context.Context, userID string) (int64, error)
}

// FileStore defines the interface for uploaded-file metadata.
type FileStore interface {
	FileLookup
	InsertFile(ctx context.Context, f *models.File) error
}

// BlobStore defines the interface for raw file bytes.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Remove(ctx context.Context, key string) error
}

// Deps are the collaborators a Service is built from.
type Deps struct {
	Users      UserStore
	Jobs       JobStore
	Reports    ReportStore
	Files      FileStore
	Blobs      BlobStore
	Backend    llm.Backend
	Dispatcher *Dispatcher
	Aggregator *Aggregator
	Logger     *zap.Logger

	// SignupCredits is every user's starting balance, used for credits_used.
	SignupCredits int
}

// Service accepts research jobs and answers queries about them.
type Service struct {
	ledger     *Ledger
	jobs       JobStore
	reports    ReportStore
	files      FileStore
	blobs      BlobStore
	backend    llm.Backend
	dispatcher *Dispatcher
	aggregator *Aggregator
	log        *zap.Logger

	signupCredits int
	now           func() time.Time
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Dispatcher == nil {
		d.Dispatcher = NewDispatcher(0, d.Logger)
	}
	if d.Aggregator == nil {
		d.Aggregator = NewAggregator(d.Files, LiveDataPool, nil)
	}
	return &Service{
		ledger:        NewLedger(d.Users),
		jobs:          d.Jobs,
		reports:       d.Reports,
		files:         d.Files,
		blobs:         d.Blobs,
		backend:       d.Backend,
		dispatcher:    d.Dispatcher,
		aggregator:    d.Aggregator,
		log:           d.Logger,
		signupCredits: d.SignupCredits,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Ledger exposes the credit ledger for administrative use.
func (s *Service) Ledger() *Ledger { return s.ledger }

// Submit checks credits, records a pending job and hands it to the
// dispatcher. It returns as soon as the job is handed off, or
// ErrDispatcherClosed once shutdown has begun.
func (s *Service) Submit(ctx context.Context, req models.CreateRequest) (*models.SubmitResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if s.dispatcher.Closed() {
		return nil, ErrDispatcherClosed
	}
	if _, err := s.ledger.Reserve(ctx, req.UserID); err != nil {
		return nil, err
	}

	files := req.FileIDs
	if files == nil {
		files = []string{}
	}
	job := models.ResearchJob{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Question:  question,
		Files:     files,
		Status:    models.JobPending,
		CreatedAt: s.now(),
	}
	if err := s.jobs.InsertJob(ctx, &job); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	task := s.dispatcher.Dispatch(job.ID, func(ctx context.Context) error {
		return s.process(ctx, job)
	})
	if errors.Is(task.Err(), ErrDispatcherClosed) {
		// Shutdown began after the check above; the job stays pending.
		s.log.Warn("research job not dispatched", zap.String("job_id", job.ID), zap.Error(task.Err()))
		return nil, ErrDispatcherClosed
	}
	s.log.Info("research job accepted",
		zap.String("job_id", job.ID),
		zap.String("user_id", job.UserID),
		zap.Int("files", len(files)))

	return &models.SubmitResponse{JobID: job.ID, Status: models.JobProcessing}, nil
}

// Status returns a job's status, with its report once completed.
func (s *Service) Status(ctx context.Context, jobID string) (*models.StatusResponse, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	resp := &models.StatusResponse{Status: job.Status}
	if job.Status != models.JobCompleted {
		return resp, nil
	}
	report, err := s.reports.GetReportByJob(ctx, jobID)
	if errors.Is(err, models.ErrNotFound) {
		return resp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	resp.Report = report
	return resp, nil
}

// Reports lists a user's reports joined with their jobs. Jobs without a
// report are left out.
func (s *Service) Reports(ctx context.Context, userID string) ([]models.ReportEntry, error) {
	reports, err := s.reports.ListReportsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	jobs, err := s.jobs.ListJobsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	byID := make(map[string]models.ResearchJob, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}

	entries := []models.ReportEntry{}
	for _, r := range reports {
		if j, ok := byID[r.JobID]; ok {
			entries = append(entries, models.ReportEntry{Report: r, Job: j})
		}
	}
	return entries, nil
}

// Stats summarizes a user's balance and activity.
func (s *Service) Stats(ctx context.Context, userID string) (*models.Stats, error) {
	u, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	asked, err := s.jobs.CountJobsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	generated, err := s.reports.CountReportsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}

	return &models.Stats{
		CreditsRemaining:    u.Credits,
		TotalQuestionsAsked: asked,
		ReportsGenerated:    generated,
		CreditsUsed:         max(0, s.signupCredits-u.Credits),
	}, nil
}

// News returns the live-data pool stamped as fresh news items.
func (s *Service) News() []models.NewsItem {
	now := s.now()
	items := make([]models.NewsItem, 0, len(s.aggregator.pool))
	for _, it := range s.aggregator.pool {
		items = append(items, models.NewsItem{
			ID:          uuid.NewString(),
			Title:       it.Title,
			Content:     it.Content,
			Source:      it.Source,
			PublishedAt: now,
		})
	}
	return items
}

// Shutdown stops accepting work and waits for in-flight jobs.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.dispatcher.Shutdown(ctx)
}
