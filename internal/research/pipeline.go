package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayush/research-assistant/backend/internal/llm"
	"github.com/ayush/research-assistant/backend/internal/models"
)

var ErrInvalidTransition = errors.New("invalid job status transition")

// jobRun tracks one job's status as owned by its unit of work and refuses
// transitions the state machine does not allow.
type jobRun struct {
	jobs   JobStore
	id     string
	status models.JobStatus
}

func (r *jobRun) advance(ctx context.Context, next models.JobStatus) error {
	if !r.status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, next)
	}
	if err := r.jobs.SetJobStatus(ctx, r.id, next); err != nil {
		return fmt.Errorf("set status %s: %w", next, err)
	}
	r.status = next
	return nil
}

// process is the unit of work for one job: processing, aggregate, generate,
// persist, then completed and debit. Every failure after processing ends in
// the failed state with no report. If the processing write itself fails the
// job is left pending: failed is only reachable from processing, and no
// retry is attempted.
func (s *Service) process(ctx context.Context, job models.ResearchJob) (err error) {
	log := s.log.With(zap.String("job_id", job.ID), zap.String("user_id", job.UserID))
	run := &jobRun{jobs: s.jobs, id: job.ID, status: models.JobPending}

	// Status writes outlive cancellation so a cancelled job still settles.
	persist := context.WithoutCancel(ctx)

	if err := run.advance(persist, models.JobProcessing); err != nil {
		log.Error("mark processing", zap.Error(err))
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			log.Error("research processing failed", zap.Error(err))
			if ferr := run.advance(persist, models.JobFailed); ferr != nil {
				log.Error("mark failed", zap.Error(ferr))
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	report, err := s.generate(ctx, job)
	if err != nil {
		return err
	}

	if err := s.reports.InsertReport(ctx, report); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	if err := run.advance(persist, models.JobCompleted); err != nil {
		if derr := s.reports.DeleteReportByJob(persist, job.ID); derr != nil {
			log.Error("remove orphaned report", zap.Error(derr))
		}
		return err
	}

	balance, err := s.ledger.Debit(persist, job.UserID)
	if err != nil {
		// completed is terminal; the missed debit is only logged.
		log.Error("debit credit", zap.Error(err))
		return nil
	}
	log.Info("research completed",
		zap.Int("sources", len(report.SourcesUsed)),
		zap.Int("credits_remaining", balance))
	return nil
}

func (s *Service) generate(ctx context.Context, job models.ResearchJob) (*models.ResearchReport, error) {
	bundle, err := s.aggregator.Build(ctx, job.Question, job.Files)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	text, err := s.backend.Send(ctx, llm.Message{Text: bundle.Prompt, Files: bundle.Attachments})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	return &models.ResearchReport{
		ID:               uuid.NewString(),
		JobID:            job.ID,
		UserID:           job.UserID,
		Report:           text,
		Citations:        bundle.Citations,
		SourcesUsed:      bundle.SourcesUsed,
		LiveDataIncluded: len(bundle.LiveData) > 0,
		CreatedAt:        s.now(),
	}, nil
}
