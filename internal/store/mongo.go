package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/research-assistant/backend/internal/models"
)

// Collection names.
const (
	FilesCollection   = "files"
	JobsCollection    = "research_questions"
	ReportsCollection = "research_reports"
)

// MongoStore handles file metadata, research jobs and reports in MongoDB.
// Every update is a single-document $set; there are no transactions.
type MongoStore struct {
	files   *mongo.Collection
	jobs    *mongo.Collection
	reports *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		files:   db.Collection(FilesCollection),
		jobs:    db.Collection(JobsCollection),
		reports: db.Collection(ReportsCollection),
	}
}

// EnsureIndexes creates the lookup indexes used by listing and stats.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	byUser := mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}}
	if _, err := s.jobs.Indexes().CreateOne(ctx, byUser); err != nil {
		return fmt.Errorf("jobs index: %w", err)
	}
	if _, err := s.reports.Indexes().CreateMany(ctx, []mongo.IndexModel{
		byUser,
		{Keys: bson.D{{Key: "job_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("reports index: %w", err)
	}
	return nil
}

// ── files ────────────────────────────────────────────────────

func (s *MongoStore) InsertFile(ctx context.Context, f *models.File) error {
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}
	if _, err := s.files.InsertOne(ctx, f); err != nil {
		return fmt.Errorf("mongo insert file: %w", err)
	}
	return nil
}

func (s *MongoStore) GetFile(ctx context.Context, id string) (*models.File, error) {
	var f models.File
	if err := s.files.FindOne(ctx, bson.M{"_id": id}).Decode(&f); err != nil {
		return nil, noDocuments(err)
	}
	return &f, nil
}

// ── jobs ─────────────────────────────────────────────────────

func (s *MongoStore) InsertJob(ctx context.Context, job *models.ResearchJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if _, err := s.jobs.InsertOne(ctx, job); err != nil {
		return fmt.Errorf("mongo insert job: %w", err)
	}
	return nil
}

func (s *MongoStore) GetJob(ctx context.Context, id string) (*models.ResearchJob, error) {
	var job models.ResearchJob
	if err := s.jobs.FindOne(ctx, bson.M{"_id": id}).Decode(&job); err != nil {
		return nil, noDocuments(err)
	}
	return &job, nil
}

func (s *MongoStore) SetJobStatus(ctx context.Context, id string, status models.JobStatus) error {
	res, err := s.jobs.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return fmt.Errorf("mongo set status: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListJobsByUser(ctx context.Context, userID string) ([]models.ResearchJob, error) {
	var jobs []models.ResearchJob
	if err := s.findByUser(ctx, s.jobs, userID, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *MongoStore) CountJobsByUser(ctx context.Context, userID string) (int64, error) {
	return s.jobs.CountDocuments(ctx, bson.M{"user_id": userID})
}

// ── reports ──────────────────────────────────────────────────

func (s *MongoStore) InsertReport(ctx context.Context, r *models.ResearchReport) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if _, err := s.reports.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("mongo insert report: %w", err)
	}
	return nil
}

func (s *MongoStore) GetReportByJob(ctx context.Context, jobID string) (*models.ResearchReport, error) {
	var r models.ResearchReport
	if err := s.reports.FindOne(ctx, bson.M{"job_id": jobID}).Decode(&r); err != nil {
		return nil, noDocuments(err)
	}
	return &r, nil
}

func (s *MongoStore) DeleteReportByJob(ctx context.Context, jobID string) error {
	_, err := s.reports.DeleteOne(ctx, bson.M{"job_id": jobID})
	return err
}

func (s *MongoStore) ListReportsByUser(ctx context.Context, userID string) ([]models.ResearchReport, error) {
	var reports []models.ResearchReport
	if err := s.findByUser(ctx, s.reports, userID, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (s *MongoStore) CountReportsByUser(ctx context.Context, userID string) (int64, error) {
	return s.reports.CountDocuments(ctx, bson.M{"user_id": userID})
}

func (s *MongoStore) findByUser(ctx context.Context, col *mongo.Collection, userID string, out interface{}) error {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	return cur.All(ctx, out)
}

func noDocuments(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ErrNotFound
	}
	return err
}
