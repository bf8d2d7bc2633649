package models

import "time"

// JobStatus is the lifecycle state of a research job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether s may move to next. Status only moves
// forward and never skips processing.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobProcessing
	case JobProcessing:
		return next == JobCompleted || next == JobFailed
	}
	return false
}

// LiveDataItem is one auxiliary "current events" record mixed into a report.
type LiveDataItem struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// NewsItem is a LiveDataItem as served by GET /api/news.
type NewsItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// ResearchJob is a submitted research question stored in MongoDB.
type ResearchJob struct {
	ID        string    `json:"id"         bson:"_id"`
	UserID    string    `json:"user_id"    bson:"user_id"`
	Question  string    `json:"question"   bson:"question"`
	Files     []string  `json:"files"      bson:"files"`
	Status    JobStatus `json:"status"     bson:"status"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ResearchReport is the generated output of a completed job.
type ResearchReport struct {
	ID               string    `json:"id"                 bson:"_id"`
	JobID            string    `json:"job_id"             bson:"job_id"`
	UserID           string    `json:"user_id"            bson:"user_id"`
	Report           string    `json:"report"             bson:"report"`
	Citations        []string  `json:"citations"          bson:"citations"`
	SourcesUsed      []string  `json:"sources_used"       bson:"sources_used"`
	LiveDataIncluded bool      `json:"live_data_included" bson:"live_data_included"`
	CreatedAt        time.Time `json:"created_at"         bson:"created_at"`
}

// CreateRequest is the JSON body for POST /api/research.
type CreateRequest struct {
	UserID   string   `json:"user_id"`
	Question string   `json:"question"`
	FileIDs  []string `json:"file_ids"`
}

// SubmitResponse is returned once a job has been accepted.
type SubmitResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// StatusResponse is returned by GET /api/research/{id}.
type StatusResponse struct {
	Status JobStatus       `json:"status"`
	Report *ResearchReport `json:"report,omitempty"`
}

// ReportEntry pairs a report with the job that produced it.
type ReportEntry struct {
	Report ResearchReport `json:"report"`
	Job    ResearchJob    `json:"job"`
}

// Stats summarizes a user's usage.
type Stats struct {
	CreditsRemaining    int   `json:"credits_remaining"`
	TotalQuestionsAsked int64 `json:"total_questions_asked"`
	ReportsGenerated    int64 `json:"reports_generated"`
	CreditsUsed         int   `json:"credits_used"`
}
