package reporting

import (
	"time"

	"survey-platform/internal/survey"
)

// Common filtering inputs.

// TimeRange bounds survey creation time. Zero values leave that side open.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// SummaryRequest requests aggregated lifecycle metrics.
// OwnerCustomerID narrows the report to one customer.
type SummaryRequest struct {
	Range           TimeRange `json:"range"`
	OwnerCustomerID string    `json:"owner_customer_id,omitempty"`
}

type StatusSummary struct {
	OwnerCustomerID string `json:"owner_customer_id,omitempty"`

	TotalSurveys int                   `json:"total_surveys"`
	ByStatus     map[survey.Status]int `json:"by_status"`

	// Surveys that reached the customer (published or later).
	Published int `json:"published"`
	Completed int `json:"completed"`
	Rejected  int `json:"rejected"`

	AnsweredQuestions int `json:"answered_questions"`
	TotalQuestions    int `json:"total_questions"`

	// CompletionRate is completed / published-or-later.
	CompletionRate float64 `json:"completion_rate"`
	// AnswerRate is answered / total questions over surveys that reached the customer.
	AnswerRate float64 `json:"answer_rate"`
}

// ExportRequest selects the surveys written to a CSV export.
type ExportRequest struct {
	Range           TimeRange     `json:"range"`
	Status          survey.Status `json:"status,omitempty"`
	OwnerCustomerID string        `json:"owner_customer_id,omitempty"`
}

// ExportHeader is the CSV header row.
var ExportHeader = []string{"Survey ID", "Title", "Status", "Customer ID", "Answered", "Questions", "Created At"}
