package reporting

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"survey-platform/internal/survey"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Source abstracts survey reads for reporting. survey.Repository satisfies it.
type Source interface {
	List(ctx context.Context, f survey.ListFilter) ([]survey.Survey, error)
}

type Service struct {
	src Source
}

func NewService(src Source) *Service { return &Service{src: src} }

func (s *Service) StatusSummary(ctx context.Context, req SummaryRequest) (StatusSummary, error) {
	rows, err := s.load(ctx, req.Range, survey.ListFilter{OwnerCustomerID: req.OwnerCustomerID})
	if err != nil {
		return StatusSummary{}, err
	}

	out := StatusSummary{OwnerCustomerID: req.OwnerCustomerID, ByStatus: make(map[survey.Status]int, len(survey.Statuses))}
	for _, st := range survey.Statuses {
		out.ByStatus[st] = 0
	}
	for _, sv := range rows {
		out.TotalSurveys++
		out.ByStatus[sv.Status]++
		switch sv.Status {
		case survey.StatusPublished, survey.StatusInProgress, survey.StatusCompleted:
			out.Published++
			out.TotalQuestions += len(sv.Questions)
			out.AnsweredQuestions += answered(sv)
			if sv.Status == survey.StatusCompleted {
				out.Completed++
			}
		case survey.StatusRejected:
			out.Rejected++
		case survey.StatusDraft, survey.StatusUnderReview, survey.StatusApproved:
			// not yet visible to the customer
		}
	}
	if out.Published > 0 {
		out.CompletionRate = float64(out.Completed) / float64(out.Published)
	}
	if out.TotalQuestions > 0 {
		out.AnswerRate = float64(out.AnsweredQuestions) / float64(out.TotalQuestions)
	}
	return out, nil
}

// ExportCSV writes one row per matching survey, oldest first, and returns the
// number of data rows written.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, req ExportRequest) (int, error) {
	if req.Status != "" {
		if _, ok := survey.ParseStatus(string(req.Status)); !ok {
			return 0, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, req.Status)
		}
	}
	rows, err := s.load(ctx, req.Range, survey.ListFilter{Status: req.Status, OwnerCustomerID: req.OwnerCustomerID})
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, err
	}
	for _, sv := range rows {
		rec := []string{
			sv.ID,
			sv.Title,
			string(sv.Status),
			sv.OwnerCustomerID,
			strconv.Itoa(answered(sv)),
			strconv.Itoa(len(sv.Questions)),
			sv.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Service) load(ctx context.Context, r TimeRange, f survey.ListFilter) ([]survey.Survey, error) {
	if !r.From.IsZero() && !r.To.IsZero() && !r.To.After(r.From) {
		return nil, ErrInvalidRequest
	}
	if s.src == nil {
		return nil, errors.New("reporting: source not configured")
	}
	rows, err := s.src.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, sv := range rows {
		if r.contains(sv.CreatedAt) {
			out = append(out, sv)
		}
	}
	return out, nil
}

// answered counts responses to questions that are still on the survey.
func answered(sv survey.Survey) int {
	n := 0
	for _, q := range sv.Questions {
		if _, ok := sv.Responses[q]; ok {
			n++
		}
	}
	return n
}
