package task

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/abduss/tasktrack/internal/validation"
	"github.com/google/uuid"
)

const (
	maxTitleLength = 200
	defaultLimit   = 10
	maxLimit       = 100
	maxBulkTasks   = 100
)

type repository interface {
	Create(ctx context.Context, ownerID uuid.UUID, title string, description *string, status Status) (Task, error)
	List(ctx context.Context, ownerID uuid.UUID, filter Filter, page Page) ([]Task, int, error)
	Get(ctx context.Context, ownerID, taskID uuid.UUID) (Task, error)
	Update(ctx context.Context, ownerID, taskID uuid.UUID, input UpdateInput) (Task, error)
	Delete(ctx context.Context, ownerID, taskID uuid.UUID) error
	SetStatusMany(ctx context.Context, ownerID uuid.UUID, taskIDs []uuid.UUID, status Status) (int, error)
	CountByStatus(ctx context.Context, ownerID uuid.UUID) (map[Status]int, error)
}

// Service orchestrates task operations. Every call is scoped to one owner.
type Service struct {
	repo repository
}

// NewService constructs a task service.
func NewService(repo repository) *Service {
	return &Service{repo: repo}
}

// NormalizePage applies defaults and clamps the limit.
func NormalizePage(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return Page{Page: page, Limit: limit}
}

// ListTasks returns one page of the owner's tasks.
func (s *Service) ListTasks(ctx context.Context, ownerID uuid.UUID, filter Filter, page Page) (ListResult, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return ListResult{}, validation.New("status", "must be one of [PENDING IN_PROGRESS COMPLETED]")
	}
	filter.Search = strings.TrimSpace(filter.Search)
	page = NormalizePage(page.Page, page.Limit)

	tasks, total, err := s.repo.List(ctx, ownerID, filter, page)
	if err != nil {
		return ListResult{}, err
	}

	totalPages := int(math.Ceil(float64(total) / float64(page.Limit)))
	return ListResult{
		Tasks: tasks,
		Pagination: Pagination{
			Page:        page.Page,
			Limit:       page.Limit,
			Total:       total,
			TotalPages:  totalPages,
			HasNextPage: page.Page < totalPages,
			HasPrevPage: page.Page > 1,
		},
	}, nil
}

// GetTask returns a task ensuring ownership.
func (s *Service) GetTask(ctx context.Context, ownerID, taskID uuid.UUID) (Task, error) {
	return s.repo.Get(ctx, ownerID, taskID)
}

// CreateTask validates and stores a new task. Status defaults to PENDING.
func (s *Service) CreateTask(ctx context.Context, ownerID uuid.UUID, input CreateInput) (Task, error) {
	title := strings.TrimSpace(input.Title)
	status := StatusPending
	if input.Status != nil {
		status = *input.Status
	}

	verr := &validation.Error{}
	validateTitle(verr, title)
	validateStatus(verr, status)
	if err := verr.OrNil(); err != nil {
		return Task{}, err
	}

	return s.repo.Create(ctx, ownerID, title, trimDescription(input.Description), status)
}

// UpdateTask applies a partial update. An empty update returns the task unchanged.
func (s *Service) UpdateTask(ctx context.Context, ownerID, taskID uuid.UUID, input UpdateInput) (Task, error) {
	verr := &validation.Error{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		validateTitle(verr, title)
		input.Title = &title
	}
	if input.Status != nil {
		validateStatus(verr, *input.Status)
	}
	if err := verr.OrNil(); err != nil {
		return Task{}, err
	}

	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		input.Description = &description
	}

	if input.empty() {
		return s.repo.Get(ctx, ownerID, taskID)
	}
	return s.repo.Update(ctx, ownerID, taskID, input)
}

// ToggleTask flips a task between COMPLETED and PENDING. IN_PROGRESS becomes COMPLETED.
func (s *Service) ToggleTask(ctx context.Context, ownerID, taskID uuid.UUID) (Task, error) {
	current, err := s.repo.Get(ctx, ownerID, taskID)
	if err != nil {
		return Task{}, err
	}

	next := StatusCompleted
	if current.Status == StatusCompleted {
		next = StatusPending
	}
	return s.repo.Update(ctx, ownerID, taskID, UpdateInput{Status: &next})
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, ownerID, taskID uuid.UUID) error {
	return s.repo.Delete(ctx, ownerID, taskID)
}

// BulkUpdateStatus sets the status of several tasks at once. Duplicate ids are
// collapsed; if any id is unknown to the owner nothing is updated.
func (s *Service) BulkUpdateStatus(ctx context.Context, ownerID uuid.UUID, taskIDs []uuid.UUID, status Status) (int, error) {
	verr := &validation.Error{}
	ids := uniqueIDs(taskIDs)
	switch {
	case len(ids) == 0:
		verr.Add("taskIds", "At least one task id is required")
	case len(ids) > maxBulkTasks:
		verr.Add("taskIds", fmt.Sprintf("must contain at most %d ids", maxBulkTasks))
	}
	validateStatus(verr, status)
	if err := verr.OrNil(); err != nil {
		return 0, err
	}

	return s.repo.SetStatusMany(ctx, ownerID, ids, status)
}

// Stats summarises the owner's tasks.
func (s *Service) Stats(ctx context.Context, ownerID uuid.UUID) (Stats, error) {
	counts, err := s.repo.CountByStatus(ctx, ownerID)
	if err != nil {
		return Stats{}, fmt.Errorf("task stats: %w", err)
	}

	stats := Stats{
		Pending:    counts[StatusPending],
		InProgress: counts[StatusInProgress],
		Completed:  counts[StatusCompleted],
	}
	stats.Total = stats.Pending + stats.InProgress + stats.Completed
	if stats.Total > 0 {
		stats.CompletionRate = int(math.Round(float64(stats.Completed) / float64(stats.Total) * 100))
	}
	return stats, nil
}

func validateTitle(verr *validation.Error, title string) {
	switch {
	case title == "":
		verr.Add("title", "Title is required")
	case utf8.RuneCountInString(title) > maxTitleLength:
		verr.Add("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}
}

func validateStatus(verr *validation.Error, status Status) {
	if !status.Valid() {
		verr.Add("status", "must be one of [PENDING IN_PROGRESS COMPLETED]")
	}
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func trimDescription(description *string) *string {
	if description == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*description)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
