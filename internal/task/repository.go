package task

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repositoryTimeout = 5 * time.Second

const taskColumns = `id, owner_id, title, description, status, created_at, updated_at`

// Repository allows access to task persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a task repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new task for the owner.
func (r *Repository) Create(ctx context.Context, ownerID uuid.UUID, title string, description *string, status Status) (Task, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
INSERT INTO tasks (id, owner_id, title, description, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + taskColumns + `;`

	task, err := scanTask(r.pool.QueryRow(ctx, query, uuid.New(), ownerID, title, description, string(status)))
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// List returns one page of the owner's tasks, newest first, and the total match count.
func (r *Repository) List(ctx context.Context, ownerID uuid.UUID, filter Filter, page Page) ([]Task, int, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	where, args := buildWhere(ownerID, filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE `+where+`;`, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	limitArg := "$" + strconv.Itoa(len(args)+1)
	offsetArg := "$" + strconv.Itoa(len(args)+2)
	query := `
SELECT ` + taskColumns + `
FROM tasks
WHERE ` + where + `
ORDER BY created_at DESC
LIMIT ` + limitArg + ` OFFSET ` + offsetArg + `;`

	rows, err := r.pool.Query(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0, page.Limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, total, nil
}

// Get fetches a single task ensuring ownership.
func (r *Repository) Get(ctx context.Context, ownerID, taskID uuid.UUID) (Task, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND owner_id = $2;`

	task, err := scanTask(r.pool.QueryRow(ctx, query, taskID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// Update applies a partial update in a single statement.
func (r *Repository) Update(ctx context.Context, ownerID, taskID uuid.UUID, input UpdateInput) (Task, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var status *string
	if input.Status != nil {
		s := string(*input.Status)
		status = &s
	}
	var description *string
	if input.Description != nil && *input.Description != "" {
		description = input.Description
	}

	query := `
UPDATE tasks
SET title       = COALESCE($3, title),
    description = CASE WHEN $4 THEN $5 ELSE description END,
    status      = COALESCE($6, status),
    updated_at  = NOW()
WHERE id = $1 AND owner_id = $2
RETURNING ` + taskColumns + `;`

	task, err := scanTask(r.pool.QueryRow(ctx, query, taskID, ownerID, input.Title, input.Description != nil, description, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

// Delete removes a task owned by the user.
func (r *Repository) Delete(ctx context.Context, ownerID, taskID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	commandTag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND owner_id = $2;`, taskID, ownerID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// SetStatusMany moves every listed task to status. Either all of them belong to
// the owner and are updated, or nothing changes and ErrTaskNotFound is returned.
func (r *Repository) SetStatusMany(ctx context.Context, ownerID uuid.UUID, taskIDs []uuid.UUID, status Status) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	ids := make([]string, len(taskIDs))
	for i, id := range taskIDs {
		ids[i] = id.String()
	}

	var updated int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE tasks SET status = $1, updated_at = NOW()
WHERE owner_id = $2 AND id = ANY($3::uuid[]);`, string(status), ownerID, ids)
		if err != nil {
			return fmt.Errorf("bulk update status: %w", err)
		}
		updated = tag.RowsAffected()
		if updated != int64(len(ids)) {
			return ErrTaskNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(updated), nil
}

// CountByStatus returns the number of the owner's tasks per status.
func (r *Repository) CountByStatus(ctx context.Context, ownerID uuid.UUID) (map[Status]int, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM tasks WHERE owner_id = $1 GROUP BY status;`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count tasks by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

func buildWhere(ownerID uuid.UUID, filter Filter) (string, []any) {
	clauses := []string{"owner_id = $1"}
	args := []any{ownerID}

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		clauses = append(clauses, "title ILIKE $"+strconv.Itoa(len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanTask(row pgx.Row) (Task, error) {
	var (
		task   Task
		status string
	)
	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Title,
		&task.Description,
		&status,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	task.Status = Status(status)
	return task, err
}
