package client

import "time"

// User is the public profile returned by the API.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Task mirrors the server task representation.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TaskQuery filters a task listing. Zero values are omitted.
type TaskQuery struct {
	Page   int
	Limit  int
	Status string
	Search string
}

// TaskPage is one page of tasks.
type TaskPage struct {
	Tasks      []Task `json:"tasks"`
	Pagination struct {
		Page        int  `json:"page"`
		Limit       int  `json:"limit"`
		Total       int  `json:"total"`
		TotalPages  int  `json:"totalPages"`
		HasNextPage bool `json:"hasNextPage"`
		HasPrevPage bool `json:"hasPrevPage"`
	} `json:"pagination"`
}

// TaskStats summarises tasks by status.
type TaskStats struct {
	Pending        int `json:"pending"`
	InProgress     int `json:"inProgress"`
	Completed      int `json:"completed"`
	Total          int `json:"total"`
	CompletionRate int `json:"completionRate"`
}

// TaskInput creates or patches a task. Nil fields are omitted.
type TaskInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}
