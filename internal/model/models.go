package model

import "time"

type PRStatus string

const (
	StatusOpen   PRStatus = "OPEN"
	StatusMerged PRStatus = "MERGED"
)

type User struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	TeamName string `json:"team_name"`
	IsActive bool   `json:"is_active"`
}

type TeamMember struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
}

type Team struct {
	TeamName string       `json:"team_name"`
	Members  []TeamMember `json:"members"`
}

type PullRequest struct {
	PullRequestID   string     `json:"pull_request_id"`
	PullRequestName string     `json:"pull_request_name"`
	AuthorID        string     `json:"author_id"`
	Status          PRStatus   `json:"status"`
	ReviewerID      string     `json:"assigned_reviewer"`
	CreatedAt       time.Time  `json:"createdAt,omitempty"`
	MergedAt        *time.Time `json:"mergedAt,omitempty"`
}

type PullRequestShort struct {
	PullRequestID   string   `json:"pull_request_id"`
	PullRequestName string   `json:"pull_request_name"`
	AuthorID        string   `json:"author_id"`
	Status          PRStatus `json:"status"`
}

// ReviewerCandidate is one row of the assignment snapshot: an active team
// member together with the number of open PRs they currently review.
type ReviewerCandidate struct {
	UserID      string
	OpenReviews int
}

type AppError string

func (e AppError) Error() string { return string(e) }

const (
	ErrTeamExists    = AppError("TEAM_EXISTS")
	ErrPRExists      = AppError("PR_EXISTS")
	ErrNotFound      = AppError("NOT_FOUND")
	ErrAlreadyMerged = AppError("PR_MERGED")
	ErrNotAssigned   = AppError("NOT_ASSIGNED")
	ErrNoCandidate   = AppError("NO_CANDIDATE")
)
