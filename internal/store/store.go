package store

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mgorbach/review-assignment-service/internal/model"
)

// PickReviewer selects a reviewer from the candidate snapshot taken inside
// the storage transaction. It must be pure: no calls back into storage.
type PickReviewer func(candidates []model.ReviewerCandidate) (string, error)

type Repository interface {
	CreateTeam(ctx context.Context, t model.Team) (model.Team, error)
	GetTeam(ctx context.Context, teamName string) (model.Team, error)
	DeactivateTeamMembers(ctx context.Context, teamName string) (int, error)
	GetUser(ctx context.Context, userID string) (model.User, error)
	SetUserIsActive(ctx context.Context, userID string, isActive bool) (model.User, error)
	CreatePullRequest(ctx context.Context, pr model.PullRequest, pick PickReviewer) (model.PullRequest, error)
	MergePullRequest(ctx context.Context, prID string) (model.PullRequest, error)
	ReassignReviewer(ctx context.Context, prID, oldReviewerID string, pick PickReviewer) (model.PullRequest, string, error)
	ListOpenReviews(ctx context.Context, userID string) ([]model.PullRequestShort, error)
	OpenReviewCounts(ctx context.Context) (map[string]int, error)
	Reset(ctx context.Context) error
	Health(ctx context.Context) error
}

type Repositories struct {
	DB  *sql.DB
	Log *zap.Logger
}

func NewRepositories(db *sql.DB, logger *zap.Logger) *Repositories {
	return &Repositories{DB: db, Log: logger}
}

func (r *Repositories) BeginTx(ctx context.Context) (*sql.Tx, error) {
	r.Log.Debug("BeginTx called")
	return r.DB.BeginTx(ctx, &sql.TxOptions{})
}

func (r *Repositories) rollback(tx *sql.Tx, op string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		r.Log.Warn(op+": rollback failed", zap.Error(err))
	}
}

// uniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func uniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (r *Repositories) Health(ctx context.Context) error {
	if err := r.DB.PingContext(ctx); err != nil {
		r.Log.Error("Health: ping failed", zap.Error(err))
		return errors.Wrap(err, "ping database")
	}
	return nil
}

func (r *Repositories) Reset(ctx context.Context) error {
	r.Log.Debug("Reset: start")
	if _, err := r.DB.ExecContext(ctx, `TRUNCATE TABLE pull_requests, users, teams`); err != nil {
		r.Log.Error("Reset: truncate failed", zap.Error(err))
		return errors.Wrap(err, "truncate tables")
	}
	r.Log.Info("Reset: all tables truncated")
	return nil
}
