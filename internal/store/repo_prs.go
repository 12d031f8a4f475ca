package store

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mgorbach/review-assignment-service/internal/model"
)

// CreatePullRequest inserts a new open PR with a reviewer chosen by pick
// from the author's team. The team row is locked for the duration of the
// transaction so concurrent assignments in the same team serialize and the
// candidate snapshot stays consistent with the insert.
func (r *Repositories) CreatePullRequest(ctx context.Context, pr model.PullRequest, pick PickReviewer) (model.PullRequest, error) {
	r.Log.Debug("CreatePullRequest: start", zap.String("pr_id", pr.PullRequestID), zap.String("author", pr.AuthorID))

	tx, err := r.BeginTx(ctx)
	if err != nil {
		r.Log.Error("CreatePullRequest: begin tx failed", zap.Error(err))
		return model.PullRequest{}, errors.Wrap(err, "begin tx")
	}
	defer r.rollback(tx, "CreatePullRequest")

	teamName, err := teamOfUser(ctx, tx, pr.AuthorID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			r.Log.Debug("CreatePullRequest: author not found", zap.String("author", pr.AuthorID))
		} else {
			r.Log.Error("CreatePullRequest: author lookup failed", zap.Error(err))
		}
		return model.PullRequest{}, err
	}
	if teamName == "" {
		r.Log.Debug("CreatePullRequest: author has no team", zap.String("author", pr.AuthorID))
		return model.PullRequest{}, model.ErrNotFound
	}

	if err := lockTeam(ctx, tx, teamName); err != nil {
		r.Log.Error("CreatePullRequest: lock team failed", zap.String("team", teamName), zap.Error(err))
		return model.PullRequest{}, err
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM pull_requests WHERE pull_request_id=$1)`, pr.PullRequestID).Scan(&exists); err != nil {
		r.Log.Error("CreatePullRequest: check pr exists failed", zap.Error(err))
		return model.PullRequest{}, errors.Wrap(err, "check pr exists")
	}
	if exists {
		r.Log.Debug("CreatePullRequest: pr exists", zap.String("pr_id", pr.PullRequestID))
		return model.PullRequest{}, model.ErrPRExists
	}

	candidates, err := r.reviewCandidates(ctx, tx, teamName, []string{pr.AuthorID})
	if err != nil {
		return model.PullRequest{}, err
	}

	reviewer, err := pick(candidates)
	if err != nil {
		r.Log.Debug("CreatePullRequest: no reviewer picked",
			zap.String("pr_id", pr.PullRequestID), zap.String("team", teamName), zap.Error(err))
		return model.PullRequest{}, err
	}

	pr.Status = model.StatusOpen
	pr.ReviewerID = reviewer
	pr.MergedAt = nil
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO pull_requests(pull_request_id, pull_request_name, author_id, reviewer_id, status, created_at)
		 VALUES($1,$2,$3,$4,'OPEN', now()) RETURNING created_at`,
		pr.PullRequestID, pr.PullRequestName, pr.AuthorID, pr.ReviewerID).Scan(&pr.CreatedAt); err != nil {
		if uniqueViolation(err) {
			return model.PullRequest{}, model.ErrPRExists
		}
		r.Log.Error("CreatePullRequest: insert failed", zap.String("pr_id", pr.PullRequestID), zap.Error(err))
		return model.PullRequest{}, errors.Wrap(err, "insert pull request")
	}

	if err := tx.Commit(); err != nil {
		r.Log.Error("CreatePullRequest: commit failed", zap.String("pr_id", pr.PullRequestID), zap.Error(err))
		return model.PullRequest{}, errors.Wrap(err, "commit")
	}

	r.Log.Info("CreatePullRequest: success",
		zap.String("pr_id", pr.PullRequestID), zap.String("reviewer", pr.ReviewerID))
	return pr, nil
}

func (r *Repositories) MergePullRequest(ctx context.Context, prID string) (model.PullRequest, error) {
	r.Log.Debug("MergePullRequest: start", zap.String("pr_id", prID))

	tx, err := r.BeginTx(ctx)
	if err != nil {
		r.Log.Error("MergePullRequest: begin tx failed", zap.Error(err))
		return model.PullRequest{}, errors.Wrap(err, "begin tx")
	}
	defer r.rollback(tx, "MergePullRequest")

	pr, err := r.getPRForUpdate(ctx, tx, prID)
	if err != nil {
		return model.PullRequest{}, err
	}
	if pr.Status == model.StatusMerged {
		r.Log.Debug("MergePullRequest: already merged", zap.String("pr_id", prID))
		return model.PullRequest{}, model.ErrAlreadyMerged
	}

	var mergedAt sql.NullTime
	if err := tx.QueryRowContext(ctx,
		`UPDATE pull_requests SET status='MERGED', merged_at=now() WHERE pull_request_id=$1 RETURNING merged_at`,
		prID).Scan(&mergedAt); err != nil {
		r.Log.Error("MergePullRequest: update failed", zap.String("pr_id", prID), zap.Error(err))
		return model.PullRequest{}, errors.Wrap(err, "merge pull request")
	}

	if err := tx.Commit(); err != nil {
		r.Log.Error("MergePullRequest: commit failed", zap.String("pr_id", prID), zap.Error(err))
		return model.PullRequest{}, errors.Wrap(err, "commit")
	}

	pr.Status = model.StatusMerged
	if mergedAt.Valid {
		t := mergedAt.Time
		pr.MergedAt = &t
	}
	r.Log.Info("MergePullRequest: success", zap.String("pr_id", prID))
	return pr, nil
}

// ReassignReviewer swaps the PR's reviewer for one chosen by pick from the
// author's team, excluding the author and the outgoing reviewer. The PR row
// is locked first, then the team row, so lifecycle checks and the candidate
// snapshot see a consistent state.
func (r *Repositories) ReassignReviewer(ctx context.Context, prID, oldReviewerID string, pick PickReviewer) (model.PullRequest, string, error) {
	r.Log.Debug("ReassignReviewer: start", zap.String("pr_id", prID), zap.String("old_reviewer", oldReviewerID))

	tx, err := r.BeginTx(ctx)
	if err != nil {
		r.Log.Error("ReassignReviewer: begin tx failed", zap.Error(err))
		return model.PullRequest{}, "", errors.Wrap(err, "begin tx")
	}
	defer r.rollback(tx, "ReassignReviewer")

	pr, err := r.getPRForUpdate(ctx, tx, prID)
	if err != nil {
		return model.PullRequest{}, "", err
	}
	if pr.Status == model.StatusMerged {
		r.Log.Debug("ReassignReviewer: already merged", zap.String("pr_id", prID))
		return model.PullRequest{}, "", model.ErrAlreadyMerged
	}
	if pr.ReviewerID != oldReviewerID {
		r.Log.Debug("ReassignReviewer: reviewer mismatch",
			zap.String("pr_id", prID), zap.String("current", pr.ReviewerID), zap.String("old", oldReviewerID))
		return model.PullRequest{}, "", model.ErrNotAssigned
	}

	teamName, err := teamOfUser(ctx, tx, pr.AuthorID)
	if err != nil {
		r.Log.Error("ReassignReviewer: author lookup failed", zap.String("author", pr.AuthorID), zap.Error(err))
		return model.PullRequest{}, "", err
	}
	if teamName == "" {
		r.Log.Debug("ReassignReviewer: author has no team", zap.String("author", pr.AuthorID))
		return model.PullRequest{}, "", model.ErrNoCandidate
	}
	if err := lockTeam(ctx, tx, teamName); err != nil {
		r.Log.Error("ReassignReviewer: lock team failed", zap.String("team", teamName), zap.Error(err))
		return model.PullRequest{}, "", err
	}

	candidates, err := r.reviewCandidates(ctx, tx, teamName, []string{pr.AuthorID, oldReviewerID})
	if err != nil {
		return model.PullRequest{}, "", err
	}

	reviewer, err := pick(candidates)
	if err != nil {
		r.Log.Debug("ReassignReviewer: no replacement picked",
			zap.String("pr_id", prID), zap.String("team", teamName), zap.Error(err))
		return model.PullRequest{}, "", err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE pull_requests SET reviewer_id=$2 WHERE pull_request_id=$1`, prID, reviewer); err != nil {
		r.Log.Error("ReassignReviewer: update failed", zap.String("pr_id", prID), zap.Error(err))
		return model.PullRequest{}, "", errors.Wrap(err, "update reviewer")
	}

	if err := tx.Commit(); err != nil {
		r.Log.Error("ReassignReviewer: commit failed", zap.String("pr_id", prID), zap.Error(err))
		return model.PullRequest{}, "", errors.Wrap(err, "commit")
	}

	pr.ReviewerID = reviewer
	r.Log.Info("ReassignReviewer: success",
		zap.String("pr_id", prID), zap.String("old", oldReviewerID), zap.String("new", reviewer))
	return pr, reviewer, nil
}

func (r *Repositories) ListOpenReviews(ctx context.Context, userID string) ([]model.PullRequestShort, error) {
	r.Log.Debug("ListOpenReviews: start", zap.String("user", userID))

	var exists bool
	if err := r.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_id=$1)`, userID).Scan(&exists); err != nil {
		r.Log.Error("ListOpenReviews: check user exists failed", zap.Error(err))
		return nil, errors.Wrap(err, "check user exists")
	}
	if !exists {
		r.Log.Debug("ListOpenReviews: user not found", zap.String("user", userID))
		return nil, model.ErrNotFound
	}

	rows, err := r.DB.QueryContext(ctx, `
        SELECT pull_request_id, pull_request_name, author_id, status
        FROM pull_requests
        WHERE reviewer_id = $1 AND status = 'OPEN'
        ORDER BY created_at DESC
    `, userID)
	if err != nil {
		r.Log.Error("ListOpenReviews: query failed", zap.Error(err))
		return nil, errors.Wrap(err, "query open reviews")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.Log.Error("ListOpenReviews: close rows failed", zap.Error(err))
		}
	}()

	var out []model.PullRequestShort
	for rows.Next() {
		var s model.PullRequestShort
		if err := rows.Scan(&s.PullRequestID, &s.PullRequestName, &s.AuthorID, &s.Status); err != nil {
			r.Log.Error("ListOpenReviews: scan failed", zap.Error(err))
			return nil, errors.Wrap(err, "scan pull request")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		r.Log.Error("ListOpenReviews: rows error", zap.Error(err))
		return nil, errors.Wrap(err, "iterate pull requests")
	}

	r.Log.Debug("ListOpenReviews: success", zap.String("user", userID), zap.Int("count", len(out)))
	return out, nil
}

func (r *Repositories) getPRForUpdate(ctx context.Context, tx *sql.Tx, prID string) (model.PullRequest, error) {
	var p model.PullRequest
	var mergedAt sql.NullTime
	if err := tx.QueryRowContext(ctx,
		`SELECT pull_request_id, pull_request_name, author_id, reviewer_id, status, created_at, merged_at
		 FROM pull_requests WHERE pull_request_id=$1 FOR UPDATE`, prID).
		Scan(&p.PullRequestID, &p.PullRequestName, &p.AuthorID, &p.ReviewerID, &p.Status, &p.CreatedAt, &mergedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Debug("getPRForUpdate: not found", zap.String("pr_id", prID))
			return model.PullRequest{}, model.ErrNotFound
		}
		r.Log.Error("getPRForUpdate: select for update failed", zap.String("pr_id", prID), zap.Error(err))
		return model.PullRequest{}, errors.Wrap(err, "select pr for update")
	}
	if mergedAt.Valid {
		t := mergedAt.Time
		p.MergedAt = &t
	}
	return p, nil
}

// reviewCandidates snapshots the active members of a team minus the excluded
// users, each with their current open review count. Callers must hold the
// team row lock.
func (r *Repositories) reviewCandidates(ctx context.Context, tx *sql.Tx, teamName string, exclude []string) ([]model.ReviewerCandidate, error) {
	rows, err := tx.QueryContext(ctx, `
        SELECT u.user_id, COUNT(p.pull_request_id)
        FROM users u
        LEFT JOIN pull_requests p ON p.reviewer_id = u.user_id AND p.status = 'OPEN'
        WHERE u.team_name = $1 AND u.is_active = true AND u.user_id <> ALL($2)
        GROUP BY u.user_id
        ORDER BY u.user_id
    `, teamName, pq.Array(exclude))
	if err != nil {
		r.Log.Error("reviewCandidates: query failed", zap.String("team", teamName), zap.Error(err))
		return nil, errors.Wrap(err, "query candidates")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.Log.Error("reviewCandidates: close rows failed", zap.Error(err))
		}
	}()

	var out []model.ReviewerCandidate
	for rows.Next() {
		var c model.ReviewerCandidate
		if err := rows.Scan(&c.UserID, &c.OpenReviews); err != nil {
			r.Log.Error("reviewCandidates: scan failed", zap.Error(err))
			return nil, errors.Wrap(err, "scan candidate")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		r.Log.Error("reviewCandidates: rows error", zap.Error(err))
		return nil, errors.Wrap(err, "iterate candidates")
	}

	r.Log.Debug("reviewCandidates: snapshot taken", zap.String("team", teamName), zap.Int("count", len(out)))
	return out, nil
}

func lockTeam(ctx context.Context, tx *sql.Tx, teamName string) error {
	var name string
	if err := tx.QueryRowContext(ctx, `SELECT team_name FROM teams WHERE team_name=$1 FOR UPDATE`, teamName).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		return errors.Wrap(err, "lock team")
	}
	return nil
}

func teamOfUser(ctx context.Context, tx *sql.Tx, userID string) (string, error) {
	var team sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT team_name FROM users WHERE user_id=$1`, userID).Scan(&team); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", model.ErrNotFound
		}
		return "", errors.Wrap(err, "query user team")
	}
	return team.String, nil
}
