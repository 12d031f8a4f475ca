package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mgorbach/review-assignment-service/internal/model"
)

func (r *Repositories) SetUserIsActive(ctx context.Context, userID string, isActive bool) (model.User, error) {
	r.Log.Debug("SetUserIsActive: start", zap.String("user", userID), zap.Bool("is_active", isActive))
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET is_active=$2 WHERE user_id=$1`, userID, isActive)
	if err != nil {
		r.Log.Error("SetUserIsActive: update failed", zap.Error(err))
		return model.User{}, errors.Wrap(err, "update user")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		r.Log.Debug("SetUserIsActive: user not found", zap.String("user", userID))
		return model.User{}, model.ErrNotFound
	}

	u, err := r.GetUser(ctx, userID)
	if err != nil {
		r.Log.Error("SetUserIsActive: fetch user failed", zap.Error(err))
		return model.User{}, err
	}
	r.Log.Info("SetUserIsActive: success", zap.String("user", userID), zap.Bool("is_active", u.IsActive))
	return u, nil
}

func (r *Repositories) GetUser(ctx context.Context, userID string) (model.User, error) {
	r.Log.Debug("GetUser: start", zap.String("user", userID))
	var u model.User
	var teamName sql.NullString
	if err := r.DB.QueryRowContext(ctx, `SELECT user_id, username, team_name, is_active FROM users WHERE user_id=$1`, userID).
		Scan(&u.UserID, &u.Username, &teamName, &u.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Debug("GetUser: not found", zap.String("user", userID))
			return model.User{}, model.ErrNotFound
		}
		r.Log.Error("GetUser: query failed", zap.Error(err))
		return model.User{}, errors.Wrap(err, "query user")
	}
	u.TeamName = teamName.String
	r.Log.Debug("GetUser: success", zap.String("user", userID))
	return u, nil
}
