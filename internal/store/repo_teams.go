package store

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mgorbach/review-assignment-service/internal/model"
)

func (r *Repositories) CreateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	r.Log.Debug("CreateTeam: start", zap.String("team", t.TeamName))
	tx, err := r.BeginTx(ctx)
	if err != nil {
		r.Log.Error("CreateTeam: begin tx failed", zap.Error(err))
		return model.Team{}, errors.Wrap(err, "begin tx")
	}
	defer r.rollback(tx, "CreateTeam")

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM teams WHERE team_name=$1)`, t.TeamName).Scan(&exists); err != nil {
		r.Log.Error("CreateTeam: check team exists failed", zap.Error(err))
		return model.Team{}, errors.Wrap(err, "check team exists")
	}
	if exists {
		r.Log.Debug("CreateTeam: team exists", zap.String("team", t.TeamName))
		return model.Team{}, model.ErrTeamExists
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO teams(team_name) VALUES($1)`, t.TeamName); err != nil {
		if uniqueViolation(err) {
			return model.Team{}, model.ErrTeamExists
		}
		r.Log.Error("CreateTeam: insert team failed", zap.Error(err))
		return model.Team{}, errors.Wrap(err, "insert team")
	}

	// Known users are moved into the new team with refreshed attributes,
	// unknown ones are created.
	for _, m := range t.Members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users(user_id, username, team_name, is_active) VALUES($1,$2,$3,$4)
			 ON CONFLICT (user_id) DO UPDATE
			 SET username=EXCLUDED.username, team_name=EXCLUDED.team_name, is_active=EXCLUDED.is_active`,
			m.UserID, m.Username, t.TeamName, m.IsActive); err != nil {
			r.Log.Error("CreateTeam: upsert user failed", zap.String("user", m.UserID), zap.Error(err))
			return model.Team{}, errors.Wrap(err, "upsert user")
		}
		r.Log.Debug("CreateTeam: upserted user", zap.String("user", m.UserID))
	}

	stored := model.Team{TeamName: t.TeamName}
	rows, err := tx.QueryContext(ctx,
		`SELECT user_id, username, is_active FROM users WHERE team_name=$1 ORDER BY user_id`, t.TeamName)
	if err != nil {
		r.Log.Error("CreateTeam: read back members failed", zap.Error(err))
		return model.Team{}, errors.Wrap(err, "read back members")
	}
	for rows.Next() {
		var m model.TeamMember
		if err := rows.Scan(&m.UserID, &m.Username, &m.IsActive); err != nil {
			_ = rows.Close()
			r.Log.Error("CreateTeam: scan member failed", zap.Error(err))
			return model.Team{}, errors.Wrap(err, "scan member")
		}
		stored.Members = append(stored.Members, m)
	}
	if err := rows.Close(); err != nil {
		r.Log.Error("CreateTeam: close rows failed", zap.Error(err))
		return model.Team{}, errors.Wrap(err, "close rows")
	}

	if err := tx.Commit(); err != nil {
		r.Log.Error("CreateTeam: commit failed", zap.Error(err))
		return model.Team{}, errors.Wrap(err, "commit")
	}

	r.Log.Info("CreateTeam: success", zap.String("team", t.TeamName), zap.Int("members", len(stored.Members)))
	return stored, nil
}

func (r *Repositories) GetTeam(ctx context.Context, teamName string) (model.Team, error) {
	r.Log.Debug("GetTeam: start", zap.String("team", teamName))

	var exists bool
	if err := r.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM teams WHERE team_name=$1)`, teamName).Scan(&exists); err != nil {
		r.Log.Error("GetTeam: check team exists failed", zap.Error(err))
		return model.Team{}, errors.Wrap(err, "check team exists")
	}
	if !exists {
		r.Log.Debug("GetTeam: not found", zap.String("team", teamName))
		return model.Team{}, model.ErrNotFound
	}

	t := model.Team{TeamName: teamName}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT user_id, username, is_active FROM users WHERE team_name=$1 ORDER BY user_id`, teamName)
	if err != nil {
		r.Log.Error("GetTeam: query members failed", zap.Error(err))
		return model.Team{}, errors.Wrap(err, "query members")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.Log.Error("GetTeam: close rows failed", zap.Error(err))
		}
	}()

	for rows.Next() {
		var m model.TeamMember
		if err := rows.Scan(&m.UserID, &m.Username, &m.IsActive); err != nil {
			r.Log.Error("GetTeam: scan failed", zap.Error(err))
			return model.Team{}, errors.Wrap(err, "scan member")
		}
		t.Members = append(t.Members, m)
	}
	if err := rows.Err(); err != nil {
		r.Log.Error("GetTeam: rows error", zap.Error(err))
		return model.Team{}, errors.Wrap(err, "iterate members")
	}

	r.Log.Debug("GetTeam: success", zap.String("team", teamName), zap.Int("members", len(t.Members)))
	return t, nil
}

// DeactivateTeamMembers flips is_active to false for every currently-active
// member of the team. Existing PR assignments are left untouched.
func (r *Repositories) DeactivateTeamMembers(ctx context.Context, teamName string) (int, error) {
	r.Log.Debug("DeactivateTeamMembers: start", zap.String("team", teamName))
	tx, err := r.BeginTx(ctx)
	if err != nil {
		r.Log.Error("DeactivateTeamMembers: begin tx failed", zap.Error(err))
		return 0, errors.Wrap(err, "begin tx")
	}
	defer r.rollback(tx, "DeactivateTeamMembers")

	if err := lockTeam(ctx, tx, teamName); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			r.Log.Debug("DeactivateTeamMembers: team not found", zap.String("team", teamName))
		} else {
			r.Log.Error("DeactivateTeamMembers: lock team failed", zap.Error(err))
		}
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET is_active=false WHERE team_name=$1 AND is_active=true`, teamName)
	if err != nil {
		r.Log.Error("DeactivateTeamMembers: update failed", zap.Error(err))
		return 0, errors.Wrap(err, "deactivate members")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}

	if err := tx.Commit(); err != nil {
		r.Log.Error("DeactivateTeamMembers: commit failed", zap.Error(err))
		return 0, errors.Wrap(err, "commit")
	}

	r.Log.Info("DeactivateTeamMembers: success", zap.String("team", teamName), zap.Int64("deactivated", n))
	return int(n), nil
}
