package store

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func (r *Repositories) queryCountMap(ctx context.Context, query, logPrefix string) (map[string]int, error) {
	r.Log.Debug(logPrefix + ": start")
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		r.Log.Error(logPrefix+": query failed", zap.Error(err))
		return nil, errors.Wrap(err, "query counts")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.Log.Error(logPrefix+": close rows failed", zap.Error(err))
		}
	}()

	result := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			r.Log.Error(logPrefix+": scan failed", zap.Error(err))
			return nil, errors.Wrap(err, "scan count row")
		}
		result[key] = count
	}
	if err := rows.Err(); err != nil {
		r.Log.Error(logPrefix+": rows error", zap.Error(err))
		return nil, errors.Wrap(err, "iterate counts")
	}

	r.Log.Debug(logPrefix+": success", zap.Int("items", len(result)))
	return result, nil
}

// OpenReviewCounts tallies open PRs by reviewer. Users without open
// assignments are absent from the map.
func (r *Repositories) OpenReviewCounts(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT reviewer_id, COUNT(*)
		FROM pull_requests
		WHERE status = 'OPEN'
		GROUP BY reviewer_id
	`
	return r.queryCountMap(ctx, query, "OpenReviewCounts")
}
