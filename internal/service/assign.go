package service

import "github.com/mgorbach/review-assignment-service/internal/model"

// SelectReviewer picks the candidate with the fewest open reviews, breaking
// ties by the lexicographically smallest user id. The result depends only on
// the candidate set, never on its order, so repeated runs over the same
// snapshot always agree.
func SelectReviewer(candidates []model.ReviewerCandidate) (string, error) {
	if len(candidates) == 0 {
		return "", model.ErrNoCandidate
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.OpenReviews < best.OpenReviews ||
			(c.OpenReviews == best.OpenReviews && c.UserID < best.UserID) {
			best = c
		}
	}
	return best.UserID, nil
}
