package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mgorbach/review-assignment-service/internal/model"
	"github.com/mgorbach/review-assignment-service/internal/store"
)

// Store keeps all records in process memory behind a single mutex, which
// makes every operation atomic. It mirrors the sentinel-error contract of
// the postgres repository and is used for tests and storage_type=memory.
type Store struct {
	mu    sync.Mutex
	log   *zap.Logger
	teams map[string]struct{}
	users map[string]model.User
	prs   map[string]prRecord
	seq   int64
}

type prRecord struct {
	pr  model.PullRequest
	seq int64
}

func New(logger *zap.Logger) *Store {
	return &Store{
		log:   logger,
		teams: make(map[string]struct{}),
		users: make(map[string]model.User),
		prs:   make(map[string]prRecord),
	}
}

func (s *Store) CreateTeam(_ context.Context, t model.Team) (model.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[t.TeamName]; ok {
		return model.Team{}, model.ErrTeamExists
	}
	s.teams[t.TeamName] = struct{}{}
	for _, m := range t.Members {
		s.users[m.UserID] = model.User{
			UserID:   m.UserID,
			Username: m.Username,
			TeamName: t.TeamName,
			IsActive: m.IsActive,
		}
	}
	s.log.Debug("memory: team created", zap.String("team", t.TeamName), zap.Int("members", len(t.Members)))
	return s.teamLocked(t.TeamName), nil
}

func (s *Store) GetTeam(_ context.Context, teamName string) (model.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[teamName]; !ok {
		return model.Team{}, model.ErrNotFound
	}
	return s.teamLocked(teamName), nil
}

func (s *Store) DeactivateTeamMembers(_ context.Context, teamName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[teamName]; !ok {
		return 0, model.ErrNotFound
	}
	n := 0
	for id, u := range s.users {
		if u.TeamName == teamName && u.IsActive {
			u.IsActive = false
			s.users[id] = u
			n++
		}
	}
	return n, nil
}

func (s *Store) GetUser(_ context.Context, userID string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (s *Store) SetUserIsActive(_ context.Context, userID string, isActive bool) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	u.IsActive = isActive
	s.users[userID] = u
	return u, nil
}

func (s *Store) CreatePullRequest(_ context.Context, pr model.PullRequest, pick store.PickReviewer) (model.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	author, ok := s.users[pr.AuthorID]
	if !ok || author.TeamName == "" {
		return model.PullRequest{}, model.ErrNotFound
	}
	if _, ok := s.prs[pr.PullRequestID]; ok {
		return model.PullRequest{}, model.ErrPRExists
	}

	reviewer, err := pick(s.candidatesLocked(author.TeamName, pr.AuthorID))
	if err != nil {
		return model.PullRequest{}, err
	}

	pr.Status = model.StatusOpen
	pr.ReviewerID = reviewer
	pr.CreatedAt = time.Now().UTC()
	pr.MergedAt = nil
	s.seq++
	s.prs[pr.PullRequestID] = prRecord{pr: pr, seq: s.seq}
	return clonePR(pr), nil
}

func (s *Store) MergePullRequest(_ context.Context, prID string) (model.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.prs[prID]
	if !ok {
		return model.PullRequest{}, model.ErrNotFound
	}
	if rec.pr.Status == model.StatusMerged {
		return model.PullRequest{}, model.ErrAlreadyMerged
	}
	now := time.Now().UTC()
	rec.pr.Status = model.StatusMerged
	rec.pr.MergedAt = &now
	s.prs[prID] = rec
	return clonePR(rec.pr), nil
}

func (s *Store) ReassignReviewer(_ context.Context, prID, oldReviewerID string, pick store.PickReviewer) (model.PullRequest, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.prs[prID]
	if !ok {
		return model.PullRequest{}, "", model.ErrNotFound
	}
	if rec.pr.Status == model.StatusMerged {
		return model.PullRequest{}, "", model.ErrAlreadyMerged
	}
	if rec.pr.ReviewerID != oldReviewerID {
		return model.PullRequest{}, "", model.ErrNotAssigned
	}

	author, ok := s.users[rec.pr.AuthorID]
	if !ok || author.TeamName == "" {
		return model.PullRequest{}, "", model.ErrNoCandidate
	}

	reviewer, err := pick(s.candidatesLocked(author.TeamName, rec.pr.AuthorID, oldReviewerID))
	if err != nil {
		return model.PullRequest{}, "", err
	}

	rec.pr.ReviewerID = reviewer
	s.prs[prID] = rec
	return clonePR(rec.pr), reviewer, nil
}

func (s *Store) ListOpenReviews(_ context.Context, userID string) ([]model.PullRequestShort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, model.ErrNotFound
	}

	var recs []prRecord
	for _, rec := range s.prs {
		if rec.pr.ReviewerID == userID && rec.pr.Status == model.StatusOpen {
			recs = append(recs, rec)
		}
	}
	// Newest first, matching the postgres ordering.
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })

	var out []model.PullRequestShort
	for _, rec := range recs {
		out = append(out, model.PullRequestShort{
			PullRequestID:   rec.pr.PullRequestID,
			PullRequestName: rec.pr.PullRequestName,
			AuthorID:        rec.pr.AuthorID,
			Status:          rec.pr.Status,
		})
	}
	return out, nil
}

func (s *Store) OpenReviewCounts(_ context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCountsLocked(), nil
}

func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teams = make(map[string]struct{})
	s.users = make(map[string]model.User)
	s.prs = make(map[string]prRecord)
	s.log.Info("memory: reset")
	return nil
}

func (s *Store) Health(_ context.Context) error { return nil }

func (s *Store) teamLocked(teamName string) model.Team {
	t := model.Team{TeamName: teamName}
	for _, u := range s.users {
		if u.TeamName == teamName {
			t.Members = append(t.Members, model.TeamMember{
				UserID:   u.UserID,
				Username: u.Username,
				IsActive: u.IsActive,
			})
		}
	}
	sort.Slice(t.Members, func(i, j int) bool { return t.Members[i].UserID < t.Members[j].UserID })
	return t
}

func (s *Store) openCountsLocked() map[string]int {
	counts := make(map[string]int)
	for _, rec := range s.prs {
		if rec.pr.Status == model.StatusOpen {
			counts[rec.pr.ReviewerID]++
		}
	}
	return counts
}

func (s *Store) candidatesLocked(teamName string, exclude ...string) []model.ReviewerCandidate {
	counts := s.openCountsLocked()
	var out []model.ReviewerCandidate
	for _, u := range s.users {
		if u.TeamName != teamName || !u.IsActive || contains(exclude, u.UserID) {
			continue
		}
		out = append(out, model.ReviewerCandidate{UserID: u.UserID, OpenReviews: counts[u.UserID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func clonePR(pr model.PullRequest) model.PullRequest {
	if pr.MergedAt != nil {
		t := *pr.MergedAt
		pr.MergedAt = &t
	}
	return pr
}

func contains(items []string, v string) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}
