package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mgorbach/review-assignment-service/internal/api/apierrors"
	"github.com/mgorbach/review-assignment-service/internal/model"
	"github.com/mgorbach/review-assignment-service/internal/store"
)

type Service struct {
	repo store.Repository
	log  *zap.Logger
}

func NewService(repo store.Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, log: logger}
}

func (s *Service) CreateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	team, err := s.repo.CreateTeam(ctx, t)
	if err != nil {
		if errors.Is(err, model.ErrTeamExists) {
			return model.Team{}, apierrors.APIError{Code: apierrors.TeamExists, Message: "team_name already exists"}
		}
		return model.Team{}, err
	}
	return team, nil
}

func (s *Service) GetTeam(ctx context.Context, teamName string) (model.Team, error) {
	t, err := s.repo.GetTeam(ctx, teamName)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Team{}, apierrors.APIError{Code: apierrors.NotFound, Message: "team not found"}
		}
		return model.Team{}, err
	}
	return t, nil
}

func (s *Service) DeactivateTeamMembers(ctx context.Context, teamName string) (int, error) {
	n, err := s.repo.DeactivateTeamMembers(ctx, teamName)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return 0, apierrors.APIError{Code: apierrors.NotFound, Message: "team not found"}
		}
		return 0, err
	}
	return n, nil
}

func (s *Service) SetUserIsActive(ctx context.Context, userID string, isActive bool) (model.User, error) {
	u, err := s.repo.SetUserIsActive(ctx, userID, isActive)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, apierrors.APIError{Code: apierrors.NotFound, Message: "user not found"}
		}
		return model.User{}, err
	}
	return u, nil
}

func (s *Service) CreatePR(ctx context.Context, prID, prName, authorID string) (model.PullRequest, error) {
	pr := model.PullRequest{
		PullRequestID:   prID,
		PullRequestName: prName,
		AuthorID:        authorID,
	}

	created, err := s.repo.CreatePullRequest(ctx, pr, SelectReviewer)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrPRExists):
			return model.PullRequest{}, apierrors.APIError{Code: apierrors.PRExists, Message: "PR id already exists"}
		case errors.Is(err, model.ErrNotFound):
			return model.PullRequest{}, apierrors.APIError{Code: apierrors.NotFound, Message: "author not found or not assigned to a team"}
		case errors.Is(err, model.ErrNoCandidate):
			return model.PullRequest{}, apierrors.APIError{Code: apierrors.NoCandidate, Message: "no active reviewer candidate in team"}
		}
		return model.PullRequest{}, err
	}
	return created, nil
}

func (s *Service) MergePR(ctx context.Context, prID string) (model.PullRequest, error) {
	pr, err := s.repo.MergePullRequest(ctx, prID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			return model.PullRequest{}, apierrors.APIError{Code: apierrors.NotFound, Message: "PR not found"}
		case errors.Is(err, model.ErrAlreadyMerged):
			return model.PullRequest{}, apierrors.APIError{Code: apierrors.PRAlreadyMerged, Message: "PR is already merged"}
		}
		return model.PullRequest{}, err
	}
	return pr, nil
}

func (s *Service) ReassignReviewer(ctx context.Context, prID, oldReviewerID string) (model.PullRequest, string, error) {
	pr, newReviewer, err := s.repo.ReassignReviewer(ctx, prID, oldReviewerID, SelectReviewer)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			return model.PullRequest{}, "", apierrors.APIError{Code: apierrors.NotFound, Message: "PR not found"}
		case errors.Is(err, model.ErrAlreadyMerged):
			return model.PullRequest{}, "", apierrors.APIError{Code: apierrors.PRAlreadyMerged, Message: "cannot reassign on merged PR"}
		case errors.Is(err, model.ErrNotAssigned):
			return model.PullRequest{}, "", apierrors.APIError{Code: apierrors.NotAssigned, Message: "reviewer is not assigned to this PR"}
		case errors.Is(err, model.ErrNoCandidate):
			return model.PullRequest{}, "", apierrors.APIError{Code: apierrors.NoCandidate, Message: "no active replacement candidate in team"}
		}
		return model.PullRequest{}, "", err
	}
	return pr, newReviewer, nil
}

func (s *Service) GetPRsForReviewer(ctx context.Context, userID string) ([]model.PullRequestShort, error) {
	prs, err := s.repo.ListOpenReviews(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, apierrors.APIError{Code: apierrors.NotFound, Message: "user not found"}
		}
		return nil, err
	}
	return prs, nil
}

func (s *Service) UserAssignmentStats(ctx context.Context) (map[string]int, error) {
	return s.repo.OpenReviewCounts(ctx)
}

func (s *Service) Reset(ctx context.Context) error {
	s.log.Warn("resetting all stored data")
	return s.repo.Reset(ctx)
}

func (s *Service) Health(ctx context.Context) error {
	return s.repo.Health(ctx)
}
