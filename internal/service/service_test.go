package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/mgorbach/review-assignment-service/internal/api/apierrors"
	"github.com/mgorbach/review-assignment-service/internal/model"
	"github.com/mgorbach/review-assignment-service/internal/store"
)

type MockRepositories struct {
	mock.Mock
}

func (m *MockRepositories) CreateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(model.Team), args.Error(1)
}

func (m *MockRepositories) GetTeam(ctx context.Context, teamName string) (model.Team, error) {
	args := m.Called(ctx, teamName)
	return args.Get(0).(model.Team), args.Error(1)
}

func (m *MockRepositories) DeactivateTeamMembers(ctx context.Context, teamName string) (int, error) {
	args := m.Called(ctx, teamName)
	return args.Int(0), args.Error(1)
}

func (m *MockRepositories) GetUser(ctx context.Context, userID string) (model.User, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockRepositories) SetUserIsActive(ctx context.Context, userID string, isActive bool) (model.User, error) {
	args := m.Called(ctx, userID, isActive)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockRepositories) CreatePullRequest(ctx context.Context, pr model.PullRequest, pick store.PickReviewer) (model.PullRequest, error) {
	args := m.Called(ctx, pr, pick)
	return args.Get(0).(model.PullRequest), args.Error(1)
}

func (m *MockRepositories) MergePullRequest(ctx context.Context, prID string) (model.PullRequest, error) {
	args := m.Called(ctx, prID)
	return args.Get(0).(model.PullRequest), args.Error(1)
}

func (m *MockRepositories) ReassignReviewer(ctx context.Context, prID, oldReviewerID string, pick store.PickReviewer) (model.PullRequest, string, error) {
	args := m.Called(ctx, prID, oldReviewerID, pick)
	return args.Get(0).(model.PullRequest), args.String(1), args.Error(2)
}

func (m *MockRepositories) ListOpenReviews(ctx context.Context, userID string) ([]model.PullRequestShort, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.PullRequestShort), args.Error(1)
}

func (m *MockRepositories) OpenReviewCounts(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *MockRepositories) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRepositories) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func createTestService() (*Service, *MockRepositories) {
	mockRepo := new(MockRepositories)
	return NewService(mockRepo, zap.NewNop()), mockRepo
}

func assertAPICode(t *testing.T, err error, code apierrors.ErrorCode) {
	t.Helper()
	var apiErr apierrors.APIError
	if assert.ErrorAs(t, err, &apiErr) {
		assert.Equal(t, code, apiErr.Code)
	}
}

func TestCreateTeam_Success(t *testing.T) {
	service, mockRepo := createTestService()

	team := model.Team{
		TeamName: "backend",
		Members: []model.TeamMember{
			{UserID: "u1", Username: "Alice", IsActive: true},
			{UserID: "u2", Username: "Bob", IsActive: true},
		},
	}

	mockRepo.On("CreateTeam", mock.Anything, team).Return(team, nil)

	result, err := service.CreateTeam(context.Background(), team)

	assert.NoError(t, err)
	assert.Equal(t, team, result)
	mockRepo.AssertExpectations(t)
}

func TestCreateTeam_AlreadyExists(t *testing.T) {
	service, mockRepo := createTestService()

	team := model.Team{TeamName: "existing"}

	mockRepo.On("CreateTeam", mock.Anything, team).Return(model.Team{}, model.ErrTeamExists)

	result, err := service.CreateTeam(context.Background(), team)

	assertAPICode(t, err, apierrors.TeamExists)
	assert.Equal(t, model.Team{}, result)
}

func TestGetTeam_NotFound(t *testing.T) {
	service, mockRepo := createTestService()

	mockRepo.On("GetTeam", mock.Anything, "ghost").Return(model.Team{}, model.ErrNotFound)

	_, err := service.GetTeam(context.Background(), "ghost")

	assertAPICode(t, err, apierrors.NotFound)
}

func TestDeactivateTeamMembers_Success(t *testing.T) {
	service, mockRepo := createTestService()

	mockRepo.On("DeactivateTeamMembers", mock.Anything, "backend").Return(3, nil)

	count, err := service.DeactivateTeamMembers(context.Background(), "backend")

	assert.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDeactivateTeamMembers_TeamNotFound(t *testing.T) {
	service, mockRepo := createTestService()

	mockRepo.On("DeactivateTeamMembers", mock.Anything, "ghost").Return(0, model.ErrNotFound)

	_, err := service.DeactivateTeamMembers(context.Background(), "ghost")

	assertAPICode(t, err, apierrors.NotFound)
}

func TestSetUserIsActive_Success(t *testing.T) {
	service, mockRepo := createTestService()

	updated := model.User{UserID: "u1", Username: "Alice", TeamName: "backend", IsActive: false}
	mockRepo.On("SetUserIsActive", mock.Anything, "u1", false).Return(updated, nil)

	result, err := service.SetUserIsActive(context.Background(), "u1", false)

	assert.NoError(t, err)
	assert.Equal(t, updated, result)
}

func TestSetUserIsActive_UserNotFound(t *testing.T) {
	service, mockRepo := createTestService()

	mockRepo.On("SetUserIsActive", mock.Anything, "ghost", true).Return(model.User{}, model.ErrNotFound)

	_, err := service.SetUserIsActive(context.Background(), "ghost", true)

	assertAPICode(t, err, apierrors.NotFound)
}

func TestCreatePR_Success(t *testing.T) {
	service, mockRepo := createTestService()

	created := model.PullRequest{
		PullRequestID:   "pr1",
		PullRequestName: "Test PR",
		AuthorID:        "u1",
		Status:          model.StatusOpen,
		ReviewerID:      "u2",
	}

	mockRepo.On("CreatePullRequest", mock.Anything, mock.MatchedBy(func(pr model.PullRequest) bool {
		return pr.PullRequestID == "pr1" &&
			pr.PullRequestName == "Test PR" &&
			pr.AuthorID == "u1"
	}), mock.Anything).Return(created, nil)

	result, err := service.CreatePR(context.Background(), "pr1", "Test PR", "u1")

	assert.NoError(t, err)
	assert.Equal(t, created, result)
	mockRepo.AssertExpectations(t)
}

func TestCreatePR_PassesLeastLoadedPicker(t *testing.T) {
	service, mockRepo := createTestService()

	var captured store.PickReviewer
	mockRepo.On("CreatePullRequest", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).(store.PickReviewer)
		}).
		Return(model.PullRequest{PullRequestID: "pr1"}, nil)

	_, err := service.CreatePR(context.Background(), "pr1", "Test PR", "u1")
	assert.NoError(t, err)

	if assert.NotNil(t, captured) {
		reviewer, pickErr := captured([]model.ReviewerCandidate{
			{UserID: "u2", OpenReviews: 2},
			{UserID: "u3", OpenReviews: 1},
		})
		assert.NoError(t, pickErr)
		assert.Equal(t, "u3", reviewer)
	}
}

func TestCreatePR_DuplicateID(t *testing.T) {
	service, mockRepo := createTestService()

	mockRepo.On("CreatePullRequest", mock.Anything, mock.Anything, mock.Anything).
		Return(model.PullRequest{}, model.ErrPRExists)

	_, err := service.CreatePR(context.Background(), "pr1", "Dup", "u1")

	assertAPICode(t, err, apierrors.PRExists)
}

func TestCreatePR_AuthorUnknown(t *testing.T) {
	service, mockRepo := createTestService()

	mockRepo.On("CreatePullRequest", mock.Anything, mock.Anything, mock.Anything).
		Return(model.PullRequest{}, model.ErrNotFound)

	_, err := service.CreatePR(context.Background(), "pr1", "Test", "unknown")

	assertAPICode(t, err, apierrors.NotFound)
}

func TestCreatePR_NoCandidates(t *testing.T) {
	service, mockRepo := createTestService()

	mockRepo.On("CreatePullRequest", mock.Anything, mock.Anything, mock.Anything).
		Return(model.PullRequest{}, model.ErrNoCandidate)

	_, err := service.CreatePR(context.Background(), "pr1", "Solo", "u1")

	assertAPICode(t, err, apierrors.NoCandidate)
}

func TestMergePR_Success(t *testing.T) {
	service, mockRepo := createTestService()

	merged := model.PullRequest{PullRequestID: "pr1", Status: model.StatusMerged, ReviewerID: "u2"}
	mockRepo.On("MergePullRequest", mock.Anything, "pr1").Return(merged, nil)

	result, err := service.MergePR(context.Background(), "pr1")

	assert.NoError(t, err)
	assert.Equal(t, model.StatusMerged, result.Status)
}

func TestMergePR_NotFound(t *testing.T) {
	service, mockRepo := createTestService()

	mockRepo.On("MergePullRequest", mock.Anything, "ghost").Return(model.PullRequest{}, model.ErrNotFound)

	_, err := service.MergePR(context.Background(), "ghost")

	assertAPICode(t, err, apierrors.NotFound)
}

func TestMergePR_AlreadyMerged(t *testing.T) {
	service, mockRepo := createTestService()

	mockRepo.On("MergePullRequest", mock.Anything, "pr1").Return(model.PullRequest{}, model.ErrAlreadyMerged)

	_, err := service.MergePR(context.Background(), "pr1")

	assertAPICode(t, err, apierrors.PRAlreadyMerged)
}

func TestReassignReviewer_Success(t *testing.T) {
	service, mockRepo := createTestService()

	reassigned := model.PullRequest{PullRequestID: "pr1", Status: model.StatusOpen, ReviewerID: "u3"}
	mockRepo.On("ReassignReviewer", mock.Anything, "pr1", "u2", mock.Anything).
		Return(reassigned, "u3", nil)

	result, newReviewer, err := service.ReassignReviewer(context.Background(), "pr1", "u2")

	assert.NoError(t, err)
	assert.Equal(t, "u3", newReviewer)
	assert.Equal(t, "u3", result.ReviewerID)
}

func TestReassignReviewer_NotAssigned(t *testing.T) {
	service, mockRepo := createTestService()

	mockRepo.On("ReassignReviewer", mock.Anything, "pr1", "intruder", mock.Anything).
		Return(model.PullRequest{}, "", model.ErrNotAssigned)

	_, _, err := service.ReassignReviewer(context.Background(), "pr1", "intruder")

	assertAPICode(t, err, apierrors.NotAssigned)
}

func TestReassignReviewer_MergedPR(t *testing.T) {
	service, mockRepo := createTestService()

	mockRepo.On("ReassignReviewer", mock.Anything, "pr1", "u2", mock.Anything).
		Return(model.PullRequest{}, "", model.ErrAlreadyMerged)

	_, _, err := service.ReassignReviewer(context.Background(), "pr1", "u2")

	assertAPICode(t, err, apierrors.PRAlreadyMerged)
}

func TestReassignReviewer_NoReplacement(t *testing.T) {
	service, mockRepo := createTestService()

	mockRepo.On("ReassignReviewer", mock.Anything, "pr1", "u2", mock.Anything).
		Return(model.PullRequest{}, "", model.ErrNoCandidate)

	_, _, err := service.ReassignReviewer(context.Background(), "pr1", "u2")

	assertAPICode(t, err, apierrors.NoCandidate)
}

func TestGetPRsForReviewer_Success(t *testing.T) {
	service, mockRepo := createTestService()

	prs := []model.PullRequestShort{
		{PullRequestID: "pr2", PullRequestName: "Second", AuthorID: "u1", Status: model.StatusOpen},
		{PullRequestID: "pr1", PullRequestName: "First", AuthorID: "u1", Status: model.StatusOpen},
	}
	mockRepo.On("ListOpenReviews", mock.Anything, "u2").Return(prs, nil)

	result, err := service.GetPRsForReviewer(context.Background(), "u2")

	assert.NoError(t, err)
	assert.Equal(t, prs, result)
}

func TestGetPRsForReviewer_UserNotFound(t *testing.T) {
	service, mockRepo := createTestService()

	mockRepo.On("ListOpenReviews", mock.Anything, "ghost").Return([]model.PullRequestShort(nil), model.ErrNotFound)

	_, err := service.GetPRsForReviewer(context.Background(), "ghost")

	assertAPICode(t, err, apierrors.NotFound)
}

func TestUserAssignmentStats_Passthrough(t *testing.T) {
	service, mockRepo := createTestService()

	counts := map[string]int{"u1": 2, "u2": 1}
	mockRepo.On("OpenReviewCounts", mock.Anything).Return(counts, nil)

	result, err := service.UserAssignmentStats(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, counts, result)
}

func TestUserAssignmentStats_StorageError(t *testing.T) {
	service, mockRepo := createTestService()

	mockRepo.On("OpenReviewCounts", mock.Anything).
		Return(map[string]int(nil), errors.New("connection refused"))

	_, err := service.UserAssignmentStats(context.Background())

	assert.Error(t, err)
}
