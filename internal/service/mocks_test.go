package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"

	"winbridge/internal/models"
	"winbridge/internal/queue"
	"winbridge/pkg/discord/types"
)

func newTestLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendDirect(ctx context.Context, userID string, msg models.OutboundMessage) error {
	args := m.Called(ctx, userID, msg)
	return args.Error(0)
}

type mockResponder struct {
	mock.Mock
}

func (m *mockResponder) Reply(ctx context.Context, action models.ActionEvent, content string, ephemeral bool) error {
	args := m.Called(ctx, action, content, ephemeral)
	return args.Error(0)
}

func (m *mockResponder) UpdatePrompt(ctx context.Context, action models.ActionEvent, content string) error {
	args := m.Called(ctx, action, content)
	return args.Error(0)
}

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) IsSignificant(ctx context.Context, content string, hasAttachment bool) bool {
	args := m.Called(ctx, content, hasAttachment)
	return args.Bool(0)
}

type mockApprovals struct {
	mock.Mock
}

func (m *mockApprovals) RequestApproval(ctx context.Context, msg models.InboundMessage, source string) bool {
	args := m.Called(ctx, msg, source)
	return args.Bool(0)
}

func (m *mockApprovals) HandleAction(ctx context.Context, action models.ActionEvent) models.Resolution {
	args := m.Called(ctx, action)
	return args.Get(0).(models.Resolution)
}

type mockRESTClient struct {
	mock.Mock
}

func (m *mockRESTClient) CreateDM(ctx context.Context, recipientID string) (*types.Channel, error) {
	args := m.Called(ctx, recipientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Channel), args.Error(1)
}

func (m *mockRESTClient) SendMessage(ctx context.Context, channelID string, msg types.MessageCreate) (*types.Message, error) {
	args := m.Called(ctx, channelID, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Message), args.Error(1)
}

func (m *mockRESTClient) GetUser(ctx context.Context, userID string) (*types.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *mockRESTClient) RespondToInteraction(ctx context.Context, interactionID, token string, resp types.InteractionResponse) error {
	args := m.Called(ctx, interactionID, token, resp)
	return args.Error(0)
}

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) FlushDue(ctx context.Context, now time.Time) int {
	args := m.Called(ctx, now)
	return args.Int(0)
}

func (m *mockQueue) Stats() queue.Stats {
	args := m.Called()
	return args.Get(0).(queue.Stats)
}

func (m *mockQueue) StaleCount(now time.Time, threshold time.Duration) int {
	args := m.Called(now, threshold)
	return args.Int(0)
}

type mockExpirer struct {
	mock.Mock
}

func (m *mockExpirer) Expire(now time.Time, ttl time.Duration) int {
	args := m.Called(now, ttl)
	return args.Int(0)
}

func (m *mockExpirer) PendingCount() int {
	args := m.Called()
	return args.Int(0)
}
