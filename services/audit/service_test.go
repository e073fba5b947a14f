package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/mcp-auth-gateway/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockAuditRepository is a mock implementation of AuditRepository
type MockAuditRepository struct {
	mock.Mock
	mu           sync.Mutex
	insertedLogs []*models.AuditLog
}

func (m *MockAuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	args := m.Called(ctx, log)
	m.insertedLogs = append(m.insertedLogs, log)
	return args.Error(0)
}

func (m *MockAuditRepository) ListRecent(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, limit)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) GetInsertedLogs() []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AuditLog, len(m.insertedLogs))
	copy(out, m.insertedLogs)
	return out
}

func TestAuditService_StartStop(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, service.Start())
	assert.Error(t, service.Start(), "second start is rejected")
	assert.True(t, service.GetStats().Started)

	require.NoError(t, service.Stop(time.Second))
	assert.False(t, service.GetStats().Started)
	assert.Error(t, service.Stop(time.Second))
}

func TestAuditService_LogEvent(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, service.Start())

	entry := models.NewAuditLog(models.AuditActionAuthSucceeded, "api_token", true).WithPrincipal("user-1")
	require.NoError(t, service.LogEvent(entry))

	// Stop drains the queue
	require.NoError(t, service.Stop(5*time.Second))

	logs := mockRepo.GetInsertedLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditActionAuthSucceeded, logs[0].Action)
	assert.Equal(t, "user-1", models.StringValue(logs[0].PrincipalID))
}

func TestAuditService_LogEventBlocking(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, service.Start())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, service.LogEventBlocking(ctx, models.NewAuditLog(models.AuditActionTokenIssued, "cli", true)))
	}
	require.NoError(t, service.Stop(5*time.Second))

	assert.Len(t, mockRepo.GetInsertedLogs(), 5)
}

func TestAuditService_NotStarted(t *testing.T) {
	service := NewAuditService(new(MockAuditRepository), zap.NewNop(), DefaultConfig())

	assert.Error(t, service.LogEvent(models.NewAuditLog(models.AuditActionAuthFailed, "jwt", false)))
	assert.Error(t, service.LogEventBlocking(context.Background(), models.NewAuditLog(models.AuditActionAuthFailed, "jwt", false)))
}

func TestAuditService_BufferFullDrops(t *testing.T) {
	release := make(chan struct{})
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		<-release
	})

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, service.Start())

	var failures int
	for i := 0; i < 10; i++ {
		if err := service.LogEvent(models.NewAuditLog(models.AuditActionAuthFailed, "jwt", false)); err != nil {
			failures++
		}
	}
	assert.Greater(t, failures, 0)
	assert.Equal(t, uint64(failures), service.GetStats().Dropped)

	close(release)
	require.NoError(t, service.Stop(5*time.Second))
}

func TestAuditService_InsertErrorKeepsWorking(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, service.Start())

	service.Record(models.NewAuditLog(models.AuditActionSecretSet, "http", true))
	service.Record(models.NewAuditLog(models.AuditActionSecretDeleted, "http", true))
	require.NoError(t, service.Stop(5*time.Second))

	assert.Len(t, mockRepo.GetInsertedLogs(), 2)
}

func TestAuditService_RecordNilSafe(t *testing.T) {
	var service *AuditService
	assert.NotPanics(t, func() {
		service.Record(models.NewAuditLog(models.AuditActionAuthFailed, "jwt", false))
	})
	assert.NotPanics(t, func() { Discard.Record(nil) })
}

func TestAuditService_Recent(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	want := []*models.AuditLog{models.NewAuditLog(models.AuditActionJWTIssued, "cli", true)}
	mockRepo.On("ListRecent", mock.Anything, 20).Return(want, nil)

	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())
	got, err := service.Recent(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))

	entry := models.NewAuditLog(models.AuditActionAuthFailed, "api_token", false).
		WithReason("API token has expired").
		WithResource("whoami")
	require.NoError(t, sink.Insert(context.Background(), entry))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "auth_failed", fields["action"])
	assert.Equal(t, "api_token", fields["method"])
	assert.Equal(t, false, fields["success"])
	assert.Equal(t, "API token has expired", fields["reason"])
	assert.Equal(t, "whoami", fields["resource"])
	assert.NotContains(t, fields, "principal_id")

	recent, err := sink.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
