package mocks

import (
	"context"

	"github.com/absmach/disttrain/run"
	"github.com/absmach/disttrain/trainer"
	"github.com/stretchr/testify/mock"
)

var _ trainer.Service = (*MockService)(nil)

// MockService is a mock implementation of the trainer.Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) SynchronizeModelParameters(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockService) Train(ctx context.Context) (trainer.Report, error) {
	args := m.Called(ctx)
	return args.Get(0).(trainer.Report), args.Error(1)
}

func (m *MockService) TrainWithRetries(ctx context.Context, maxRetries int) trainer.Outcome {
	args := m.Called(ctx, maxRetries)
	return args.Get(0).(trainer.Outcome)
}

func (m *MockService) Status() trainer.Status {
	args := m.Called()
	return args.Get(0).(trainer.Status)
}

func (m *MockService) Info() trainer.Info {
	args := m.Called()
	return args.Get(0).(trainer.Info)
}

// GatherResults returns nil predictions unless the first return value is set
func (m *MockService) GatherResults(ctx context.Context) ([][]float64, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([][]float64), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockService) ListRuns(ctx context.Context, offset, limit uint64) (run.RunPage, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).(run.RunPage), args.Error(1)
}

func (m *MockService) GetRun(ctx context.Context, id string) (run.Run, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(run.Run), args.Error(1)
}
