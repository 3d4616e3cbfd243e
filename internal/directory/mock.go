package directory

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ivanhoe/elixirconf-chat/internal/types"
)

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDirectory) GetUser(ctx context.Context, id int) (types.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *MockDirectory) GetUserByEmail(ctx context.Context, email string) (types.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *MockDirectory) CreateUser(ctx context.Context, params CreateUserParams) (types.User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *MockDirectory) VerifyCredentials(ctx context.Context, email, password string) (types.User, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(types.User), args.Error(1)
}
