package directory

import (
	"context"
	"errors"

	"github.com/ivanhoe/elixirconf-chat/internal/types"
)

// ErrNotFound is returned when no user exists for the given id or email.
var ErrNotFound = errors.New("user not found")

// Directory resolves user identifiers to user records. The room actor
// depends on it during join; the transport layer additionally uses it
// for registration and login.
type Directory interface {
	Ping() error
	GetUser(ctx context.Context, id int) (types.User, error)
	GetUserByEmail(ctx context.Context, email string) (types.User, error)
	CreateUser(ctx context.Context, params CreateUserParams) (types.User, error)
	VerifyCredentials(ctx context.Context, email, password string) (types.User, error)
}

type CreateUserParams struct {
	Username     string
	EmailAddress string
	Password     string
	Moderator    bool
}
