package chat

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ivanhoe/elixirconf-chat/internal/types"
)

// PostParams is the unvalidated input to a post operation.
type PostParams struct {
	UserId   int       `json:"user_id" validate:"required"`
	Body     string    `json:"body" validate:"required,max=1024"`
	PostedAt time.Time `json:"posted_at"`
}

// Validator turns raw post parameters into messages, enforcing field
// presence and size rules.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (v *Validator) Validate(params PostParams) (types.Message, error) {
	if err := v.validate.Struct(params); err != nil {
		return types.Message{}, fmt.Errorf("validate message: %w", err)
	}

	postedAt := params.PostedAt
	if postedAt.IsZero() {
		postedAt = Now()
	}

	return types.Message{
		Id:       uuid.New(),
		UserId:   params.UserId,
		Body:     params.Body,
		PostedAt: postedAt,
	}, nil
}
