package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/johndosdos/skillxchange/internal/apperr"
)

var (
	validate      = validator.New(validator.WithRequiredStructEnabled())
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

func init() {
	_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRegex.MatchString(fl.Field().String())
	})
}

// SendMessageRequest is the body of POST /api/messages.
type SendMessageRequest struct {
	From    string `json:"from" validate:"required"`
	To      string `json:"to" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// MarkReadRequest is the body of POST /api/messages/mark-read.
type MarkReadRequest struct {
	UserID     string `json:"userId" validate:"required"`
	FromUserID string `json:"fromUserId" validate:"required"`
}

type RegisterRequest struct {
	Username          string `json:"username" validate:"required,min=3,max=30,username"`
	Email             string `json:"email" validate:"required,email"`
	Password          string `json:"password" validate:"required,min=6,max=72"`
	FirstName         string `json:"firstName" validate:"max=50"`
	LastName          string `json:"lastName" validate:"max=50"`
	Location          string `json:"location" validate:"max=100"`
	SkillsOffered     Skills `json:"skillsOffered"`
	SkillsWanted      Skills `json:"skillsWanted"`
	Availability      string `json:"availability"`
	ProfileVisibility string `json:"profileVisibility" validate:"omitempty,oneof=public private"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

var fieldMessages = map[string]string{
	"Username.min":            "Username must be between 3 and 30 characters",
	"Username.max":            "Username must be between 3 and 30 characters",
	"Username.username":       "Username can only contain letters, numbers, and underscores",
	"Email.email":             "Please enter a valid email",
	"Password.min":            "Password must be at least 6 characters long",
	"Location.max":            "Location cannot exceed 100 characters",
	"ProfileVisibility.oneof": "Profile visibility must be either public or private",
}

// Validate checks v's struct tags and returns a validation error naming the
// first failing field. Missing required fields report "Missing fields".
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("Invalid request")
	}

	fe := verrs[0]
	if fe.Tag() == "required" {
		return apperr.Validation("Missing fields")
	}
	if msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]; ok {
		return apperr.Validation(msg)
	}
	return apperr.Validation(fmt.Sprintf("%s is invalid", strings.ToLower(fe.Field()[:1])+fe.Field()[1:]))
}
