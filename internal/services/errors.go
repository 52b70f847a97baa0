package services

import (
	"errors"
	"fmt"

	"jakob-blog/internal/database"
)

var (
	ErrNotFound    = database.ErrNotFound
	ErrForbidden   = errors.New("forbidden")
	ErrInvalidCode = errors.New("invalid or expired code")
	ErrInactive    = errors.New("user is deactivated")
	ErrLastAdmin   = errors.New("cannot remove the last admin")
)

// ValidationError несёт сообщение, которое можно показать пользователю
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalidf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation сообщает, является ли err ошибкой валидации, и возвращает её текст
func IsValidation(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message, true
	}
	return "", false
}
