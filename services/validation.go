package services

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateSendMessage checks that content, sender and receiver are present
// and that content fits in maxContentLength bytes (no limit when <= 0).
func ValidateSendMessage(cmd chat.SendMessageCommand, maxContentLength int) error {
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrValidation, err)
	}
	if maxContentLength > 0 && len(cmd.Content) > maxContentLength {
		return fmt.Errorf("%w: content exceeds %d bytes", errors.ErrValidation, maxContentLength)
	}
	return nil
}
