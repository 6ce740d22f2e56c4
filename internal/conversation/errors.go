package conversation

import (
	"errors"
	"fmt"

	"aprs-friend-alert/internal/directory"
	"aprs-friend-alert/internal/follow"
)

// UserError is a problem caused by the user's input. Its message is sent back
// verbatim and the dialog stays where it was.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

func userErr(format string, args ...interface{}) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// asUserError translates domain errors that are the user's to fix.
func asUserError(err error) (*UserError, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue, true
	}
	switch {
	case errors.Is(err, directory.ErrCannotDeleteSelf):
		return &UserError{Message: "You cannot delete yourself (cannot delete self)."}, true
	case errors.Is(err, directory.ErrAddressIndex):
		return &UserError{Message: "There is no address with that number. Use /show to list them."}, true
	case errors.Is(err, directory.ErrDuplicateLabel):
		return &UserError{Message: "You already have an address with that label."}, true
	case errors.Is(err, directory.ErrEmptyName):
		return &UserError{Message: "The name must not be empty."}, true
	case errors.Is(err, directory.ErrUnknownUser):
		return &UserError{Message: "I don't know that user."}, true
	case errors.Is(err, follow.ErrNoRecipients):
		return &UserError{Message: "There is nobody to alert."}, true
	case errors.Is(err, follow.ErrInvalidDestination):
		return &UserError{Message: "The destination has invalid coordinates."}, true
	}
	return nil, false
}
