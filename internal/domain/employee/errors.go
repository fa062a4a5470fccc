package employee

import "github.com/go-faster/errors"

var (
	ErrNotFound                      = errors.New("record not found")
	ErrInvalidDocumentKind           = errors.New("invalid document kind")
	ErrStorage                       = errors.New("document storage failed")
	ErrRowRejected                   = errors.New("row rejected")
	ErrNotInactive                   = errors.New("record is not inactive")
	ErrRestoreRequiresContractChange = errors.New("must update contract to restore")
)

// ValidationError reports a single bad input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AsValidation unwraps a *ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
