package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrMedicationInvalid  = &AppError{Code: "MED_001", Message: "invalid medication"}
	ErrMedicationNotFound = &AppError{Code: "MED_002", Message: "medication not found"}
	ErrMedicationOwner    = &AppError{Code: "MED_003", Message: "medication belongs to another user"}
	ErrDoseTimeNotFound   = &AppError{Code: "MED_004", Message: "dose time not found"}

	ErrDoseLogNotFound = &AppError{Code: "LOG_001", Message: "dose log not found"}
	ErrDoseLogConflict = &AppError{Code: "LOG_002", Message: "dose log already exists"}

	ErrUserNotFound   = &AppError{Code: "USER_001", Message: "user not found"}
	ErrUserExists     = &AppError{Code: "USER_002", Message: "user already exists"}
	ErrInviteNotFound = &AppError{Code: "USER_003", Message: "invite not found"}
	ErrNotLinked      = &AppError{Code: "USER_004", Message: "no caretaker relationship"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}
	ErrForbidden    = &AppError{Code: "AUTH_002", Message: "forbidden"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
	ErrStore      = &AppError{Code: "GEN_004", Message: "store failure"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
