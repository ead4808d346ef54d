package response

import "net/http"

// Codes carried in the envelope's error.code field.
const (
	ErrSystem         = "SYS_INTERNAL_ERROR"
	ErrBadRequest     = "SYS_BAD_REQUEST"
	ErrServiceUnavail = "SYS_SERVICE_UNAVAILABLE"

	ErrValidation = "VAL_INVALID_INPUT"

	ErrNotFound      = "RES_NOT_FOUND"
	ErrAlreadyExists = "RES_ALREADY_EXISTS"

	ErrRuleViolation = "BIZ_RULE_VIOLATION"

	// ErrAuditRejected means the operation could not be resolved for auditing
	// and was not executed.
	ErrAuditRejected = "AUD_OPERATION_REJECTED"
)

var statusByCode = map[string]int{
	ErrBadRequest:     http.StatusBadRequest,
	ErrValidation:     http.StatusBadRequest,
	ErrNotFound:       http.StatusNotFound,
	ErrAlreadyExists:  http.StatusConflict,
	ErrRuleViolation:  http.StatusUnprocessableEntity,
	ErrServiceUnavail: http.StatusServiceUnavailable,
}

// MapStatus returns the HTTP status for code. Unknown codes map to 500.
func MapStatus(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
