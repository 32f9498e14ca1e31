package httpapi

import "net/http"

// APIError is an error with the HTTP status it should be reported with.
type APIError struct {
	StatusCode int
	Message    string
}

func newAPIError(status int, msg string) APIError {
	return APIError{StatusCode: status, Message: msg}
}

func (e APIError) Error() string {
	return e.Message
}

var (
	ErrUnknownCategory  = newAPIError(http.StatusBadRequest, "unknown category")
	ErrPriceUnavailable = newAPIError(http.StatusNotFound, "price unavailable")
	ErrMalformedBody    = newAPIError(http.StatusBadRequest, "malformed request body")
	ErrAlertNotFound    = newAPIError(http.StatusNotFound, "alert not found")
	ErrInvalidLimit     = newAPIError(http.StatusBadRequest, "invalid 'limit' query parameter: must be a positive integer")
	ErrInvalidMinutes   = newAPIError(http.StatusBadRequest, "invalid 'minutes' query parameter: must be a non-negative integer")
)
