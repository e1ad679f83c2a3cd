package llm

// ErrorResponse is the structured error body the relay returns for its own
// failures (validation, credentials). Upstream errors are never re-shaped;
// their status and body pass through verbatim.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the human-readable message.
type ErrorDetail struct {
	Message string `json:"message"`
}

// NewError builds an ErrorResponse with the given message.
func NewError(message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Message: message}}
}
