package errors

// Response is the wire-friendly form of an AppError for the consuming
// application's API layer. Cause is intentionally omitted.
type Response struct {
	Code        ErrorCode      `json:"code"`
	Message     string         `json:"message"`
	NextStep    string         `json:"next_step,omitempty"`
	Retryable   bool           `json:"retryable"`
	Details     map[string]any `json:"details,omitempty"`
}

// ToResponse converts the error to its user-facing response form. The log
// message is replaced by the user-safe message when one is set.
func (e *AppError) ToResponse() Response {
	msg := e.Message
	if e.UserMessage != "" {
		msg = e.UserMessage
	}
	return Response{
		Code:      e.Code,
		Message:   msg,
		NextStep:  e.NextStep,
		Retryable: e.Retryable,
		Details:   e.Details,
	}
}
