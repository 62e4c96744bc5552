package generation

import "fmt"

// ValidationError is returned before any request is sent
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// TransportError covers network failures and non-2xx responses
type TransportError struct {
	StatusCode int    // 0 when no response was received
	Detail     string // backend-provided detail, if any
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("Failed to generate music: %v", e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("Failed to generate music (HTTP %d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("Failed to generate music (HTTP %d)", e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FormatError is returned when the backend answers with an unexpected shape
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "Unexpected API response format: " + e.Reason
}
