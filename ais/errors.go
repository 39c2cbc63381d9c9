package ais

import (
	"fmt"
	"strings"
)

// RemoteError describes a response the authority did not answer with a
// signature.
type RemoteError struct {
	StatusCode  int
	ResultMajor string
	ResultMinor string
	Message     string
	// Body is the start of the raw response.
	Body string
}

func newRemoteError(status int, result Status, body []byte) *RemoteError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &RemoteError{
		StatusCode:  status,
		ResultMajor: result.ResultMajor,
		ResultMinor: result.ResultMinor,
		Message:     result.Message(),
		Body:        string(body),
	}
}

func (e *RemoteError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	if e.ResultMajor != "" {
		parts = append(parts, e.ResultMajor)
	}
	if e.ResultMinor != "" {
		parts = append(parts, e.ResultMinor)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	return "remote signing failed: " + strings.Join(parts, ", ")
}
