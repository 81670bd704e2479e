package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pipedeck/pipedeck/internal/api"
)

// ResponseError is returned when the server answered with a non-success status.
type ResponseError struct {
	Method string
	URL    string
	Status int
	Body   string
	// Message is the structured "error" field of the body, if present.
	Message string
}

func (e *ResponseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API Error (%d): %s", e.Status, e.Message)
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		return fmt.Sprintf("API Error (%d): %s", e.Status, body)
	}
	return fmt.Sprintf("API Error (%d)", e.Status)
}

// TransportError is returned when a request was sent but no response arrived.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: no response received: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RequestError is returned when the request could not be constructed.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("cannot setup request: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func newResponseError(method, url string, status int, body []byte) *ResponseError {
	respErr := &ResponseError{
		Method: method,
		URL:    url,
		Status: status,
		Body:   string(body),
	}
	var apiErr api.APIError
	if err := json.Unmarshal(body, &apiErr); err == nil {
		respErr.Message = strings.TrimSpace(apiErr.Error)
	}
	return respErr
}
