package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// APIError is returned for every non-2xx response. Message is the
// server's own explanation when the body carries one.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error (%d) on %s %s", e.StatusCode, e.Method, e.Path)
	}
	return fmt.Sprintf("api error (%d) on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
}

// errorBody is the server's error response format.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newAPIError(status int, method, path string, body []byte) *APIError {
	text := strings.TrimSpace(string(body))
	msg := text

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		switch {
		case eb.Error != "":
			msg = eb.Error
		case eb.Message != "":
			msg = eb.Message
		}
	}
	msg = truncate(msg, maxMessageBytes)

	return &APIError{
		StatusCode: status,
		Method:     method,
		Path:       path,
		Body:       text,
		Message:    msg,
	}
}

// TransportError means the request never produced a usable response:
// the connection failed or the body could not be read or decoded.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request %s %s failed: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsCanceled reports whether err comes from a cancelled request. A
// cancelled request is not a failure.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// StatusCode returns the HTTP status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}
	return apiErr.StatusCode, true
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	code, ok := StatusCode(err)
	return ok && code == status
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// genericFailureMessage is shown when the server could not be reached.
const genericFailureMessage = "Unable to reach the server. Please check your connection and try again."

// UserMessage turns err into text suitable for showing to a user. Server
// validation messages pass through verbatim.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.Message != "" {
			return apiErr.Message
		}
		if apiErr.StatusCode >= 500 {
			return fmt.Sprintf("The server failed to handle the request (%d). Please try again.", apiErr.StatusCode)
		}
		return apiErr.Error()
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return genericFailureMessage
	}
	return err.Error()
}

// maxMessageBytes caps the server message kept in an APIError.
const maxMessageBytes = 500

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
