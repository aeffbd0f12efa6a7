package slotapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Error categories. Check them with errors.Is from github.com/cockroachdb/errors.
var (
	ErrNetwork      = errors.New("network error")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation error")
	ErrProtocol     = errors.New("protocol error")
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx answer from the backend. Detail is shown to users verbatim.
type APIError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %s: backend responded %d", e.Method, e.Path, e.Status)
	}
	return e.Detail
}

// Detail returns the backend's detail message carried by err, if any.
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

// UserMessage is the text an inline status line shows for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if d := Detail(err); d != "" {
		return d
	}
	switch {
	case errors.Is(err, ErrNetwork):
		return "Network Error."
	case errors.Is(err, ErrUnauthorized):
		return "Invalid credentials."
	case errors.Is(err, ErrValidation):
		return "Invalid inputs."
	default:
		return err.Error()
	}
}

// reads never carry business-rule rejections, so anything unexpected is a network failure
func classifyRead(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return ErrNetwork
	}
}

func classifyWrite(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict:
		return ErrConflict
	case http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return ErrNetwork
	}
}

// parseDetail extracts `detail` from an error body. FastAPI validation
// failures carry a list of {msg}; the first message is used.
func parseDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &items); err == nil && len(items) > 0 {
		return items[0].Msg
	}

	return string(body.Detail)
}
