package takeoff

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("takeoff: %d %s: %s", e.Status, e.Code, e.Message)
}

// IsConflict reports whether the server rejected the request because a
// run is already in progress or measurements already exist.
func (e *APIError) IsConflict() bool { return e.Status == http.StatusConflict }

// IsNotFound reports whether the referenced entity does not exist.
func (e *APIError) IsNotFound() bool { return e.Status == http.StatusNotFound }

func apiErrorFrom(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: "unknown", Message: string(raw)}
	}
	return &APIError{Status: resp.StatusCode, Code: body.Code, Message: body.Message}
}
