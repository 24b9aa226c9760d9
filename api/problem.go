// Package api holds the HTTP-facing error envelope used before a
// connection is upgraded to a websocket. After the upgrade all errors are
// conveyed in-protocol or via close codes.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// Problem is an RFC 7807 style error body.
type Problem struct {
	Type   string         `json:"type"`
	Title  string         `json:"title"`
	Status int            `json:"status"`
	Code   string         `json:"code"`
	Detail string         `json:"detail,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
	RID    string         `json:"rid"`
}

// NewRID stamps a fresh request id on the response and returns it.
func NewRID(w http.ResponseWriter) string {
	rid := uuid.NewString()
	w.Header().Set("X-Request-ID", rid)
	return rid
}

// WriteProblem renders an application/problem+json response.
func WriteProblem(w http.ResponseWriter, rid string, status int, code, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Code:   code,
		Detail: detail,
		RID:    rid,
	})
}
