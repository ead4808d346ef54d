package response

import (
	"encoding/json"
	"net/http"

	"github.com/godamri/helix-audit/pkg/contextx"
)

type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
	Meta    Meta   `json:"meta"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Meta struct {
	TraceID   string `json:"trace_id"`
	RequestID string `json:"request_id,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, status, Envelope{
		Success: true,
		Data:    data,
		Meta:    metaFrom(r),
	})
}

// ErrorJSON writes an error envelope. A zero status is derived from code.
func ErrorJSON(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if status == 0 {
		status = MapStatus(code)
	}
	write(w, status, Envelope{
		Success: false,
		Error:   &Error{Code: code, Message: message},
		Meta:    metaFrom(r),
	})
}

func write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Nothing useful can be done once the header is out.
	_ = json.NewEncoder(w).Encode(payload)
}

func metaFrom(r *http.Request) Meta {
	ctx := r.Context()
	return Meta{
		TraceID:   contextx.GetTraceID(ctx),
		RequestID: contextx.GetRequestID(ctx),
	}
}
