package audit

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Event is the immutable record of one audited invocation. Exactly one of
// Result and Failure is present.
type Event struct {
	id        string
	timestamp time.Time
	duration  time.Duration

	target    TypeRef
	operation Operation
	args      []any
	result    any
	failure   error

	actorID   string
	traceID   string
	requestID string
	metadata  map[string]string
}

func (e Event) ID() string                  { return e.id }
func (e Event) Timestamp() time.Time        { return e.timestamp }
func (e Event) Duration() time.Duration     { return e.duration }
func (e Event) TargetType() TypeRef         { return e.target }
func (e Event) ActorID() string             { return e.actorID }
func (e Event) TraceID() string             { return e.traceID }
func (e Event) RequestID() string           { return e.requestID }
func (e Event) Succeeded() bool             { return e.failure == nil }
func (e Event) Metadata() map[string]string { return maps.Clone(e.metadata) }

func (e Event) Operation() Operation {
	op := e.operation
	op.Params = slices.Clone(op.Params)
	return op
}

// Arguments returns the call inputs in call-site order.
func (e Event) Arguments() []any {
	return slices.Clone(e.args)
}

// Result returns the produced value and true when the call succeeded.
func (e Event) Result() (any, bool) {
	if e.failure != nil {
		return nil, false
	}
	return e.result, true
}

// Failure returns the failure and true when the call failed.
func (e Event) Failure() (error, bool) {
	return e.failure, e.failure != nil
}

type failureRecord struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type eventRecord struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	DurationMs float64           `json:"duration_ms"`
	TargetType string            `json:"target_type,omitempty"`
	Operation  string            `json:"operation"`
	Arguments  []any             `json:"arguments"`
	Outcome    string            `json:"outcome"`
	Result     *any              `json:"result,omitempty"`
	Failure    *failureRecord    `json:"failure,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	TraceID    string            `json:"trace_id,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// MarshalJSON renders the wire format shared by the JSON based sinks.
func (e Event) MarshalJSON() ([]byte, error) {
	rec := eventRecord{
		ID:         e.id,
		Timestamp:  e.timestamp,
		DurationMs: float64(e.duration) / float64(time.Millisecond),
		TargetType: e.target.String(),
		Operation:  e.operation.String(),
		Arguments:  e.args,
		ActorID:    e.actorID,
		TraceID:    e.traceID,
		RequestID:  e.requestID,
		Metadata:   e.metadata,
	}
	if rec.Arguments == nil {
		rec.Arguments = []any{}
	}

	if e.failure != nil {
		rec.Outcome = "failure"
		rec.Failure = &failureRecord{
			Type:    failureType(e.failure),
			Message: e.failure.Error(),
		}
	} else {
		rec.Outcome = "success"
		result := e.result
		rec.Result = &result
	}

	return json.Marshal(rec)
}

func failureType(err error) string {
	if p, ok := err.(*PanicError); ok {
		return fmt.Sprintf("panic(%T)", p.Value)
	}
	return fmt.Sprintf("%T", err)
}
