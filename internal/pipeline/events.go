// Package pipeline provides the event bus that connects stage processors.
// Processors subscribe by key prefix; writing an object into a stage's
// prefix is the only trigger mechanism in the system.
package pipeline

import "time"

// ObjectCreated is the native event shape: an object landed at Key.
// Delivery is at-least-once; every processor must be idempotent on Key.
type ObjectCreated struct {
	Key  string    `json:"key"`
	Time time.Time `json:"time"`
}

// FailurePayload wraps an original event after an invocation-level
// failure (timeout, out-of-memory). The failure router consumes these.
type FailurePayload struct {
	RequestPayload ObjectCreated `json:"requestPayload"`
	ErrorType      string        `json:"errorType"`
	ErrorMessage   string        `json:"errorMessage"`
}
