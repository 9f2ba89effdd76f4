package entrata

import (
	"encoding/json"
	"strings"
)

// Outcome is the classified result of one posting call.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeDuplicate
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "error"
	}
}

// duplicateTokens mark a response as a duplicate-invoice rejection.
// Both status and message are scanned, before the generic status check:
// some tenants return status=error with a duplicate message, others put
// the word in the status itself, and resubmitting either under a
// suffixed invoice number succeeds.
var duplicateTokens = []string{
	"duplicate",
	"already exists",
	"already posted",
	"invoice exists",
}

// successStatuses are the status values that count as accepted.
var successStatuses = map[string]bool{
	"ok":      true,
	"success": true,
}

// Classify inspects a raw response body. Returns the outcome and the
// message extracted from the response.
func Classify(raw []byte) (Outcome, string) {
	status, message := parseResponse(raw)

	lower := strings.ToLower(status + " " + message)
	for _, token := range duplicateTokens {
		if strings.Contains(lower, token) {
			return OutcomeDuplicate, message
		}
	}
	if successStatuses[strings.ToLower(status)] {
		return OutcomeSuccess, message
	}
	return OutcomeError, message
}

// parseResponse digs status and message out of the envelope, tolerating
// the shapes different tenants emit: top-level fields, a result wrapper,
// or an error object.
func parseResponse(raw []byte) (status, message string) {
	var envelope struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Result  struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"result"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Response struct {
			Result struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			} `json:"result"`
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"response"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", string(raw)
	}

	status = firstNonEmpty(envelope.Status, envelope.Result.Status, envelope.Response.Result.Status)
	message = firstNonEmpty(envelope.Message, envelope.Result.Message,
		envelope.Response.Result.Message, envelope.Error.Message,
		envelope.Response.Error.Message)
	return status, message
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
