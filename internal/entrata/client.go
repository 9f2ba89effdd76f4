// Package entrata posts reviewed invoice batches to the Entrata
// accounting API and interprets its famously inconsistent responses.
package entrata

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	pe "github.com/brightpath-pm/billflow/internal/errors"
)

// Client speaks the Entrata JSON-RPC-ish envelope: one POST per call,
// auth block plus request id plus method name and params.
type Client struct {
	BaseURL    string
	Username   string
	Password   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

type request struct {
	Auth      auth   `json:"auth"`
	RequestID string `json:"requestId"`
	Method    method `json:"method"`
}

type auth struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type method struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Params  any    `json:"params"`
}

// Call posts one method invocation and returns the raw response body for
// classification.
func (c *Client) Call(ctx context.Context, name string, params any) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(request{
		Auth:      auth{Type: "basic", Username: c.Username, Password: c.Password},
		RequestID: uuid.NewString(),
		Method:    method{Name: name, Version: "r1", Params: params},
	})
	if err != nil {
		return nil, pe.Wrap(err, pe.KindInternal, "encode entrata request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, pe.Wrap(err, pe.KindInternal, "build entrata request")
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, pe.Wrap(err, pe.KindTimeout, "entrata call timed out")
		}
		return nil, pe.Wrap(err, pe.KindTransport, "entrata call failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, pe.Wrap(err, pe.KindTransport, "read entrata response")
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return raw, pe.New(pe.KindAccessDenied, "entrata rejected credentials")
	case resp.StatusCode >= 500:
		return raw, pe.Newf(pe.KindTransport, "entrata returned %d", resp.StatusCode)
	}
	// 4xx bodies still carry a classifiable status and message.
	return raw, nil
}
