package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	pe "github.com/brightpath-pm/billflow/internal/errors"
)

// GeminiClient implements Client against the Google AI API. One genai
// client is built per API key and cached, so deterministic key rotation
// by the callers maps onto distinct authenticated clients.
type GeminiClient struct {
	model   string
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiClient creates a client for the given model. timeout bounds
// each generateContent call.
func NewGeminiClient(model string, timeout time.Duration) *GeminiClient {
	return &GeminiClient{
		model:   model,
		timeout: timeout,
		clients: make(map[string]*genai.Client),
	}
}

func (g *GeminiClient) clientFor(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, pe.Wrap(err, pe.KindTransport, "create gemini client")
	}
	g.clients[apiKey] = c
	return c, nil
}

// GeneratePDF sends the PDF inline with the prompt.
func (g *GeminiClient) GeneratePDF(ctx context.Context, apiKey string, pdf []byte, prompt string) (string, error) {
	return g.generate(ctx, apiKey,
		genai.Blob{MIMEType: "application/pdf", Data: pdf},
		genai.Text(prompt),
	)
}

// GenerateText sends a text-only prompt.
func (g *GeminiClient) GenerateText(ctx context.Context, apiKey string, prompt string) (string, error) {
	return g.generate(ctx, apiKey, genai.Text(prompt))
}

func (g *GeminiClient) generate(ctx context.Context, apiKey string, parts ...genai.Part) (string, error) {
	client, err := g.clientFor(ctx, apiKey)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	model := client.GenerativeModel(g.model)
	resp, err := model.GenerateContent(callCtx, parts...)
	if err != nil {
		return "", classify(err)
	}
	return flatten(resp)
}

// Close releases every cached per-key client.
func (g *GeminiClient) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var firstErr error
	for key, c := range g.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(g.clients, key)
	}
	return firstErr
}

// classify maps a Gemini transport error to the pipeline taxonomy: 429
// is rate_limit (forces immediate key rotation), deadline exceeded is
// timeout, anything else is transport.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return pe.Wrap(err, pe.KindRateLimit, "gemini rate limited")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pe.Wrap(err, pe.KindTimeout, "gemini call deadline exceeded")
	}
	// The SDK sometimes surfaces 429s as plain formatted errors.
	if strings.Contains(err.Error(), "429") || strings.Contains(strings.ToLower(err.Error()), "resource exhausted") {
		return pe.Wrap(err, pe.KindRateLimit, "gemini rate limited")
	}
	return pe.Wrap(err, pe.KindTransport, "gemini call failed")
}

// flatten concatenates the text parts of the first candidate.
func flatten(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", pe.New(pe.KindTransport, "gemini returned no candidates")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", pe.New(pe.KindTransport, "gemini candidate had no text parts")
	}
	return sb.String(), nil
}

// String describes the client for logs.
func (g *GeminiClient) String() string {
	return fmt.Sprintf("gemini(%s)", g.model)
}
