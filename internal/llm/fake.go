package llm

import (
	"context"
	"sync"
)

// FakeClient is a scripted Client for tests. Replies are returned in
// order; when the script runs out the last entry repeats.
type FakeClient struct {
	mu      sync.Mutex
	replies []fakeReply

	// Calls records the API key used for each call, in order, so tests
	// can assert on rotation.
	Calls []string
	// Prompts records each prompt, so tests can assert on
	// self-correction excerpts and hints.
	Prompts []string
}

type fakeReply struct {
	text string
	err  error
}

// NewFakeClient creates an empty fake; use Reply/Fail to script it.
func NewFakeClient() *FakeClient { return &FakeClient{} }

// Reply appends a successful scripted reply.
func (f *FakeClient) Reply(text string) *FakeClient {
	f.replies = append(f.replies, fakeReply{text: text})
	return f
}

// Fail appends a scripted error.
func (f *FakeClient) Fail(err error) *FakeClient {
	f.replies = append(f.replies, fakeReply{err: err})
	return f
}

func (f *FakeClient) next(apiKey, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, apiKey)
	f.Prompts = append(f.Prompts, prompt)
	if len(f.replies) == 0 {
		return "EMPTY", nil
	}
	idx := len(f.Calls) - 1
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	r := f.replies[idx]
	return r.text, r.err
}

func (f *FakeClient) GeneratePDF(ctx context.Context, apiKey string, pdf []byte, prompt string) (string, error) {
	return f.next(apiKey, prompt)
}

func (f *FakeClient) GenerateText(ctx context.Context, apiKey string, prompt string) (string, error) {
	return f.next(apiKey, prompt)
}

func (f *FakeClient) Close() error { return nil }
