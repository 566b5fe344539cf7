package model

import (
	"context"
	"sync"
)

// FakeClient is a deterministic test double that replays a fixed sequence of
// responses, one per call to Complete. It never calls out to a provider.
type FakeClient struct {
	mu        sync.Mutex
	responses []Response
	errors    []error
	calls     int
}

// NewFakeClient constructs a FakeClient that returns responses in order, one
// per Complete call. If Complete is called more times than len(responses),
// the last response is repeated.
func NewFakeClient(responses ...Response) *FakeClient {
	return &FakeClient{responses: responses}
}

// WithErrors configures per-call errors returned instead of a response.
// A zero-value entry means "no error for this call".
func (f *FakeClient) WithErrors(errs ...error) *FakeClient {
	f.errors = errs
	return f
}

// Complete returns the next canned response (or error) in sequence.
func (f *FakeClient) Complete(_ context.Context, _ Request) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.calls
	f.calls++

	if idx < len(f.errors) && f.errors[idx] != nil {
		return Response{}, f.errors[idx]
	}
	if len(f.responses) == 0 {
		return Response{}, nil
	}
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

// Stream yields the configured response as a single final chunk.
func (f *FakeClient) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	resp, err := f.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Done: true, Content: resp.Content, Model: resp.Model, OutputTokens: resp.OutputTokens}
	close(ch)
	return ch, nil
}

// Calls reports how many times Complete has been invoked.
func (f *FakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
