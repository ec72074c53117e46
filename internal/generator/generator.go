// Package generator adapts generative backends to the larder recomputation
// gate. A Generator turns canonical inputs for one artifact kind into raw
// text; repairing that text is the normalizer's job.
package generator

import (
	"context"
	"errors"
	"sync"

	"github.com/dyluth/larder/pkg/larder"
)

// ErrNoOutput is returned when a backend answers without any text.
var ErrNoOutput = errors.New("generator returned no output")

// Request is one generation call.
type Request struct {
	Kind    larder.Kind
	Subject larder.Subject
	Inputs  Inputs
}

// Generator produces raw artifact text for a request. Implementations must be
// safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Func adapts a plain function to the Generator interface.
type Func func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Static is a Generator answering every request with fixed text, or with Err
// when set. It is used for offline runs and tests.
type Static struct {
	Text string
	Err  error

	mu    sync.Mutex
	calls int
}

// Generate returns the fixed answer.
func (s *Static) Generate(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Err != nil {
		return "", s.Err
	}
	return s.Text, nil
}

// Calls returns how many requests the generator has answered.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
