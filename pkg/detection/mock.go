package detection

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-moodguard/pkg/emotion"
)

// Mock implements Classifier for testing.
type Mock struct {
	// LoadModelFunc is called when LoadModel is invoked.
	LoadModelFunc func(ctx context.Context, name, uri string) error

	// ClassifyFunc is called when Classify is invoked.
	ClassifyFunc func(ctx context.Context, jpeg []byte, opts Options) (emotion.Scores, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Args   []string
	Time   time.Time
}

// NewMock creates a mock that loads every model and finds no face.
func NewMock() *Mock {
	return &Mock{}
}

// WithScores creates a mock that always returns scores.
func WithScores(scores emotion.Scores) *Mock {
	m := NewMock()
	m.ClassifyFunc = func(ctx context.Context, jpeg []byte, opts Options) (emotion.Scores, error) {
		return scores, nil
	}
	return m
}

// WithError creates a mock whose LoadModel and Classify fail with err.
func WithError(err error) *Mock {
	m := NewMock()
	m.LoadModelFunc = func(ctx context.Context, name, uri string) error { return err }
	m.ClassifyFunc = func(ctx context.Context, jpeg []byte, opts Options) (emotion.Scores, error) {
		return nil, err
	}
	return m
}

func (m *Mock) record(method string, args ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Args: args, Time: time.Now()})
}

// LoadModel implements Classifier.
func (m *Mock) LoadModel(ctx context.Context, name, uri string) error {
	m.record("LoadModel", name, uri)
	if m.LoadModelFunc != nil {
		return m.LoadModelFunc(ctx, name, uri)
	}
	return nil
}

// Classify implements Classifier.
func (m *Mock) Classify(ctx context.Context, jpeg []byte, opts Options) (emotion.Scores, error) {
	m.record("Classify")
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, jpeg, opts)
	}
	return nil, nil
}

// Close implements Classifier.
func (m *Mock) Close() error {
	m.record("Close")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls to a method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
