package scanner

import (
	"context"
	"os/exec"
	"sync"
)

// Call records one FakeExecutor invocation.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// FakeExecutor is an in-memory Executor for tests. RunFunc, when set,
// decides the outcome; otherwise Result and Err are returned.
type FakeExecutor struct {
	Result  Result
	Err     error
	RunFunc func(ctx context.Context, c Call) (Result, error)
	Paths   map[string]string

	mu    sync.Mutex
	calls []Call
}

func (f *FakeExecutor) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	c := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.RunFunc != nil {
		return f.RunFunc(ctx, c)
	}
	return f.Result, f.Err
}

func (f *FakeExecutor) LookPath(name string) (string, error) {
	if p, ok := f.Paths[name]; ok {
		return p, nil
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

// Calls returns a copy of the recorded invocations.
func (f *FakeExecutor) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}
