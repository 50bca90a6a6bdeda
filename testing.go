package metagen

import (
	"context"
	"sync"
)

// scriptedInvoker is an in-memory Invoker for tests: per-mode handlers plus a
// call log. The zero value answers every call with empty content errors, so
// tests opt in to exactly the behavior they exercise.
type scriptedInvoker struct {
	mu        sync.Mutex
	calls     []string
	histories [][]Message

	textFn   func(prompt string) (string, error)
	visionFn func(prompt string, image *Part) (string, error)
	toolsFn  func(question string, tools []ToolDef) (*ToolReply, error)
}

func (s *scriptedInvoker) logCall(mode string, history []Message) {
	s.mu.Lock()
	s.calls = append(s.calls, mode)
	s.histories = append(s.histories, append([]Message(nil), history...))
	s.mu.Unlock()
}

// Calls returns the invocation modes in order.
func (s *scriptedInvoker) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Histories returns the conversation history passed with each call, in call
// order.
func (s *scriptedInvoker) Histories() [][]Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Message(nil), s.histories...)
}

func (s *scriptedInvoker) Text(_ context.Context, _ string, history []Message, prompt string) (string, error) {
	s.logCall("text", history)
	if s.textFn == nil {
		return "", ErrModelUnavailable
	}
	return s.textFn(prompt)
}

func (s *scriptedInvoker) Vision(_ context.Context, _ string, history []Message, prompt string, image *Part) (string, error) {
	s.logCall("vision", history)
	if s.visionFn == nil {
		return "", ErrModelUnavailable
	}
	return s.visionFn(prompt, image)
}

func (s *scriptedInvoker) Tools(_ context.Context, _ string, history []Message, question string, tools []ToolDef) (*ToolReply, error) {
	s.logCall("tools", history)
	if s.toolsFn == nil {
		return nil, ErrModelUnavailable
	}
	return s.toolsFn(question, tools)
}
