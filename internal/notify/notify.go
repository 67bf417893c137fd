// Package notify is the boundary to the notification transport. Features
// call Trigger with a template id and a subject; delivery is the
// transport's concern.
package notify

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/logging"
)

// Messenger addresses a delivery target either by stored messenger id or
// by an explicit type and value.
type Messenger struct {
	ID    string
	Type  string
	Value string
}

// Options narrows delivery. Empty Options means every verified messenger
// of the subject.
type Options struct {
	Messengers []Messenger
	Types      []string
}

type Notifier interface {
	Trigger(ctx context.Context, id, sub string, data map[string]any, opts Options) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, id, sub string, data map[string]any, opts Options) error

func (f Func) Trigger(ctx context.Context, id, sub string, data map[string]any, opts Options) error {
	return f(ctx, id, sub, data, opts)
}

type Nop struct{}

func (Nop) Trigger(context.Context, string, string, map[string]any, Options) error { return nil }

// Log writes every trigger to the logger. Data values are omitted since
// they routinely carry one-time tokens.
type Log struct {
	logger logging.Logger
}

func NewLog(logger logging.Logger) *Log {
	return &Log{logger: logger.With("module", "notify")}
}

func (l *Log) Trigger(ctx context.Context, id, sub string, data map[string]any, opts Options) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	l.logger.Info(ctx, "notify", "id", id, "sub", sub, "data", keys, "messengers", len(opts.Messengers), "types", opts.Types)
	return nil
}

// Call is one recorded trigger.
type Call struct {
	ID      string
	Sub     string
	Data    map[string]any
	Options Options
}

// Memory records triggers for tests and local inspection.
type Memory struct {
	mu    sync.Mutex
	calls []Call
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Trigger(_ context.Context, id, sub string, data map[string]any, opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{ID: id, Sub: sub, Data: data, Options: opts})
	return nil
}

func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Last returns the most recent call with the given template id.
func (m *Memory) Last(id string) (Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.calls) - 1; i >= 0; i-- {
		if m.calls[i].ID == id {
			return m.calls[i], true
		}
	}
	return Call{}, false
}

// Count returns how many calls used the given template id.
func (m *Memory) Count(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.ID == id {
			n++
		}
	}
	return n
}
