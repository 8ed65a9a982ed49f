package txfilter

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"

	"reqtx/internal/bootstrap/logging"
	"reqtx/internal/domain/transaction"
	"reqtx/internal/ports"
)

type mockSession struct {
	mock.Mock
}

func (m *mockSession) BeginTransaction(ctx context.Context, level transaction.IsolationLevel) (ports.Transaction, error) {
	args := m.Called(ctx, level)
	tx, _ := args.Get(0).(ports.Transaction)
	return tx, args.Error(1)
}

type mockTransaction struct {
	mock.Mock
}

func (m *mockTransaction) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockTransaction) Rollback(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockTransaction) Dispose() error {
	return m.Called().Error(0)
}

func (m *mockTransaction) IsActive() bool {
	return m.Called().Bool(0)
}

func (m *mockTransaction) State() transaction.State {
	return m.Called().Get(0).(transaction.State)
}

func (m *mockTransaction) IsolationLevel() transaction.IsolationLevel {
	return m.Called().Get(0).(transaction.IsolationLevel)
}

func (m *mockTransaction) Handle() ports.Tx {
	return m.Called().Get(0)
}

// newBegunSession returns a session whose BeginTransaction yields tx for level.
func newBegunSession(tx *mockTransaction, level transaction.IsolationLevel) *mockSession {
	session := &mockSession{}
	session.On("BeginTransaction", mock.Anything, level).Return(tx, nil).Once()
	return session
}

type logCapture struct {
	buf bytes.Buffer
}

func captureLogs(ctx context.Context) (context.Context, *logCapture) {
	c := &logCapture{}
	return logging.WithLogger(ctx, logging.New(&c.buf, "json", "debug")), c
}

func (c *logCapture) lines(t *testing.T) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(c.buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			t.Fatalf("decode log line %q: %v", raw, err)
		}
		out = append(out, line)
	}
	return out
}

func (c *logCapture) find(t *testing.T, msg string) (map[string]any, bool) {
	t.Helper()

	for _, line := range c.lines(t) {
		if line["msg"] == msg {
			return line, true
		}
	}
	return nil, false
}
