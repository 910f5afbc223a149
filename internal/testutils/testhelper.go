package testutils

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// TestHelper bundles a debug-level logger whose entries are captured by a
// hook, so tests can assert on what was logged.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Hook   *logtest.Hook
}

// NewTestHelper creates a test helper with a captured, silenced logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
		Hook:   hook,
	}
}

// EntriesAt returns the captured entries at the given level.
func (h *TestHelper) EntriesAt(level logrus.Level) []logrus.Entry {
	var out []logrus.Entry
	for _, e := range h.Hook.AllEntries() {
		if e.Level == level {
			out = append(out, *e)
		}
	}
	return out
}

// Messages returns the captured messages at or above the given level
// (logrus levels grow toward debug, so "at or above" means <= level).
func (h *TestHelper) Messages(level logrus.Level) []string {
	var out []string
	for _, e := range h.Hook.AllEntries() {
		if e.Level <= level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Contains reports whether any captured message contains substr.
func (h *TestHelper) Contains(substr string) bool {
	for _, e := range h.Hook.AllEntries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
