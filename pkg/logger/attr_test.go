package logger_test

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpilot/taskpilot/pkg/logger"
)

func TestGroup(t *testing.T) {
	t.Parallel()
	attr := logger.Group("req", slog.String("id", "1"), slog.Int("n", 2))
	require.Equal(t, "req", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "id", g[0].Key)
	assert.Equal(t, "n", g[1].Key)
}

func TestError(t *testing.T) {
	t.Parallel()
	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	empty := logger.Error(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestErrors(t *testing.T) {
	t.Parallel()
	err1 := errors.New("first")
	err2 := errors.New("second")

	attr := logger.Errors(err1, nil, err2)
	require.Equal(t, "errors", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, err1, g[0].Value.Any())
	assert.Equal(t, err2, g[1].Value.Any())

	empty := logger.Errors(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestTiming(t *testing.T) {
	t.Parallel()

	attr := logger.Duration(time.Second)
	require.Equal(t, "duration", attr.Key)
	assert.Equal(t, time.Second, attr.Value.Duration())

	elapsed := logger.Elapsed(time.Now().Add(-time.Minute))
	require.Equal(t, "elapsed", elapsed.Key)
	assert.GreaterOrEqual(t, elapsed.Value.Duration(), time.Minute)
}

func TestMessagingAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "event", logger.Event("process.start").Key)
	assert.Equal(t, "message_type", logger.MessageType("task").Key)
	assert.Equal(t, "restart_count", logger.RestartCount(2).Key)
	assert.Equal(t, "component", logger.Component("supervisor").Key)

	pid := logger.PID(1234)
	require.Equal(t, "pid", pid.Key)
	assert.Equal(t, int64(1234), pid.Value.Int64())
	assert.True(t, logger.PID(0).Equal(slog.Attr{}))

	cid := logger.CorrelationID("abc")
	require.Equal(t, "correlation_id", cid.Key)
	assert.True(t, logger.CorrelationID("").Equal(slog.Attr{}))
}

func TestGenericAttrs(t *testing.T) {
	t.Parallel()

	count := logger.Count("listeners", 11)
	require.Equal(t, "listeners", count.Key)
	assert.Equal(t, int64(11), count.Value.Int64())

	key := logger.Key("payload", map[string]int{"v": 1})
	require.Equal(t, "payload", key.Key)
	assert.True(t, logger.Key("payload", nil).Equal(slog.Attr{}))
}

func TestDebugAttrs(t *testing.T) {
	t.Parallel()

	stack := logger.Stack()
	require.Equal(t, "stack", stack.Key)
	assert.Contains(t, stack.Value.String(), "goroutine")

	caller := logger.Caller()
	require.Equal(t, "caller", caller.Key)
	assert.True(t, strings.Contains(caller.Value.String(), ".go:"))
}
