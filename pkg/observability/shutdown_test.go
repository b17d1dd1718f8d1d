package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsInOrder(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, time.Second)

	var order []string
	sm.Register("otel", func(context.Context) error {
		order = append(order, "otel")
		return nil
	})
	sm.Register("redis", func(context.Context) error {
		order = append(order, "redis")
		return errors.New("already closed")
	})
	sm.Register("database", func(context.Context) error {
		order = append(order, "database")
		return nil
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: already closed")
	assert.Equal(t, []string{"otel", "redis", "database"}, order)
}

func TestShutdownRecoversPanics(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, time.Second)

	ran := false
	sm.Register("bad", func(context.Context) error { panic("boom") })
	sm.Register("good", func(context.Context) error {
		ran = true
		return nil
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: boom")
	assert.True(t, ran)
}

func TestWaitForShutdownOnContextCancel(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	server := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(logger, server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, sm.WaitForShutdown(ctx))
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)

	func() {
		defer RecoverPanic(logger, "test")
		panic("kaboom")
	}()

	assert.Contains(t, buf.String(), "PANIC recovered")
	assert.Contains(t, buf.String(), "kaboom")
	assert.NoError(t, MustRecover(nil))
}
