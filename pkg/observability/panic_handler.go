package observability

import (
	"fmt"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
)

// RecoverPanic recovers from a panic, logs it with its stack and reports it
// to Sentry. It must be called directly in a defer statement:
//
//	defer observability.RecoverPanic(logger, "seed import")
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		ReportPanic(logger, r, context)
	}
}

// ReportPanic logs and reports an already recovered panic value
func ReportPanic(logger *Logger, r interface{}, context string) {
	logger.WithField("panic", fmt.Sprint(r)).
		WithField("stack", string(debug.Stack())).
		WithField("context", context).
		Error("PANIC recovered")
	sentry.CurrentHub().Recover(r)
}

// MustRecover converts a recovered panic value into an error; nil stays nil
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
