// Package ioutil provides I/O utilities.
package ioutil

import (
	"io"

	"go.abhg.dev/io/ioutil"
	"go.abhg.dev/log/silog"
)

// TestLogger is the subset of testing.TB that TestLogWriter needs.
type TestLogger interface {
	Logf(format string, args ...any)
	Cleanup(func())
}

// LogWriter builds and returns an io.Writer that
// writes messages to the given logger at debug level.
// If the logger is nil, a no-op writer is returned.
//
// The done function must be called when the writer is no longer needed.
// It will flush any buffered text to the logger.
//
// The returned writer is not thread-safe.
func LogWriter(logger *silog.Logger) (w io.Writer, done func()) {
	if logger == nil {
		return io.Discard, func() {}
	}

	w, flush := ioutil.LineWriter(func(bs []byte) {
		logger.Debug(string(bs))
	})
	return w, flush
}

// TestLogWriter builds and returns an io.Writer that
// writes messages to the given testing.TB.
// The returned writer is not thread-safe.
func TestLogWriter(t TestLogger, prefix string) (w io.Writer) {
	w, flush := ioutil.LineWriter(func(bs []byte) {
		t.Logf("%s%s", prefix, bs)
	})
	t.Cleanup(flush)
	return w
}
