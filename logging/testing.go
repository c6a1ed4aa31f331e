package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

type testWriter struct {
	tb testing.TB
}

// Write outputs one encoded log entry through the underlying test object `Log` method. Writing
// through `tb.Log` associates the line with the running "Test*" function, which matters for
// tests that call `t.Parallel()`.
func (tw *testWriter) Write(p []byte) (int, error) {
	tw.tb.Helper()
	tw.tb.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// Sync is a no-op.
func (tw *testWriter) Sync() error {
	return nil
}

// newTestCore returns a core that encodes entries in local time with tab separated fields and
// writes them to the test log.
func newTestCore(tb testing.TB) zapcore.Core {
	encoderConfig := NewLoggerConfig().EncoderConfig
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(DefaultTimeFormatStr)
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), &testWriter{tb}, zapcore.DebugLevel)
}
