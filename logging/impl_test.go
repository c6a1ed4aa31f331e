package logging

import (
	"context"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

func TestSubloggerNaming(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	station := logger.Sublogger("station")
	sensor := station.Sublogger("tempA")

	sensor.Infow("started", "state", "RUNNING")

	entries := observed.All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "station.tempA")
	test.That(t, entries[0].Message, test.ShouldEqual, "started")
	test.That(t, entries[0].ContextMap()["state"], test.ShouldEqual, "RUNNING")
}

func TestSetLevel(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.Debug("shown")
	logger.SetLevel(WARN)
	logger.Info("hidden")
	logger.Warn("shown too")

	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)
	test.That(t, logger.Level(), test.ShouldEqual, zapcore.WarnLevel)
	test.That(t, observed.Len(), test.ShouldEqual, 2)
	test.That(t, observed.FilterMessage("hidden").Len(), test.ShouldEqual, 0)
}

func TestSubloggerLevelIsIndependent(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	sub := logger.Sublogger("sub")
	sub.SetLevel(ERROR)

	logger.Info("parent")
	sub.Info("child")

	test.That(t, observed.Len(), test.ShouldEqual, 1)
	test.That(t, observed.All()[0].Message, test.ShouldEqual, "parent")
}

func TestDebugMode(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.SetLevel(INFO)

	logger.CDebugf(context.Background(), "quiet %d", 1)
	test.That(t, observed.Len(), test.ShouldEqual, 0)

	ctx := EnableDebugMode(context.Background(), "trace1")
	test.That(t, IsDebugMode(ctx), test.ShouldBeTrue)
	test.That(t, GetName(ctx), test.ShouldEqual, "trace1")

	logger.CDebugf(ctx, "loud %d", 2)
	logger.CDebugw(ctx, "loud w", "k", "v")
	test.That(t, observed.Len(), test.ShouldEqual, 2)
	test.That(t, observed.All()[0].Message, test.ShouldEqual, "loud 2")
	test.That(t, observed.All()[1].ContextMap()["debug_key"], test.ShouldEqual, "trace1")

	test.That(t, GetName(EnableDebugMode(context.Background(), "")), test.ShouldHaveLength, 6)
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warning", WARN},
		{"error", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	var level Level
	test.That(t, level.UnmarshalJSON([]byte(`"warn"`)), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
	out, err := ERROR.MarshalJSON()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"error"`)
}

func TestBlankLogger(t *testing.T) {
	logger := NewBlankLogger("quiet")
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
	logger.Debugw("discarded", "key", "value")
	logger.Errorw("discarded", "key", "value")

	sub := logger.Sublogger("sub")
	sub.SetLevel(WARN)
	sub.Warn("discarded")
	test.That(t, sub.GetLevel(), test.ShouldEqual, WARN)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
}
