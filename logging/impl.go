package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface used across sensorhub. It is compatible with a
// `*zap.SugaredLogger` and adds named subloggers, runtime level changes and context aware
// debug logging.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Fatal(args ...interface{})
	Fatalf(template string, args ...interface{})
	Fatalw(msg string, keysAndValues ...interface{})

	// CDebugf and CDebugw log at debug level when either the logger level allows it or the
	// context was marked with EnableDebugMode.
	CDebugf(ctx context.Context, template string, args ...interface{})
	CDebugw(ctx context.Context, msg string, keysAndValues ...interface{})

	Desugar() *zap.Logger
	Level() zapcore.Level
	Named(name string) *zap.SugaredLogger
	Sync() error
	With(args ...interface{}) *zap.SugaredLogger
	WithOptions(opts ...zap.Option) *zap.SugaredLogger

	Sublogger(subname string) Logger
	SetLevel(level Level)
	GetLevel() Level
	AsZap() *zap.SugaredLogger
}

type impl struct {
	*zap.SugaredLogger

	name  string
	level AtomicLevel
	// base is the unfiltered core shared with subloggers.
	base zapcore.Core
	// forced writes debug entries for debug mode contexts regardless of level.
	forced *zap.SugaredLogger
}

func newImpl(name string, level AtomicLevel, base zapcore.Core) *impl {
	filtered, err := zapcore.NewIncreaseLevelCore(base, level.zap)
	if err != nil {
		// base cores must enable every level; a nop core does not.
		panic(err)
	}
	sugared := zap.New(filtered, zap.AddCaller()).Sugar()
	forced := zap.New(base, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	if name != "" {
		sugared = sugared.Named(name)
		forced = forced.Named(name)
	}
	return &impl{
		SugaredLogger: sugared,
		name:          name,
		level:         level,
		base:          base,
		forced:        forced,
	}
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = fmt.Sprintf("%s.%s", imp.name, subname)
	}
	return newImpl(newName, NewAtomicLevelAt(imp.level.Get()), imp.base)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) AsZap() *zap.SugaredLogger {
	return imp.SugaredLogger
}

func (imp *impl) CDebugf(ctx context.Context, template string, args ...interface{}) {
	if IsDebugMode(ctx) {
		imp.forced.Debugf(template, args...)
		return
	}
	imp.SugaredLogger.WithOptions(zap.AddCallerSkip(1)).Debugf(template, args...)
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if IsDebugMode(ctx) {
		imp.forced.Debugw(msg, append(keysAndValues, "debug_key", GetName(ctx))...)
		return
	}
	imp.SugaredLogger.WithOptions(zap.AddCallerSkip(1)).Debugw(msg, keysAndValues...)
}
